package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalIsOrderIndependent(t *testing.T) {
	first := map[string]any{"b": "2", "a": "1", "c": true}
	second := map[string]any{}
	for _, key := range []string{"c", "a", "b"} {
		second[key] = first[key]
	}

	encodedFirst, err := Marshal(first)
	require.NoError(t, err)
	encodedSecond, err := Marshal(second)
	require.NoError(t, err)

	assert.Equal(t, encodedFirst, encodedSecond)

	var decoded map[string]any
	require.NoError(t, Unmarshal(encodedFirst, &decoded))
	assert.Equal(t, "1", decoded["a"])
}

func TestPackUnpack(t *testing.T) {
	text := []byte(strings.Repeat("export default function App() { return null }\n", 200))

	testCases := []struct {
		name        string
		compression Compression
		minSize     int
		wantTag     Compression
	}{
		{"none", CompressionNone, 0, CompressionNone},
		{"zstd", CompressionZstd, 0, CompressionZstd},
		{"lz4", CompressionLZ4, 0, CompressionLZ4},
		{"below threshold", CompressionZstd, len(text) + 1, CompressionNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := Pack(text, tc.compression, tc.minSize)
			require.NoError(t, err)
			assert.Equal(t, byte(tc.wantTag), frame[0])

			data, err := Unpack(frame)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(text, data))
		})
	}
}

func TestPackFallsBackForIncompressibleInput(t *testing.T) {
	frame, err := Pack([]byte("ab"), CompressionZstd, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(CompressionNone), frame[0])
}

func TestUnpackRejectsCorruptFrames(t *testing.T) {
	valid, err := Pack([]byte(strings.Repeat("x", 4096)), CompressionZstd, 0)
	require.NoError(t, err)

	truncated := valid[:len(valid)/2]
	badTag := append([]byte{0x7f}, valid[1:]...)

	for name, frame := range map[string][]byte{
		"empty":     nil,
		"truncated": truncated,
		"bad tag":   badTag,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Unpack(frame)
			assert.True(t, errors.Is(err, ErrCorruptFrame), "got %v", err)
		})
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		parsed, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}
