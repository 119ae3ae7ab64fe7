package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm used for a packed payload. The values
// are stored in the first byte of every frame.
type Compression uint8

const (
	// CompressionNone stores the payload as is.
	CompressionNone Compression = 0
	// CompressionZstd uses zstd at the default level. Best ratio for the
	// JavaScript and HTML text that makes up most artifacts.
	CompressionZstd Compression = 1
	// CompressionLZ4 uses LZ4 block compression. Cheaper to produce, weaker
	// ratio.
	CompressionLZ4 Compression = 2
)

// String returns the configuration name of the algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a configuration name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (supported: none, zstd, lz4)", name)
	}
}

// ErrCorruptFrame is returned by Unpack for frames that cannot be decoded.
var ErrCorruptFrame = errors.New("codec: corrupt frame")

var errIncompressible = errors.New("codec: incompressible")

// maxFrameSize bounds the uncompressed length a frame header may claim, so a
// corrupt header cannot trigger a huge allocation.
const maxFrameSize = 1 << 30

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Pack wraps data in a frame. Payloads shorter than minSize, or that do not
// shrink under the requested algorithm, are stored uncompressed.
//
// Frame layout: 1 byte compression tag, uvarint uncompressed length, payload.
func Pack(data []byte, c Compression, minSize int) ([]byte, error) {
	tag := c
	payload := data

	if c != CompressionNone && len(data) >= minSize {
		compressed, err := compress(data, c)
		switch {
		case errors.Is(err, errIncompressible):
			tag = CompressionNone
		case err != nil:
			return nil, err
		default:
			payload = compressed
		}
	} else {
		tag = CompressionNone
	}

	frame := make([]byte, 1, 1+binary.MaxVarintLen64+len(payload))
	frame[0] = byte(tag)
	frame = binary.AppendUvarint(frame, uint64(len(data)))
	frame = append(frame, payload...)

	return frame, nil
}

// Unpack reverses Pack. Any inconsistency between the header and the payload
// is reported as ErrCorruptFrame.
func Unpack(frame []byte) ([]byte, error) {
	if len(frame) < 2 {
		return nil, ErrCorruptFrame
	}

	size, n := binary.Uvarint(frame[1:])
	if n <= 0 || size > maxFrameSize {
		return nil, ErrCorruptFrame
	}
	payload := frame[1+n:]

	var (
		data []byte
		err  error
	)
	switch Compression(frame[0]) {
	case CompressionNone:
		data = payload
	case CompressionZstd:
		data, err = zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
	case CompressionLZ4:
		data = make([]byte, size)
		var read int
		read, err = lz4.UncompressBlock(payload, data)
		data = data[:max(read, 0)]
	default:
		return nil, fmt.Errorf("%w: unknown compression tag %d", ErrCorruptFrame, frame[0])
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
	}
	if uint64(len(data)) != size {
		return nil, fmt.Errorf("%w: got %d bytes, header says %d", ErrCorruptFrame, len(data), size)
	}

	return data, nil
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil

	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil

	default:
		return nil, fmt.Errorf("unsupported compression: %s", c)
	}
}
