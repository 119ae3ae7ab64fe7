package assemble

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	srcerrors "github.com/conneroisu/srcdoc/internal/errors"
	"github.com/conneroisu/srcdoc/internal/preset"
	"github.com/conneroisu/srcdoc/internal/types"
)

func TestAssemble_Passthrough(t *testing.T) {
	out, err := Assemble(context.Background(), preset.Passthrough(), []byte("<h1>hi</h1>"), nil)
	require.NoError(t, err)

	assert.Equal(t, "<!DOCTYPE html>\n<h1>hi</h1>", out.Document)
	assert.Len(t, out.Fingerprint, 64)
}

func TestAssemble_IdenticalDocumentsShareFingerprint(t *testing.T) {
	// Two artifacts that differ only in something the materializer drops.
	p := preset.Preset{
		Name: "trim",
		Materialize: func(_ context.Context, artifact []byte, _ types.Options) (string, error) {
			return string(artifact[:5]), nil
		},
	}

	a, err := Assemble(context.Background(), p, []byte("hello world"), nil)
	require.NoError(t, err)
	b, err := Assemble(context.Background(), p, []byte("hello there"), nil)
	require.NoError(t, err)

	assert.Equal(t, a, b)

	c, err := Assemble(context.Background(), p, []byte("howdy"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
}

func TestAssemble_Failures(t *testing.T) {
	t.Run("materializer error", func(t *testing.T) {
		p := preset.Preset{Name: "bad", Materialize: func(context.Context, []byte, types.Options) (string, error) {
			return "", errors.New("corrupt artifact")
		}}

		_, err := Assemble(context.Background(), p, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "corrupt artifact")
	})

	t.Run("materializer panic", func(t *testing.T) {
		p := preset.Preset{Name: "panics", Materialize: func(context.Context, []byte, types.Options) (string, error) {
			panic("boom")
		}}

		out, err := Assemble(context.Background(), p, nil, nil)
		require.Error(t, err)
		assert.True(t, out.IsZero())

		var se *srcerrors.SrcdocError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, srcerrors.ErrCodeRenderFailed, se.Code)
	})

	t.Run("no materializer", func(t *testing.T) {
		_, err := Assemble(context.Background(), preset.Preset{Name: "none"}, nil, nil)
		assert.Error(t, err)
	})
}
