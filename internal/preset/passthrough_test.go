package preset

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/srcdoc/internal/types"
)

func runPreset(t *testing.T, p Preset, files types.FileSet, opts types.Options) (string, []string, int64) {
	t.Helper()

	var units int64
	artifact, diagnostics, err := p.Transform(context.Background(), TransformInput{
		Files:    files,
		Options:  opts,
		UnitDone: func() { atomic.AddInt64(&units, 1) },
	})
	require.NoError(t, err)
	if len(diagnostics) > 0 {
		return "", diagnostics, units
	}

	document, err := p.Materialize(context.Background(), artifact, opts)
	require.NoError(t, err)

	return document, nil, units
}

func TestPassthrough_SimpleDocument(t *testing.T) {
	document, diagnostics, units := runPreset(t, Passthrough(), types.FileSet{"index.html": "<h1>hi</h1>"}, nil)

	assert.Empty(t, diagnostics)
	assert.Contains(t, document, "<h1>hi</h1>")
	assert.True(t, len(document) > 0 && document[:15] == "<!DOCTYPE html>")
	assert.Equal(t, int64(1), units)
}

func TestPassthrough_InlinesLocalAssets(t *testing.T) {
	files := types.FileSet{
		"/index.html": `<!doctype html><html><head>
<link rel="stylesheet" href="./css/site.css">
<link rel="stylesheet" href="https://cdn.example.com/remote.css">
</head><body><script src="app.js?v=2"></script></body></html>`,
		"css/site.css": "body { color: red; }",
		"app.js":       "document.body.dataset.ready = '</script>';",
	}

	document, diagnostics, units := runPreset(t, Passthrough(), files, nil)
	require.Empty(t, diagnostics)

	assert.Contains(t, document, "<style>body { color: red; }</style>")
	assert.Contains(t, document, "https://cdn.example.com/remote.css")
	assert.Contains(t, document, `<\/script>`)
	assert.NotContains(t, document, `src="app.js`)
	assert.Equal(t, int64(3), units)
}

func TestPassthrough_Diagnostics(t *testing.T) {
	t.Run("missing asset", func(t *testing.T) {
		files := types.FileSet{"index.html": `<link rel="stylesheet" href="style.css"><h1>x</h1>`}
		_, diagnostics, _ := runPreset(t, Passthrough(), files, nil)
		assert.Equal(t, []string{`index.html: missing asset "style.css"`}, diagnostics)
	})

	t.Run("no html entry", func(t *testing.T) {
		_, diagnostics, _ := runPreset(t, Passthrough(), types.FileSet{"notes.txt": "hello"}, nil)
		require.Len(t, diagnostics, 1)
		assert.Contains(t, diagnostics[0], "no HTML entry")
	})

	t.Run("falls back to first html file", func(t *testing.T) {
		files := types.FileSet{"b.html": "<p>b</p>", "a.htm": "<p>a</p>"}
		document, diagnostics, _ := runPreset(t, Passthrough(), files, nil)
		require.Empty(t, diagnostics)
		assert.Contains(t, document, "<p>a</p>")
	})
}

func TestPassthrough_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Passthrough().Transform(ctx, TransformInput{Files: types.FileSet{"index.html": "x"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaterializeKeepsExistingDoctype(t *testing.T) {
	document, err := materializeHTML(context.Background(), []byte("<!DOCTYPE html><html></html>"), nil)
	require.NoError(t, err)
	assert.Equal(t, "<!DOCTYPE html><html></html>", document)
}
