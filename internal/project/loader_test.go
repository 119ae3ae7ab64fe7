package project

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/srcdoc/internal/types"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/proj", name), []byte(content), 0o644))
	}
}

func TestLoader_Load(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"index.html":                  "<h1>hi</h1>",
		"src/App.tsx":                 "export default () => null",
		"node_modules/react/index.js": "module.exports = {}",
		".git/HEAD":                   "ref: refs/heads/main",
		".env":                        "SECRET=1",
		"debug.log":                   "noise",
		"drafts/notes.md":             "skip me",
		"logo.bin":                    "\x00\x01\x02",
	})

	loader := NewLoader(fs, "/proj", []string{"drafts"})
	files, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.FileSet{
		"index.html":  "<h1>hi</h1>",
		"src/App.tsx": "export default () => null",
	}, files)
}

func TestLoader_SkipsLargeFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"big.js": "0123456789", "small.js": "1"})

	loader := NewLoader(fs, "/proj", nil)
	loader.MaxFileSize = 5

	files, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.FileSet{"small.js": "1"}, files)
}

func TestLoader_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/file.txt", []byte("x"), 0o644))

	_, err := NewLoader(fs, "/missing", nil).Load(context.Background())
	assert.Error(t, err)

	_, err = NewLoader(fs, "/file.txt", nil).Load(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	writeFiles(t, fs, map[string]string{"a.html": "x"})
	_, err = NewLoader(fs, "/proj", nil).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_Relative(t *testing.T) {
	loader := NewLoader(afero.NewMemMapFs(), "/proj", nil)

	rel, ok := loader.Relative("/proj/src/App.tsx")
	assert.True(t, ok)
	assert.Equal(t, "src/App.tsx", rel)

	_, ok = loader.Relative("/elsewhere/App.tsx")
	assert.False(t, ok)

	assert.True(t, loader.Ignored("node_modules/x/y.js"))
	assert.True(t, loader.Ignored(".env.local"))
	assert.False(t, loader.Ignored("src/env.ts"))
}

func TestDigest(t *testing.T) {
	a := types.FileSet{"a": "1", "b": "2"}
	b := types.FileSet{"b": "2", "a": "1"}

	assert.Equal(t, Digest(a), Digest(b))
	assert.NotEqual(t, Digest(a), Digest(types.FileSet{"a": "1", "b": "3"}))
	assert.NotEqual(t, Digest(types.FileSet{"ab": ""}), Digest(types.FileSet{"a": "b"}))
}
