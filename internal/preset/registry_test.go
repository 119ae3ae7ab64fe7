package preset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/srcdoc/internal/types"
)

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry(nil, 2)

	tests := []struct {
		name     string
		files    types.FileSet
		expected Kind
	}{
		{"html only", types.FileSet{"index.html": "<h1>hi</h1>"}, KindHTML},
		{"tsx selects bundler", types.FileSet{"index.html": "", "App.tsx": "x"}, KindBuilder},
		{"jsx selects bundler", types.FileSet{"src/widget.jsx": "x"}, KindBuilder},
		{"plain ts stays passthrough", types.FileSet{"main.ts": "x"}, KindHTML},
		{"empty set", types.FileSet{}, KindHTML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, registry.Resolve(nil, tt.files).Kind)
		})
	}

	t.Run("explicit preset wins", func(t *testing.T) {
		html := Passthrough()
		got := registry.Resolve(&html, types.FileSet{"App.tsx": "x"})
		assert.Equal(t, "html", got.Name)
	})

	t.Run("zero explicit preset is ignored", func(t *testing.T) {
		got := registry.Resolve(&Preset{}, types.FileSet{"App.tsx": "x"})
		assert.Equal(t, KindBuilder, got.Kind)
	})
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry(nil, 0)

	for _, name := range []string{"html", "passthrough", "React", "bundled", " builder "} {
		t.Run(name, func(t *testing.T) {
			p, err := registry.Lookup(name)
			require.NoError(t, err)
			assert.NotEmpty(t, p.Version)
		})
	}

	_, err := registry.Lookup("vue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available:")

	assert.Len(t, registry.All(), 2)
}

func TestPreset_Owns(t *testing.T) {
	p := Passthrough()
	assert.True(t, p.Owns("index.HTML"))
	assert.False(t, p.Owns("App.tsx"))
	assert.Equal(t, "html", p.Identity().Name)
}
