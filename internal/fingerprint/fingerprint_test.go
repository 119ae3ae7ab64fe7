package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/srcdoc/internal/types"
)

var testPreset = PresetIdentity{Name: "react", Version: "1"}

func TestBuildIsOrderIndependent(t *testing.T) {
	first := types.FileSet{}
	first["App.tsx"] = "export default () => null"
	first["index.css"] = "body{}"
	first["util.ts"] = "export const x = 1"

	second := types.FileSet{}
	second["util.ts"] = "export const x = 1"
	second["App.tsx"] = "export default () => null"
	second["index.css"] = "body{}"

	optsA := types.Options{"title": "a", "minify": true}
	optsB := types.Options{"minify": true, "title": "a"}

	fpA, err := Build(testPreset, first, optsA)
	require.NoError(t, err)
	fpB, err := Build(testPreset, second, optsB)
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB)
	assert.Len(t, fpA, 64)
}

func TestBuildCoversEveryInput(t *testing.T) {
	files := types.FileSet{"index.html": "<h1>hi</h1>"}
	opts := types.Options{"title": "x"}

	base, err := Build(testPreset, files, opts)
	require.NoError(t, err)

	variants := map[string]func() (string, error){
		"content": func() (string, error) {
			return Build(testPreset, types.FileSet{"index.html": "<h1>hi!</h1>"}, opts)
		},
		"path": func() (string, error) {
			return Build(testPreset, types.FileSet{"main.html": "<h1>hi</h1>"}, opts)
		},
		"option value": func() (string, error) {
			return Build(testPreset, files, types.Options{"title": "y"})
		},
		"extra option": func() (string, error) {
			return Build(testPreset, files, types.Options{"title": "x", "minify": false})
		},
		"preset name": func() (string, error) {
			return Build(PresetIdentity{Name: "html", Version: "1"}, files, opts)
		},
		"preset version": func() (string, error) {
			return Build(PresetIdentity{Name: "react", Version: "2"}, files, opts)
		},
	}

	for name, variant := range variants {
		t.Run(name, func(t *testing.T) {
			fp, err := variant()
			require.NoError(t, err)
			assert.NotEqual(t, base, fp)
		})
	}
}

func TestBuildNormalizesNumericOptions(t *testing.T) {
	files := types.FileSet{"index.html": "x"}

	fromInt, err := Build(testPreset, files, types.Options{"width": 320})
	require.NoError(t, err)
	fromFloat, err := Build(testPreset, files, types.Options{"width": 320.0})
	require.NoError(t, err)

	assert.Equal(t, fromInt, fromFloat)
}

func TestBuildRejectsUnsupportedOptions(t *testing.T) {
	_, err := Build(testPreset, types.FileSet{"a": "b"}, types.Options{"bad": []int{1}})
	assert.Error(t, err)
}

func TestNilAndEmptyInputsMatch(t *testing.T) {
	fromNil, err := Build(testPreset, nil, nil)
	require.NoError(t, err)
	fromEmpty, err := Build(testPreset, types.FileSet{}, types.Options{})
	require.NoError(t, err)

	assert.Equal(t, fromNil, fromEmpty)
}

func TestDomainsAreSeparated(t *testing.T) {
	unit, err := Unit(testPreset, "App.tsx", "x", nil)
	require.NoError(t, err)
	build, err := Build(testPreset, types.FileSet{"App.tsx": "x"}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, unit, build)
	assert.NotEqual(t, Document("x"), unit)
}

func TestDocumentIsStable(t *testing.T) {
	assert.Equal(t, Document("<h1>hi</h1>"), Document("<h1>hi</h1>"))
	assert.NotEqual(t, Document("<h1>hi</h1>"), Document("<h1>hi </h1>"))
	assert.NotEmpty(t, Document(""))
}
