// Package preset defines the pluggable build strategies a session can run and
// the registry that picks one for a File Set.
//
// A Preset is a plain capability record: the core only calls Transform and
// Materialize and never looks inside the artifact bytes they exchange. Two
// presets ship with srcdoc, an HTML passthrough and a React/TSX bundler.
package preset

import (
	"context"
	"path"
	"strings"

	"github.com/conneroisu/srcdoc/internal/cache"
	"github.com/conneroisu/srcdoc/internal/fingerprint"
	"github.com/conneroisu/srcdoc/internal/logging"
	"github.com/conneroisu/srcdoc/internal/types"
)

// Kind tags the preset variant.
type Kind string

const (
	KindHTML    Kind = "html"
	KindBuilder Kind = "builder"
)

// UnitStore gives a transform access to per-unit cached work. Lookups and
// stores are keyed by the unit path and content; the store adds the preset
// identity and options to the key.
type UnitStore interface {
	Lookup(path, content string) (cache.Entry, bool)
	Store(path, content string, entry cache.Entry)
}

// TransformInput is everything a transform may read. Files is a private copy
// owned by the running session.
type TransformInput struct {
	Files   types.FileSet
	Options types.Options
	Units   UnitStore
	// UnitDone must be called once per completed compilation unit. It is safe
	// for concurrent use.
	UnitDone func()
	// Volatile marks the result as depending on state the fingerprint does
	// not cover, such as CDN availability. Such results are never cached.
	Volatile func()
	Logger   logging.Logger
}

func (in TransformInput) unitDone() {
	if in.UnitDone != nil {
		in.UnitDone()
	}
}

func (in TransformInput) markVolatile() {
	if in.Volatile != nil {
		in.Volatile()
	}
}

func (in TransformInput) units() UnitStore {
	if in.Units == nil {
		return noUnits{}
	}

	return in.Units
}

func (in TransformInput) logger() logging.Logger {
	if in.Logger == nil {
		return logging.Nop()
	}

	return in.Logger
}

// TransformFunc compiles a File Set into an opaque artifact. User-code
// problems are reported as diagnostics; a returned error means the transform
// itself could not run (including cancellation).
type TransformFunc func(ctx context.Context, in TransformInput) (artifact []byte, diagnostics []string, err error)

// MaterializeFunc turns an artifact into a standalone HTML document.
type MaterializeFunc func(ctx context.Context, artifact []byte, options types.Options) (string, error)

// Preset is an immutable build strategy.
type Preset struct {
	Name        string
	Kind        Kind
	Version     string
	Description string
	Extensions  []string
	Transform   TransformFunc
	Materialize MaterializeFunc
}

// Identity returns the part of the preset that participates in fingerprints.
func (p Preset) Identity() fingerprint.PresetIdentity {
	return fingerprint.PresetIdentity{Name: p.Name, Version: p.Version}
}

// Owns reports whether the preset declares the extension of filePath.
func (p Preset) Owns(filePath string) bool {
	ext := types.Ext(filePath)
	for _, e := range p.Extensions {
		if e == ext {
			return true
		}
	}

	return false
}

// IsZero reports whether p is the zero Preset.
func (p Preset) IsZero() bool {
	return p.Name == "" && p.Transform == nil
}

type noUnits struct{}

func (noUnits) Lookup(string, string) (cache.Entry, bool) { return cache.Entry{}, false }
func (noUnits) Store(string, string, cache.Entry)         {}

// isRemote reports whether a reference points outside the File Set.
func isRemote(ref string) bool {
	lower := strings.ToLower(ref)
	for _, prefix := range []string{"http://", "https://", "//", "data:", "blob:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}

	return false
}

// resolveRelative resolves ref against the directory of from, returning a
// clean File Set path.
func resolveRelative(from, ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if strings.HasPrefix(ref, "/") {
		return types.CleanPath(ref)
	}

	return types.CleanPath(path.Join(path.Dir(from), ref))
}
