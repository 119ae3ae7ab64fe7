package preset

import (
	"sort"
	"strings"

	"github.com/conneroisu/srcdoc/internal/deps"
	"github.com/conneroisu/srcdoc/internal/errors"
	"github.com/conneroisu/srcdoc/internal/types"
)

// Registry holds the known presets.
type Registry struct {
	passthrough Preset
	bundled     Preset
	aliases     map[string]Preset
}

// NewRegistry builds the registry. The resolver maps bare imports of bundled
// projects to CDN URLs; nil selects a non-verifying resolver with defaults.
// unitConcurrency caps parallel unit transforms (<= 0 means GOMAXPROCS).
func NewRegistry(resolver *deps.Resolver, unitConcurrency int) *Registry {
	if resolver == nil {
		resolver = deps.New(deps.DefaultConfig(), nil)
	}

	passthrough := Passthrough()
	bundled := Bundled(resolver, unitConcurrency)

	return &Registry{
		passthrough: passthrough,
		bundled:     bundled,
		aliases: map[string]Preset{
			"html":        passthrough,
			"passthrough": passthrough,
			"react":       bundled,
			"bundled":     bundled,
			"builder":     bundled,
		},
	}
}

// Resolve picks the preset for files. An explicit preset always wins;
// otherwise any .jsx or .tsx path selects the bundler and everything else is
// passed through. The decision depends only on the paths.
func (r *Registry) Resolve(explicit *Preset, files types.FileSet) Preset {
	if explicit != nil && !explicit.IsZero() {
		return *explicit
	}

	for p := range files {
		if strings.HasSuffix(p, ".jsx") || strings.HasSuffix(p, ".tsx") {
			return r.bundled
		}
	}

	return r.passthrough
}

// Lookup returns the preset registered under name.
func (r *Registry) Lookup(name string) (Preset, error) {
	p, ok := r.aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, errors.ErrUnknownPreset(name, r.Names())
	}

	return p, nil
}

// Names lists every accepted preset name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.aliases))
	for name := range r.aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// All returns the distinct presets.
func (r *Registry) All() []Preset {
	return []Preset{r.passthrough, r.bundled}
}
