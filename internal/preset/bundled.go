package preset

import (
	"context"
	"fmt"
	"path"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/srcdoc/internal/cache"
	"github.com/conneroisu/srcdoc/internal/codec"
	"github.com/conneroisu/srcdoc/internal/deps"
	"github.com/conneroisu/srcdoc/internal/errors"
	"github.com/conneroisu/srcdoc/internal/types"
)

const (
	bundledVersion = "1"

	projectNamespace = "project"
	bootstrapPath    = "__srcdoc_bootstrap.js"
	entryAlias       = "srcdoc:entry"
)

var scriptLoaders = map[string]api.Loader{
	".tsx": api.LoaderTSX,
	".ts":  api.LoaderTS,
	".jsx": api.LoaderJSX,
	".js":  api.LoaderJSX,
	".mjs": api.LoaderJS,
}

var assetLoaders = map[string]api.Loader{
	".json": api.LoaderJSON,
	".svg":  api.LoaderDataURL,
	".png":  api.LoaderDataURL,
	".txt":  api.LoaderText,
	".md":   api.LoaderText,
}

// resolveOrder lists the extensions tried for extensionless imports.
var resolveOrder = []string{".tsx", ".ts", ".jsx", ".js", ".mjs", ".json", ".css"}

// Bundled returns the React/TSX preset. Each script file is transformed on its
// own (and cached per unit), then esbuild links the transformed units into a
// single ES module with bare imports served from a CDN.
func Bundled(resolver *deps.Resolver, unitConcurrency int) Preset {
	if unitConcurrency <= 0 {
		unitConcurrency = runtime.GOMAXPROCS(0)
	}
	b := &bundler{resolver: resolver, concurrency: unitConcurrency}

	return Preset{
		Name:        "react",
		Kind:        KindBuilder,
		Version:     bundledVersion,
		Description: "React/TSX project bundled with esbuild, dependencies from a CDN",
		Extensions:  []string{".tsx", ".ts", ".jsx", ".js", ".mjs", ".css", ".json"},
		Transform:   b.transform,
		Materialize: materializeBundle,
	}
}

type reactOptions struct {
	Title        string
	ReactVersion string
	Tailwind     bool
	Minify       bool
	CDN          string
}

func readReactOptions(opts types.Options) reactOptions {
	return reactOptions{
		Title:        opts.String("title", ""),
		ReactVersion: opts.String("react_version", deps.DefaultReactVersion),
		Tailwind:     opts.Bool("tailwind", false),
		Minify:       opts.Bool("minify", false),
		CDN:          opts.String("cdn", ""),
	}
}

func (o reactOptions) target() deps.Target {
	return deps.Target{CDN: o.CDN, ReactVersion: o.ReactVersion}
}

// bundleArtifact is the cached output of the bundled preset.
type bundleArtifact struct {
	Entry   string            `cbor:"entry"`
	Code    string            `cbor:"code"`
	Styles  []string          `cbor:"styles"`
	Imports map[string]string `cbor:"imports"`
}

type bundler struct {
	resolver    *deps.Resolver
	concurrency int
}

// target fills in the resolver's CDN when the build options name none, so
// the link step and the import map always agree on one CDN.
func (b *bundler) target(opts reactOptions) deps.Target {
	t := opts.target()
	if t.CDN == "" && b.resolver != nil {
		t.CDN = b.resolver.Config().CDN
	}

	return t
}

// selectEntry finds the module the bundle starts from. wrap is true when the
// entry is a component that needs the generated bootstrap to mount it.
func selectEntry(index map[string]string) (entry string, wrap bool, ok bool) {
	for _, dir := range []string{"", "src/"} {
		for _, name := range []string{"index", "main"} {
			for _, ext := range []string{".tsx", ".jsx", ".ts", ".js"} {
				if _, found := index[dir+name+ext]; found {
					return dir + name + ext, false, true
				}
			}
		}
	}

	for _, dir := range []string{"", "src/"} {
		for _, name := range []string{"App.tsx", "app.tsx", "App.jsx", "app.jsx"} {
			if _, found := index[dir+name]; found {
				return dir + name, true, true
			}
		}
	}

	var components []string
	for p := range index {
		if ext := types.Ext(p); ext == ".tsx" || ext == ".jsx" {
			components = append(components, p)
		}
	}
	if len(components) == 1 {
		return components[0], true, true
	}

	return "", false, false
}

func bootstrapSource(entry string) string {
	return fmt.Sprintf(`import { createElement } from "react";
import { createRoot } from "react-dom/client";
import App from %q;

createRoot(document.getElementById("root")).render(createElement(App));
`, "./"+entry)
}

type unitResult struct {
	code        string
	diagnostics []string
}

func (b *bundler) transform(ctx context.Context, in TransformInput) ([]byte, []string, error) {
	opts := readReactOptions(in.Options)
	index := in.Files.Index()

	units, diagnostics, err := b.transformUnits(ctx, in, index)
	if err != nil {
		return nil, nil, err
	}

	entry, wrap, ok := selectEntry(index)
	if !ok {
		diagnostics = append(diagnostics, "no entry module found (expected index.tsx, main.tsx or App.tsx)")
	}
	if len(diagnostics) > 0 {
		return nil, diagnostics, nil
	}

	target := b.target(opts)
	l := &linker{
		ctx:      ctx,
		bundler:  b,
		index:    index,
		units:    units,
		target:   target,
		entry:    entry,
		wrapped:  wrap,
		volatile: in.markVolatile,
		styles:   make(map[string]string),
	}

	code, diagnostics, err := l.link(opts.Minify)
	if err != nil {
		return nil, nil, err
	}
	if len(diagnostics) > 0 {
		return nil, diagnostics, nil
	}

	artifact, err := codec.Marshal(bundleArtifact{
		Entry:   entry,
		Code:    code,
		Styles:  l.sortedStyles(),
		Imports: deps.ImportMap(target),
	})
	if err != nil {
		return nil, nil, errors.NewInternalError(errors.ErrCodeInternalError, "encode bundle", err)
	}

	in.logger().Debug(ctx, "Bundled project",
		"entry", entry,
		"units", len(units),
		"styles", len(l.styles),
		"bytes", len(code))

	return artifact, nil, nil
}

// transformUnits compiles every script and stylesheet of the project, reusing
// cached units. Results are reported in path order.
func (b *bundler) transformUnits(ctx context.Context, in TransformInput, index map[string]string) (map[string]unitResult, []string, error) {
	var paths []string
	for p := range index {
		ext := types.Ext(p)
		if _, script := scriptLoaders[ext]; script || ext == ".css" {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	results := make([]unitResult, len(paths))
	store := in.units()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = transformUnit(store, p, index[p])
			in.unitDone()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	units := make(map[string]unitResult, len(paths))
	var diagnostics []string
	for i, p := range paths {
		units[p] = results[i]
		diagnostics = append(diagnostics, results[i].diagnostics...)
	}

	return units, diagnostics, nil
}

func transformUnit(store UnitStore, unitPath, content string) unitResult {
	if entry, ok := store.Lookup(unitPath, content); ok {
		return unitResult{code: string(entry.Artifact), diagnostics: entry.Diagnostics}
	}

	loader, script := scriptLoaders[types.Ext(unitPath)]
	if !script {
		// Stylesheets are injected verbatim; they only count as units.
		return unitResult{code: content}
	}

	result := api.Transform(content, api.TransformOptions{
		Loader:     loader,
		Sourcefile: unitPath,
		Format:     api.FormatESModule,
		Target:     api.ES2020,
		JSX:        api.JSXAutomatic,
		LogLevel:   api.LogLevelSilent,
	})

	unit := unitResult{
		code:        string(result.Code),
		diagnostics: formatMessages(result.Errors),
	}
	store.Store(unitPath, content, cache.Entry{Artifact: []byte(unit.code), Diagnostics: unit.diagnostics})

	return unit
}

// linker runs the esbuild link step over already transformed units.
type linker struct {
	ctx      context.Context
	bundler  *bundler
	index    map[string]string
	units    map[string]unitResult
	target   deps.Target
	entry    string
	wrapped  bool
	volatile func()

	mu     sync.Mutex
	styles map[string]string
}

func (l *linker) link(minify bool) (string, []string, error) {
	buildCtx, ctxErr := api.Context(api.BuildOptions{
		EntryPoints:       []string{entryAlias},
		Bundle:            true,
		Write:             false,
		Outfile:           "bundle.js",
		Format:            api.FormatESModule,
		Platform:          api.PlatformBrowser,
		Target:            api.ES2020,
		JSX:               api.JSXAutomatic,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		LogLevel:          api.LogLevelSilent,
		Plugins:           []api.Plugin{l.plugin()},
	})
	if ctxErr != nil {
		return "", formatMessages(ctxErr.Errors), nil
	}
	defer buildCtx.Dispose()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-l.ctx.Done():
			buildCtx.Cancel()
		case <-stop:
		}
	}()

	result := buildCtx.Rebuild()
	if err := l.ctx.Err(); err != nil {
		return "", nil, err
	}
	if len(result.Errors) > 0 {
		return "", formatMessages(result.Errors), nil
	}

	for _, out := range result.OutputFiles {
		if strings.HasSuffix(out.Path, ".js") {
			return string(out.Contents), nil, nil
		}
	}

	return "", nil, errors.NewInternalError(errors.ErrCodeBuildFailed, "esbuild produced no JavaScript output", nil)
}

func (l *linker) plugin() api.Plugin {
	return api.Plugin{
		Name: "srcdoc-project",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, l.onResolve)
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: projectNamespace}, l.onLoad)
		},
	}
}

func (l *linker) onResolve(args api.OnResolveArgs) (api.OnResolveResult, error) {
	if args.Kind == api.ResolveEntryPoint && args.Path == entryAlias {
		entry := l.entry
		if l.wrapped {
			entry = bootstrapPath
		}

		return api.OnResolveResult{Path: entry, Namespace: projectNamespace}, nil
	}

	if isRemote(args.Path) {
		return api.OnResolveResult{Path: args.Path, External: true}, nil
	}

	if deps.IsBare(args.Path) {
		url, err := l.bundler.resolver.Resolve(l.ctx, args.Path, l.target)
		if err != nil {
			if deps.IsVerifyError(err) {
				l.volatile()
			}
			return api.OnResolveResult{Errors: []api.Message{{Text: err.Error()}}}, nil
		}

		return api.OnResolveResult{Path: url, External: true}, nil
	}

	resolved, ok := l.resolveModule(args.Importer, args.Path)
	if !ok {
		return api.OnResolveResult{Errors: []api.Message{{
			Text: fmt.Sprintf("cannot resolve %q from %s", args.Path, args.Importer),
		}}}, nil
	}

	return api.OnResolveResult{Path: resolved, Namespace: projectNamespace}, nil
}

// resolveModule finds the File Set path an import refers to, trying the usual
// extension and index file fallbacks.
func (l *linker) resolveModule(importer, spec string) (string, bool) {
	base := resolveRelative(importer, spec)

	candidates := []string{base}
	for _, ext := range resolveOrder {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range resolveOrder {
		candidates = append(candidates, path.Join(base, "index"+ext))
	}

	for _, c := range candidates {
		if _, ok := l.index[c]; ok {
			return c, true
		}
	}

	return "", false
}

func (l *linker) onLoad(args api.OnLoadArgs) (api.OnLoadResult, error) {
	if err := l.ctx.Err(); err != nil {
		return api.OnLoadResult{}, err
	}

	if args.Path == bootstrapPath {
		contents := bootstrapSource(l.entry)
		return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
	}

	ext := types.Ext(args.Path)
	if ext == ".css" {
		l.mu.Lock()
		l.styles[args.Path] = l.index[args.Path]
		l.mu.Unlock()

		empty := ""
		return api.OnLoadResult{Contents: &empty, Loader: api.LoaderEmpty}, nil
	}

	if unit, ok := l.units[args.Path]; ok {
		contents := unit.code
		return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
	}

	if loader, ok := assetLoaders[ext]; ok {
		contents := l.index[args.Path]
		return api.OnLoadResult{Contents: &contents, Loader: loader}, nil
	}

	contents := l.index[args.Path]

	return api.OnLoadResult{Contents: &contents, Loader: api.LoaderText}, nil
}

func (l *linker) sortedStyles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	paths := make([]string, 0, len(l.styles))
	for p := range l.styles {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	styles := make([]string, 0, len(paths))
	for _, p := range paths {
		styles = append(styles, l.styles[p])
	}

	return styles
}

// formatMessages renders esbuild messages as "file:line:col: text".
func formatMessages(messages []api.Message) []string {
	formatted := make([]string, 0, len(messages))
	for _, m := range messages {
		d := errors.Diagnostic{Message: m.Text}
		if m.Location != nil {
			d.File = strings.TrimPrefix(m.Location.File, projectNamespace+":")
			d.Line = m.Location.Line
			d.Column = m.Location.Column + 1
		}
		formatted = append(formatted, d.String())
	}

	return formatted
}

func decodeBundle(artifact []byte) (bundleArtifact, error) {
	var bundle bundleArtifact
	if err := codec.Unmarshal(artifact, &bundle); err != nil {
		return bundleArtifact{}, fmt.Errorf("decode bundle artifact: %w", err)
	}

	return bundle, nil
}
