// Package build runs one build of a File Set with a preset, consulting and
// filling the shared artifact cache.
//
// A Session is single use: Build may be called once, after which GenerateHTML
// turns a successful result into the preview document. Everything that can go
// wrong inside a build (user code errors, a panicking transform, a failing
// cache) comes back as diagnostics in the Result. Build only returns an error
// for cancellation or reuse.
package build

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conneroisu/srcdoc/internal/assemble"
	"github.com/conneroisu/srcdoc/internal/cache"
	"github.com/conneroisu/srcdoc/internal/codec"
	srcerrors "github.com/conneroisu/srcdoc/internal/errors"
	"github.com/conneroisu/srcdoc/internal/fingerprint"
	"github.com/conneroisu/srcdoc/internal/logging"
	"github.com/conneroisu/srcdoc/internal/preset"
	"github.com/conneroisu/srcdoc/internal/types"
)

// State is the lifecycle position of a session.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s >= StateSucceeded
}

// SessionConfig holds everything a session is created with.
type SessionConfig struct {
	Cache   cache.Cache
	Preset  preset.Preset
	Options types.Options
	Files   types.FileSet
	// Progress receives the number of units processed so far. Calls are
	// serialized and the count strictly increases.
	Progress func(processed int)
	Logger   logging.Logger
	Metrics  *Metrics

	Compression      codec.Compression
	CompressMinBytes int
}

// Result is the outcome of Build.
type Result struct {
	Diagnostics []string      `json:"diagnostics"`
	Artifact    []byte        `json:"-"`
	Fingerprint string        `json:"fingerprint"`
	CacheHit    bool          `json:"cache_hit"`
	Units       int           `json:"units"`
	CachedUnits int           `json:"cached_units"`
	Duration    time.Duration `json:"duration"`
}

// OK reports whether the build produced no diagnostics.
func (r Result) OK() bool {
	return len(r.Diagnostics) == 0
}

// Session is one build attempt.
type Session struct {
	config  SessionConfig
	files   types.FileSet
	options types.Options
	logger  logging.Logger

	mu     sync.Mutex
	state  State
	result Result

	progressMu sync.Mutex
	processed  int
}

// NewSession creates a session over a private copy of the files and options.
func NewSession(config SessionConfig) *Session {
	if config.Cache == nil {
		config.Cache = cache.Nop{}
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}

	options := make(types.Options, len(config.Options))
	for k, v := range config.Options {
		options[k] = v
	}

	return &Session{
		config:  config,
		files:   config.Files.Clone(),
		options: options,
		logger:  config.Logger.WithComponent("build").With("preset", config.Preset.Name),
		state:   StateCreated,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Result returns the result of a finished build.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.result
}

// Build runs the session. On a full cache hit the preset transform is never
// invoked. On a miss the artifact, its diagnostics and every newly computed
// unit are written to the cache, but only if the build was not cancelled.
func (s *Session) Build(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		return Result{}, ErrSessionReused
	}
	s.state = StateRunning
	s.mu.Unlock()

	perf := logging.StartOperation(s.logger, "build")
	start := time.Now()

	result, err := s.run(ctx)
	result.Duration = time.Since(start)

	state := StateSucceeded
	switch {
	case err != nil:
		state = StateCancelled
		result.Artifact = nil
		result.Diagnostics = nil
	case !result.OK():
		state = StateFailed
	}

	s.mu.Lock()
	s.state = state
	s.result = result
	s.mu.Unlock()

	if s.config.Metrics != nil {
		s.config.Metrics.Record(state, result)
	}

	perf.End(ctx,
		"state", state.String(),
		"cache_hit", result.CacheHit,
		"units", result.Units,
		"cached_units", result.CachedUnits,
		"diagnostics", len(result.Diagnostics))

	return result, err
}

func (s *Session) run(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, cancelled(err)
	}

	p := s.config.Preset
	if p.Transform == nil {
		return failed(srcerrors.NewInternalError(srcerrors.ErrCodeInternalError,
			fmt.Sprintf("preset %q has no transform", p.Name), nil)), nil
	}

	normalized, err := s.options.Normalize()
	if err != nil {
		return failed(err), nil
	}
	s.options = normalized

	fp, err := fingerprint.Build(p.Identity(), s.files, s.options)
	if err != nil {
		return failed(err), nil
	}
	result := Result{Fingerprint: fp}

	entry, hit, err := safeGet(s.config.Cache, fp)
	if err != nil {
		result.Diagnostics = []string{srcerrors.DiagnosticOf(err)}
		return result, nil
	}
	if hit {
		if artifact, ok := s.decode(ctx, entry); ok {
			result.CacheHit = true
			result.Artifact = artifact
			result.Diagnostics = cloneStrings(entry.Diagnostics)
			s.logger.Debug(ctx, "Build served from cache", "fingerprint", fp)

			return result, nil
		}
	}

	stage := newUnitStage(s.config.Cache, p.Identity(), s.options, s.config.Compression, s.config.CompressMinBytes)

	artifact, diagnostics, err := s.transform(ctx, stage)
	result.Units = s.processedUnits()
	result.CachedUnits = stage.hitCount()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, cancelled(ctxErr)
	}
	if err != nil {
		result.Diagnostics = []string{srcerrors.DiagnosticOf(err)}
		return result, nil
	}
	if err := stage.err(); err != nil {
		result.Diagnostics = []string{srcerrors.DiagnosticOf(err)}
		return result, nil
	}

	stored := cache.Entry{Diagnostics: cloneStrings(diagnostics)}
	if len(diagnostics) == 0 {
		stored.Artifact, err = codec.Pack(artifact, s.config.Compression, s.config.CompressMinBytes)
		if err != nil {
			result.Diagnostics = []string{srcerrors.DiagnosticOf(srcerrors.NewInternalError(
				srcerrors.ErrCodeCacheFailure, "encode artifact", err))}
			return result, nil
		}
	}

	// Last point at which a newer input can still stop this session from
	// touching the cache.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, cancelled(ctxErr)
	}
	if stage.isVolatile() {
		// Units are pure functions of their input and stay cacheable.
		s.logger.Debug(ctx, "Build depends on external state, not caching result", "fingerprint", fp)
		if err := stage.commitUnits(); err != nil {
			result.Diagnostics = []string{srcerrors.DiagnosticOf(err)}
			return result, nil
		}
	} else if err := stage.commit(fp, stored); err != nil {
		result.Diagnostics = []string{srcerrors.DiagnosticOf(err)}
		return result, nil
	}

	result.Diagnostics = stored.Diagnostics
	if len(diagnostics) == 0 {
		result.Artifact = artifact
	}

	return result, nil
}

// decode unpacks a cached build entry. Entries that fail to decode are
// treated as misses.
func (s *Session) decode(ctx context.Context, entry cache.Entry) ([]byte, bool) {
	if len(entry.Artifact) == 0 {
		return nil, len(entry.Diagnostics) > 0
	}

	artifact, err := codec.Unpack(entry.Artifact)
	if err != nil {
		s.logger.Warn(ctx, err, "Discarding undecodable cache entry")
		return nil, false
	}

	return artifact, true
}

func (s *Session) transform(ctx context.Context, stage *unitStage) (artifact []byte, diagnostics []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, fmt.Errorf("%v", r), "Preset transform panicked")
			err = srcerrors.NewBuildError(srcerrors.ErrCodeTransformPanic,
				"internal error: transform panicked", fmt.Errorf("%v", r))
		}
	}()

	return s.config.Preset.Transform(ctx, preset.TransformInput{
		Files:    s.files,
		Options:  s.options,
		Units:    stage,
		UnitDone: s.unitDone,
		Volatile: stage.markVolatile,
		Logger:   s.logger,
	})
}

func (s *Session) unitDone() {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()

	s.processed++
	if s.config.Progress != nil {
		s.config.Progress(s.processed)
	}
}

func (s *Session) processedUnits() int {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()

	return s.processed
}

// GenerateHTML assembles the preview document of a successful build.
func (s *Session) GenerateHTML(ctx context.Context) (types.RenderedOutput, error) {
	s.mu.Lock()
	state, result := s.state, s.result
	s.mu.Unlock()

	if state != StateSucceeded {
		return types.RenderedOutput{}, ErrNotBuilt
	}
	if err := ctx.Err(); err != nil {
		return types.RenderedOutput{}, cancelled(err)
	}

	return assemble.Assemble(ctx, s.config.Preset, result.Artifact, s.options)
}

func failed(err error) Result {
	return Result{Diagnostics: []string{srcerrors.DiagnosticOf(err)}}
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}

	return append([]string(nil), in...)
}
