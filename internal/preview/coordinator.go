// Package preview owns the lifecycle of build sessions for one preview surface.
//
// Every Update supersedes the previous one: the in-flight session is
// cancelled, the generation counter advances and a new session starts. Results
// are published only while their generation is still the latest and the
// surface is open, so a slow older build can never overwrite a newer result.
package preview

import (
	"context"
	"errors"
	"sync"

	"github.com/conneroisu/srcdoc/internal/build"
	"github.com/conneroisu/srcdoc/internal/cache"
	"github.com/conneroisu/srcdoc/internal/codec"
	srcerrors "github.com/conneroisu/srcdoc/internal/errors"
	"github.com/conneroisu/srcdoc/internal/logging"
	"github.com/conneroisu/srcdoc/internal/preset"
	"github.com/conneroisu/srcdoc/internal/types"
)

// State is the position of the surface in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateRendered
	StateErrored
	StateEmpty
	StateClosed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateRendered:
		return "rendered"
	case StateErrored:
		return "errored"
	case StateEmpty:
		return "empty"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Sink receives what the coordinator publishes. Calls for one generation are
// zero or more Progress calls followed by exactly one terminal call, unless a
// newer generation supersedes it first. Sink methods run while the
// coordinator holds its lock: they must not call back into the coordinator
// and should return quickly.
type Sink interface {
	Progress(generation uint64, processed int)
	Diagnostics(generation uint64, diagnostics []string)
	Rendered(generation uint64, output types.RenderedOutput)
	Empty(generation uint64)
}

// SinkFuncs adapts plain functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnProgress    func(generation uint64, processed int)
	OnDiagnostics func(generation uint64, diagnostics []string)
	OnRendered    func(generation uint64, output types.RenderedOutput)
	OnEmpty       func(generation uint64)
}

func (f SinkFuncs) Progress(generation uint64, processed int) {
	if f.OnProgress != nil {
		f.OnProgress(generation, processed)
	}
}

func (f SinkFuncs) Diagnostics(generation uint64, diagnostics []string) {
	if f.OnDiagnostics != nil {
		f.OnDiagnostics(generation, diagnostics)
	}
}

func (f SinkFuncs) Rendered(generation uint64, output types.RenderedOutput) {
	if f.OnRendered != nil {
		f.OnRendered(generation, output)
	}
}

func (f SinkFuncs) Empty(generation uint64) {
	if f.OnEmpty != nil {
		f.OnEmpty(generation)
	}
}

// Config wires a coordinator to its collaborators.
type Config struct {
	Cache    cache.Cache
	Registry *preset.Registry
	Sink     Sink
	Logger   logging.Logger
	Metrics  *build.Metrics

	Compression      codec.Compression
	CompressMinBytes int
}

// Status is a snapshot of the surface.
type Status struct {
	State       State                `json:"state"`
	Generation  uint64               `json:"generation"`
	Preset      string               `json:"preset,omitempty"`
	Processed   int                  `json:"processed"`
	Diagnostics []string             `json:"diagnostics,omitempty"`
	Output      types.RenderedOutput `json:"-"`
	Fingerprint string               `json:"fingerprint,omitempty"`
}

// Coordinator drives build sessions for one preview surface.
type Coordinator struct {
	config Config
	logger logging.Logger

	mu         sync.Mutex
	status     Status
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	closed     bool
	wg         sync.WaitGroup
}

// New creates an idle coordinator.
func New(config Config) *Coordinator {
	if config.Cache == nil {
		config.Cache = cache.Nop{}
	}
	if config.Registry == nil {
		config.Registry = preset.NewRegistry(nil, 0)
	}
	if config.Sink == nil {
		config.Sink = SinkFuncs{}
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}

	done := make(chan struct{})
	close(done)

	return &Coordinator{
		config: config,
		logger: config.Logger.WithComponent("preview"),
		status: Status{State: StateIdle},
		done:   done,
	}
}

// Update starts building new input and returns its generation. Blank input
// publishes Empty without starting a session. Updates after Close are
// ignored.
func (c *Coordinator) Update(files types.FileSet, options types.Options, explicit *preset.Preset) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.generation
	}

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	c.generation++
	gen := c.generation
	done := make(chan struct{})
	c.done = done

	if files.IsBlank() {
		c.status = Status{State: StateEmpty, Generation: gen}
		c.config.Sink.Empty(gen)
		close(done)

		return gen
	}

	p := c.config.Registry.Resolve(explicit, files)
	c.status = Status{
		State:      StateBuilding,
		Generation: gen,
		Preset:     p.Name,
		Output:     c.status.Output,
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	session := build.NewSession(build.SessionConfig{
		Cache:            c.config.Cache,
		Preset:           p,
		Options:          options,
		Files:            files,
		Progress:         func(processed int) { c.publishProgress(gen, processed) },
		Logger:           c.logger.With("generation", gen),
		Metrics:          c.config.Metrics,
		Compression:      c.config.Compression,
		CompressMinBytes: c.config.CompressMinBytes,
	})

	c.wg.Add(1)
	go c.run(ctx, cancel, gen, session, done)

	c.logger.Debug(ctx, "Build started", "generation", gen, "preset", p.Name, "files", len(files))

	return gen
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, gen uint64, session *build.Session, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)
	defer cancel()

	result, err := session.Build(ctx)
	if err != nil {
		c.logger.Debug(ctx, "Build superseded", "generation", gen)
		return
	}

	if !result.OK() {
		c.publish(gen, func() {
			c.status.State = StateErrored
			c.status.Diagnostics = result.Diagnostics
			c.config.Sink.Diagnostics(gen, result.Diagnostics)
		})

		return
	}

	output, err := session.GenerateHTML(ctx)
	if err != nil {
		if errors.Is(err, build.ErrCancelled) {
			return
		}

		diagnostics := []string{srcerrors.DiagnosticOf(err)}
		c.publish(gen, func() {
			c.status.State = StateErrored
			c.status.Diagnostics = diagnostics
			c.config.Sink.Diagnostics(gen, diagnostics)
		})

		return
	}

	c.publish(gen, func() {
		c.status.State = StateRendered
		c.status.Diagnostics = nil
		c.status.Output = output
		c.status.Fingerprint = output.Fingerprint
		c.config.Sink.Rendered(gen, output)
	})
}

// publish runs fn under the lock if gen is still current and the surface is
// open.
func (c *Coordinator) publish(gen uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.generation {
		return false
	}
	fn()

	return true
}

func (c *Coordinator) publishProgress(gen uint64, processed int) {
	c.publish(gen, func() {
		c.status.Processed = processed
		c.config.Sink.Progress(gen, processed)
	})
}

// Close cancels any in-flight session and waits for it to stop. Nothing is
// published after Close returns.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.status.State = StateClosed
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// Wait blocks until the latest generation reaches a terminal state, the
// coordinator is closed, or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		gen, done, closed := c.generation, c.done, c.closed
		c.mu.Unlock()

		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
		}

		c.mu.Lock()
		current := c.generation
		c.mu.Unlock()
		if current == gen {
			return nil
		}
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status.State
}

// Generation returns the latest generation.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generation
}

// Status returns a snapshot of the surface.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.status
	status.Diagnostics = append([]string(nil), c.status.Diagnostics...)

	return status
}
