// Package server serves a live preview of a project directory. It watches the
// directory, feeds every change to a preview.Coordinator and pushes the
// coordinator's progress, diagnostics and fingerprints to browsers over a
// WebSocket. Browsers mount the document in a sandboxed iframe and remount it
// only when the fingerprint changes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/afero"

	"github.com/conneroisu/srcdoc/internal/build"
	"github.com/conneroisu/srcdoc/internal/cache"
	"github.com/conneroisu/srcdoc/internal/config"
	"github.com/conneroisu/srcdoc/internal/deps"
	"github.com/conneroisu/srcdoc/internal/logging"
	"github.com/conneroisu/srcdoc/internal/preset"
	"github.com/conneroisu/srcdoc/internal/preview"
	"github.com/conneroisu/srcdoc/internal/project"
	"github.com/conneroisu/srcdoc/internal/types"
	"github.com/conneroisu/srcdoc/internal/watcher"
)

// Options wires a PreviewServer to the collaborators it shares with the rest
// of the process. Zero fields get working defaults.
type Options struct {
	Config   *config.Config
	Root     string
	Fs       afero.Fs
	Cache    cache.Cache
	Resolver *deps.Resolver
	Registry *preset.Registry
	Metrics  *build.Metrics
	Logger   logging.Logger
}

// Client represents a WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *PreviewServer
}

// PreviewServer serves one project with live reload.
type PreviewServer struct {
	config      *config.Config
	logger      logging.Logger
	httpServer  *http.Server
	serverMutex sync.RWMutex

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	done         chan struct{}

	loader      *project.Loader
	coordinator *preview.Coordinator
	cache       cache.Cache
	resolver    *deps.Resolver
	metrics     *build.Metrics
	explicit    *preset.Preset
	options     types.Options
	startedAt   time.Time

	refreshMutex sync.Mutex
	lastDigest   uint64
	loaded       bool

	shutdownOnce sync.Once
}

// New creates a preview server for opts.Root.
func New(opts Options) (*PreviewServer, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	if opts.Resolver == nil {
		opts.Resolver = deps.New(cfg.ResolverConfig(), opts.Logger)
	}
	if opts.Registry == nil {
		opts.Registry = preset.NewRegistry(opts.Resolver, cfg.Build.UnitConcurrency)
	}
	if opts.Metrics == nil {
		opts.Metrics = build.NewMetrics()
	}
	if opts.Root == "" {
		opts.Root = "."
	}

	var explicit *preset.Preset
	if cfg.Build.Preset != "" && cfg.Build.Preset != "auto" {
		p, err := opts.Registry.Lookup(cfg.Build.Preset)
		if err != nil {
			return nil, err
		}
		explicit = &p
	}

	options, err := cfg.BuildOptions()
	if err != nil {
		return nil, err
	}

	loader := project.NewLoader(opts.Fs, opts.Root, cfg.Watch.Ignore)
	loader.MaxFileSize = cfg.Watch.MaxFileSize

	s := &PreviewServer{
		config:     cfg,
		logger:     opts.Logger.WithComponent("server"),
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		loader:     loader,
		cache:      opts.Cache,
		resolver:   opts.Resolver,
		metrics:    opts.Metrics,
		explicit:   explicit,
		options:    options,
		startedAt:  time.Now(),
	}

	s.coordinator = preview.New(preview.Config{
		Cache:            opts.Cache,
		Registry:         opts.Registry,
		Sink:             s.sink(),
		Logger:           opts.Logger,
		Metrics:          opts.Metrics,
		Compression:      cfg.CompressionAlgorithm(),
		CompressMinBytes: cfg.Cache.CompressMinBytes,
	})

	go s.runWebSocketHub()

	return s, nil
}

// Coordinator returns the coordinator driving the preview surface.
func (s *PreviewServer) Coordinator() *preview.Coordinator {
	return s.coordinator
}

// Handler returns the HTTP routes of the server.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/document", s.handleDocument)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/metrics", s.handleMetrics)

	return s.addMiddleware(mux)
}

// Start loads the project, starts watching it and serves until ctx ends or
// the listener fails.
func (s *PreviewServer) Start(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Error(ctx, err, "Initial load failed")
	}

	fileWatcher, err := s.setupFileWatcher(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := fileWatcher.Stop(); err != nil {
			s.logger.Warn(context.Background(), err, "Failed to stop file watcher")
		}
	}()

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	if s.config.Server.Open {
		go s.openBrowser(fmt.Sprintf("http://%s", s.config.Addr()))
	}

	s.logger.Info(ctx, "Preview server listening", "addr", server.Addr, "root", s.loader.Root())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return s.Shutdown(shutdownCtx)
	}
}

func (s *PreviewServer) setupFileWatcher(ctx context.Context) (*watcher.FileWatcher, error) {
	fileWatcher, err := watcher.NewFileWatcher(s.config.Watch.Debounce, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	fileWatcher.AddFilter(s.watchFilter)
	fileWatcher.AddHandler(s.handleFileChange)

	if err := fileWatcher.AddRecursive(s.loader.Root()); err != nil {
		_ = fileWatcher.Stop()
		return nil, fmt.Errorf("failed to watch %s: %w", s.loader.Root(), err)
	}

	fileWatcher.Start(ctx)

	return fileWatcher, nil
}

// watchFilter accepts paths inside the root that the loader would read.
func (s *PreviewServer) watchFilter(path string) bool {
	rel, ok := s.loader.Relative(path)
	if !ok {
		return false
	}

	return rel == "." || !s.loader.Ignored(rel)
}

func (s *PreviewServer) handleFileChange(events []watcher.ChangeEvent) error {
	for _, event := range events {
		s.logger.Debug(context.Background(), "File changed", "path", event.Path, "type", event.Type.String())
	}

	return s.Refresh(context.Background())
}

// Refresh reloads the project and hands it to the coordinator unless its
// content is unchanged since the last load.
func (s *PreviewServer) Refresh(ctx context.Context) error {
	s.refreshMutex.Lock()
	defer s.refreshMutex.Unlock()

	files, err := s.loader.Load(ctx)
	if err != nil {
		return err
	}

	digest := project.Digest(files)
	if s.loaded && digest == s.lastDigest {
		return nil
	}
	s.loaded = true
	s.lastDigest = digest

	gen := s.coordinator.Update(files, s.options, s.explicit)
	s.logger.Info(ctx, "Project changed", "generation", gen, "files", len(files))

	return nil
}

func (s *PreviewServer) openBrowser(url string) {
	time.Sleep(100 * time.Millisecond) // Give server time to start

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		s.logger.Warn(context.Background(), err, "Failed to open browser", "url", url)
	}
}

func (s *PreviewServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

// isAllowedOrigin checks if the origin is in the allowed origins list
func (s *PreviewServer) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}

	for _, allowed := range s.config.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	return false
}

// Shutdown stops the coordinator, disconnects every client and closes the
// HTTP server.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.coordinator.Close()
		close(s.done)

		s.clientsMutex.Lock()
		for _, client := range s.clients {
			close(client.send)
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}
