package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/conneroisu/srcdoc/internal/build"
	"github.com/conneroisu/srcdoc/internal/cache"
	"github.com/conneroisu/srcdoc/internal/deps"
	"github.com/conneroisu/srcdoc/internal/preview"
	"github.com/conneroisu/srcdoc/internal/version"
)

// documentPolicy applies to the previewed document itself: it may run its own
// scripts and load modules from anywhere, but it cannot frame this server.
const documentPolicy = "frame-ancestors 'self'"

// MetricsResponse is the body of /api/metrics.
type MetricsResponse struct {
	Build     *build.Metrics `json:"build"`
	Cache     *cache.Stats   `json:"cache,omitempty"`
	Deps      deps.Stats     `json:"deps"`
	Clients   int            `json:"clients"`
	Uptime    string         `json:"uptime"`
	Timestamp int64          `json:"timestamp"`
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	page := hostPage(hostPageData{
		Root:    s.loader.Root(),
		Version: version.GetShortVersion(),
	})
	if err := page.Render(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render host page")
	}
}

// handleDocument serves the latest rendered document.
func (s *PreviewServer) handleDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.coordinator.Status()
	if status.Output.IsZero() {
		http.Error(w, "No document rendered yet", http.StatusNotFound)
		return
	}

	etag := `"` + status.Output.Fingerprint + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Srcdoc-Fingerprint", status.Output.Fingerprint)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", documentPolicy)
	_, _ = w.Write([]byte(status.Output.Document))
}

func (s *PreviewServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(r.Context(), w, http.StatusOK, s.coordinator.Status())
}

func (s *PreviewServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := MetricsResponse{
		Build:     s.metrics.Snapshot(),
		Deps:      s.resolver.Stats(),
		Clients:   s.ClientCount(),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().Unix(),
	}
	if stats, ok := s.cache.(interface{ Stats() cache.Stats }); ok {
		cacheStats := stats.Stats()
		response.Cache = &cacheStats
	}

	s.writeJSON(r.Context(), w, http.StatusOK, response)
}

// handleHealth returns the server health status for health checks
func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := s.coordinator.State()
	status, code := "healthy", http.StatusOK
	if state == preview.StateClosed {
		status, code = "shutting_down", http.StatusServiceUnavailable
	}

	s.writeJSON(r.Context(), w, code, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"build_info": version.GetBuildInfo(),
		"preview":    state,
		"clients":    s.ClientCount(),
	})
}

func (s *PreviewServer) writeJSON(ctx context.Context, w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(ctx, err, "Failed to encode response")
	}
}
