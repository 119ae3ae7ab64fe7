package deps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/srcdoc/internal/errors"
)

func TestURL(t *testing.T) {
	target := Target{CDN: "https://cdn.test/", ReactVersion: "18.2.0"}

	tests := []struct {
		spec     string
		expected string
	}{
		{"react", "https://cdn.test/react@18.2.0"},
		{"react-dom/client", "https://cdn.test/react-dom@18.2.0/client"},
		{"react/jsx-runtime", "https://cdn.test/react@18.2.0/jsx-runtime"},
		{"lodash", "https://cdn.test/lodash?external=react,react-dom"},
		{"lodash@4.17.21/fp", "https://cdn.test/lodash@4.17.21/fp?external=react,react-dom"},
		{"@tanstack/react-query", "https://cdn.test/@tanstack/react-query?external=react,react-dom"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			url, err := URL(tt.spec, target)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, url)
		})
	}

	t.Run("defaults", func(t *testing.T) {
		url, err := URL("react", Target{})
		require.NoError(t, err)
		assert.Equal(t, DefaultCDN+"/react@"+DefaultReactVersion, url)
	})

	t.Run("invalid specifier", func(t *testing.T) {
		_, err := URL("Not A Package", target)
		assert.Error(t, err)
	})
}

func TestIsBare(t *testing.T) {
	assert.True(t, IsBare("react"))
	assert.True(t, IsBare("@scope/pkg"))
	assert.False(t, IsBare("./App"))
	assert.False(t, IsBare("/src/App"))
	assert.False(t, IsBare("https://esm.sh/react"))
	assert.False(t, IsBare(""))
}

func TestImportMap(t *testing.T) {
	imports := ImportMap(Target{CDN: "https://cdn.test", ReactVersion: "19.0.0"})
	assert.Equal(t, "https://cdn.test/react@19.0.0", imports["react"])
	assert.Equal(t, "https://cdn.test/react-dom@19.0.0/", imports["react-dom/"])
}

func TestResolver_WithoutVerification(t *testing.T) {
	r := New(DefaultConfig(), nil)

	url, err := r.Resolve(context.Background(), "lodash", Target{})
	require.NoError(t, err)
	assert.Equal(t, DefaultCDN+"/lodash?external=react,react-dom", url)
	assert.Equal(t, int64(0), r.Stats().Misses)
}

func TestResolver_VerifiesAndCaches(t *testing.T) {
	var requests int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt64(&requests, 1)
		assert.Equal(t, http.MethodHead, req.Method)
		if req.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := New(Config{CDN: server.URL, Verify: true, RetryDelay: time.Millisecond}, nil)

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), "lodash", Target{})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&requests))

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Cached)

	_, err := r.Resolve(context.Background(), "missing", Target{})
	require.Error(t, err)
	assert.False(t, errors.IsNetworkError(err))
	assert.Equal(t, int64(2), atomic.LoadInt64(&requests), "not found is not retried")
}

func TestResolver_RetriesServerErrors(t *testing.T) {
	var requests int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt64(&requests, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := New(Config{CDN: server.URL, Verify: true, MaxRetries: 3, RetryDelay: time.Millisecond}, nil)

	_, err := r.Resolve(context.Background(), "preact", Target{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), atomic.LoadInt64(&requests))
}

func TestResolver_GivesUpAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	r := New(Config{CDN: server.URL, Verify: true, MaxRetries: 1, RetryDelay: time.Millisecond}, nil)

	_, err := r.Resolve(context.Background(), "preact", Target{})
	require.Error(t, err)
	assert.True(t, errors.IsNetworkError(err))
	assert.True(t, IsVerifyError(err))
	assert.Equal(t, int64(1), r.Stats().Errors)
}

func TestResolver_InvalidSpecifierIsNotAVerifyError(t *testing.T) {
	r := New(Config{Verify: true}, nil)

	_, err := r.Resolve(context.Background(), "Not A Package", Target{})
	require.Error(t, err)
	assert.False(t, IsVerifyError(err))
}

func TestResolver_HonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	r := New(Config{CDN: server.URL, Verify: true, MaxRetries: 10, RetryDelay: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, "preact", Target{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
