package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/srcdoc/internal/codec"
	srcerrors "github.com/conneroisu/srcdoc/internal/errors"
	"github.com/conneroisu/srcdoc/internal/logging"
	"github.com/conneroisu/srcdoc/internal/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			setup: func() {
				viper.Reset()
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultPort, cfg.Server.Port)
				assert.Equal(t, DefaultHost, cfg.Server.Host)
				assert.True(t, cfg.Server.Open)
				assert.Equal(t, "auto", cfg.Build.Preset)
				assert.Equal(t, 4, cfg.Build.UnitConcurrency)
				assert.Equal(t, int64(DefaultCacheMaxBytes), cfg.Cache.MaxBytes)
				assert.Equal(t, codec.CompressionZstd, cfg.CompressionAlgorithm())
				assert.Equal(t, "https://esm.sh", cfg.Deps.CDN)
				assert.Equal(t, DefaultDebounce, cfg.Watch.Debounce)
				assert.Equal(t, "info", cfg.Log.Level)
				assert.Equal(t, "text", cfg.Log.Format)
			},
		},
		{
			name: "explicit values",
			setup: func() {
				viper.Reset()
				viper.Set("server.port", 3000)
				viper.Set("server.host", "0.0.0.0")
				viper.Set("server.allowed_origins", []string{"http://localhost:5173"})
				viper.Set("build.preset", "react")
				viper.Set("cache.compression", "lz4")
				viper.Set("deps.timeout", "2s")
				viper.Set("watch.ignore", []string{"*.tmp"})
				viper.Set("log.format", "json")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0:3000", cfg.Addr())
				assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
				assert.Equal(t, "react", cfg.Build.Preset)
				assert.Equal(t, codec.CompressionLZ4, cfg.CompressionAlgorithm())
				assert.Equal(t, 2*time.Second, cfg.ResolverConfig().Timeout)
				assert.Equal(t, []string{"*.tmp"}, cfg.Watch.Ignore)
				assert.Equal(t, "json", cfg.LoggerConfig().Format)
			},
		},
		{
			name: "no-open flag override",
			setup: func() {
				viper.Reset()
				viper.Set("server.open", true)
				viper.Set("server.no-open", true)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Server.Open)
			},
		},
		{
			name: "port zero is kept when set",
			setup: func() {
				viper.Reset()
				viper.Set("server.port", 0)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0, cfg.Server.Port)
			},
		},
		{
			name: "invalid viper config",
			setup: func() {
				viper.Reset()
				viper.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer viper.Reset()

			cfg, err := Load()
			if tt.expectError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadCollectsValidationErrors(t *testing.T) {
	v := viper.New()
	v.Set("server.port", 70000)
	v.Set("build.preset", "vue")
	v.Set("cache.compression", "brotli")
	v.Set("log.level", "verbose")

	_, err := LoadFrom(v)
	require.Error(t, err)

	assert.True(t, srcerrors.IsConfigError(err))
	formatted := srcerrors.FormatErrorWithSuggestions(err)
	for _, field := range []string{"server.port", "build.preset", "cache.compression", "log.level"} {
		assert.Contains(t, formatted, field)
	}
}

func TestValidateServerConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  ServerConfig
		wantErr bool
	}{
		{"valid", ServerConfig{Port: 8080, Host: "localhost"}, false},
		{"negative port", ServerConfig{Port: -1, Host: "localhost"}, true},
		{"command injection in host", ServerConfig{Port: 8080, Host: "localhost; rm -rf /"}, true},
		{"valid origin", ServerConfig{Port: 8080, AllowedOrigins: []string{"https://example.com"}}, false},
		{"relative origin", ServerConfig{Port: 8080, AllowedOrigins: []string{"example.com"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var collection srcerrors.ValidationErrorCollection
			validateServerConfig(&tt.config, &collection)
			assert.Equal(t, tt.wantErr, collection.HasErrors())
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"options.jsonc", false},
		{"config/options.jsonc", false},
		{"", true},
		{"../options.jsonc", true},
		{"options.jsonc; cat /etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "debug", Format: "json"}}

	loggerConfig := cfg.LoggerConfig()
	assert.Equal(t, logging.LevelDebug, loggerConfig.Level)
	assert.Equal(t, "json", loggerConfig.Format)
}

func TestParseOptions(t *testing.T) {
	data := []byte(`{
		// page title
		"title": "Demo",
		"tailwind": true,
		"width": 3,
	}`)

	options, err := ParseOptions(data)
	require.NoError(t, err)
	assert.Equal(t, types.Options{"title": "Demo", "tailwind": true, "width": float64(3)}, options)

	_, err = ParseOptions([]byte(`{"nested": {"a": 1}}`))
	assert.Error(t, err)

	_, err = ParseOptions([]byte(`[1, 2]`))
	assert.Error(t, err)
}

func TestParseOption(t *testing.T) {
	tests := []struct {
		pair    string
		key     string
		value   any
		wantErr bool
	}{
		{pair: "title=Hello", key: "title", value: "Hello"},
		{pair: "tailwind=true", key: "tailwind", value: true},
		{pair: "width=1.5", key: "width", value: 1.5},
		{pair: `version="18"`, key: "version", value: "18"},
		{pair: "empty=", key: "empty", value: ""},
		{pair: "title=a=b", key: "title", value: "a=b"},
		{pair: "mode=Inf", key: "mode", value: "Inf"},
		{pair: "novalue", wantErr: true},
		{pair: "=x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.pair, func(t *testing.T) {
			key, value, err := ParseOption(tt.pair)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestBuildOptions(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "options.jsonc")
	require.NoError(t, os.WriteFile(file, []byte(`{"title": "From file", "minify": true}`), 0o644))

	cfg := &Config{Build: BuildConfig{
		OptionsFile: file,
		Options:     map[string]interface{}{"title": "Inline", "width": 2},
	}}

	options, err := cfg.BuildOptions()
	require.NoError(t, err)
	assert.Equal(t, types.Options{"title": "Inline", "minify": true, "width": float64(2)}, options)

	cfg.Build.OptionsFile = filepath.Join(dir, "missing.jsonc")
	_, err = cfg.BuildOptions()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "options file"))
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "server.port")
	assert.Contains(t, keys, "server.no-open")
	assert.Contains(t, keys, "deps.retry_delay")
	assert.Contains(t, keys, "watch.ignore")
	assert.NotContains(t, keys, "build.options")
	assert.NotContains(t, keys, "server")
}

func TestBindEnv(t *testing.T) {
	t.Setenv("SRCDOC_SERVER_PORT", "3001")
	t.Setenv("SRCDOC_CACHE_COMPRESSION", "lz4")
	t.Setenv("SRCDOC_DEPS_RETRY_DELAY", "250ms")
	t.Setenv("SRCDOC_SERVER_NO_OPEN", "true")

	v := viper.New()
	v.SetEnvPrefix("SRCDOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	BindEnv(v)

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, codec.CompressionLZ4, cfg.CompressionAlgorithm())
	assert.Equal(t, 250*time.Millisecond, cfg.Deps.RetryDelay)
	assert.False(t, cfg.Server.Open)
}
