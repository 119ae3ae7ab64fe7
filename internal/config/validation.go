package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/conneroisu/srcdoc/internal/codec"
	"github.com/conneroisu/srcdoc/internal/errors"
	"github.com/conneroisu/srcdoc/internal/logging"
	"github.com/conneroisu/srcdoc/internal/types"
)

// presetNames lists the values accepted for build.preset besides "auto".
var presetNames = []string{"html", "passthrough", "react", "bundled", "builder"}

// validateConfig collects every invalid value so they can be reported
// together.
func validateConfig(config *Config) error {
	var collection errors.ValidationErrorCollection

	validateServerConfig(&config.Server, &collection)
	validateBuildConfig(&config.Build, &collection)
	validateCacheConfig(&config.Cache, &collection)
	validateDepsConfig(&config.Deps, &collection)
	validateWatchConfig(&config.Watch, &collection)
	validateLogConfig(&config.Log, &collection)

	if err := collection.ToSrcdocError(); err != nil {
		return err
	}

	return nil
}

func validateServerConfig(config *ServerConfig, collection *errors.ValidationErrorCollection) {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		collection.AddField("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port such as 8080")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			collection.AddField("server.host", config.Host,
				fmt.Sprintf("host contains invalid character %q", char),
				"Use a hostname or IP address such as localhost or 127.0.0.1")
			break
		}
	}

	for _, origin := range config.AllowedOrigins {
		parsed, err := url.Parse(origin)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			collection.AddField("server.allowed_origins", origin,
				"origin must be an absolute http or https URL",
				"Example: http://localhost:3000")
		}
	}
}

func validateBuildConfig(config *BuildConfig, collection *errors.ValidationErrorCollection) {
	preset := strings.ToLower(config.Preset)
	known := preset == "auto"
	for _, name := range presetNames {
		if preset == name {
			known = true
		}
	}
	if !known {
		collection.AddField("build.preset", config.Preset,
			"unknown preset",
			"Supported presets: auto, "+strings.Join(presetNames, ", "))
	}

	if config.UnitConcurrency < 1 {
		collection.AddField("build.unit_concurrency", config.UnitConcurrency,
			"must be at least 1")
	}

	if err := types.Options(config.Options).Validate(); err != nil {
		collection.AddField("build.options", config.Options, err.Error(),
			"Option values must be strings, numbers or booleans")
	}

	if config.OptionsFile != "" {
		if err := validatePath(config.OptionsFile); err != nil {
			collection.AddField("build.options_file", config.OptionsFile, err.Error())
		}
	}
}

func validateCacheConfig(config *CacheConfig, collection *errors.ValidationErrorCollection) {
	if config.MaxBytes < 0 {
		collection.AddField("cache.max_bytes", config.MaxBytes,
			"must not be negative", "Use 0 for an unbounded cache")
	}
	if _, err := codec.ParseCompression(config.Compression); err != nil {
		collection.AddField("cache.compression", config.Compression, err.Error())
	}
	if config.CompressMinBytes < 0 {
		collection.AddField("cache.compress_min_bytes", config.CompressMinBytes,
			"must not be negative")
	}
}

func validateDepsConfig(config *DepsConfig, collection *errors.ValidationErrorCollection) {
	parsed, err := url.Parse(config.CDN)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		collection.AddField("deps.cdn", config.CDN,
			"CDN must be an absolute http or https URL",
			"Example: https://esm.sh")
	}
	if config.MaxRetries < 0 {
		collection.AddField("deps.max_retries", config.MaxRetries, "must not be negative")
	}
	if config.Timeout < 0 || config.RetryDelay < 0 || config.TTL < 0 {
		collection.AddField("deps", config, "durations must not be negative")
	}
	if config.Concurrency < 1 {
		collection.AddField("deps.concurrency", config.Concurrency, "must be at least 1")
	}
}

func validateWatchConfig(config *WatchConfig, collection *errors.ValidationErrorCollection) {
	if config.Debounce < 0 {
		collection.AddField("watch.debounce", config.Debounce, "must not be negative")
	}
	if config.MaxFileSize < 0 {
		collection.AddField("watch.max_file_size", config.MaxFileSize, "must not be negative")
	}
	for _, pattern := range config.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			collection.AddField("watch.ignore", pattern, "malformed pattern",
				"Patterns use path.Match syntax, for example *.tmp")
		}
	}
}

func validateLogConfig(config *LogConfig, collection *errors.ValidationErrorCollection) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		collection.AddField("log.level", config.Level, err.Error())
	}
	if config.Format != "text" && config.Format != "json" {
		collection.AddField("log.format", config.Format,
			"unknown log format", "Supported formats: text, json")
	}
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\""}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
