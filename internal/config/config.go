// Package config provides configuration management for srcdoc using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration system reads .srcdoc.yml, applies SRCDOC_ environment
// overrides, fills defaults for anything left unset and validates the result.
// It covers the preview server, build defaults, the artifact cache, the CDN
// dependency resolver, the project watcher and logging.
package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/srcdoc/internal/codec"
	"github.com/conneroisu/srcdoc/internal/deps"
	"github.com/conneroisu/srcdoc/internal/logging"
	"github.com/conneroisu/srcdoc/internal/project"
	"github.com/conneroisu/srcdoc/internal/types"
)

type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
	Build  BuildConfig  `mapstructure:"build" yaml:"build" json:"build"`
	Cache  CacheConfig  `mapstructure:"cache" yaml:"cache" json:"cache"`
	Deps   DepsConfig   `mapstructure:"deps" yaml:"deps" json:"deps"`
	Watch  WatchConfig  `mapstructure:"watch" yaml:"watch" json:"watch"`
	Log    LogConfig    `mapstructure:"log" yaml:"log" json:"log"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" yaml:"port" json:"port"`
	Host           string   `mapstructure:"host" yaml:"host" json:"host"`
	Open           bool     `mapstructure:"open" yaml:"open" json:"open"`
	NoOpen         bool     `mapstructure:"no-open" yaml:"-" json:"-"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

type BuildConfig struct {
	Preset          string                 `mapstructure:"preset" yaml:"preset" json:"preset"`
	Options         map[string]interface{} `mapstructure:"options" yaml:"options,omitempty" json:"options,omitempty"`
	OptionsFile     string                 `mapstructure:"options_file" yaml:"options_file,omitempty" json:"options_file,omitempty"`
	UnitConcurrency int                    `mapstructure:"unit_concurrency" yaml:"unit_concurrency" json:"unit_concurrency"`
}

type CacheConfig struct {
	Disabled         bool   `mapstructure:"disabled" yaml:"disabled" json:"disabled"`
	MaxBytes         int64  `mapstructure:"max_bytes" yaml:"max_bytes" json:"max_bytes"`
	Compression      string `mapstructure:"compression" yaml:"compression" json:"compression"`
	CompressMinBytes int    `mapstructure:"compress_min_bytes" yaml:"compress_min_bytes" json:"compress_min_bytes"`
}

type DepsConfig struct {
	CDN         string        `mapstructure:"cdn" yaml:"cdn" json:"cdn"`
	Verify      bool          `mapstructure:"verify" yaml:"verify" json:"verify"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	Concurrency int64         `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"`
	TTL         time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	CacheSize   int           `mapstructure:"cache_size" yaml:"cache_size" json:"cache_size"`
}

type WatchConfig struct {
	Debounce    time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
	Ignore      []string      `mapstructure:"ignore" yaml:"ignore" json:"ignore"`
	MaxFileSize int64         `mapstructure:"max_file_size" yaml:"max_file_size" json:"max_file_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// Defaults applied by Load for values left unset.
const (
	DefaultPort             = 8080
	DefaultHost             = "localhost"
	DefaultCacheMaxBytes    = 64 << 20
	DefaultCompressMinBytes = 1024
	DefaultDebounce         = 150 * time.Millisecond
)

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applies defaults and validates it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle slices set via viper (workaround for viper slice handling)
	if v.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("watch.ignore") && len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = v.GetStringSlice("watch.ignore")
	}

	applyDefaults(v, &config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Keys lists every scalar and list configuration key, such as "server.port".
func Keys() []string {
	return collectKeys(reflect.TypeOf(Config{}), "")
}

func collectKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		switch field.Type.Kind() {
		case reflect.Struct:
			keys = append(keys, collectKeys(field.Type, key)...)
		case reflect.Map:
			// Maps only come from config files.
		default:
			keys = append(keys, key)
		}
	}

	return keys
}

// BindEnv binds every key to its environment variable so values that only
// exist in the environment still reach Unmarshal.
func BindEnv(v *viper.Viper) {
	for _, key := range Keys() {
		_ = v.BindEnv(key)
	}
}

func applyDefaults(v *viper.Viper, config *Config) {
	if config.Server.Port == 0 && !v.IsSet("server.port") {
		config.Server.Port = DefaultPort
	}
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if !v.IsSet("server.open") {
		config.Server.Open = true
	}
	// Override open if no-open is explicitly set via flag
	if v.IsSet("server.no-open") && v.GetBool("server.no-open") {
		config.Server.Open = false
	}

	if config.Build.Preset == "" {
		config.Build.Preset = "auto"
	}
	if config.Build.UnitConcurrency == 0 {
		config.Build.UnitConcurrency = 4
	}

	if config.Cache.MaxBytes == 0 && !v.IsSet("cache.max_bytes") {
		config.Cache.MaxBytes = DefaultCacheMaxBytes
	}
	if config.Cache.Compression == "" {
		config.Cache.Compression = codec.CompressionZstd.String()
	}
	if config.Cache.CompressMinBytes == 0 && !v.IsSet("cache.compress_min_bytes") {
		config.Cache.CompressMinBytes = DefaultCompressMinBytes
	}

	defaults := deps.DefaultConfig()
	if config.Deps.CDN == "" {
		config.Deps.CDN = defaults.CDN
	}
	if config.Deps.Timeout == 0 {
		config.Deps.Timeout = defaults.Timeout
	}
	if config.Deps.MaxRetries == 0 && !v.IsSet("deps.max_retries") {
		config.Deps.MaxRetries = defaults.MaxRetries
	}
	if config.Deps.RetryDelay == 0 {
		config.Deps.RetryDelay = defaults.RetryDelay
	}
	if config.Deps.Concurrency == 0 {
		config.Deps.Concurrency = defaults.Concurrency
	}
	if config.Deps.TTL == 0 {
		config.Deps.TTL = defaults.TTL
	}
	if config.Deps.CacheSize == 0 {
		config.Deps.CacheSize = defaults.CacheSize
	}

	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = DefaultDebounce
	}
	if config.Watch.MaxFileSize == 0 {
		config.Watch.MaxFileSize = project.DefaultMaxFileSize
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// Addr returns the listen address of the preview server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CompressionAlgorithm returns the parsed cache compression. Load has already
// validated it.
func (c *Config) CompressionAlgorithm() codec.Compression {
	compression, _ := codec.ParseCompression(c.Cache.Compression)

	return compression
}

// ResolverConfig converts the deps section for deps.New.
func (c *Config) ResolverConfig() deps.Config {
	return deps.Config{
		CDN:         c.Deps.CDN,
		Verify:      c.Deps.Verify,
		Timeout:     c.Deps.Timeout,
		MaxRetries:  c.Deps.MaxRetries,
		RetryDelay:  c.Deps.RetryDelay,
		Concurrency: c.Deps.Concurrency,
		TTL:         c.Deps.TTL,
		CacheSize:   c.Deps.CacheSize,
	}
}

// LoggerConfig converts the log section for logging.NewLogger.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	config := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		config.Level = level
	}
	config.Format = c.Log.Format

	return config
}

// BuildOptions returns the configured build options: the options file first,
// then the inline options on top of it.
func (c *Config) BuildOptions() (types.Options, error) {
	options := types.Options{}
	if c.Build.OptionsFile != "" {
		fromFile, err := LoadOptionsFile(c.Build.OptionsFile)
		if err != nil {
			return nil, err
		}
		for key, value := range fromFile {
			options[key] = value
		}
	}
	for key, value := range c.Build.Options {
		options[key] = value
	}

	return options.Normalize()
}
