// Package config loads mediagrab's configuration from defaults, an
// optional YAML file and MEDIAGRAB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// MEDIAGRAB_SERVER_PORT or MEDIAGRAB_HISTORY_BACKEND.
const EnvPrefix = "MEDIAGRAB"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Download  DownloadConfig  `mapstructure:"download"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	History   HistoryConfig   `mapstructure:"history"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"` // default: "0.0.0.0"
	Port int    `mapstructure:"port"` // default: 8080
	Mode string `mapstructure:"mode"` // "debug", "release", "test"; default: "release"
}

// FetchConfig controls outbound requests.
type FetchConfig struct {
	// PageTimeout bounds the page fetch of an extraction.
	PageTimeout time.Duration `mapstructure:"page_timeout"` // default: 10s

	// ItemTimeout bounds each item fetch of a download.
	ItemTimeout time.Duration `mapstructure:"item_timeout"` // default: 30s

	UserAgent string `mapstructure:"user_agent"`
	Proxy     string `mapstructure:"proxy"`

	// MaxPageBytes caps the HTML read for an extraction.
	MaxPageBytes int64 `mapstructure:"max_page_bytes"` // default: 10 MiB

	// MaxItemBytes caps a single downloaded file. 0 disables the cap.
	MaxItemBytes int64 `mapstructure:"max_item_bytes"` // default: 512 MiB
}

// DownloadConfig controls server-side batches.
type DownloadConfig struct {
	// Dir is where batch payloads are written, one subdirectory per batch.
	Dir string `mapstructure:"dir"`

	// Mode is the default batch mode: "sequential" or "concurrent".
	Mode string `mapstructure:"mode"`

	// Concurrency bounds parallel fetches in concurrent mode.
	Concurrency int `mapstructure:"concurrency"` // default: 4

	// JobTTL is how long finished batches stay queryable.
	JobTTL time.Duration `mapstructure:"job_ttl"` // default: 1h
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"` // default: false
	APIKeys []string `mapstructure:"api_keys"`
}

// RateLimitConfig controls per-identity rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // default: 5
	Burst             int     `mapstructure:"burst"`               // default: 10
}

// CacheConfig controls the extraction result cache.
type CacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries"` // default: 1000
	TTL        time.Duration `mapstructure:"ttl"`         // default: 1h
}

// HistoryConfig controls the history store.
type HistoryConfig struct {
	// Backend is "memory" or "sqlite".
	Backend      string `mapstructure:"backend"`
	DatabasePath string `mapstructure:"database_path"`
	MaxEntries   int    `mapstructure:"max_entries"` // default: 100

	// Eviction is "oldest-inserted" or "least-recently-updated".
	Eviction string `mapstructure:"eviction"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // default: "info"
	Format string `mapstructure:"format"` // "json" or "text"; default: "json"
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("fetch.page_timeout", "10s")
	v.SetDefault("fetch.item_timeout", "30s")
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.proxy", "")
	v.SetDefault("fetch.max_page_bytes", 10<<20)
	v.SetDefault("fetch.max_item_bytes", 512<<20)

	v.SetDefault("download.dir", "./downloads")
	v.SetDefault("download.mode", "sequential")
	v.SetDefault("download.concurrency", 4)
	v.SetDefault("download.job_ttl", "1h")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_keys", []string{})

	v.SetDefault("rate_limit.requests_per_second", 5.0)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.ttl", "1h")

	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.database_path", "./mediagrab.db")
	v.SetDefault("history.max_entries", 100)
	v.SetDefault("history.eviction", "oldest-inserted")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration. An empty path searches ./mediagrab.yaml,
// ./configs/mediagrab.yaml and $HOME/.mediagrab/mediagrab.yaml; a missing
// file is not an error. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mediagrab")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.mediagrab")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.Download.Dir = expandPath(cfg.Download.Dir)
	cfg.History.DatabasePath = expandPath(cfg.History.DatabasePath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Fetch.PageTimeout <= 0 || c.Fetch.ItemTimeout <= 0 {
		return errors.New("fetch timeouts must be positive")
	}
	if c.Fetch.MaxPageBytes <= 0 {
		return errors.New("fetch.max_page_bytes must be positive")
	}
	if c.Fetch.MaxItemBytes < 0 {
		return errors.New("fetch.max_item_bytes cannot be negative")
	}

	switch c.Download.Mode {
	case "sequential", "concurrent":
	default:
		return fmt.Errorf("invalid download.mode: %q", c.Download.Mode)
	}
	if c.Download.Concurrency < 1 {
		return errors.New("download.concurrency must be at least 1")
	}
	if c.Download.Dir == "" {
		return errors.New("download.dir not configured")
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return errors.New("auth.enabled requires at least one auth.api_keys entry")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return errors.New("rate_limit values must be positive")
	}

	switch c.History.Backend {
	case "memory":
	case "sqlite":
		if c.History.DatabasePath == "" {
			return errors.New("history.database_path required for sqlite backend")
		}
	default:
		return fmt.Errorf("invalid history.backend: %q", c.History.Backend)
	}
	switch c.History.Eviction {
	case "oldest-inserted", "least-recently-updated":
	default:
		return fmt.Errorf("invalid history.eviction: %q", c.History.Eviction)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log.format: %q", c.Log.Format)
	}
	return nil
}

// expandPath expands environment variables and a leading ~/.
func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return path
}
