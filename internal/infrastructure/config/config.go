// Package config provides 12-factor configuration management for the service.
//
// Configuration is loaded from environment variables with sensible defaults.
// The engine packages never read the environment themselves; everything they
// need is passed down explicitly from here.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Engine: Isolate subprocess settings (binary, limits, headroom)
//   - API: Upstream API settings (base URL, prefix, static headers)
//   - Spec: API description source and method filtering
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Engine    EngineConfig
	API       APIConfig
	Spec      SpecConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8700"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// EngineConfig holds isolate subprocess configuration.
type EngineConfig struct {
	IsolateBinary     string `envconfig:"ISOLATE_BINARY" default:"scriptbridge-isolate"`
	TimeLimitMs       int    `envconfig:"TIME_LIMIT_MS" default:"5000"`
	MemoryLimitMB     int    `envconfig:"MEMORY_LIMIT_MB" default:"64"`
	OuterHeadroomMs   int    `envconfig:"OUTER_HEADROOM_MS" default:"5000"`
	MaxConcurrentRuns int    `envconfig:"MAX_CONCURRENT_RUNS" default:"16"`
}

// OuterTimeout returns the orchestrator timeout: the in-isolate limit plus
// headroom for process startup and teardown.
func (e EngineConfig) OuterTimeout() time.Duration {
	return time.Duration(e.TimeLimitMs+e.OuterHeadroomMs) * time.Millisecond
}

// APIConfig holds upstream API configuration for the host bridge.
type APIConfig struct {
	BaseURL string            `envconfig:"API_BASE_URL" default:""`
	Prefix  string            `envconfig:"API_PREFIX" default:""`
	Headers map[string]string `envconfig:"API_HEADERS" default:""`
}

// SpecConfig holds API description source configuration.
type SpecConfig struct {
	Source  string   `envconfig:"SPEC_SOURCE" default:""`
	Methods []string `envconfig:"SPEC_METHODS" default:"get"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8700",
			Host: "0.0.0.0",
		},
		Engine: EngineConfig{
			IsolateBinary:     "scriptbridge-isolate",
			TimeLimitMs:       5000,
			MemoryLimitMB:     64,
			OuterHeadroomMs:   5000,
			MaxConcurrentRuns: 16,
		},
		Spec: SpecConfig{
			Methods: []string{"get"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
