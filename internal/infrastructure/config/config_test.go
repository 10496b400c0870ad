package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8700", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Engine config
	assert.Equal(t, "scriptbridge-isolate", cfg.Engine.IsolateBinary)
	assert.Equal(t, 5000, cfg.Engine.TimeLimitMs)
	assert.Equal(t, 64, cfg.Engine.MemoryLimitMB)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 50, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestOuterTimeout(t *testing.T) {
	e := EngineConfig{TimeLimitMs: 5000, OuterHeadroomMs: 5000}
	assert.Equal(t, 10*time.Second, e.OuterTimeout())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":            "9000",
		"HOST":            "127.0.0.1",
		"ISOLATE_BINARY":  "/usr/local/bin/scriptbridge-isolate",
		"TIME_LIMIT_MS":   "2000",
		"MEMORY_LIMIT_MB": "128",
		"API_BASE_URL":    "http://localhost:3000",
		"API_PREFIX":      "/api",
		"LOG_LEVEL":       "debug",
		"LOG_DEV":         "true",
	}

	for key, value := range envVars {
		err := os.Setenv(key, value)
		require.NoError(t, err)
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "/usr/local/bin/scriptbridge-isolate", cfg.Engine.IsolateBinary)
	assert.Equal(t, 2000, cfg.Engine.TimeLimitMs)
	assert.Equal(t, 128, cfg.Engine.MemoryLimitMB)
	assert.Equal(t, "http://localhost:3000", cfg.API.BaseURL)
	assert.Equal(t, "/api", cfg.API.Prefix)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	err := os.Setenv("PORT", "3000")
	require.NoError(t, err)
	defer os.Unsetenv("PORT")

	cfg, err := Load()
	require.NoError(t, err)

	// Overridden value
	assert.Equal(t, "3000", cfg.Server.Port)

	// Defaults still apply
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Engine.TimeLimitMs)
}

func TestAPIHeaders(t *testing.T) {
	err := os.Setenv("API_HEADERS", "Authorization:Bearer test123,X-Tenant:acme")
	require.NoError(t, err)
	defer os.Unsetenv("API_HEADERS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Bearer test123", cfg.API.Headers["Authorization"])
	assert.Equal(t, "acme", cfg.API.Headers["X-Tenant"])
}
