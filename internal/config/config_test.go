package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9090
redaction:
  detectors: [email, phone_fr]
  match_timeout: 2s
logging:
  level: debug
  format: console
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, []string{"email", "phone_fr"}, cfg.Redaction.Detectors)
		assert.Equal(t, 2*time.Second, cfg.Redaction.MatchTimeout)
		assert.Equal(t, "debug", cfg.Logging.Level)
		// untouched sections keep their defaults
		assert.Equal(t, " | ", cfg.Export.RecordDelimiter)
		assert.Equal(t, "memory", cfg.Stats.Backend)
		assert.Equal(t, "A4", cfg.Export.PDF.PageSize)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 9090\n")
		t.Setenv("ANONYMIZER_SERVER_PORT", "7070")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := writeConfig(t, "logging:\n  level: verbose\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := writeConfig(t, "server: [port\n")
		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"empty detectors", func(c *Config) { c.Redaction.Detectors = nil }, "must not be empty"},
		{"single character delimiter", func(c *Config) { c.Export.RecordDelimiter = "|" }, "invalid record delimiter"},
		{"delimiter with newline", func(c *Config) { c.Export.RecordDelimiter = " \n " }, "invalid record delimiter"},
		{"unknown stats backend", func(c *Config) { c.Stats.Backend = "memcached" }, "invalid stats backend"},
		{"redis without url", func(c *Config) { c.Stats.Backend = "redis"; c.Stats.RedisURL = "" }, "redis_url is required"},
		{"audit without url", func(c *Config) { c.Audit.Enabled = true; c.Audit.DatabaseURL = "" }, "database_url is required"},
		{"zero workers", func(c *Config) { c.Batch.Workers = 0 }, "must be positive"},
		{"negative timeout", func(c *Config) { c.Redaction.MatchTimeout = -time.Second }, "invalid match timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
