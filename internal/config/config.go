package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. ANONYMIZER_SERVER_PORT.
const EnvPrefix = "ANONYMIZER"

var (
	mu     sync.Mutex
	active *viper.Viper
)

// envKeys are bound explicitly so they can be overridden without a config file.
var envKeys = []string{
	"server.port",
	"server.max_upload_bytes",
	"redaction.detectors",
	"redaction.match_timeout",
	"redaction.max_document_bytes",
	"export.record_delimiter",
	"logging.level",
	"logging.format",
	"rate_limit.enabled",
	"rate_limit.requests_per_min",
	"websocket.enabled",
	"websocket.username",
	"websocket.password",
	"stats.backend",
	"stats.redis_url",
	"audit.enabled",
	"audit.database_url",
	"batch.workers",
	"batch.batch_size",
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// A missing .env is the normal case outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := GetDefaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/cv-anonymizer/")
	v.AddConfigPath("$HOME/.cv-anonymizer/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mu.Lock()
	active = v
	mu.Unlock()

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if len(config.Redaction.Detectors) == 0 {
		return fmt.Errorf("redaction.detectors must not be empty (use \"all\")")
	}

	if config.Redaction.MatchTimeout < 0 {
		return fmt.Errorf("invalid match timeout: %s", config.Redaction.MatchTimeout)
	}

	delim := config.Export.RecordDelimiter
	if len([]rune(delim)) < 2 || strings.ContainsAny(delim, "\r\n") {
		return fmt.Errorf("invalid record delimiter %q (must be at least two characters on one line)", delim)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMin)
	}

	switch config.Stats.Backend {
	case "memory":
	case "redis":
		if config.Stats.RedisURL == "" {
			return fmt.Errorf("stats.redis_url is required when stats.backend is redis")
		}
	default:
		return fmt.Errorf("invalid stats backend: %s (must be memory or redis)", config.Stats.Backend)
	}

	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit.database_url is required when audit is enabled")
	}

	if config.Batch.Workers <= 0 || config.Batch.BatchSize <= 0 {
		return fmt.Errorf("batch workers and batch size must be positive")
	}

	return nil
}

// Watch starts watching the configuration file for changes. It must be
// called after Load; invalid updates are reported to onError and ignored.
func Watch(callback func(*Config), onError func(error)) error {
	mu.Lock()
	v := active
	mu.Unlock()

	if v == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no configuration file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			onError(fmt.Errorf("failed to unmarshal %s: %w", e.Name, err))
			return
		}

		if err := validateConfig(newConfig); err != nil {
			onError(fmt.Errorf("invalid configuration in %s: %w", e.Name, err))
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
