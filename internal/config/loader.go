package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "reflex.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "REFLEX_PORT")
	setString(&cfg.Server.CORSOrigin, "REFLEX_CORS_ORIGIN")
	setString(&cfg.Repository.Type, "REFLEX_REPOSITORY")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "REFLEX_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "REFLEX_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "REFLEX_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "REFLEX_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "REFLEX_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setBool(&cfg.Cache.Enabled, "REFLEX_CACHE_ENABLED")
	setInt64(&cfg.Cache.MaxCostBytes, "REFLEX_CACHE_MAX_COST_BYTES")
	setDuration(&cfg.Cache.TTL, "REFLEX_CACHE_TTL")
	setString(&cfg.Logging.Level, "REFLEX_LOG_LEVEL")
	setString(&cfg.Logging.Service, "REFLEX_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "REFLEX_LOG_ASYNC")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setInt(&cfg.Breaker.MaxFailures, "REFLEX_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "REFLEX_BREAKER_TIMEOUT")
	setString(&cfg.Chat.Model, "REFLEX_CHAT_MODEL")
	setString(&cfg.Chat.DefaultMode, "REFLEX_CHAT_MODE")
	setInt(&cfg.Chat.TurnLimit, "REFLEX_CHAT_TURN_LIMIT")
	setString(&cfg.Chat.ClosingStyle, "REFLEX_CHAT_CLOSING_STYLE")
}

// validate checks cross-field constraints after all sources are merged.
func validate(cfg *Config) error {
	if cfg.Repository.Type != "memory" && cfg.Repository.Type != "postgres" {
		return fmt.Errorf("repository.type must be \"memory\" or \"postgres\", got %q", cfg.Repository.Type)
	}
	if cfg.Repository.Type == "postgres" && cfg.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when repository.type is \"postgres\"")
	}
	if cfg.Chat.TurnLimit < 1 {
		return fmt.Errorf("chat.turn_limit must be at least 1, got %d", cfg.Chat.TurnLimit)
	}
	if cfg.Chat.DefaultMode != "reflexive" && cfg.Chat.DefaultMode != "standard" {
		return fmt.Errorf("chat.default_mode must be \"reflexive\" or \"standard\", got %q", cfg.Chat.DefaultMode)
	}
	if cfg.Chat.ClosingStyle != ClosingGenerated && cfg.Chat.ClosingStyle != ClosingCanned {
		return fmt.Errorf("chat.closing_style must be %q or %q, got %q", ClosingGenerated, ClosingCanned, cfg.Chat.ClosingStyle)
	}
	if cfg.Chat.Model == "" {
		return fmt.Errorf("chat.model is required")
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
