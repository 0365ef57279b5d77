package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and, optionally, a
// config.yaml in the working directory. Environment variables take precedence
// over values from the config file and use the SKIM_ prefix with underscores
// for nesting, e.g. SKIM_SERVER_PORT, SKIM_DATABASE_URL.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file; a missing file is fine, a malformed one is not.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("SKIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not make env-only keys visible to Unmarshal, so
	// bind every known key explicitly.
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// configKeys lists every configuration key so environment-only values are
// bound before unmarshalling.
var configKeys = []string{
	"server.port",
	"server.log_level",
	"database.url",
	"database.max_open_conns",
	"database.max_idle_conns",
	"database.conn_max_lifetime",
	"auth.jwt_secret",
	"auth.token_lifetime_minutes",
	"auth.bcrypt_cost",
	"llm.gemini_api_key",
	"llm.model_name",
	"llm.chunk_buffer_size",
	"extract.ocr_base_url",
	"extract.scraper_base_url",
	"extract.ocr_timeout_seconds",
	"extract.scrape_timeout_seconds",
	"stream.heartbeat_seconds",
	"stream.job_timeout_minutes",
	"reaper.claim_ttl_minutes",
	"reaper.sweep_interval_minutes",
}

// setDefaults applies the defaults for everything that has a sensible one.
// Secrets and endpoints deliberately have none.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5)
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.chunk_buffer_size", 32)
	v.SetDefault("extract.ocr_timeout_seconds", 150)
	v.SetDefault("extract.scrape_timeout_seconds", 45)
	v.SetDefault("stream.heartbeat_seconds", 15)
	v.SetDefault("stream.job_timeout_minutes", 10)
	v.SetDefault("reaper.claim_ttl_minutes", 15)
	v.SetDefault("reaper.sweep_interval_minutes", 5)
}
