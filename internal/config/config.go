package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Extract  ExtractConfig  `mapstructure:"extract"  validate:"required"`
	Stream   StreamConfig   `mapstructure:"stream"   validate:"required"`
	Reaper   ReaperConfig   `mapstructure:"reaper"   validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`

	MaxOpenConns    int `mapstructure:"max_open_conns"    validate:"gte=0"`
	MaxIdleConns    int `mapstructure:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime" validate:"gte=0"` // minutes
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	BcryptCost           int    `mapstructure:"bcrypt_cost"            validate:"gte=4,lte=31"`
}

// LLMConfig contains all generation-related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`

	// ChunkBufferSize is the capacity of each producer's chunk channel.
	ChunkBufferSize int `mapstructure:"chunk_buffer_size" validate:"gt=0"`
}

// ExtractConfig contains settings for the extraction collaborators.
type ExtractConfig struct {
	OCRBaseURL     string `mapstructure:"ocr_base_url"     validate:"required,url"`
	ScraperBaseURL string `mapstructure:"scraper_base_url" validate:"required,url"`

	// Per-call ceilings; OCR on large documents is slow.
	OCRTimeoutSeconds    int `mapstructure:"ocr_timeout_seconds"    validate:"required,gte=30,lte=300"`
	ScrapeTimeoutSeconds int `mapstructure:"scrape_timeout_seconds" validate:"required,gte=10,lte=120"`
}

// StreamConfig contains settings for the event stream transport.
type StreamConfig struct {
	// HeartbeatSeconds is how often a keep-alive comment is written
	// while upstream stages are quiet.
	HeartbeatSeconds int `mapstructure:"heartbeat_seconds" validate:"required,gt=0"`

	// JobTimeoutMinutes bounds the overall duration of one processing
	// attempt, extraction and generation included.
	JobTimeoutMinutes int `mapstructure:"job_timeout_minutes" validate:"required,gt=0"`
}

// ReaperConfig contains settings for the stale-claim reaper.
type ReaperConfig struct {
	// ClaimTTLMinutes is how long a claim may sit untouched before it is
	// considered abandoned and released.
	ClaimTTLMinutes int `mapstructure:"claim_ttl_minutes" validate:"required,gt=0"`

	// SweepIntervalMinutes is how often the reaper scans for stale claims.
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes" validate:"required,gt=0"`
}
