package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Logging      LogConfig
	RateLimit    RateLimitConfig
	Broker       BrokerConfig
	Policy       PolicyConfig
	Storage      StorageConfig
	Dependencies DependencyConfig
	Locale       LocaleConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000" validate:"required,numeric"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
	// AllowedOrigins are the cross-origin callers of the management API and
	// the channel endpoint. Empty means same-origin only; "*" is refused.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" validate:"dive,required,ne=*"`
	MaxBodyBytes   int64    `envconfig:"MAX_BODY_BYTES" default:"16777216" validate:"gte=0"`
	// APIToken guards the management API. When empty the token is read
	// from APITokenFile, which is created on first start.
	APIToken     string `envconfig:"API_TOKEN" validate:"omitempty,min=16"`
	APITokenFile string `envconfig:"API_TOKEN_FILE" default:"api-token" validate:"required_without=APIToken"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" validate:"gt=0"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" validate:"gt=0"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// BrokerConfig tunes privileged operations.
type BrokerConfig struct {
	FetchTimeout   time.Duration `envconfig:"BROKER_FETCH_TIMEOUT" default:"60s" validate:"gte=0"`
	MaxBodyBytes   int64         `envconfig:"BROKER_MAX_BODY_BYTES" default:"52428800" validate:"gte=0"`
	UserAgent      string        `envconfig:"BROKER_USER_AGENT" default:"scriptgate/1.0"`
	FetchRateLimit float64       `envconfig:"BROKER_FETCH_RPS" default:"0" validate:"gte=0"`
	MaxRedirects   int           `envconfig:"BROKER_MAX_REDIRECTS" default:"10" validate:"gte=0"`
	NotifyDenials  bool          `envconfig:"BROKER_NOTIFY_DENIALS" default:"true"`
}

// PolicyConfig points at an optional TOML baseline override.
type PolicyConfig struct {
	BaselineFile string `envconfig:"POLICY_BASELINE_FILE"`
}

// StorageConfig holds file locations.
type StorageConfig struct {
	GrantsFile  string `envconfig:"GRANTS_FILE"`
	ScriptsDir  string `envconfig:"SCRIPTS_DIR"`
	ScriptsGlob string `envconfig:"SCRIPTS_GLOB" default:"**/*.user.js"`
	DownloadDir string `envconfig:"DOWNLOAD_DIR" default:"downloads" validate:"required"`
}

// DependencyConfig tunes the @require/@resource fetcher.
type DependencyConfig struct {
	TTL     time.Duration `envconfig:"DEPS_TTL" default:"720h" validate:"gt=0"`
	Retries int           `envconfig:"DEPS_RETRIES" default:"2" validate:"gte=0"`
	Timeout time.Duration `envconfig:"DEPS_TIMEOUT" default:"30s" validate:"gt=0"`
}

// LocaleConfig lists preferred locales for localized metadata, most
// preferred first.
type LocaleConfig struct {
	Preferred []string `envconfig:"LOCALES" default:"en"`
}

var validate = validator.New()

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
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

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8000",
			Host:         "127.0.0.1",
			MaxBodyBytes: 16 << 20,
			APITokenFile: "api-token",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Broker: BrokerConfig{
			FetchTimeout:  60 * time.Second,
			MaxBodyBytes:  50 << 20,
			UserAgent:     "scriptgate/1.0",
			MaxRedirects:  10,
			NotifyDenials: true,
		},
		Storage: StorageConfig{
			ScriptsGlob: "**/*.user.js",
			DownloadDir: "downloads",
		},
		Dependencies: DependencyConfig{
			TTL:     30 * 24 * time.Hour,
			Retries: 2,
			Timeout: 30 * time.Second,
		},
		Locale: LocaleConfig{
			Preferred: []string{"en"},
		},
	}
}
