package config

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	pkgconfig "github.com/utafrali/authservice/pkg/config"
)

const (
	devAccessTokenKey  = "dev-access-token-key-change-me"
	devRefreshTokenKey = "dev-refresh-token-key-change-me"

	minTokenKeyLength = 32
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort       int      `env:"PORT" envDefault:"2000"`
	AllowedOrigins []string `env:"ORIGIN" envDefault:"*" envSeparator:","`

	// MongoDB
	MongoURI            string        `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase       string        `env:"MONGODB_DATABASE" envDefault:"auth"`
	MongoMaxPoolSize    uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"100"`
	MongoMinPoolSize    uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"0"`
	MongoConnectTimeout time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	SlowQueryThreshold  time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"0"`

	// Tokens
	AccessTokenKey     string        `env:"ACCESS_TOKEN_KEY" envDefault:"dev-access-token-key-change-me"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenKey    string        `env:"REFRESH_TOKEN_KEY" envDefault:"dev-refresh-token-key-change-me"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	// Per-client limit on register and login. RPS 0 disables it.
	CredentialRateLimitRPS   float64 `env:"CREDENTIAL_RATE_LIMIT_RPS" envDefault:"1"`
	CredentialRateLimitBurst int     `env:"CREDENTIAL_RATE_LIMIT_BURST" envDefault:"10"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads an optional .env file and then the environment. Variables
// already present in the environment take precedence over the file.
func Load() (*Config, error) {
	if err := pkgconfig.LoadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}

	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate checks the settings that cannot be expressed as struct tags.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.AccessTokenKey == "" || c.RefreshTokenKey == "" {
		return fmt.Errorf("ACCESS_TOKEN_KEY and REFRESH_TOKEN_KEY must not be empty")
	}
	if c.AccessTokenKey == c.RefreshTokenKey {
		return fmt.Errorf("ACCESS_TOKEN_KEY and REFRESH_TOKEN_KEY must differ")
	}

	// Outside development, require explicitly set, strong signing keys.
	if !c.IsDevelopment() {
		if c.AccessTokenKey == devAccessTokenKey {
			return fmt.Errorf("ACCESS_TOKEN_KEY must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if c.RefreshTokenKey == devRefreshTokenKey {
			return fmt.Errorf("REFRESH_TOKEN_KEY must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.AccessTokenKey) < minTokenKeyLength {
			return fmt.Errorf("ACCESS_TOKEN_KEY must be at least %d characters long, got %d", minTokenKeyLength, len(c.AccessTokenKey))
		}
		if len(c.RefreshTokenKey) < minTokenKeyLength {
			return fmt.Errorf("REFRESH_TOKEN_KEY must be at least %d characters long, got %d", minTokenKeyLength, len(c.RefreshTokenKey))
		}
	}

	if c.AccessTokenExpiry <= 0 || c.RefreshTokenExpiry <= 0 {
		return fmt.Errorf("token expiries must be positive")
	}
	if c.AccessTokenExpiry > c.RefreshTokenExpiry {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRY (%s) must not exceed REFRESH_TOKEN_EXPIRY (%s)", c.AccessTokenExpiry, c.RefreshTokenExpiry)
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}

	if c.CredentialRateLimitRPS < 0 {
		return fmt.Errorf("CREDENTIAL_RATE_LIMIT_RPS must not be negative")
	}
	if c.CredentialRateLimitRPS > 0 && c.CredentialRateLimitBurst < 1 {
		return fmt.Errorf("CREDENTIAL_RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled")
	}

	if c.MongoURI == "" {
		return fmt.Errorf("MONGODB_URI must not be empty")
	}

	return nil
}
