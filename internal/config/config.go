// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds configuration shared by the three services. Each service's main reads
// only the fields relevant to it; unused fields are simply left at their defaults.
type Config struct {
	// HTTPAddr is the address this service's HTTP server listens on (e.g. :8081).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is this service's Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// CacheAddr is the Redis address (host:port) this service reads/writes.
	CacheAddr string `mapstructure:"CACHE_ADDR"`
	// CachePassword is the Redis AUTH password, empty if unauthenticated.
	CachePassword string `mapstructure:"CACHE_PASSWORD"`
	// CacheDB selects the Redis logical database.
	CacheDB int `mapstructure:"CACHE_DB"`

	// JWTSecret is the shared HS256 signing secret. Required on the Authenticator.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTTTL is the bearer credential lifetime (e.g. "60m").
	JWTTTL string `mapstructure:"JWT_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// RiskScorerURL is the Authenticator's base URL for the Risk Scorer's /predict.
	RiskScorerURL string `mapstructure:"RISK_SCORER_URL"`
	// MFAArbiterURL is the base URL for the MFA Arbiter, used by the Authenticator
	// (/check, /verify) and by the Risk Scorer (/otp-logs/{event_id}).
	MFAArbiterURL string `mapstructure:"MFA_ARBITER_URL"`
	// UpstreamTimeout bounds inter-service HTTP calls (e.g. "10s").
	UpstreamTimeout string `mapstructure:"UPSTREAM_TIMEOUT"`

	// RiskThreshold is the MFA Arbiter's score-at-or-above-which a challenge is issued.
	RiskThreshold int `mapstructure:"RISK_THRESHOLD"`
	// TrustedDeviceTTLDays is the device-trust lifetime once an OTP is verified.
	TrustedDeviceTTLDays int `mapstructure:"TRUSTED_DEVICE_TTL_DAYS"`

	// SESRegion is the AWS region for the SES client used to dispatch OTP email.
	SESRegion string `mapstructure:"SES_REGION"`
	// SESSenderAddress is the From address on outbound OTP email.
	SESSenderAddress string `mapstructure:"SES_SENDER_ADDRESS"`

	// AllowedOrigins is a comma-separated CORS allow-list; empty means closed (internal services).
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	// KafkaBrokers is a comma-separated list of broker addresses (e.g. "localhost:9092").
	// Empty disables event publication; Publish/PublishAsync become no-ops.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`

	// GeolocationProviderURL is an optional external IP geolocation API; empty disables
	// lookups and every login resolves to an unknown location.
	GeolocationProviderURL string `mapstructure:"GEOLOCATION_PROVIDER_URL"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment
// via Viper. Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("CACHE_ADDR", "localhost:6379")
	v.SetDefault("CACHE_PASSWORD", "")
	v.SetDefault("CACHE_DB", 0)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", "60m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RISK_SCORER_URL", "")
	v.SetDefault("MFA_ARBITER_URL", "")
	v.SetDefault("UPSTREAM_TIMEOUT", "10s")
	v.SetDefault("RISK_THRESHOLD", 50)
	v.SetDefault("TRUSTED_DEVICE_TTL_DAYS", 30)
	v.SetDefault("SES_REGION", "us-east-1")
	v.SetDefault("SES_SENDER_ADDRESS", "")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("GEOLOCATION_PROVIDER_URL", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.RiskThreshold < 0 || cfg.RiskThreshold > 100 {
		return nil, errors.New("config: RISK_THRESHOLD must be between 0 and 100")
	}

	return &cfg, nil
}

// JWTTokenTTL parses JWTTTL as a time.Duration. Returns 60m if unset or invalid.
func (c *Config) JWTTokenTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTTTL)
	if err != nil || d <= 0 {
		return 60 * time.Minute
	}
	return d
}

// UpstreamTimeoutDuration parses UpstreamTimeout as a time.Duration. Returns 10s if
// unset or invalid, matching the inter-service call timeout.
func (c *Config) UpstreamTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.UpstreamTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event publication is enabled (non-empty list) and to create the
// producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AllowedOriginsList returns the CORS allow-list from the comma-separated config.
func (c *Config) AllowedOriginsList() []string {
	if c == nil || c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TrustedDeviceTTL returns the configured device-trust lifetime as a time.Duration.
func (c *Config) TrustedDeviceTTL() time.Duration {
	days := c.TrustedDeviceTTLDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}
