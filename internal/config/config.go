// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// RedisAddr is the host:port of the shared store used by the rate limiter.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "tenant-identity").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "tenant-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "336h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// RefreshRotation enables refresh-token rotation with reuse detection. Off by default.
	RefreshRotation bool `mapstructure:"REFRESH_ROTATION"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// LoginTicketTTL is how long a ticket from RequestTicket stays redeemable (e.g. "5m").
	LoginTicketTTL string `mapstructure:"LOGIN_TICKET_TTL"`
	// PasswordResetTTL is how long a reset token stays usable (e.g. "1h").
	PasswordResetTTL string `mapstructure:"PASSWORD_RESET_TTL"`
	// PasswordResetURL is the link template placed in reset emails; the token is appended as ?token=.
	PasswordResetURL string `mapstructure:"PASSWORD_RESET_URL"`

	// RequestTimeout bounds every RPC, including storage calls made on its behalf.
	RequestTimeout string `mapstructure:"REQUEST_TIMEOUT"`
	// RateLimitTimeout bounds a single round trip to the shared store.
	RateLimitTimeout string `mapstructure:"RATE_LIMIT_TIMEOUT"`
	// RateLimitCapacity, RateLimitRefillTokens and RateLimitRefillPeriod are the default bucket settings.
	RateLimitCapacity     int64  `mapstructure:"RATE_LIMIT_CAPACITY"`
	RateLimitRefillTokens int64  `mapstructure:"RATE_LIMIT_REFILL_TOKENS"`
	RateLimitRefillPeriod string `mapstructure:"RATE_LIMIT_REFILL_PERIOD"`
	// RateLimitAllowlist is a comma-separated list of IPs or CIDRs that get the elevated budget.
	RateLimitAllowlist string `mapstructure:"RATE_LIMIT_ALLOWLIST"`
	// RateLimitTrustedProxies lists proxy IPs or CIDRs whose x-forwarded-for and x-real-ip are believed.
	// Empty means the transport peer is always the client.
	RateLimitTrustedProxies string `mapstructure:"RATE_LIMIT_TRUSTED_PROXIES"`
	// RateLimitAllowlistMultiplier scales capacity and refill for allowlisted callers.
	RateLimitAllowlistMultiplier int64 `mapstructure:"RATE_LIMIT_ALLOWLIST_MULTIPLIER"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	// When empty, audit events are not published and notifications are only logged.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuditKafkaTopic is the Kafka topic for audit events.
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	// NotifyKafkaTopic is the Kafka topic for outgoing email jobs.
	NotifyKafkaTopic string `mapstructure:"NOTIFY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// Worker-only: Loki URL for forwarding audit events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// SweepInterval is how often the worker removes expired tickets, tokens and reset requests.
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`

	// SMTP settings used by the worker to deliver email jobs. Empty host logs messages instead.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     string `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// TraceSampleRatio is the fraction of new traces recorded (0 < r <= 1).
	TraceSampleRatio float64 `mapstructure:"OTEL_TRACE_SAMPLE_RATIO"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "tenant-identity")
	v.SetDefault("JWT_AUDIENCE", "tenant-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "336h") // 14d
	v.SetDefault("REFRESH_ROTATION", false)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOGIN_TICKET_TTL", "5m")
	v.SetDefault("PASSWORD_RESET_TTL", "1h")
	v.SetDefault("PASSWORD_RESET_URL", "http://localhost:3000/reset-password")
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("RATE_LIMIT_TIMEOUT", "250ms")
	v.SetDefault("RATE_LIMIT_CAPACITY", 10)
	v.SetDefault("RATE_LIMIT_REFILL_TOKENS", 10)
	v.SetDefault("RATE_LIMIT_REFILL_PERIOD", "1m")
	v.SetDefault("RATE_LIMIT_ALLOWLIST", "")
	v.SetDefault("RATE_LIMIT_ALLOWLIST_MULTIPLIER", 10)
	v.SetDefault("RATE_LIMIT_TRUSTED_PROXIES", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "identity-audit")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "identity-notifications")
	v.SetDefault("KAFKA_GROUP_ID", "identity-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", "587")
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@localhost")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_TRACE_SAMPLE_RATIO", 1.0)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.RateLimitCapacity <= 0 || cfg.RateLimitRefillTokens <= 0 {
		return nil, errors.New("config: RATE_LIMIT_CAPACITY and RATE_LIMIT_REFILL_TOKENS must be positive")
	}
	if cfg.TraceSampleRatio < 0 || cfg.TraceSampleRatio > 1 {
		return nil, errors.New("config: OTEL_TRACE_SAMPLE_RATIO must be between 0 and 1")
	}
	if cfg.RateLimitAllowlistMultiplier < 1 {
		cfg.RateLimitAllowlistMultiplier = 1
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 336h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 336*time.Hour)
}

// TicketTTL parses LoginTicketTTL. Returns 5m if unset or invalid.
func (c *Config) TicketTTL() time.Duration {
	return parseDuration(c.LoginTicketTTL, 5*time.Minute)
}

// ResetTTL parses PasswordResetTTL. Returns 1h if unset or invalid.
func (c *Config) ResetTTL() time.Duration {
	return parseDuration(c.PasswordResetTTL, time.Hour)
}

// RequestTimeoutDuration parses RequestTimeout. Returns 10s if unset or invalid.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return parseDuration(c.RequestTimeout, 10*time.Second)
}

// RateLimitTimeoutDuration parses RateLimitTimeout. Returns 250ms if unset or invalid.
func (c *Config) RateLimitTimeoutDuration() time.Duration {
	return parseDuration(c.RateLimitTimeout, 250*time.Millisecond)
}

// RateLimitRefillPeriodDuration parses RateLimitRefillPeriod. Returns 1m if unset or invalid.
func (c *Config) RateLimitRefillPeriodDuration() time.Duration {
	return parseDuration(c.RateLimitRefillPeriod, time.Minute)
}

// SweepIntervalDuration parses SweepInterval. Returns 10m if unset or invalid.
func (c *Config) SweepIntervalDuration() time.Duration {
	return parseDuration(c.SweepInterval, 10*time.Minute)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka publishing is enabled (non-empty list) and to create writers and readers.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// RateLimitAllowlistEntries returns the allowlisted IPs and CIDRs.
func (c *Config) RateLimitAllowlistEntries() []string {
	if c == nil {
		return nil
	}
	return splitList(c.RateLimitAllowlist)
}

// TrustedProxyEntries returns the trusted proxy IPs and CIDRs.
func (c *Config) TrustedProxyEntries() []string {
	return splitList(c.RateLimitTrustedProxies)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
