// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Authorization engines accepted by AUTHZ_ENGINE.
const (
	AuthzEngineStatic = "static"
	AuthzEngineRego   = "rego"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint. Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN holding users and roles.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or a path to it.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or a path to it.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "60m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime and the refresh cookie max-age (e.g. "24h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`

	Argon2MemoryKiB   uint32 `mapstructure:"ARGON2_MEMORY_KIB"`
	Argon2Iterations  uint32 `mapstructure:"ARGON2_ITERATIONS"`
	Argon2Parallelism uint8  `mapstructure:"ARGON2_PARALLELISM"`
	Argon2KeyLength   uint32 `mapstructure:"ARGON2_KEY_LENGTH"`

	// CookieSecure sets the Secure attribute on the refresh cookie. Must stay true in production.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`
	// RevocationSweepInterval is how often expired revocation entries are purged.
	RevocationSweepInterval string `mapstructure:"REVOCATION_SWEEP_INTERVAL"`

	// LoginMaxAttempts is the number of failed logins allowed per username before lockout. 0 disables throttling.
	LoginMaxAttempts int    `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginLockout     string `mapstructure:"LOGIN_LOCKOUT"`
	// RedisAddr enables the Redis-backed login limiter when set (e.g. localhost:6379).
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	// AuthzEngine selects the role decider: "static" (set intersection) or "rego".
	AuthzEngine string `mapstructure:"AUTHZ_ENGINE"`
	// AuthzPolicyFile optionally overrides the built-in Rego policy.
	AuthzPolicyFile string `mapstructure:"AUTHZ_POLICY_FILE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	ServiceName      string `mapstructure:"OTEL_SERVICE_NAME"`
	OTLPEndpoint     string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure     bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	KafkaBrokers     string `mapstructure:"KAFKA_BROKERS"`
	KafkaEventsTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Seed-only: initial administrator account created by cmd/seed.
	SeedAdminUsername string `mapstructure:"SEED_ADMIN_USERNAME"`
	SeedAdminPassword string `mapstructure:"SEED_ADMIN_PASSWORD"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GRPC_ADDR", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "digicheese-auth")
	v.SetDefault("JWT_AUDIENCE", "digicheese-api")
	v.SetDefault("JWT_ACCESS_TTL", "60m")
	v.SetDefault("JWT_REFRESH_TTL", "24h")
	v.SetDefault("ARGON2_MEMORY_KIB", 64*1024)
	v.SetDefault("ARGON2_ITERATIONS", 3)
	v.SetDefault("ARGON2_PARALLELISM", 2)
	v.SetDefault("ARGON2_KEY_LENGTH", 32)
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("REVOCATION_SWEEP_INTERVAL", "5m")
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("LOGIN_LOCKOUT", "15m")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("AUTHZ_ENGINE", AuthzEngineStatic)
	v.SetDefault("AUTHZ_POLICY_FILE", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_SERVICE_NAME", "digicheese-backend")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "digicheese-auth-events")
	v.SetDefault("SEED_ADMIN_USERNAME", "admin")
	v.SetDefault("SEED_ADMIN_PASSWORD", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if _, err := parsePositive(c.JWTAccessTTL); err != nil {
		return errors.New("config: JWT_ACCESS_TTL must be a positive duration")
	}
	if _, err := parsePositive(c.JWTRefreshTTL); err != nil {
		return errors.New("config: JWT_REFRESH_TTL must be a positive duration")
	}
	if c.AccessTTL() >= c.RefreshTTL() {
		return errors.New("config: JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL")
	}
	if c.Argon2Iterations < 1 {
		return errors.New("config: ARGON2_ITERATIONS must be at least 1")
	}
	if c.Argon2Parallelism < 1 {
		return errors.New("config: ARGON2_PARALLELISM must be at least 1")
	}
	if c.Argon2MemoryKiB < 8*uint32(c.Argon2Parallelism) {
		return errors.New("config: ARGON2_MEMORY_KIB must be at least 8*ARGON2_PARALLELISM")
	}
	if c.Argon2KeyLength < 16 {
		return errors.New("config: ARGON2_KEY_LENGTH must be at least 16")
	}
	if !c.CookieSecure && c.Env == "production" {
		return errors.New("config: COOKIE_SECURE must not be false when APP_ENV=production")
	}
	if c.LoginMaxAttempts < 0 {
		return errors.New("config: LOGIN_MAX_ATTEMPTS must not be negative")
	}
	switch c.AuthzEngine {
	case AuthzEngineStatic, AuthzEngineRego:
	default:
		return errors.New("config: AUTHZ_ENGINE must be static or rego")
	}
	return nil
}

func parsePositive(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("not positive")
	}
	return d, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 60m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := parsePositive(c.JWTAccessTTL)
	if err != nil {
		return 60 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := parsePositive(c.JWTRefreshTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// SweepInterval returns the revocation janitor period. Returns 5m if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	d, err := parsePositive(c.RevocationSweepInterval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// LockoutWindow returns how long a username stays locked after too many failed logins.
func (c *Config) LockoutWindow() time.Duration {
	d, err := parsePositive(c.LoginLockout)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the Kafka auth event producer.
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
