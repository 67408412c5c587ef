package authcore

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full engine configuration. Builders clone it on the way in
// and out, so a built Engine never observes later mutations.
type Config struct {
	JWT       JWTConfig
	Refresh   RefreshConfig
	RateLimit RateLimitConfig
	APIToken  APITokenConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

// JWTConfig controls access token signing and validation.
type JWTConfig struct {
	SigningSecret []byte
	AccessTTL     time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// RefreshConfig controls refresh token records. Prefixes namespace the Redis
// keys; empty values use the package defaults.
type RefreshConfig struct {
	TTL          time.Duration
	RecordPrefix string
	RevokePrefix string
}

// RateLimitConfig sizes the per-API-token fixed window.
type RateLimitConfig struct {
	PublicAPILimit  int
	PublicAPIWindow time.Duration
	KeyPrefix       string
}

// APITokenConfig controls API token storage and secret hashing.
type APITokenConfig struct {
	RecordPrefix string
	OwnerPrefix  string
	HashMemory   uint32
	HashTime     uint32
	HashThreads  uint8
}

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metric set.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds the admin allowlist and the production switch that
// middleware uses to pick cookie attributes.
type SecurityConfig struct {
	AdminUsers     []string
	ProductionMode bool
}

// DefaultConfig returns the default configuration. The signing secret is
// empty and must be supplied before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
		},
		Refresh: RefreshConfig{
			TTL: 30 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PublicAPILimit:  120,
			PublicAPIWindow: time.Minute,
			KeyPrefix:       "arl:publicapi",
		},
		APIToken: APITokenConfig{
			HashMemory:  19 * 1024,
			HashTime:    2,
			HashThreads: 1,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SigningSecret = cloneBytes(cfg.JWT.SigningSecret)
	out.Security.AdminUsers = append([]string(nil), cfg.Security.AdminUsers...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations that would issue weak or self-defeating
// tokens.
func (c Config) Validate() error {
	if len(c.JWT.SigningSecret) < 32 {
		return errors.New("JWT signing secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT access TTL must be positive")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("refresh TTL must be positive")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if c.RateLimit.PublicAPILimit <= 0 {
		return errors.New("public API rate limit must be positive")
	}
	if c.RateLimit.PublicAPIWindow <= 0 {
		return errors.New("public API rate window must be positive")
	}
	return nil
}

// ConfigFromEnv builds a Config from AUTHCORE_* environment variables on top
// of the defaults. Unset variables keep their defaults; the signing secret is
// required at Validate time, not here.
func ConfigFromEnv() Config {
	cfg := defaultConfig()

	if secret := os.Getenv("AUTHCORE_JWT_SECRET"); secret != "" {
		cfg.JWT.SigningSecret = []byte(secret)
	}
	cfg.JWT.Issuer = getenv("AUTHCORE_JWT_ISSUER", cfg.JWT.Issuer)
	cfg.JWT.Audience = getenv("AUTHCORE_JWT_AUDIENCE", cfg.JWT.Audience)
	cfg.JWT.AccessTTL = getenvDuration("AUTHCORE_ACCESS_TTL", cfg.JWT.AccessTTL)
	cfg.Refresh.TTL = getenvDuration("AUTHCORE_REFRESH_TTL", cfg.Refresh.TTL)
	cfg.RateLimit.PublicAPILimit = getenvInt("AUTHCORE_RATE_LIMIT", cfg.RateLimit.PublicAPILimit)
	cfg.RateLimit.PublicAPIWindow = getenvDuration("AUTHCORE_RATE_WINDOW", cfg.RateLimit.PublicAPIWindow)
	cfg.Security.ProductionMode = getenvBool("AUTHCORE_PRODUCTION", cfg.Security.ProductionMode)

	if admins := os.Getenv("AUTHCORE_ADMIN_USERS"); admins != "" {
		for _, name := range strings.Split(admins, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Security.AdminUsers = append(cfg.Security.AdminUsers, name)
			}
		}
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
