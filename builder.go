package authcore

import (
	"errors"
	"log/slog"

	"github.com/quillnotes/authcore/apitoken"
	"github.com/quillnotes/authcore/internal/rate"
	"github.com/quillnotes/authcore/jwt"
	"github.com/quillnotes/authcore/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it once during initialization; a
// Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration with a clone of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, API tokens, and rate
// counters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the sink that receives dispatched audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for operational warnings. Defaults to
// slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process metric set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the verify latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the stores, and returns a ready
// Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		SigningSecret: cloneBytes(cfg.JWT.SigningSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hashCfg := apitoken.DefaultHashConfig()
	if cfg.APIToken.HashMemory > 0 {
		hashCfg.Memory = cfg.APIToken.HashMemory
	}
	if cfg.APIToken.HashTime > 0 {
		hashCfg.Time = cfg.APIToken.HashTime
	}
	if cfg.APIToken.HashThreads > 0 {
		hashCfg.Parallelism = cfg.APIToken.HashThreads
	}
	hasher, err := apitoken.NewSecretHasher(hashCfg)
	if err != nil {
		return nil, err
	}

	apiTokens := apitoken.NewStore(b.redis, hasher, cfg.APIToken.RecordPrefix, cfg.APIToken.OwnerPrefix)
	limiter := rate.New(b.redis)

	engine := &Engine{
		config:     cfg,
		jwtManager: jwtManager,
		sessions:   session.NewStore(b.redis, cfg.Refresh.RecordPrefix, cfg.Refresh.RevokePrefix),
		apiTokens:  apiTokens,
		authorizer: apitoken.NewAuthorizer(apiTokens, limiter, apitoken.AuthorizerConfig{
			RateLimit:     cfg.RateLimit.PublicAPILimit,
			RateWindow:    cfg.RateLimit.PublicAPIWindow,
			RateKeyPrefix: cfg.RateLimit.KeyPrefix,
			Logger:        logger,
		}),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
	}

	engine.adminUsers = make(map[string]struct{}, len(cfg.Security.AdminUsers))
	for _, name := range cfg.Security.AdminUsers {
		engine.adminUsers[name] = struct{}{}
	}

	b.built = true

	return engine, nil
}
