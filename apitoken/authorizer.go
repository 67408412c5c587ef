package apitoken

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quillnotes/authcore/internal/rate"
)

// ErrUnauthorized covers every way a credential can fail to identify a token:
// malformed, unknown ID, or wrong secret. Collapsing the three denies an
// attacker a token-existence oracle.
var ErrUnauthorized = errors.New("api token unauthorized")

// ErrForbidden is returned when a valid token lacks the required scope.
var ErrForbidden = errors.New("api token missing required scope")

// Identity is the caller established by a successful authorization.
type Identity struct {
	Username string
	TokenID  string
	Scopes   []string
}

// AuthorizerConfig sizes the per-token rate limit.
type AuthorizerConfig struct {
	RateLimit     int
	RateWindow    time.Duration
	RateKeyPrefix string
	Logger        *slog.Logger
}

// Authorizer validates bearer credentials and meters their use. Credential
// checks fail closed when Redis is down; rate checks fail open, because
// dropping all API traffic over a metering outage is worse than briefly
// under-counting. An in-process limiter keeps metering during the outage so
// would-be denials stay visible, but its verdict never blocks a request.
type Authorizer struct {
	store         *Store
	limiter       *rate.Limiter
	local         *rate.LocalLimiter
	rateLimit     int
	rateWindow    time.Duration
	rateKeyPrefix string
	logger        *slog.Logger
}

// NewAuthorizer creates an Authorizer over a token store and a shared rate
// limiter. Zero config fields fall back to 120 requests per 60s under
// "arl:publicapi".
func NewAuthorizer(store *Store, limiter *rate.Limiter, cfg AuthorizerConfig) *Authorizer {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 120
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.RateKeyPrefix == "" {
		cfg.RateKeyPrefix = "arl:publicapi"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Authorizer{
		store:         store,
		limiter:       limiter,
		local:         rate.NewLocalLimiter(cfg.RateLimit, cfg.RateWindow),
		rateLimit:     cfg.RateLimit,
		rateWindow:    cfg.RateWindow,
		rateKeyPrefix: cfg.RateKeyPrefix,
		logger:        cfg.Logger,
	}
}

// Authorize resolves a bearer credential to the identity behind it and checks
// the required scope. Identification failures return ErrUnauthorized, a valid
// token without the scope returns ErrForbidden, and store outages return an
// error wrapping ErrRedisUnavailable.
func (a *Authorizer) Authorize(ctx context.Context, credential, requiredScope string) (*Identity, error) {
	tokenID, secret, err := ParseCredential(credential)
	if err != nil {
		return nil, ErrUnauthorized
	}

	token, err := a.store.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenCorrupt) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	match, err := a.store.hasher.Verify(secret, token.SecretHash)
	if err != nil || !match {
		return nil, ErrUnauthorized
	}

	if requiredScope != "" && !token.HasScope(requiredScope) {
		return nil, ErrForbidden
	}

	return &Identity{
		Username: token.Owner,
		TokenID:  token.ID,
		Scopes:   append([]string(nil), token.Scopes...),
	}, nil
}

// CheckRate spends one unit of the token's fixed-window budget. When the
// counter store is unreachable the request is always allowed through and the
// outage logged; the local limiter keeps metering so the warning carries the
// verdict the counter would have given, but it is advisory only and never
// blocks. failedOpen reports that path so callers can count it.
func (a *Authorizer) CheckRate(ctx context.Context, tokenID string) (result rate.Result, failedOpen bool) {
	key := a.rateKeyPrefix + ":" + tokenID

	result, err := a.limiter.Check(ctx, key, a.rateLimit, a.rateWindow)
	if err == nil {
		return result, false
	}

	localAllowed := a.local.Allow(key)
	a.logger.WarnContext(ctx, "rate limit store unavailable, failing open",
		"token_id", tokenID,
		"local_verdict", localAllowed,
		"error", err,
	)

	return rate.Result{
		Allowed:    true,
		Remaining:  0,
		RetryAfter: a.rateWindow,
	}, true
}
