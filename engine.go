package authcore

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quillnotes/authcore/apitoken"
	"github.com/quillnotes/authcore/internal"
	"github.com/quillnotes/authcore/jwt"
	"github.com/quillnotes/authcore/session"
)

// Engine is the session and API token core. All methods are safe for
// concurrent use. Construct it through a Builder; the zero value is not
// usable.
type Engine struct {
	config     Config
	jwtManager *jwt.Manager
	sessions   *session.Store
	apiTokens  *apitoken.Store
	authorizer *apitoken.Authorizer
	audit      *auditDispatcher
	metrics    *Metrics
	logger     *slog.Logger
	adminUsers map[string]struct{}
	closed     atomic.Bool
}

// Login issues a fresh token pair for an already-authenticated username.
// Credential verification happens upstream; this is the issuance step only.
func (e *Engine) Login(ctx context.Context, username string) (*TokenPair, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if username == "" {
		return nil, errors.New("username required")
	}

	pair, err := e.issuePair(ctx, username)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricLoginIssued)
	e.emitAudit(ctx, AuditLoginIssued, username, pair.RefreshTokenID, true, nil)

	return pair, nil
}

// Rotate spends a refresh credential and issues a replacement pair. The old
// credential is revoked before the new one exists; under concurrent rotation
// of the same credential exactly one caller receives a pair, and a spent
// credential surfaces as ErrRefreshReuse. Store outages fail closed.
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	tokenID, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRotateFailure)
		e.emitAudit(ctx, AuditRotateFailure, "", "", false, ErrRefreshInvalid)
		return nil, ErrRefreshInvalid
	}

	providedHash := internal.HashRefreshSecret(secret)
	record, err := e.sessions.Consume(ctx, tokenID, providedHash)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshRevoked):
			e.metrics.Inc(MetricRotateFailure)
			e.metrics.Inc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, AuditRefreshReuse, "", tokenID, false, ErrRefreshReuse)
			return nil, ErrRefreshReuse
		case errors.Is(err, session.ErrRedisUnavailable):
			e.metrics.Inc(MetricRotateFailure)
			e.logger.WarnContext(ctx, "refresh store unavailable during rotation", "error", err)
			return nil, ErrBackendUnavailable
		default:
			e.metrics.Inc(MetricRotateFailure)
			e.emitAudit(ctx, AuditRotateFailure, "", tokenID, false, ErrRefreshInvalid)
			return nil, ErrRefreshInvalid
		}
	}

	pair, err := e.issuePair(ctx, record.Username)
	if err != nil {
		// The old credential is already spent; the caller must log in
		// again rather than retry with it.
		e.metrics.Inc(MetricRotateFailure)
		return nil, err
	}

	e.metrics.Inc(MetricRotateSuccess)
	e.emitAudit(ctx, AuditRotateSuccess, record.Username, pair.RefreshTokenID, true, nil)

	return pair, nil
}

// Logout revokes a refresh credential. It is idempotent: logging out an
// already-spent or unknown credential succeeds. Only malformed credentials
// and store outages error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	tokenID, _, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return ErrRefreshInvalid
	}

	if err := e.sessions.Revoke(ctx, tokenID, e.config.Refresh.TTL); err != nil {
		return ErrBackendUnavailable
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, "", tokenID, true, nil)

	return nil
}

// VerifyAccess checks an access token and returns the identity it asserts.
// Verification is stateless: signature and claims only, no store round trip,
// so revoking a refresh credential does not invalidate access tokens already
// in flight.
func (e *Engine) VerifyAccess(accessToken string) (*Identity, error) {
	start := time.Now()

	claims, err := e.jwtManager.ParseAccess(accessToken)
	e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	if err != nil {
		e.metrics.Inc(MetricVerifyFailure)
		return nil, ErrAccessInvalid
	}

	e.metrics.Inc(MetricVerifySuccess)
	return &Identity{
		Username: claims.Subject,
		Admin:    e.IsAdmin(claims.Subject),
	}, nil
}

// IsAdmin reports whether the username is on the configured admin allowlist.
func (e *Engine) IsAdmin(username string) bool {
	_, ok := e.adminUsers[username]
	return ok
}

// MintAPIToken creates a long-lived API token for owner and returns the
// bearer credential exactly once.
func (e *Engine) MintAPIToken(ctx context.Context, owner string, scopes []string) (string, *apitoken.Token, error) {
	if e.closed.Load() {
		return "", nil, ErrEngineClosed
	}

	credential, token, err := e.apiTokens.Mint(ctx, owner, scopes)
	if err != nil {
		if errors.Is(err, apitoken.ErrRedisUnavailable) {
			return "", nil, ErrBackendUnavailable
		}
		return "", nil, err
	}

	e.emitAudit(ctx, AuditAPITokenMinted, owner, token.ID, true, nil)
	return credential, token, nil
}

// RevokeAPIToken deletes an API token. Idempotent.
func (e *Engine) RevokeAPIToken(ctx context.Context, tokenID string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	if err := e.apiTokens.Revoke(ctx, tokenID); err != nil {
		return ErrBackendUnavailable
	}

	e.emitAudit(ctx, AuditAPITokenRevoked, "", tokenID, true, nil)
	return nil
}

// ListAPITokens returns the owner's live API tokens.
func (e *Engine) ListAPITokens(ctx context.Context, owner string) ([]*apitoken.Token, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	tokens, err := e.apiTokens.ListByOwner(ctx, owner)
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	return tokens, nil
}

// AuthorizeAPIToken validates a bearer credential, checks the required
// scope, and spends one unit of the token's rate budget. Identification
// failures are ErrUnauthorized, scope failures ErrForbidden, exhausted
// budgets ErrRateLimited. Lookups fail closed on store outage; the rate
// check fails open, with the outage logged, counted, and audited.
func (e *Engine) AuthorizeAPIToken(ctx context.Context, credential, requiredScope string) (*apitoken.Identity, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	identity, err := e.authorizer.Authorize(ctx, credential, requiredScope)
	if err != nil {
		switch {
		case errors.Is(err, apitoken.ErrUnauthorized):
			e.metrics.Inc(MetricAPITokenUnauthorized)
			e.emitAudit(ctx, AuditAPIUnauthorized, "", "", false, ErrUnauthorized)
			return nil, ErrUnauthorized
		case errors.Is(err, apitoken.ErrForbidden):
			e.metrics.Inc(MetricAPITokenForbidden)
			e.emitAudit(ctx, AuditAPIForbidden, "", "", false, ErrForbidden)
			return nil, ErrForbidden
		default:
			e.logger.WarnContext(ctx, "api token store unavailable during authorization", "error", err)
			return nil, ErrBackendUnavailable
		}
	}

	result, failedOpen := e.authorizer.CheckRate(ctx, identity.TokenID)
	if failedOpen {
		e.metrics.Inc(MetricRateLimitFailOpen)
		e.emitAudit(ctx, AuditRateLimitFailOpen, identity.Username, identity.TokenID, true, nil)
	}
	if !result.Allowed {
		e.metrics.Inc(MetricRateLimitHit)
		e.emitAudit(ctx, AuditAPIRateLimited, identity.Username, identity.TokenID, false, ErrRateLimited)
		return nil, ErrRateLimited
	}

	e.metrics.Inc(MetricAPITokenAuthorized)
	return identity, nil
}

// AccessTTL reports the configured access token lifetime.
func (e *Engine) AccessTTL() time.Duration {
	return e.config.JWT.AccessTTL
}

// RefreshTTL reports the configured refresh credential lifetime.
func (e *Engine) RefreshTTL() time.Duration {
	return e.config.Refresh.TTL
}

// RateRetryAfter reports the fixed-window length, the Retry-After value for
// rate-limited responses.
func (e *Engine) RateRetryAfter() time.Duration {
	return e.config.RateLimit.PublicAPIWindow
}

// ProductionMode reports whether production cookie attributes should be used.
func (e *Engine) ProductionMode() bool {
	return e.config.Security.ProductionMode
}

// Metrics exposes the engine's counter set.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// MetricsSnapshot copies the current counters and histograms; exporters read
// through this.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Ping checks store availability.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	return e.sessions.Ping(ctx)
}

// Close drains the audit dispatcher and rejects further operations.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.audit.Close()
}

// issuePair mints a refresh record and its matching access token. The record
// is written before the credential is returned, so a returned pair is always
// redeemable.
func (e *Engine) issuePair(ctx context.Context, username string) (*TokenPair, error) {
	tokenID, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	refreshExpiry := now.Add(e.config.Refresh.TTL)

	record := &session.Record{
		TokenID:    tokenID.String(),
		Username:   username,
		SecretHash: internal.HashRefreshSecret(secret),
		CreatedAt:  now.Unix(),
		ExpiresAt:  refreshExpiry.Unix(),
	}
	if err := e.sessions.Save(ctx, record, e.config.Refresh.TTL); err != nil {
		return nil, ErrBackendUnavailable
	}

	refreshToken, err := internal.EncodeRefreshToken(record.TokenID, secret)
	if err != nil {
		return nil, err
	}
	accessToken, err := e.jwtManager.CreateAccess(username)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshToken:     refreshToken,
		RefreshTokenID:   record.TokenID,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}
