package authcore

import (
	"context"
	"time"
)

// Audit event types emitted by the Engine. Expected failures (bad refresh,
// replay, missing scope) are events here, not log errors.
const (
	AuditLoginIssued       = "login_issued"
	AuditRotateSuccess     = "refresh_rotated"
	AuditRotateFailure     = "refresh_rejected"
	AuditRefreshReuse      = "refresh_reuse_detected"
	AuditLogout            = "logout"
	AuditAccessRejected    = "access_rejected"
	AuditAPITokenMinted    = "api_token_minted"
	AuditAPITokenRevoked   = "api_token_revoked"
	AuditAPIUnauthorized   = "api_token_unauthorized"
	AuditAPIForbidden      = "api_token_forbidden"
	AuditAPIRateLimited    = "api_token_rate_limited"
	AuditRateLimitFailOpen = "rate_limit_fail_open"
)

func (e *Engine) emitAudit(ctx context.Context, eventType, username, tokenID string, success bool, failure error) {
	if e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Username:  username,
		TokenID:   tokenID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if failure != nil {
		event.Error = failure.Error()
	}

	e.audit.Emit(ctx, event)
}
