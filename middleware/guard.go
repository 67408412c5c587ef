package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/quillnotes/authcore"
	"github.com/quillnotes/authcore/apitoken"
)

type apiIdentityContextKey struct{}

// APIIdentityFromRequest returns the API token identity established by
// RequireScope for this request, if any.
func APIIdentityFromRequest(r *http.Request) (*apitoken.Identity, bool) {
	identity, ok := r.Context().Value(apiIdentityContextKey{}).(*apitoken.Identity)
	return identity, ok
}

// Guard protects public API routes with bearer API tokens.
type Guard struct {
	engine *authcore.Engine
}

// NewGuard creates a Guard over the engine.
func NewGuard(engine *authcore.Engine) *Guard {
	return &Guard{engine: engine}
}

// RequireScope wraps next with bearer authorization for one scope. Responses
// are 401 for credentials that identify nothing, 403 for valid tokens
// missing the scope, 429 with Retry-After for exhausted budgets, and 503
// when the token store cannot answer.
func (g *Guard) RequireScope(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := bearerCredential(r)
		if credential == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "bearer token required")
			return
		}

		identity, err := g.engine.AuthorizeAPIToken(r.Context(), credential, scope)
		if err != nil {
			switch {
			case errors.Is(err, authcore.ErrForbidden):
				writeError(w, http.StatusForbidden, "FORBIDDEN", "token missing required scope")
			case errors.Is(err, authcore.ErrRateLimited):
				retryAfter := int(g.engine.RateRetryAfter().Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			case errors.Is(err, authcore.ErrBackendUnavailable):
				writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "authorization backend unavailable")
			default:
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
			}
			return
		}

		ctx := context.WithValue(r.Context(), apiIdentityContextKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin wraps next so only allowlisted admins resolved by EdgeGuard
// pass.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		if !identity.Admin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerCredential(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}
