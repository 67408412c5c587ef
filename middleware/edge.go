package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/quillnotes/authcore"
)

// FailedRefreshParam is the query parameter marking a redirect that followed
// a failed refresh. A request already carrying it is never redirected again,
// which breaks the login -> refresh -> login loop.
const FailedRefreshParam = "error"

// FailedRefreshValue is the marker value set on failed-refresh redirects.
const FailedRefreshValue = "refreshFailed"

// RedirectParam carries the originally requested path through the login
// redirect.
const RedirectParam = "redirect"

// EdgeConfig controls the EdgeGuard.
type EdgeConfig struct {
	// LoginPath is never blocked or redirected. Defaults to "/login".
	LoginPath string
	// PublicPrefixes pass through unmodified regardless of auth state;
	// enforcement there belongs to the downstream handler.
	PublicPrefixes []string
	Cookies        CookieConfig
}

// EdgeGuard is the per-request authentication state machine applied in front
// of page routes: authenticated requests continue, unauthenticated GETs are
// silently refreshed when a refresh cookie is present, and everything else
// is redirected to login with the original path preserved.
type EdgeGuard struct {
	engine *authcore.Engine
	cfg    EdgeConfig
}

// NewEdgeGuard creates an EdgeGuard over the engine.
func NewEdgeGuard(engine *authcore.Engine, cfg EdgeConfig) *EdgeGuard {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.Cookies.AccessName == "" {
		cfg.Cookies = DefaultCookieConfig(engine.ProductionMode())
	}
	return &EdgeGuard{engine: engine, cfg: cfg}
}

// Middleware wraps next with the edge state machine.
func (g *EdgeGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The login page must stay reachable even mid-refresh.
		if r.URL.Path == g.cfg.LoginPath {
			next.ServeHTTP(w, r)
			return
		}

		if identity, err := g.engine.VerifyAccess(cookieValue(r, g.cfg.Cookies.AccessName)); err == nil {
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
			return
		}

		// Only GETs to protected routes refresh or redirect. Non-GET
		// requests and public routes pass through; their handlers
		// enforce auth themselves.
		if r.Method != http.MethodGet || g.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if refreshToken := cookieValue(r, g.cfg.Cookies.RefreshName); refreshToken != "" {
			pair, err := g.engine.Rotate(r.Context(), refreshToken)
			if err == nil {
				SetTokenCookies(w, g.cfg.Cookies, pair)
				g.engine.Metrics().Inc(authcore.MetricEdgeSilentRefresh)

				identity, verr := g.engine.VerifyAccess(pair.AccessToken)
				if verr == nil {
					r = r.WithContext(withIdentity(r.Context(), identity))
				}
				next.ServeHTTP(w, r)
				return
			}
			// A losing concurrent rotation lands here too; failing
			// closed to login is the designed degraded behavior.
		}

		if r.URL.Query().Get(FailedRefreshParam) != "" {
			next.ServeHTTP(w, r)
			return
		}

		g.engine.Metrics().Inc(authcore.MetricEdgeRedirect)
		target := g.cfg.LoginPath + "?" + RedirectParam + "=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusFound)
	})
}

func (g *EdgeGuard) isPublic(path string) bool {
	for _, prefix := range g.cfg.PublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// ResolveUser is the fast-path request authenticator: it reads the access
// cookie and verifies it, without attempting refresh.
func ResolveUser(engine *authcore.Engine, cfg CookieConfig, r *http.Request) (*authcore.Identity, error) {
	return engine.VerifyAccess(cookieValue(r, cfg.AccessName))
}
