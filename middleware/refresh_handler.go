package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/quillnotes/authcore"
)

const (
	statusTokensRefreshed = "tokensRefreshed"
	statusTokensUnchanged = "tokensUnchanged"
)

type refreshResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RefreshHandler serves GET /api/auth/refresh. With ?redirect=false it
// answers in JSON; otherwise it redirects to the given path on success and
// to the login page with the failed-refresh marker on failure.
type RefreshHandler struct {
	engine *authcore.Engine
	cfg    EdgeConfig
}

// NewRefreshHandler creates the refresh endpoint handler.
func NewRefreshHandler(engine *authcore.Engine, cfg EdgeConfig) *RefreshHandler {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.Cookies.AccessName == "" {
		cfg.Cookies = DefaultCookieConfig(engine.ProductionMode())
	}
	return &RefreshHandler{engine: engine, cfg: cfg}
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "refresh is GET only")
		return
	}

	redirect := r.URL.Query().Get(RedirectParam)
	jsonMode := redirect == "false"

	refreshToken := cookieValue(r, h.cfg.Cookies.RefreshName)
	if refreshToken == "" {
		// No refresh credential. A still-valid access token means there
		// is nothing to do; otherwise the session is gone.
		if _, err := h.engine.VerifyAccess(cookieValue(r, h.cfg.Cookies.AccessName)); err == nil {
			h.succeed(w, r, jsonMode, redirect, statusTokensUnchanged)
			return
		}
		h.fail(w, r, jsonMode)
		return
	}

	pair, err := h.engine.Rotate(r.Context(), refreshToken)
	if err != nil {
		ClearTokenCookies(w, h.cfg.Cookies)
		h.fail(w, r, jsonMode)
		return
	}

	SetTokenCookies(w, h.cfg.Cookies, pair)
	h.succeed(w, r, jsonMode, redirect, statusTokensRefreshed)
}

func (h *RefreshHandler) succeed(w http.ResponseWriter, r *http.Request, jsonMode bool, redirect, status string) {
	if jsonMode {
		writeJSON(w, http.StatusOK, refreshResponse{OK: true, Status: status})
		return
	}
	http.Redirect(w, r, sanitizeRedirect(redirect), http.StatusFound)
}

// sanitizeRedirect restricts the redirect target to a same-site path.
// Absolute URLs, protocol-relative //host forms, and backslash variants all
// fall back to the application root so the endpoint cannot be used as an
// open redirector.
func sanitizeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") {
		return "/"
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

func (h *RefreshHandler) fail(w http.ResponseWriter, r *http.Request, jsonMode bool) {
	if jsonMode {
		writeJSON(w, http.StatusUnauthorized, refreshResponse{OK: false, Error: "invalid refresh token"})
		return
	}
	target := h.cfg.LoginPath + "?" + FailedRefreshParam + "=" + url.QueryEscape(FailedRefreshValue)
	http.Redirect(w, r, target, http.StatusFound)
}
