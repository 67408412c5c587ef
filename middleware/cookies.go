package middleware

import (
	"net/http"
	"time"

	"github.com/quillnotes/authcore"
)

// CookieConfig names the token cookies and fixes their security attributes.
// Production names carry the __Host- prefix, which browsers only accept on
// secure, host-locked, path=/ cookies; local development uses plain names so
// the cookies work over http.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Secure      bool
}

// DefaultCookieConfig returns the cookie names for the given environment.
func DefaultCookieConfig(production bool) CookieConfig {
	if production {
		return CookieConfig{
			AccessName:  "__Host-qn_access",
			RefreshName: "__Host-qn_refresh",
			Secure:      true,
		}
	}
	return CookieConfig{
		AccessName:  "qn_access",
		RefreshName: "qn_refresh",
	}
}

func (c CookieConfig) newCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// SetTokenCookies attaches both token cookies for a freshly issued pair.
// Each cookie's lifetime matches its token's.
func SetTokenCookies(w http.ResponseWriter, cfg CookieConfig, pair *authcore.TokenPair) {
	http.SetCookie(w, cfg.newCookie(cfg.AccessName, pair.AccessToken, time.Until(pair.AccessExpiresAt)))
	http.SetCookie(w, cfg.newCookie(cfg.RefreshName, pair.RefreshToken, time.Until(pair.RefreshExpiresAt)))
}

// ClearTokenCookies expires both token cookies.
func ClearTokenCookies(w http.ResponseWriter, cfg CookieConfig) {
	for _, name := range []string{cfg.AccessName, cfg.RefreshName} {
		cookie := cfg.newCookie(name, "", 0)
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
