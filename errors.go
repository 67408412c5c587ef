package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrRefreshInvalid covers malformed, unknown, expired, and
	// wrong-secret refresh credentials. Callers treat them all the same:
	// clear cookies and re-authenticate.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse signals a rotation attempt with an already-spent
	// refresh token, the replay signature of a stolen credential. It
	// wraps ErrRefreshInvalid, so callers that treat every bad refresh
	// the same need only the one check.
	ErrRefreshReuse = fmt.Errorf("%w: reuse detected", ErrRefreshInvalid)
	// ErrAccessInvalid is returned for access tokens that fail signature,
	// expiry, or claim checks.
	ErrAccessInvalid = errors.New("invalid access token")
	// ErrBackendUnavailable is returned when Redis cannot answer; every
	// state-changing path fails closed on it.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrUnauthorized is returned for API credentials that do not
	// identify a token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned for valid API tokens missing the required
	// scope.
	ErrForbidden = errors.New("forbidden")
	// ErrRateLimited is returned when a token's fixed-window budget is
	// exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrEngineClosed is returned from operations after Close.
	ErrEngineClosed = errors.New("engine closed")
)
