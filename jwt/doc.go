// Package jwt implements the stateless access-token codec.
//
// Access tokens are HS256-signed JWTs carrying subject (username), issued-at,
// expiry, and optional issuer/audience. They are short-lived (15 minutes by
// default) and never looked up: the rotating refresh credential in the session
// package carries all of the revocable state.
package jwt
