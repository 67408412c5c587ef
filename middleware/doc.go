// Package middleware is the HTTP integration layer: cookie management, the
// edge authentication state machine with silent refresh, the refresh
// endpoint, and the bearer token guard for public API routes.
package middleware
