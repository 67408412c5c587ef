// Package authcore implements session and API token authentication for a
// web application: short-lived stateless access tokens, single-use rotating
// refresh credentials with replay detection, long-lived scoped API tokens,
// and per-token fixed-window rate limiting, all backed by Redis.
//
// The Engine is the single entry point. HTTP integration lives in the
// middleware subpackage.
package authcore
