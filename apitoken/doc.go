// Package apitoken implements long-lived bearer credentials for programmatic
// API access: minting, argon2id secret hashing, scope checks, and per-token
// fixed-window rate limiting. These tokens never rotate and carry no session
// state; revocation is record deletion.
package apitoken
