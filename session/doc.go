// Package session persists refresh-token records and revocation records in
// Redis and implements the single-use consume step of the rotation protocol.
//
// A refresh credential has two halves: the opaque token a browser holds
// (token ID + secret) and the Record stored here (secret hash + owner +
// expiry). Consuming a record is a Lua compare-and-swap: the revocation
// record is written and the refresh record deleted in one atomic script, so
// two concurrent rotations of the same token can never both succeed. Once a
// revocation record exists, the token can never validate again before its
// natural expiry. This is the replay defense.
package session
