package session

// Record is the server-side half of a refresh credential. The client holds
// the opaque token (ID + secret); the record holds the SHA-256 of the secret
// and the owning username. Records are written at login and rotation and are
// destroyed the moment they are consumed, revoked, or expired.
type Record struct {
	TokenID    string
	Username   string
	SecretHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}
