package apitoken

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
)

// credentialPrefix marks bearer credentials minted by this package. The
// prefix makes leaked credentials greppable in logs and code scanners.
const credentialPrefix = "qnat_"

const secretSize = 32

// ErrMalformedCredential is returned when a bearer credential does not parse.
// Callers should surface it as a generic authorization failure.
var ErrMalformedCredential = errors.New("malformed api token credential")

// Token is a long-lived API credential record. The plaintext secret exists
// only in the Mint response; at rest the record carries its argon2id hash.
type Token struct {
	ID         string
	Owner      string
	SecretHash string
	Scopes     []string
	CreatedAt  int64
}

// HasScope reports whether the token grants the named scope.
func (t *Token) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func newSecret() (string, error) {
	raw := make([]byte, secretSize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// EncodeCredential builds the bearer credential handed to the caller exactly
// once, at mint time.
func EncodeCredential(tokenID, secret string) string {
	return credentialPrefix + tokenID + "." + secret
}

// ParseCredential splits a bearer credential into token ID and secret. The
// token ID must be a valid UUID; everything after the separator is the opaque
// secret.
func ParseCredential(credential string) (tokenID, secret string, err error) {
	rest, ok := strings.CutPrefix(credential, credentialPrefix)
	if !ok {
		return "", "", ErrMalformedCredential
	}

	tokenID, secret, ok = strings.Cut(rest, ".")
	if !ok || secret == "" {
		return "", "", ErrMalformedCredential
	}
	if _, err := uuid.Parse(tokenID); err != nil {
		return "", "", ErrMalformedCredential
	}
	return tokenID, secret, nil
}
