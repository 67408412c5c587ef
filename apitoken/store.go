package apitoken

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transient store failures; authorization fails
// closed on it.
var ErrRedisUnavailable = errors.New("api token redis unavailable")

// ErrTokenNotFound is returned when no record exists for the token ID.
var ErrTokenNotFound = errors.New("api token not found")

// ErrTokenCorrupt is returned when a stored blob cannot be parsed.
var ErrTokenCorrupt = errors.New("api token record corrupt")

const tokenFormatVersionV1 byte = 1

// Store persists API token records in Redis. Records live under
// <recordPrefix>:<tokenID>; a per-owner set under <ownerPrefix>:<owner>
// indexes the owner's token IDs for listing and bulk revocation.
type Store struct {
	redis        redis.UniversalClient
	hasher       *SecretHasher
	recordPrefix string
	ownerPrefix  string
}

// NewStore creates an API token Store. Empty prefixes fall back to the
// defaults ("aat", "aato").
func NewStore(redisClient redis.UniversalClient, hasher *SecretHasher, recordPrefix, ownerPrefix string) *Store {
	if recordPrefix == "" {
		recordPrefix = "aat"
	}
	if ownerPrefix == "" {
		ownerPrefix = "aato"
	}
	return &Store{
		redis:        redisClient,
		hasher:       hasher,
		recordPrefix: recordPrefix,
		ownerPrefix:  ownerPrefix,
	}
}

func (s *Store) recordKey(tokenID string) string {
	return s.recordPrefix + ":" + tokenID
}

func (s *Store) ownerKey(owner string) string {
	return s.ownerPrefix + ":" + owner
}

// Mint creates a token for owner with the given scopes and returns the bearer
// credential alongside the stored record. The credential is the only place
// the plaintext secret ever appears.
func (s *Store) Mint(ctx context.Context, owner string, scopes []string) (string, *Token, error) {
	if owner == "" {
		return "", nil, errors.New("api token owner required")
	}
	if len(scopes) == 0 {
		return "", nil, errors.New("api token needs at least one scope")
	}

	secret, err := newSecret()
	if err != nil {
		return "", nil, err
	}
	secretHash, err := s.hasher.Hash(secret)
	if err != nil {
		return "", nil, err
	}

	token := &Token{
		ID:         uuid.NewString(),
		Owner:      owner,
		SecretHash: secretHash,
		Scopes:     append([]string(nil), scopes...),
		CreatedAt:  time.Now().Unix(),
	}

	data, err := encodeToken(token)
	if err != nil {
		return "", nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(token.ID), data, 0)
		pipe.SAdd(ctx, s.ownerKey(owner), token.ID)
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return EncodeCredential(token.ID, secret), token, nil
}

// Get fetches the record for a token ID.
func (s *Store) Get(ctx context.Context, tokenID string) (*Token, error) {
	data, err := s.redis.Get(ctx, s.recordKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	token, err := decodeToken(data)
	if err != nil {
		return nil, err
	}
	token.ID = tokenID
	return token, nil
}

// Revoke deletes a token record and drops it from its owner's index.
// Revoking an unknown token succeeds; only store failures error.
func (s *Store) Revoke(ctx context.Context, tokenID string) error {
	token, err := s.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil
		}
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(tokenID))
		pipe.SRem(ctx, s.ownerKey(token.Owner), tokenID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ListByOwner returns the owner's tokens. IDs indexed but missing a record
// (revoked concurrently) are skipped.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]*Token, error) {
	ids, err := s.redis.SMembers(ctx, s.ownerKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	tokens := make([]*Token, 0, len(ids))
	for _, id := range ids {
		token, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrTokenNotFound) {
				continue
			}
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// encodeToken packs a record as:
//
//	version(1) | created_at(8, BE) | owner_len(1) | owner |
//	scope_count(1) | { scope_len(1) | scope }* | secret_hash
//
// The PHC hash string sits last and unframed; it absorbs the remainder.
func encodeToken(token *Token) ([]byte, error) {
	if len(token.Owner) == 0 || len(token.Owner) > 255 {
		return nil, errors.New("api token owner length must be 1-255 bytes")
	}
	if len(token.Scopes) == 0 || len(token.Scopes) > 255 {
		return nil, errors.New("api token scope count must be 1-255")
	}

	size := 1 + 8 + 1 + len(token.Owner) + 1 + len(token.SecretHash)
	for _, scope := range token.Scopes {
		if len(scope) == 0 || len(scope) > 255 {
			return nil, errors.New("api token scope length must be 1-255 bytes")
		}
		size += 1 + len(scope)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, tokenFormatVersionV1)
	buf = binary.BigEndian.AppendUint64(buf, uint64(token.CreatedAt))
	buf = append(buf, byte(len(token.Owner)))
	buf = append(buf, token.Owner...)
	buf = append(buf, byte(len(token.Scopes)))
	for _, scope := range token.Scopes {
		buf = append(buf, byte(len(scope)))
		buf = append(buf, scope...)
	}
	buf = append(buf, token.SecretHash...)
	return buf, nil
}

func decodeToken(data []byte) (*Token, error) {
	if len(data) < 12 {
		return nil, ErrTokenCorrupt
	}
	if data[0] != tokenFormatVersionV1 {
		return nil, ErrTokenCorrupt
	}

	createdAt := int64(binary.BigEndian.Uint64(data[1:9]))
	pos := 9

	ownerLen := int(data[pos])
	pos++
	if ownerLen == 0 || pos+ownerLen > len(data) {
		return nil, ErrTokenCorrupt
	}
	owner := string(data[pos : pos+ownerLen])
	pos += ownerLen

	if pos >= len(data) {
		return nil, ErrTokenCorrupt
	}
	scopeCount := int(data[pos])
	pos++
	if scopeCount == 0 {
		return nil, ErrTokenCorrupt
	}

	scopes := make([]string, 0, scopeCount)
	for i := 0; i < scopeCount; i++ {
		if pos >= len(data) {
			return nil, ErrTokenCorrupt
		}
		scopeLen := int(data[pos])
		pos++
		if scopeLen == 0 || pos+scopeLen > len(data) {
			return nil, ErrTokenCorrupt
		}
		scopes = append(scopes, string(data[pos:pos+scopeLen]))
		pos += scopeLen
	}

	if pos >= len(data) {
		return nil, ErrTokenCorrupt
	}

	return &Token{
		Owner:      owner,
		SecretHash: string(data[pos:]),
		Scopes:     scopes,
		CreatedAt:  createdAt,
	}, nil
}
