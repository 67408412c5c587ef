package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transient store failures; callers fail closed.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrRefreshNotFound is returned when no record exists for the token ID.
var ErrRefreshNotFound = errors.New("refresh record not found")

// ErrRefreshRevoked is returned when a revocation record exists for the token ID.
var ErrRefreshRevoked = errors.New("refresh token revoked")

// ErrRefreshExpired is returned when the record outlived its embedded expiry.
var ErrRefreshExpired = errors.New("refresh record expired")

// ErrRefreshSecretMismatch is returned when the presented secret hash does not
// match the stored one.
var ErrRefreshSecretMismatch = errors.New("refresh secret mismatch")

// ErrRefreshRecordCorrupt is returned when the stored blob cannot be parsed.
var ErrRefreshRecordCorrupt = errors.New("refresh record corrupt")

const (
	consumeStatusNotFound    int64 = 0
	consumeStatusRevoked     int64 = 1
	consumeStatusExpired     int64 = 2
	consumeStatusMismatch    int64 = 3
	consumeStatusInvalidBlob int64 = 4
	consumeStatusConsumed    int64 = 5
)

// consumeRefreshScript is the single-winner consume step of the rotation
// protocol. It checks the revocation record, verifies the presented secret
// hash against the record at its fixed offset, then writes the revocation
// record and deletes the refresh record in the same atomic script. Under
// concurrent rotations of the same token, exactly one caller observes
// status 5; every other caller observes 1 (revoked) or 0 (record gone).
const consumeRefreshScript = `
local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local record_key = KEYS[1]
local revoke_key = KEYS[2]
local provided_hash = ARGV[1]
local now_unix = tonumber(ARGV[2])
local revoked_at = ARGV[3]

if redis.call("EXISTS", revoke_key) == 1 then
  return {1}
end

local data = redis.call("GET", record_key)
if not data then
  return {0}
end

if string.byte(data, 1) ~= 1 or #data < 50 then
  return {4}
end

local expires_at = read_be64(data, 34)
if not expires_at then
  return {4}
end
if expires_at <= now_unix then
  redis.call("DEL", record_key)
  return {2}
end

if string.sub(data, 2, 33) ~= provided_hash then
  return {3}
end

local ttl = redis.call("PTTL", record_key)
if ttl <= 0 then
  redis.call("DEL", record_key)
  return {2}
end

redis.call("SET", revoke_key, revoked_at, "PX", ttl)
redis.call("DEL", record_key)

return {5, data}
`

var consumeRefreshLua = redis.NewScript(consumeRefreshScript)

// Store persists refresh records and revocation records in Redis. It defines
// the key shape only; it never touches business data.
type Store struct {
	redis        redis.UniversalClient
	recordPrefix string
	revokePrefix string
}

// NewStore creates a refresh-token Store backed by the given Redis client.
// Empty prefixes fall back to the defaults ("art", "arv").
func NewStore(redisClient redis.UniversalClient, recordPrefix, revokePrefix string) *Store {
	if recordPrefix == "" {
		recordPrefix = "art"
	}
	if revokePrefix == "" {
		revokePrefix = "arv"
	}
	return &Store{
		redis:        redisClient,
		recordPrefix: recordPrefix,
		revokePrefix: revokePrefix,
	}
}

func (s *Store) recordKey(tokenID string) string {
	return s.recordPrefix + ":" + tokenID
}

func (s *Store) revokeKey(tokenID string) string {
	return s.revokePrefix + ":" + tokenID
}

// Save persists a refresh record under its token ID. The Redis TTL and the
// embedded expiry describe the same instant; the script re-checks the
// embedded value so a lagging TTL cannot extend a token's life.
func (s *Store) Save(ctx context.Context, record *Record, ttl time.Duration) error {
	data, err := Encode(record)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return errors.New("refresh record ttl must be positive")
	}

	if err := s.redis.Set(ctx, s.recordKey(record.TokenID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Consume atomically spends the refresh record identified by tokenID: it
// verifies the presented secret hash, writes the revocation record, and
// deletes the refresh record in one script. At most one concurrent Consume
// per token succeeds; the losers observe ErrRefreshRevoked or
// ErrRefreshNotFound. The returned Record identifies the owning user.
func (s *Store) Consume(ctx context.Context, tokenID string, providedHash [32]byte) (*Record, error) {
	now := time.Now().Unix()
	result, err := consumeRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(tokenID), s.revokeKey(tokenID)},
		providedHash[:],
		now,
		fmt.Sprintf("%d", now),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid consume script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid consume script status", ErrRedisUnavailable)
	}

	switch code {
	case consumeStatusNotFound:
		return nil, ErrRefreshNotFound
	case consumeStatusRevoked:
		return nil, ErrRefreshRevoked
	case consumeStatusExpired:
		return nil, ErrRefreshExpired
	case consumeStatusMismatch:
		return nil, ErrRefreshSecretMismatch
	case consumeStatusInvalidBlob:
		return nil, ErrRefreshRecordCorrupt
	case consumeStatusConsumed:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing consumed record payload", ErrRedisUnavailable)
		}

		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid consumed record payload", ErrRedisUnavailable)
		}

		record, decErr := Decode(blob)
		if decErr != nil {
			return nil, decErr
		}
		record.TokenID = tokenID
		return record, nil
	default:
		return nil, fmt.Errorf("%w: unknown consume script status", ErrRedisUnavailable)
	}
}

// Revoke marks a token ID as spent and removes its record. Revoking an
// already-revoked or unknown token succeeds; only store failures error.
// The revocation record keeps the record's remaining lifetime when one
// exists, and fallbackTTL otherwise, so replayed tokens stay detectable
// until they would have expired naturally anyway.
func (s *Store) Revoke(ctx context.Context, tokenID string, fallbackTTL time.Duration) error {
	ttl, err := s.redis.PTTL(ctx, s.recordKey(tokenID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl <= 0 {
		ttl = fallbackTTL
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, s.revokeKey(tokenID), time.Now().Unix(), ttl)
		pipe.Del(ctx, s.recordKey(tokenID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether a revocation record exists for the token ID.
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.revokeKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// GetReadOnly fetches a record without mutating any Redis state. Expired
// records read as absent.
func (s *Store) GetReadOnly(ctx context.Context, tokenID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRefreshNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	record, err := Decode(data)
	if err != nil {
		return nil, err
	}
	record.TokenID = tokenID
	if time.Now().Unix() >= record.ExpiresAt {
		return nil, ErrRefreshNotFound
	}
	return record, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
