package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "", "")

	return store, mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func hashByte(b byte) [32]byte {
	var out [32]byte
	for i := 0; i < len(out); i++ {
		out[i] = b
	}
	return out
}

func testRecord(tokenID string, hash [32]byte) *Record {
	now := time.Now()
	return &Record{
		TokenID:    tokenID,
		Username:   "alice",
		SecretHash: hash,
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(time.Hour).Unix(),
	}
}

func TestConsumeSpendsRecordOnce(t *testing.T) {
	store, _, done := newTestStore(t)
	defer done()

	ctx := context.Background()
	hash := hashByte(0xAB)
	if err := store.Save(ctx, testRecord("tok-1", hash), time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	record, err := store.Consume(ctx, "tok-1", hash)
	if err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	if record.Username != "alice" {
		t.Fatalf("expected owner alice, got %q", record.Username)
	}

	if _, err := store.Consume(ctx, "tok-1", hash); !errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("expected ErrRefreshRevoked on replay, got %v", err)
	}
}

func TestConsumeRejectsWrongSecret(t *testing.T) {
	store, _, done := newTestStore(t)
	defer done()

	ctx := context.Background()
	if err := store.Save(ctx, testRecord("tok-1", hashByte(0xAB)), time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "tok-1", hashByte(0xCD)); !errors.Is(err, ErrRefreshSecretMismatch) {
		t.Fatalf("expected ErrRefreshSecretMismatch, got %v", err)
	}

	// A failed guess must not spend the record.
	if _, err := store.Consume(ctx, "tok-1", hashByte(0xAB)); err != nil {
		t.Fatalf("record should still be consumable: %v", err)
	}
}

func TestConsumeUnknownToken(t *testing.T) {
	store, _, done := newTestStore(t)
	defer done()

	if _, err := store.Consume(context.Background(), "missing", hashByte(1)); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("expected ErrRefreshNotFound, got %v", err)
	}
}

func TestConsumeRejectsEmbeddedExpiry(t *testing.T) {
	store, _, done := newTestStore(t)
	defer done()

	ctx := context.Background()
	record := testRecord("tok-1", hashByte(0xAB))
	record.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(ctx, record, time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "tok-1", hashByte(0xAB)); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("expected ErrRefreshExpired, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	store, _, done := newTestStore(t)
	defer done()

	ctx := context.Background()
	hash := hashByte(0xAB)
	if err := store.Save(ctx, testRecord("tok-1", hash), time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.Revoke(ctx, "tok-1", time.Hour); err != nil {
			t.Fatalf("revoke %d failed: %v", i, err)
		}
	}

	revoked, err := store.IsRevoked(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if !revoked {
		t.Fatal("expected token to be revoked")
	}

	if _, err := store.Consume(ctx, "tok-1", hash); !errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("expected ErrRefreshRevoked after revoke, got %v", err)
	}

	// Revoking a token that never existed also succeeds.
	if err := store.Revoke(ctx, "never-existed", time.Hour); err != nil {
		t.Fatalf("revoke of unknown token failed: %v", err)
	}
}

func TestConsumeConcurrencySingleWinner(t *testing.T) {
	store, _, done := newTestStore(t)
	defer done()

	ctx := context.Background()
	hash := hashByte(0xAB)
	if err := store.Save(ctx, testRecord("tok-1", hash), time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Consume(ctx, "tok-1", hash)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrRefreshRevoked) || errors.Is(err, ErrRefreshNotFound) {
			fail++
			continue
		}
		t.Fatalf("unexpected consume error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one consume success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d consume failures, got %d", n-1, fail)
	}
}

func TestGetReadOnlyDoesNotSpend(t *testing.T) {
	store, _, done := newTestStore(t)
	defer done()

	ctx := context.Background()
	hash := hashByte(0xAB)
	if err := store.Save(ctx, testRecord("tok-1", hash), time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		record, err := store.GetReadOnly(ctx, "tok-1")
		if err != nil {
			t.Fatalf("GetReadOnly %d failed: %v", i, err)
		}
		if record.Username != "alice" {
			t.Fatalf("expected owner alice, got %q", record.Username)
		}
	}

	if _, err := store.Consume(ctx, "tok-1", hash); err != nil {
		t.Fatalf("record should still be consumable after reads: %v", err)
	}
}
