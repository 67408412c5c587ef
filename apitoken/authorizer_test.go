package apitoken

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/quillnotes/authcore/internal/rate"
)

func newTestAuthorizer(t *testing.T, cfg AuthorizerConfig) (*Authorizer, *Store, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	hasher, err := NewSecretHasher(testHashConfig())
	if err != nil {
		t.Fatalf("NewSecretHasher failed: %v", err)
	}
	store := NewStore(rdb, hasher, "", "")
	authorizer := NewAuthorizer(store, rate.New(rdb), cfg)

	return authorizer, store, mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestAuthorizeRoundTrip(t *testing.T) {
	authorizer, store, _, done := newTestAuthorizer(t, AuthorizerConfig{})
	defer done()

	ctx := context.Background()
	credential, token, err := store.Mint(ctx, "alice", []string{"notes:read", "notes:write"})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	identity, err := authorizer.Authorize(ctx, credential, "notes:read")
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if identity.Username != "alice" || identity.TokenID != token.ID {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestAuthorizeUnauthorizedVsForbidden(t *testing.T) {
	authorizer, store, _, done := newTestAuthorizer(t, AuthorizerConfig{})
	defer done()

	ctx := context.Background()
	credential, token, err := store.Mint(ctx, "alice", []string{"notes:read"})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	// Valid token, missing scope.
	if _, err := authorizer.Authorize(ctx, credential, "notes:write"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// Known ID, wrong secret.
	forged := EncodeCredential(token.ID, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if _, err := authorizer.Authorize(ctx, forged, "notes:read"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong secret, got %v", err)
	}

	// Unknown and malformed credentials look identical to wrong secrets.
	unknown := EncodeCredential("6ba7b810-9dad-11d1-80b4-00c04fd430c8", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if _, err := authorizer.Authorize(ctx, unknown, "notes:read"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown token, got %v", err)
	}
	if _, err := authorizer.Authorize(ctx, "garbage", "notes:read"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for malformed credential, got %v", err)
	}
}

func TestAuthorizeAfterRevoke(t *testing.T) {
	authorizer, store, _, done := newTestAuthorizer(t, AuthorizerConfig{})
	defer done()

	ctx := context.Background()
	credential, token, err := store.Mint(ctx, "alice", []string{"notes:read"})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	if err := store.Revoke(ctx, token.ID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if err := store.Revoke(ctx, token.ID); err != nil {
		t.Fatalf("second revoke should be idempotent: %v", err)
	}

	if _, err := authorizer.Authorize(ctx, credential, "notes:read"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after revoke, got %v", err)
	}

	tokens, err := store.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("expected no tokens after revoke, got %d", len(tokens))
	}
}

func TestCheckRateBlocksAtLimit(t *testing.T) {
	authorizer, _, _, done := newTestAuthorizer(t, AuthorizerConfig{
		RateLimit:  3,
		RateWindow: time.Minute,
	})
	defer done()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		result, failedOpen := authorizer.CheckRate(ctx, "tok-1")
		if failedOpen {
			t.Fatalf("check %d unexpectedly failed open", i+1)
		}
		if !result.Allowed {
			t.Fatalf("check %d should be allowed", i+1)
		}
	}

	result, failedOpen := authorizer.CheckRate(ctx, "tok-1")
	if failedOpen {
		t.Fatal("over-limit check unexpectedly failed open")
	}
	if result.Allowed {
		t.Fatal("expected over-limit check to be blocked")
	}
	if result.RetryAfter != time.Minute {
		t.Fatalf("expected RetryAfter of one minute, got %v", result.RetryAfter)
	}
}

func TestCheckRateFailsOpenOnOutage(t *testing.T) {
	authorizer, _, mr, done := newTestAuthorizer(t, AuthorizerConfig{
		RateLimit:  1,
		RateWindow: time.Minute,
	})
	defer done()

	mr.Close()

	// Every request during an outage is allowed, even past the limit; the
	// local limiter's verdict is advisory only.
	for i := 0; i < 3; i++ {
		result, failedOpen := authorizer.CheckRate(context.Background(), "tok-1")
		if !failedOpen {
			t.Fatalf("check %d: expected fail-open when the counter store is down", i+1)
		}
		if !result.Allowed {
			t.Fatalf("check %d: fail-open must never block", i+1)
		}
	}
}

func TestCredentialCodec(t *testing.T) {
	id := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	credential := EncodeCredential(id, "secret-part")

	gotID, gotSecret, err := ParseCredential(credential)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if gotID != id || gotSecret != "secret-part" {
		t.Fatalf("round trip mismatch: %q %q", gotID, gotSecret)
	}

	for _, bad := range []string{
		"",
		"nonsense",
		"qnat_not-a-uuid.secret",
		"qnat_" + id,
		"qnat_" + id + ".",
	} {
		if _, _, err := ParseCredential(bad); err == nil {
			t.Fatalf("expected parse failure for %q", bad)
		}
	}
}
