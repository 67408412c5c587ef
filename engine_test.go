package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SigningSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Security.AdminUsers = []string{"root"}
	// Minimum-cost hashing keeps the suite fast.
	cfg.APIToken.HashMemory = 8 * 1024
	cfg.APIToken.HashTime = 1
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	return engine, mr, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func TestLoginIssuesVerifiablePair(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	pair, err := engine.Login(context.Background(), "alice")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	identity, err := engine.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if identity.Username != "alice" {
		t.Fatalf("expected alice, got %q", identity.Username)
	}
	if identity.Admin {
		t.Fatal("alice must not be admin")
	}
	if pair.RefreshToken == "" || pair.RefreshTokenID == "" {
		t.Fatal("expected refresh credential in pair")
	}
}

func TestRotateInvalidatesOldToken(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	ctx := context.Background()
	pair, err := engine.Login(ctx, "alice")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	rotated, err := engine.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation must issue a new refresh credential")
	}
	if identity, err := engine.VerifyAccess(rotated.AccessToken); err != nil || identity.Username != "alice" {
		t.Fatalf("rotated access token invalid: %v", err)
	}

	// The spent credential is permanently dead. Reuse is a specific kind
	// of invalid refresh, so both checks hold.
	_, err = engine.Rotate(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("reuse must also match ErrRefreshInvalid, got %v", err)
	}

	// The replacement still works.
	if _, err := engine.Rotate(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("rotating the replacement failed: %v", err)
	}
}

func TestRotateRejectsGarbage(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	if _, err := engine.Rotate(context.Background(), "not-a-token"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
}

func TestRotateConcurrencySingleWinner(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	ctx := context.Background()
	pair, err := engine.Login(ctx, "alice")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.Rotate(ctx, pair.RefreshToken)
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
		if errors.Is(err, ErrRefreshReuse) || errors.Is(err, ErrRefreshInvalid) {
			fail++
			continue
		}
		t.Fatalf("unexpected rotate error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one rotate success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d rotate failures, got %d", n-1, fail)
	}
}

func TestLogoutRevokesAndIsIdempotent(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	ctx := context.Background()
	pair, err := engine.Login(ctx, "alice")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if err := engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second logout should succeed: %v", err)
	}

	if _, err := engine.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse after logout, got %v", err)
	}
}

func TestVerifyAccessRejectsTampering(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	pair, err := engine.Login(context.Background(), "alice")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	tampered := pair.AccessToken + "x"
	if _, err := engine.VerifyAccess(tampered); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected ErrAccessInvalid, got %v", err)
	}
	if _, err := engine.VerifyAccess(""); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected ErrAccessInvalid for empty token, got %v", err)
	}
}

func TestIsAdminAllowlist(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	pair, err := engine.Login(context.Background(), "root")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	identity, err := engine.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !identity.Admin {
		t.Fatal("expected root to be admin")
	}
	if engine.IsAdmin("alice") {
		t.Fatal("alice must not be admin")
	}
}

func TestAuthorizeAPITokenTaxonomy(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.PublicAPILimit = 3
	engine, _, done := newTestEngine(t, cfg)
	defer done()

	ctx := context.Background()
	credential, _, err := engine.MintAPIToken(ctx, "alice", []string{"notes:read"})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	if _, err := engine.AuthorizeAPIToken(ctx, credential, "notes:write"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := engine.AuthorizeAPIToken(ctx, "garbage", "notes:read"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	for i := 0; i < 3; i++ {
		identity, err := engine.AuthorizeAPIToken(ctx, credential, "notes:read")
		if err != nil {
			t.Fatalf("authorize %d failed: %v", i+1, err)
		}
		if identity.Username != "alice" {
			t.Fatalf("unexpected identity %+v", identity)
		}
	}
	if _, err := engine.AuthorizeAPIToken(ctx, credential, "notes:read"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestAuditEventsEmitted(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sink := NewChannelSink(16)
	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	ctx := WithClientIP(context.Background(), "192.0.2.10")
	if _, err := engine.Login(ctx, "alice"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.EventType != AuditLoginIssued {
			t.Fatalf("expected %s event, got %s", AuditLoginIssued, event.EventType)
		}
		if event.Username != "alice" || event.IP != "192.0.2.10" || !event.Success {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event received")
	}
}

func TestMetricsCount(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	ctx := context.Background()
	pair, err := engine.Login(ctx, "alice")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.Rotate(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if _, err := engine.Rotate(ctx, pair.RefreshToken); err == nil {
		t.Fatal("expected reuse failure")
	}

	metrics := engine.Metrics()
	if got := metrics.Value(MetricLoginIssued); got != 1 {
		t.Fatalf("expected 1 login, got %d", got)
	}
	if got := metrics.Value(MetricRotateSuccess); got != 1 {
		t.Fatalf("expected 1 rotate success, got %d", got)
	}
	if got := metrics.Value(MetricRefreshReuseDetected); got != 1 {
		t.Fatalf("expected 1 reuse detection, got %d", got)
	}
}

func TestEngineCloseRejectsOperations(t *testing.T) {
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	engine.Close()
	if _, err := engine.Login(context.Background(), "alice"); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
}
