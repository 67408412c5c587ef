package apitoken

import (
	"strings"
	"testing"
)

func testHashConfig() HashConfig {
	// Minimum-cost parameters keep the test suite fast.
	return HashConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	hasher, err := NewSecretHasher(testHashConfig())
	if err != nil {
		t.Fatalf("NewSecretHasher failed: %v", err)
	}

	encoded, err := hasher.Hash("the-secret")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected hash format: %q", encoded)
	}

	match, err := hasher.Verify("the-secret", encoded)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !match {
		t.Fatal("expected matching secret to verify")
	}

	match, err = hasher.Verify("wrong-secret", encoded)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if match {
		t.Fatal("expected wrong secret to fail verification")
	}
}

func TestHashesAreSalted(t *testing.T) {
	hasher, err := NewSecretHasher(testHashConfig())
	if err != nil {
		t.Fatalf("NewSecretHasher failed: %v", err)
	}

	first, err := hasher.Hash("the-secret")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	second, err := hasher.Hash("the-secret")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct salts to produce distinct hashes")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	hasher, err := NewSecretHasher(testHashConfig())
	if err != nil {
		t.Fatalf("NewSecretHasher failed: %v", err)
	}

	for _, bad := range []string{
		"",
		"not-a-phc-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	} {
		if _, err := hasher.Verify("secret", bad); err == nil {
			t.Fatalf("expected error for malformed hash %q", bad)
		}
	}
}

func TestNewSecretHasherRejectsWeakParams(t *testing.T) {
	cfg := testHashConfig()
	cfg.Memory = 1024
	if _, err := NewSecretHasher(cfg); err == nil {
		t.Fatal("expected rejection of low memory parameter")
	}

	cfg = testHashConfig()
	cfg.SaltLength = 8
	if _, err := NewSecretHasher(cfg); err == nil {
		t.Fatal("expected rejection of short salt")
	}
}
