package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// testAPIKey is the raw API key used in tests.
const testAPIKey = "wdk_test_valid_key_1234567890abcdef"

// testHash returns a bcrypt hash of key using MinCost (fast for tests).
func testHash(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

// mockKeys implements KeyStore and counts lookups.
type mockKeys struct {
	mu        sync.Mutex
	hashes    []string
	err       error
	callCount atomic.Int32
}

func (m *mockKeys) HashesForPrefix(context.Context, string) ([]string, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.hashes, nil
}

func (m *mockKeys) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func newTestVerifier(keys KeyStore, clock clockwork.Clock) *Verifier {
	return NewVerifier(VerifierConfig{Keys: keys, CacheTTL: time.Minute, Clock: clock, Logger: zap.NewNop()})
}

func TestVerifier_ValidKey(t *testing.T) {
	keys := &mockKeys{hashes: []string{testHash(t, "wdk_some_other_key_000"), testHash(t, testAPIKey)}}
	v := newTestVerifier(keys, nil)

	p, err := v.Verify(context.Background(), "Bearer "+testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if p.KeyPrefix != testAPIKey[:8] {
		t.Errorf("expected prefix %q, got %q", testAPIKey[:8], p.KeyPrefix)
	}
}

func TestVerifier_WrongKey(t *testing.T) {
	keys := &mockKeys{hashes: []string{testHash(t, testAPIKey)}}
	v := newTestVerifier(keys, nil)

	_, err := v.Verify(context.Background(), "Bearer wdk_wrong_key_1234567890")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestVerifier_MissingHeader(t *testing.T) {
	keys := &mockKeys{}
	v := newTestVerifier(keys, nil)

	_, err := v.Verify(context.Background(), "")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got: %v", err)
	}
	if keys.callCount.Load() != 0 {
		t.Error("key store should not be consulted without a key")
	}
}

func TestVerifier_StoreError(t *testing.T) {
	keys := &mockKeys{err: errors.New("connection refused")}
	v := newTestVerifier(keys, nil)

	_, err := v.Verify(context.Background(), "Bearer "+testAPIKey)
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable, got: %v", err)
	}
}

func TestVerifier_CacheHitSkipsStore(t *testing.T) {
	keys := &mockKeys{hashes: []string{testHash(t, testAPIKey)}}
	v := newTestVerifier(keys, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := v.Verify(ctx, "Bearer "+testAPIKey); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := keys.callCount.Load(); got != 1 {
		t.Errorf("expected 1 store lookup, got %d", got)
	}
}

func TestVerifier_StaleHitRefreshesInBackground(t *testing.T) {
	fc := clockwork.NewFakeClock()
	keys := &mockKeys{hashes: []string{testHash(t, testAPIKey)}}
	v := newTestVerifier(keys, fc)
	ctx := context.Background()

	if _, err := v.Verify(ctx, "Bearer "+testAPIKey); err != nil {
		t.Fatalf("initial verify: %v", err)
	}
	fc.Advance(2 * time.Minute)

	if _, err := v.Verify(ctx, "Bearer "+testAPIKey); err != nil {
		t.Fatalf("stale verify should still succeed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for keys.callCount.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := keys.callCount.Load(); got != 2 {
		t.Fatalf("expected background refresh, store calls = %d", got)
	}
}

func TestVerifier_FailedRefreshEvicts(t *testing.T) {
	fc := clockwork.NewFakeClock()
	keys := &mockKeys{hashes: []string{testHash(t, testAPIKey)}}
	v := newTestVerifier(keys, fc)
	ctx := context.Background()

	if _, err := v.Verify(ctx, "Bearer "+testAPIKey); err != nil {
		t.Fatalf("initial verify: %v", err)
	}
	keys.setErr(errors.New("db down"))
	fc.Advance(2 * time.Minute)
	_, _ = v.Verify(ctx, "Bearer "+testAPIKey)

	deadline := time.Now().Add(2 * time.Second)
	for v.cache.Get(testAPIKey).Hit && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if v.cache.Get(testAPIKey).Hit {
		t.Fatal("failed refresh should evict the entry")
	}
	if _, err := v.Verify(ctx, "Bearer "+testAPIKey); !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable after eviction, got: %v", err)
	}
}

func TestStaticKeys(t *testing.T) {
	v := newTestVerifier(StaticKeys{testHash(t, testAPIKey)}, nil)
	if _, err := v.Verify(context.Background(), testAPIKey); err != nil {
		t.Errorf("expected static key to verify: %v", err)
	}
}

func TestMultiKeys(t *testing.T) {
	keys := MultiKeys{StaticKeys{}, &mockKeys{hashes: []string{testHash(t, testAPIKey)}}}
	v := newTestVerifier(keys, nil)
	if _, err := v.Verify(context.Background(), "Bearer "+testAPIKey); err != nil {
		t.Errorf("expected key from second store to verify: %v", err)
	}

	failing := MultiKeys{&mockKeys{err: errors.New("boom")}}
	if _, err := failing.HashesForPrefix(context.Background(), "wdk_test"); err == nil {
		t.Error("expected error to propagate")
	}
}
