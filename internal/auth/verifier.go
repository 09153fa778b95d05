package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// KeyStore returns the bcrypt hashes that may match a key with the given
// prefix.
type KeyStore interface {
	HashesForPrefix(ctx context.Context, prefix string) ([]string, error)
}

// StaticKeys is a fixed list of hashes from configuration. Every hash is a
// candidate for every prefix.
type StaticKeys []string

func (s StaticKeys) HashesForPrefix(context.Context, string) ([]string, error) {
	return s, nil
}

// KeysTableSQL creates the table PostgresKeys reads.
const KeysTableSQL = `
CREATE TABLE IF NOT EXISTS watchdog_api_keys (
	key_prefix TEXT NOT NULL,
	key_hash   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	revoked_at TIMESTAMPTZ
)`

// PostgresKeys looks up unrevoked key hashes by prefix.
type PostgresKeys struct {
	db *sql.DB
}

func NewPostgresKeys(db *sql.DB) *PostgresKeys {
	return &PostgresKeys{db: db}
}

func (p *PostgresKeys) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, KeysTableSQL); err != nil {
		return fmt.Errorf("PostgresKeys.Migrate: %w", err)
	}
	return nil
}

// Insert stores a generated key's hash.
func (p *PostgresKeys) Insert(ctx context.Context, prefix, hash string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO watchdog_api_keys (key_prefix, key_hash) VALUES ($1, $2)`,
		prefix, hash,
	)
	if err != nil {
		return fmt.Errorf("PostgresKeys.Insert: %w", err)
	}
	return nil
}

func (p *PostgresKeys) HashesForPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT key_hash FROM watchdog_api_keys WHERE key_prefix = $1 AND revoked_at IS NULL`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("PostgresKeys.HashesForPrefix: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("PostgresKeys.HashesForPrefix: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// MultiKeys consults each store in order and concatenates their hashes.
type MultiKeys []KeyStore

func (m MultiKeys) HashesForPrefix(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for _, s := range m {
		hashes, err := s.HashesForPrefix(ctx, prefix)
		if err != nil {
			return nil, err
		}
		out = append(out, hashes...)
	}
	return out, nil
}

// Verifier checks API keys against a KeyStore. Verified keys are cached so
// the hot path does no bcrypt work.
type Verifier struct {
	keys   KeyStore
	cache  *Cache
	logger *zap.Logger
}

type VerifierConfig struct {
	Keys     KeyStore
	CacheTTL time.Duration // Default: 30s
	Clock    clockwork.Clock
	Logger   *zap.Logger
}

func NewVerifier(cfg VerifierConfig) *Verifier {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Verifier{
		keys:   cfg.Keys,
		cache:  NewCache(ttl, cfg.Clock),
		logger: cfg.Logger,
	}
}

// Verify authenticates the Authorization header value.
//
// Flow:
//  1. Extract Bearer wdk_... from the header
//  2. Cache lookup: a fresh hit returns immediately, a stale hit returns and
//     refreshes in the background
//  3. Miss: look up hashes by prefix and compare with bcrypt
func (v *Verifier) Verify(ctx context.Context, header string) (*Principal, error) {
	apiKey, err := BearerToken(header)
	if err != nil {
		return nil, err
	}

	result := v.cache.Get(apiKey)
	if result.Hit {
		if result.NeedsRefresh {
			go v.backgroundRefresh(apiKey)
		}
		return result.Principal, nil
	}

	p, err := v.lookupAndVerify(ctx, apiKey)
	if err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return nil, ErrInvalidAPIKey
		}
		v.logger.Warn("auth key store unreachable", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	v.cache.Set(apiKey, p)
	return p, nil
}

// backgroundRefresh re-verifies a stale key. On failure the entry is dropped
// so the next request verifies synchronously.
func (v *Verifier) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := v.lookupAndVerify(ctx, apiKey)
	if err != nil {
		v.logger.Warn("background key refresh failed", zap.Error(err))
		v.cache.Delete(apiKey)
		return
	}
	v.cache.Set(apiKey, p)
}

func (v *Verifier) lookupAndVerify(ctx context.Context, apiKey string) (*Principal, error) {
	prefix := apiKey[:prefixLen]
	hashes, err := v.keys.HashesForPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}
	for _, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(apiKey)) == nil {
			return &Principal{KeyPrefix: prefix}, nil
		}
	}
	return nil, ErrInvalidAPIKey
}
