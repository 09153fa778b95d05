package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// DefaultProfile is the profile used when a caller does not name one.
const DefaultProfile = "default"

// Store persists settings per profile. Load returns (nil, nil) when the
// profile has never been saved.
type Store interface {
	Load(ctx context.Context, profile string) (*Settings, error)
	Save(ctx context.Context, profile string, s Settings) error
}

// CreateTableSQL is the schema PostgresStore reads and writes.
const CreateTableSQL = `
CREATE TABLE IF NOT EXISTS watchdog_settings (
	profile    TEXT PRIMARY KEY,
	settings   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps one JSONB row per profile.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the settings table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, CreateTableSQL); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, profile string) (*Settings, error) {
	var raw json.RawMessage
	err := s.db.QueryRowContext(ctx,
		`SELECT settings FROM watchdog_settings WHERE profile = $1`, profile,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	var out Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return &out, nil
}

func (s *PostgresStore) Save(ctx context.Context, profile string, settings Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO watchdog_settings (profile, settings, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (profile) DO UPDATE SET
			settings   = EXCLUDED.settings,
			updated_at = now()`,
		profile, raw,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// MemoryStore is the fallback when no database is configured. Settings do
// not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]Settings)}
}

func (m *MemoryStore) Load(_ context.Context, profile string) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.profiles[profile]
	if !ok {
		return nil, nil
	}
	out := s.Clone()
	return &out, nil
}

func (m *MemoryStore) Save(_ context.Context, profile string, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile] = s.Clone()
	return nil
}
