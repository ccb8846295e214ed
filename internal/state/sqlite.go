package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"loki-watch/internal/trigger"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists trigger dedup state in a local SQLite database, one
// row per observed entry identity.
type SQLiteStore struct {
	db *sql.DB
}

var _ trigger.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if needed creates) the state database. An empty
// path defaults to ~/.loki-watch/state.db.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir := filepath.Join(home, ".loki-watch")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dbPath = filepath.Join(dir, "state.db")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trigger_state (
			state_key TEXT NOT NULL,
			identity TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			first_seen INTEGER NOT NULL,
			PRIMARY KEY(state_key, identity)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_state_first_seen ON trigger_state(state_key, first_seen);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("migration query failed: %s, err: %w", q, err)
		}
	}
	return nil
}

// Load returns the persisted state for a key. Entries older than ttl are
// deleted before the state is handed back, so an expired identity is
// indistinguishable from one never seen.
func (s *SQLiteStore) Load(ctx context.Context, key string, ttl time.Duration) (*trigger.State, error) {
	if ttl > 0 {
		cutoff := time.Now().Add(-ttl).UnixNano()
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM trigger_state WHERE state_key = ? AND first_seen < ?`, key, cutoff); err != nil {
			return nil, fmt.Errorf("failed to prune state: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT identity, timestamp, first_seen FROM trigger_state WHERE state_key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query state: %w", err)
	}
	defer rows.Close()

	state := trigger.NewState()
	for rows.Next() {
		var entry trigger.StateEntry
		var firstSeen int64
		if err := rows.Scan(&entry.Identity, &entry.Timestamp, &firstSeen); err != nil {
			return nil, fmt.Errorf("failed to scan state row: %w", err)
		}
		entry.FirstSeen = time.Unix(0, firstSeen)
		state.Entries[entry.Identity] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read state rows: %w", err)
	}

	return state, nil
}

// Save replaces the whole persisted state for a key in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, key string, state *trigger.State, ttl time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trigger_state WHERE state_key = ?`, key); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trigger_state (state_key, identity, timestamp, first_seen) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range state.Entries {
		if _, err := stmt.ExecContext(ctx, key, entry.Identity, entry.Timestamp, entry.FirstSeen.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert state entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}
