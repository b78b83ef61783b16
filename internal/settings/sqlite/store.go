// Package sqlite persists the settings object in a single-row SQLite
// table so panel preferences survive daemon restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aurascope/aurascope/internal/settings"
)

type Store struct {
	*settings.Notifier

	db *sql.DB
}

var _ settings.Store = (*Store)(nil)

// New opens (or creates) the settings database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{Notifier: settings.NewNotifier(), db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the stored settings, or the defaults when nothing has
// been written yet.
func (s *Store) Get(ctx context.Context) (settings.Settings, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM settings WHERE id = 1").Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Default(), nil
	}
	if err != nil {
		return settings.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	var out settings.Settings
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return settings.Settings{}, fmt.Errorf("failed to decode settings payload: %w", err)
	}
	return out, nil
}

// Put replaces the stored settings and notifies watchers.
func (s *Store) Put(ctx context.Context, next settings.Settings) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (id, payload, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	s.Publish(next)
	return nil
}

func (s *Store) Close() error {
	s.Notifier.Close()
	return s.db.Close()
}
