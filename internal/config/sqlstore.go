package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Migration is one schema step of the SQLite store.
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "config entries",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS config_entries (
					namespace  TEXT    NOT NULL,
					name       TEXT    NOT NULL,
					payload    TEXT    NOT NULL,
					updated_at INTEGER NOT NULL DEFAULT 0,
					PRIMARY KEY (namespace, name)
				)
			`)
			return err
		},
	},
}

// SQLStore keeps every entry as a JSON payload in one SQLite table.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLStore(path string) (*SQLStore, error) {
	dsn := ":memory:"
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dsn == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	s, err := NewSQLStore(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and applies pending migrations.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS botcore_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	row := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM botcore_migrations")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := m.Up(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO botcore_migrations (version, applied_at) VALUES (?, ?)",
			m.Version, time.Now().Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// Read decodes namespace/name into out.
func (s *SQLStore) Read(ctx context.Context, namespace, name string, out any) error {
	if err := validKey(namespace, name); err != nil {
		return err
	}

	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM config_entries WHERE namespace = ? AND name = ?",
		namespace, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, namespace, name)
	}
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", namespace, name, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", namespace, name, err)
	}
	return nil
}

// Write stores v as JSON under namespace/name.
func (s *SQLStore) Write(ctx context.Context, namespace, name string, v any) error {
	if err := validKey(namespace, name); err != nil {
		return err
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config_entries (namespace, name, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, name) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, namespace, name, string(payload), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", namespace, name, err)
	}
	return nil
}

// Namespaces returns every namespace with at least one entry.
func (s *SQLStore) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT namespace FROM config_entries ORDER BY namespace")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
