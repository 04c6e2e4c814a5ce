// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/vodplayer/internal/persistence/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	scope TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (scope, key)
);
`

// SqliteStore implements Store using SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (and migrates) a SQLite preference store.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create preference store dir: %w", err)
		}
	}
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlite.Migrate(ctx, db, schemaVersion, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("preference store: migration failed: %w", err)
	}
	if problems, err := sqlite.QuickCheck(ctx, db); err != nil || len(problems) > 0 {
		_ = db.Close()
		if err == nil {
			err = errors.New(strings.Join(problems, "; "))
		}
		return nil, fmt.Errorf("preference store: integrity check failed: %w", err)
	}
	return &SqliteStore{DB: db}, nil
}

func (s *SqliteStore) Get(ctx context.Context, scope, key string) (string, bool, error) {
	var value string
	err := s.DB.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE scope = ? AND key = ?`, scope, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SqliteStore) Set(ctx context.Context, scope, key, value string) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO preferences (scope, key, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(scope, key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`, scope, key, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *SqliteStore) Delete(ctx context.Context, scope, key string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM preferences WHERE scope = ? AND key = ?`, scope, key)
	return err
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}
