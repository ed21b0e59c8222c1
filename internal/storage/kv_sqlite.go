package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS records (
	ns         TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (ns, key)
);`

// SQLiteKV stores records in a single SQLite database
type SQLiteKV struct {
	db *sql.DB
}

// OpenSQLiteKV opens or creates the database at path
func OpenSQLiteKV(path string) (*SQLiteKV, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", kvSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialise database: %w", err)
		}
	}
	return &SQLiteKV{db: db}, nil
}

func (s *SQLiteKV) Get(ns, key string) ([]byte, error) {
	if err := checkKey(ns, key); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM records WHERE ns = ? AND key = ?`, ns, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", ns, key, ErrNotFound)
	}
	return value, err
}

func (s *SQLiteKV) Put(ns, key string, value []byte) error {
	if err := checkKey(ns, key); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO records (ns, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (ns, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		ns, key, value, time.Now().UTC())
	return err
}

func (s *SQLiteKV) Delete(ns, key string) error {
	if err := checkKey(ns, key); err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM records WHERE ns = ? AND key = ?`, ns, key)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s/%s: %w", ns, key, ErrNotFound)
	}
	return nil
}

func (s *SQLiteKV) List(ns string) ([]Entry, error) {
	rows, err := s.db.Query(`SELECT key, value FROM records WHERE ns = ? ORDER BY key`, ns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteKV) Close() error { return s.db.Close() }
