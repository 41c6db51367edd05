package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteBackend persists namespace documents in a single sqlite table.
type SQLiteBackend struct {
	db *sqlx.DB
}

// OpenSQLite opens (creating if needed) the backing database under dataDir.
func OpenSQLite(dataDir string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "archetype.db")
	conn, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	return NewSQLiteBackend(conn)
}

// NewSQLiteBackend wraps an existing connection, applying the pragmas and
// schema the backend relies on.
func NewSQLiteBackend(conn *sqlx.DB) (*SQLiteBackend, error) {
	if conn == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := conn.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	// Single writer: the data layer serves one respondent on one device.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := RunMigrations(conn.DB, os.Getenv("ARCHETYPE_MIGRATIONS_DIR")); err != nil {
		return nil, err
	}
	return &SQLiteBackend{db: conn}, nil
}

func (b *SQLiteBackend) Read(namespace string) ([]byte, error) {
	var doc string
	err := b.db.Get(&doc, `SELECT doc FROM namespaces WHERE name = ?`, namespace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read namespace %s: %w", namespace, err)
	}
	return []byte(doc), nil
}

func (b *SQLiteBackend) Write(namespace string, doc []byte) error {
	_, err := b.db.Exec(`
		INSERT INTO namespaces (name, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, namespace, string(doc), time.Now().UTC())
	if err != nil {
		if isFull(err) {
			return ErrCapacity
		}
		return fmt.Errorf("write namespace %s: %w", namespace, err)
	}
	return nil
}

func (b *SQLiteBackend) Namespaces() ([]string, error) {
	var names []string
	if err := b.db.Select(&names, `SELECT name FROM namespaces ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	return names, nil
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }

func isFull(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrFull || se.Code == sqlite3.ErrTooBig
	}
	return false
}
