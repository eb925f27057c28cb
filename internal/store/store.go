// Package store is the per-entity relational store: the media index
// plus the message/reply/button/link/reaction tables.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/infra/logger"
)

// busyTimeoutMillis bounds how long sqlite's own lock-wait blocks before
// returning SQLITE_BUSY, covering the contention window multiple download
// workers create when they serialize through the post-download merge
// region (the in-process mergeMu still orders writes; this is the
// backstop for whatever lock-wait it doesn't fully absorb).
const busyTimeoutMillis = 5000

// Store wraps the sqlite connection for one entity's backup.db and adds
// the migration + backup_metadata helpers shared by every sub-store.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// New opens (or creates) the backup.db at dbPath, creates the application
// tables, and runs migrations to bring the schema version current.
func New(dbPath string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", dbPath, busyTimeoutMillis)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, log: log.Sub("store")}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return s, nil
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(schema)
	return err
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Exec executes a query without returning rows.
func (s *Store) Exec(query string, args ...interface{}) (sql.Result, error) {
	res, err := s.db.Exec(query, args...)
	return res, wrapSQLiteErr(err)
}

// Query executes a query that returns rows.
func (s *Store) Query(query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := s.db.Query(query, args...)
	return rows, wrapSQLiteErr(err)
}

// wrapSQLiteErr classifies a lock-contention error from the sqlite driver
// as domain.KindNetworkTransient (retryable) instead of
// leaving it as a bare error that domain.KindOf would report KindUnknown
// (non-retryable) for. _busy_timeout already absorbs most contention
// inside the driver; this covers whatever still surfaces past it.
func wrapSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return domain.NewError(domain.KindNetworkTransient, err)
	}
	return err
}

// QueryRow executes a query expected to return at most one row.
func (s *Store) QueryRow(query string, args ...interface{}) *sql.Row {
	return s.db.QueryRow(query, args...)
}

// Begin starts a transaction. Callers commit immediately after the
// filesystem mutation the transaction reflects, so index and disk never
// drift across a crash.
func (s *Store) Begin() (*sql.Tx, error) {
	return s.db.Begin()
}
