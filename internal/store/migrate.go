package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// columnAllowList is the strict name/type allow-list migrations are
// validated against: no column is ever added from a user- or
// config-supplied name.
var columnAllowList = map[string][]column{
	"media_files": {
		{"access_hash", "INTEGER"},
		{"last_used_at", "INTEGER"},
	},
	"messages": {
		{"service_kind", "TEXT"},
	},
}

type column struct {
	name string
	typ  string
}

// migrate reads the recorded schema version from backup_metadata and
// brings the store up to currentSchemaVersion by adding any missing
// allow-listed columns, then advances the recorded version.
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version >= currentSchemaVersion {
		return nil
	}

	for table, cols := range columnAllowList {
		existing, err := s.existingColumns(table)
		if err != nil {
			return fmt.Errorf("inspect %s columns: %w", table, err)
		}
		for _, c := range cols {
			if existing[c.name] {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, c.name, c.typ)
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("add column %s.%s: %w", table, c.name, err)
			}
		}
	}

	return s.setSchemaVersion(currentSchemaVersion)
}

func (s *Store) existingColumns(table string) (map[string]bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, typ string
		var notNull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func (s *Store) getSchemaVersion() (int, error) {
	v, err := s.GetMetadata("schema_version")
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *Store) setSchemaVersion(v int) error {
	return s.SetMetadata("schema_version", strconv.Itoa(v))
}

// EnsureHashAlgorithm records algo in backup_metadata on first open and
// refuses to proceed when the store was built with a different one:
// mixing digest algorithms in one index would silently break (hash,size)
// uniqueness. Switching requires a full re-hash of the index.
func (s *Store) EnsureHashAlgorithm(algo string) error {
	recorded, err := s.GetMetadata("hash_algorithm")
	if err != nil {
		return err
	}
	if recorded == "" {
		return s.SetMetadata("hash_algorithm", algo)
	}
	if recorded != algo {
		return fmt.Errorf("store was indexed with hash algorithm %q, configured %q: re-hash the index before switching", recorded, algo)
	}
	return nil
}

// GetMetadata reads a key/value pair from backup_metadata.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM backup_metadata WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// SetMetadata upserts a key/value pair in backup_metadata.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO backup_metadata (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	return err
}
