package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/metadata"
)

// MediaStore is the media index: every known blob keyed by its
// (hash, size) content identity.
type MediaStore struct {
	store *Store
}

// NewMediaStore creates a new MediaStore.
func NewMediaStore(s *Store) *MediaStore {
	return &MediaStore{store: s}
}

// UpsertByIdentity inserts a new Media row, or on (hash,size) conflict
// returns the existing row's id after merging fields with "prefer
// existing, fill nulls with new".
func (m *MediaStore) UpsertByIdentity(media *domain.Media) (int64, error) {
	now := time.Now().Unix()

	res, err := m.store.Exec(`
		INSERT INTO media_files (
			file_path, hash, size, file_id, access_hash, discriminator,
			mime_type, name, extension, duration_seconds, width, height,
			indexed_at, last_used_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash, size) DO NOTHING
	`,
		nullString(media.FilePath), media.Hash, media.Size, nullString(media.FileID),
		nullInt64(media.AccessHash), nullString(media.Discriminator), nullString(media.MimeType),
		nullString(media.Name), nullString(media.Extension), nullInt(media.DurationSeconds),
		nullInt(media.Width), nullInt(media.Height), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert media: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		return id, nil
	}

	// Conflict: fetch existing and merge nulls with the incoming fields.
	existing, err := m.findByIdentity(media.Hash, media.Size)
	if err != nil {
		return 0, err
	}

	_, err = m.store.Exec(`
		UPDATE media_files SET
			file_id = COALESCE(file_id, ?),
			access_hash = COALESCE(access_hash, ?),
			discriminator = COALESCE(discriminator, ?),
			mime_type = COALESCE(mime_type, ?),
			name = COALESCE(name, ?),
			extension = COALESCE(extension, ?),
			duration_seconds = COALESCE(duration_seconds, ?),
			width = COALESCE(width, ?),
			height = COALESCE(height, ?),
			last_used_at = ?
		WHERE id = ?
	`,
		nullString(media.FileID), nullInt64(media.AccessHash), nullString(media.Discriminator),
		nullString(media.MimeType), nullString(media.Name), nullString(media.Extension),
		nullInt(media.DurationSeconds), nullInt(media.Width), nullInt(media.Height),
		now, existing.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("merge media: %w", err)
	}

	return existing.ID, nil
}

func (m *MediaStore) findByIdentity(hash string, size int64) (*domain.Media, error) {
	row := m.store.QueryRow(`SELECT id FROM media_files WHERE hash = ? AND size = ?`, hash, size)
	var id int64
	if err := row.Scan(&id); err != nil {
		return nil, fmt.Errorf("find media by identity: %w", err)
	}
	return &domain.Media{ID: id}, nil
}

// MetadataQuery describes the parameters FindByMetadata cascades over.
type MetadataQuery struct {
	Size     int64
	Duration *int
	Width    *int
	Height   *int
	Name     string
	FileID   string
}

// FindByMetadata runs the cascading metadata search: exact size +
// (duration matches or is null) + (resolution matches or both null); if
// multiple rows survive, filter by file_id substring in the stored name,
// else by normalized-name containment either direction; return the
// first survivor.
func (m *MediaStore) FindByMetadata(q MetadataQuery) (*domain.Media, error) {
	if q.Size == 0 {
		return nil, nil
	}

	query := `SELECT id, file_path, name, hash, size, file_id, access_hash, discriminator, mime_type, extension, duration_seconds, width, height FROM media_files WHERE size = ?`
	args := []interface{}{q.Size}

	if q.Duration != nil {
		query += ` AND (duration_seconds = ? OR duration_seconds IS NULL)`
		args = append(args, *q.Duration)
	}
	if q.Width != nil && q.Height != nil {
		query += ` AND ((width = ? AND height = ?) OR (width IS NULL AND height IS NULL))`
		args = append(args, *q.Width, *q.Height)
	}

	rows, err := m.store.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("find by metadata: %w", err)
	}
	defer rows.Close()

	var candidates []*domain.Media
	for rows.Next() {
		med, err := scanMedia(rowsScanner{rows})
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, med)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	if q.FileID != "" {
		for _, c := range candidates {
			if c.Name != "" && strings.Contains(c.Name, q.FileID) {
				return c, nil
			}
		}
	}
	if q.Name != "" {
		normSearch := metadata.NormalizeFilenameForSearch(q.Name)
		for _, c := range candidates {
			if c.Name == "" || normSearch == "" {
				continue
			}
			normDB := metadata.NormalizeFilenameForSearch(c.Name)
			if normDB == "" {
				continue
			}
			if strings.Contains(normSearch, normDB) || strings.Contains(normDB, normSearch) {
				return c, nil
			}
		}
	}

	return candidates[0], nil
}

// FindByFileID looks up a Media row by its remote file_id.
func (m *MediaStore) FindByFileID(fileID string) (*domain.Media, error) {
	row := m.store.QueryRow(`
		SELECT id, file_path, name, hash, size, file_id, access_hash, discriminator, mime_type, extension, duration_seconds, width, height
		FROM media_files WHERE file_id = ? LIMIT 1
	`, fileID)
	return scanMediaRow(row)
}

// FindByPath looks up a Media row by its stored file path.
func (m *MediaStore) FindByPath(path string) (*domain.Media, error) {
	row := m.store.QueryRow(`
		SELECT id, file_path, name, hash, size, file_id, access_hash, discriminator, mime_type, extension, duration_seconds, width, height
		FROM media_files WHERE file_path = ?
	`, path)
	return scanMediaRow(row)
}

// Get fetches a Media row by id.
func (m *MediaStore) Get(id int64) (*domain.Media, error) {
	row := m.store.QueryRow(`
		SELECT id, file_path, name, hash, size, file_id, access_hash, discriminator, mime_type, extension, duration_seconds, width, height
		FROM media_files WHERE id = ?
	`, id)
	return scanMediaRow(row)
}

// SetPath updates a Media row's file_path. Callers invoke this right
// after the rename it reflects so index and disk stay in step.
func (m *MediaStore) SetPath(id int64, newPath string) error {
	_, err := m.store.Exec(`UPDATE media_files SET file_path = ? WHERE id = ?`, newPath, id)
	return err
}

// FillRemoteFields backfills file_id/access_hash on a metadata-match
// hit, leaving already-known values untouched.
func (m *MediaStore) FillRemoteFields(id int64, fileID string, accessHash int64) error {
	_, err := m.store.Exec(`
		UPDATE media_files SET
			file_id = COALESCE(file_id, ?),
			access_hash = COALESCE(access_hash, ?)
		WHERE id = ?
	`, nullString(fileID), nullInt64(accessHash), id)
	return err
}

// TouchLastUsed bumps last_used_at to now.
func (m *MediaStore) TouchLastUsed(id int64) error {
	_, err := m.store.Exec(`UPDATE media_files SET last_used_at = ? WHERE id = ?`, time.Now().Unix(), id)
	return err
}

// MigrateMessageRefs rewrites every Message whose media_ref = oldID to
// newID, used by duplicate collapse in the reconciler.
func (m *MediaStore) MigrateMessageRefs(oldID, newID int64) error {
	_, err := m.store.Exec(`UPDATE messages SET media_ref = ? WHERE media_ref = ?`, newID, oldID)
	return err
}

// Delete removes a Media row.
func (m *MediaStore) Delete(id int64) error {
	_, err := m.store.Exec(`DELETE FROM media_files WHERE id = ?`, id)
	return err
}

// AllPaths returns every stored file_path, for the Reconciler's orphan
// sweep and pre-run index refresh.
func (m *MediaStore) AllPaths() (map[string]int64, error) {
	rows, err := m.store.Query(`SELECT id, file_path FROM media_files WHERE file_path IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, err
		}
		out[path] = id
	}
	return out, rows.Err()
}

// Count returns the number of Media rows, for should-reindex comparison.
func (m *MediaStore) Count() (int, error) {
	var n int
	err := m.store.QueryRow(`SELECT COUNT(*) FROM media_files`).Scan(&n)
	return n, err
}

// Unreferenced returns Media rows with no Message pointing at them
// (the reconciler's unused sweep).
func (m *MediaStore) Unreferenced() ([]*domain.Media, error) {
	rows, err := m.store.Query(`
		SELECT mf.id, mf.file_path, mf.name, mf.hash, mf.size, mf.file_id, mf.access_hash,
		       mf.discriminator, mf.mime_type, mf.extension, mf.duration_seconds, mf.width, mf.height
		FROM media_files mf
		LEFT JOIN messages m ON m.media_ref = mf.id
		WHERE m.id IS NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Media
	for rows.Next() {
		med, err := scanMedia(rowsScanner{rows})
		if err != nil {
			return nil, err
		}
		out = append(out, med)
	}
	return out, rows.Err()
}

// DuplicateGroups returns groups of Media rows sharing (hash,size),
// ordered oldest-first within each group, for duplicate collapse.
func (m *MediaStore) DuplicateGroups() ([][]*domain.Media, error) {
	rows, err := m.store.Query(`
		SELECT hash, size FROM media_files
		GROUP BY hash, size HAVING COUNT(*) > 1
	`)
	if err != nil {
		return nil, err
	}
	var keys [][2]interface{}
	for rows.Next() {
		var hash string
		var size int64
		if err := rows.Scan(&hash, &size); err != nil {
			rows.Close()
			return nil, err
		}
		keys = append(keys, [2]interface{}{hash, size})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var groups [][]*domain.Media
	for _, k := range keys {
		grows, err := m.store.Query(`
			SELECT id, file_path, name, hash, size, file_id, access_hash, discriminator, mime_type,
			       extension, duration_seconds, width, height
			FROM media_files WHERE hash = ? AND size = ? ORDER BY indexed_at ASC
		`, k[0], k[1])
		if err != nil {
			return nil, err
		}
		var group []*domain.Media
		for grows.Next() {
			med, err := scanMedia(rowsScanner{grows})
			if err != nil {
				grows.Close()
				return nil, err
			}
			group = append(group, med)
		}
		grows.Close()
		groups = append(groups, group)
	}
	return groups, nil
}

// NullMediaRefsFor clears Message.media_ref for messages pointing at id
// (used when a Media row's file has vanished out-of-band).
func (m *MediaStore) NullMediaRefsFor(id int64) error {
	_, err := m.store.Exec(`UPDATE messages SET media_ref = NULL WHERE media_ref = ?`, id)
	return err
}

type rowsScanner struct{ rows *sql.Rows }

func (r rowsScanner) Scan(dest ...interface{}) error { return r.rows.Scan(dest...) }

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMediaRow(row *sql.Row) (*domain.Media, error) {
	med, err := scanMedia(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return med, nil
}

func scanMedia(s scanner) (*domain.Media, error) {
	var med domain.Media
	var filePath, name, fileID, discriminator, mimeType, extension sql.NullString
	var accessHash, duration, width, height sql.NullInt64

	err := s.Scan(
		&med.ID, &filePath, &name, &med.Hash, &med.Size, &fileID, &accessHash,
		&discriminator, &mimeType, &extension, &duration, &width, &height,
	)
	if err != nil {
		return nil, err
	}

	med.FilePath = filePath.String
	med.Name = name.String
	med.FileID = fileID.String
	med.AccessHash = accessHash.Int64
	med.Discriminator = discriminator.String
	med.MimeType = mimeType.String
	med.Extension = extension.String
	med.DurationSeconds = int(duration.Int64)
	med.Width = int(width.Int64)
	med.Height = int(height.Int64)

	return &med, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(i int) sql.NullInt64 {
	if i == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(i), Valid: true}
}

func nullInt64(i int64) sql.NullInt64 {
	if i == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: i, Valid: true}
}
