package dedup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/hashpool"
	"github.com/h33h/TelegramBackup/internal/infra/logger"
	"github.com/h33h/TelegramBackup/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.MediaStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "backup.db")
	s, err := store.New(dbPath, logger.New("test", "error"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	mediaDir := t.TempDir()
	media := store.NewMediaStore(s)
	pool := hashpool.New(hashpool.AlgoXXH3_128, 1)
	t.Cleanup(pool.Close)

	return New(media, pool, mediaDir), media, mediaDir
}

func TestResolveReservesWhenNoMatch(t *testing.T) {
	r, _, mediaDir := newTestResolver(t)

	res, err := r.Resolve(domain.ExtractedMetadata{Size: 1024, FileID: "file123", Extension: ".jpg"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.NeedDownload || res.MediaID != 0 {
		t.Fatalf("expected a reserved download, got %+v", res)
	}
	if res.Path != filepath.Join(mediaDir, "file123.jpg") {
		t.Fatalf("unexpected reserved path: %s", res.Path)
	}
}

func TestResolveTier3IndexesUnindexedFile(t *testing.T) {
	r, media, mediaDir := newTestResolver(t)

	path := filepath.Join(mediaDir, "file123.jpg")
	if err := os.WriteFile(path, []byte("blob content"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	res, err := r.Resolve(domain.ExtractedMetadata{Size: int64(len("blob content")), FileID: "file123", Extension: ".jpg"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.NeedDownload || res.MediaID == 0 {
		t.Fatalf("expected an indexed hit, got %+v", res)
	}

	stored, err := media.Get(res.MediaID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.FilePath != path {
		t.Fatalf("expected stored path %s, got %s", path, stored.FilePath)
	}
}

func TestResolveFileIDMatchHit(t *testing.T) {
	r, media, mediaDir := newTestResolver(t)

	existingPath := filepath.Join(mediaDir, "somewhere.bin")
	if err := os.WriteFile(existingPath, []byte("stored"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	id, err := media.UpsertByIdentity(&domain.Media{
		Hash: "feed", Size: 6, FilePath: existingPath, FileID: "known_id",
	})
	if err != nil {
		t.Fatalf("seed media row: %v", err)
	}

	// A different declared size keeps tier 1 from matching; tier 2 must
	// still find the row by its remote id.
	res, err := r.Resolve(domain.ExtractedMetadata{Size: 9999, FileID: "known_id", Extension: ".bin"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.NeedDownload || res.MediaID != id {
		t.Fatalf("expected file-id hit on existing row, got %+v", res)
	}
}

func TestResolveMetadataMatchHit(t *testing.T) {
	r, media, mediaDir := newTestResolver(t)

	existingPath := filepath.Join(mediaDir, "old_name.jpg")
	if err := os.WriteFile(existingPath, []byte("data"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	id, err := media.UpsertByIdentity(&domain.Media{
		Hash: "deadbeef", Size: 4, FilePath: existingPath, Name: "old_name.jpg",
	})
	if err != nil {
		t.Fatalf("seed media row: %v", err)
	}

	res, err := r.Resolve(domain.ExtractedMetadata{Size: 4, FileID: "new_file_id", Extension: ".jpg"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.NeedDownload || res.MediaID != id {
		t.Fatalf("expected metadata-match hit on existing row, got %+v", res)
	}

	// The rename/commit discipline should have moved the file to its
	// canonical name and updated the stored path.
	if _, err := os.Stat(filepath.Join(mediaDir, "new_file_id.jpg")); err != nil {
		t.Fatalf("expected file renamed to canonical name: %v", err)
	}
}
