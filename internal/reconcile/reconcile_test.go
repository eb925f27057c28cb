package reconcile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/hashpool"
	"github.com/h33h/TelegramBackup/internal/infra/logger"
	"github.com/h33h/TelegramBackup/internal/store"
)

func newTestReconciler(t *testing.T) (*Reconciler, *store.Store, *store.MediaStore, string) {
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

	r := New(s, media, pool, mediaDir, logger.New("test", "error"))
	return r, s, media, mediaDir
}

func TestRefreshIndexPicksUpUnindexedFile(t *testing.T) {
	r, _, media, mediaDir := newTestReconciler(t)

	path := filepath.Join(mediaDir, "A1.jpg")
	if err := os.WriteFile(path, []byte("preexisting blob"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	report, err := r.PrePass()
	if err != nil {
		t.Fatalf("pre-pass: %v", err)
	}
	if report.Reindexed != 1 {
		t.Fatalf("expected 1 reindexed file, got %d", report.Reindexed)
	}

	found, err := media.FindByPath(path)
	if err != nil {
		t.Fatalf("find by path: %v", err)
	}
	if found == nil {
		t.Fatalf("expected the file to be indexed")
	}
}

func TestFullRunSweepsUnreferencedRows(t *testing.T) {
	r, _, media, mediaDir := newTestReconciler(t)

	path := filepath.Join(mediaDir, "unused.bin")
	if err := os.WriteFile(path, []byte("nobody references me"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := media.UpsertByIdentity(&domain.Media{Hash: "cafe", Size: 20, FilePath: path}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := r.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.UnusedDeleted != 1 {
		t.Fatalf("expected the unreferenced row to be swept, got %d", report.UnusedDeleted)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected the unreferenced row's file to be removed")
	}
}

func TestPrePassDropsRowWhoseFileVanished(t *testing.T) {
	r, s, media, mediaDir := newTestReconciler(t)

	gonePath := filepath.Join(mediaDir, "gone.bin")
	id, err := media.UpsertByIdentity(&domain.Media{Hash: "beef", Size: 8, FilePath: gonePath})
	if err != nil {
		t.Fatalf("seed media row: %v", err)
	}

	msgs := store.NewMessageStore(s)
	if err := msgs.Put(&domain.Message{ID: 1, EntityID: 5, Timestamp: time.Now(), ExtractedAt: time.Now(), MediaRef: id}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	if _, err := r.PrePass(); err != nil {
		t.Fatalf("pre-pass: %v", err)
	}

	if row, err := media.FindByPath(gonePath); err != nil || row != nil {
		t.Fatalf("expected the row for the vanished file to be dropped, got %+v (%v)", row, err)
	}
	msg, err := msgs.Get(1, 5)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if msg.MediaRef != 0 {
		t.Fatalf("expected media_ref nulled after its file vanished, got %d", msg.MediaRef)
	}
}

func TestOrphanSweepRespectsGracePeriod(t *testing.T) {
	r, _, _, mediaDir := newTestReconciler(t)

	path := filepath.Join(mediaDir, "fresh.bin")
	if err := os.WriteFile(path, []byte("just downloaded"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	// sweepOrphans directly: a fresh file must survive the grace window.
	deleted, err := r.sweepOrphans()
	if err != nil {
		t.Fatalf("sweep orphans: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected fresh orphan to survive grace period, got %d deleted", deleted)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to still exist: %v", err)
	}
}

func TestOrphanSweepDeletesStaleFile(t *testing.T) {
	r, _, _, mediaDir := newTestReconciler(t)

	path := filepath.Join(mediaDir, "stale.bin")
	if err := os.WriteFile(path, []byte("old orphan"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	old := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	deleted, err := r.sweepOrphans()
	if err != nil {
		t.Fatalf("sweep orphans: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected stale orphan deleted, got %d", deleted)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed")
	}
}

func TestCollapseDuplicatesNoopWhenIndexHasNoDuplicates(t *testing.T) {
	r, _, media, mediaDir := newTestReconciler(t)

	path := filepath.Join(mediaDir, "only.bin")
	os.WriteFile(path, []byte("unique content"), 0644)

	if _, err := media.UpsertByIdentity(&domain.Media{Hash: "deadbeef", Size: 14, FilePath: path}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The store's UNIQUE(hash,size) constraint makes true duplicate rows
	// unreachable through normal writes, so this pass should find nothing
	// to collapse; it exercises that the query and merge loop are safe to
	// run unconditionally on every reconciliation pass.
	merged, err := r.collapseDuplicates()
	if err != nil {
		t.Fatalf("collapse duplicates: %v", err)
	}
	if merged != 0 {
		t.Fatalf("expected no duplicates to merge, got %d", merged)
	}
}
