package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/h33h/TelegramBackup/internal/dedup"
	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/download"
	"github.com/h33h/TelegramBackup/internal/hashpool"
	"github.com/h33h/TelegramBackup/internal/infra/logger"
	"github.com/h33h/TelegramBackup/internal/metadata"
	"github.com/h33h/TelegramBackup/internal/stats"
	"github.com/h33h/TelegramBackup/internal/store"
)

type fakeSource struct {
	messages []RemoteMessage
}

func (f *fakeSource) IterateMessages(ctx context.Context, entityID int64, limit int, fn func(RemoteMessage) error) error {
	for i, m := range f.messages {
		if limit > 0 && i >= limit {
			break
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

type fakeFetcher struct {
	mu         sync.Mutex
	fetchCount int
	errFor     map[string]error // per-FileID error override
}

func (f *fakeFetcher) Fetch(ctx context.Context, item download.Item, dest string, onProgress func(delta int64)) error {
	f.mu.Lock()
	f.fetchCount++
	errOverride := f.errFor[item.FileID]
	f.mu.Unlock()

	if errOverride != nil {
		return errOverride
	}

	content := []byte("fetched blob content")
	if err := os.WriteFile(dest, content, 0644); err != nil {
		return err
	}
	onProgress(int64(len(content)))
	return nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store, *fakeFetcher) {
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

	resolver := dedup.New(media, pool, mediaDir)
	dlCfg := download.Config{MaxConcurrentDownloads: 2, MaxRetries: 2, RetryDelay: time.Millisecond, MaxFileSize: 1 << 30}
	st := stats.New()
	fetcher := &fakeFetcher{}
	exec := download.New(dlCfg, fetcher, media, pool, st, logger.New("test", "error"), mediaDir)
	extractor := metadata.New(nil)

	cfg := Config{BatchSize: 5, BatchSizeBytes: 100 << 20}
	pipeline := New(cfg, s, resolver, exec, extractor, st, logger.New("test", "error"))

	return pipeline, s, fetcher
}

func TestProcessEntityTextOnlyMessage(t *testing.T) {
	pipeline, s, _ := newTestPipeline(t)
	source := &fakeSource{messages: []RemoteMessage{
		{ID: 1, Timestamp: time.Now(), Text: "hello world"},
	}}

	summary, err := pipeline.ProcessEntity(context.Background(), source, 42, 0, true)
	if err != nil {
		t.Fatalf("process entity: %v", err)
	}
	if summary.Messages != 1 {
		t.Fatalf("expected 1 message, got %d", summary.Messages)
	}

	msgStore := store.NewMessageStore(s)
	msg, err := msgStore.Get(1, 42)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if msg == nil || msg.Text != "hello world" {
		t.Fatalf("expected persisted message, got %+v", msg)
	}
}

func TestProcessEntityDownloadsMediaAndLinksRef(t *testing.T) {
	pipeline, s, _ := newTestPipeline(t)
	source := &fakeSource{messages: []RemoteMessage{
		{
			ID: 2, Timestamp: time.Now(),
			Media: &domain.RemoteMediaDescriptor{
				Document: &domain.RemoteDocument{FileID: "doc42", Size: int64(len("fetched blob content")), Filename: "report.pdf"},
			},
			Buttons: []RemoteButton{{Row: 0, Col: 0, Text: "Open", URL: "https://example.com"}},
		},
	}}

	summary, err := pipeline.ProcessEntity(context.Background(), source, 7, 0, true)
	if err != nil {
		t.Fatalf("process entity: %v", err)
	}
	if summary.Downloaded != 1 {
		t.Fatalf("expected 1 downloaded item, got %d", summary.Downloaded)
	}

	msgStore := store.NewMessageStore(s)
	msg, err := msgStore.Get(2, 7)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if msg.MediaRef == 0 {
		t.Fatalf("expected message to carry a resolved media_ref")
	}

	btnStore := store.NewButtonStore(s)
	buttons, err := btnStore.GetByMessage(2, 7)
	if err != nil {
		t.Fatalf("get buttons: %v", err)
	}
	if len(buttons) != 1 || buttons[0].Text != "Open" {
		t.Fatalf("expected 1 persisted button, got %+v", buttons)
	}
}

func TestProcessEntityRerunDownloadsNothing(t *testing.T) {
	pipeline, _, fetcher := newTestPipeline(t)
	source := &fakeSource{messages: []RemoteMessage{
		{
			ID: 4, Timestamp: time.Now(),
			Media: &domain.RemoteMediaDescriptor{
				Document: &domain.RemoteDocument{FileID: "doc7", Size: int64(len("fetched blob content")), Filename: "clip.mp3"},
			},
		},
	}}

	if _, err := pipeline.ProcessEntity(context.Background(), source, 11, 0, true); err != nil {
		t.Fatalf("first run: %v", err)
	}

	summary, err := pipeline.ProcessEntity(context.Background(), source, 11, 0, true)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Downloaded != 0 || summary.BytesDownloaded != 0 {
		t.Fatalf("expected an idempotent re-run, got %+v", summary)
	}
	if fetcher.fetchCount != 1 {
		t.Fatalf("expected the blob fetched exactly once across both runs, got %d", fetcher.fetchCount)
	}
}

func TestProcessEntityCancelledItemGetsNoMessageRow(t *testing.T) {
	pipeline, s, fetcher := newTestPipeline(t)
	fetcher.errFor = map[string]error{
		"doc-cancel": domain.NewError(domain.KindCancelled, context.Canceled),
	}

	source := &fakeSource{messages: []RemoteMessage{
		{
			ID: 5, Timestamp: time.Now(),
			Media: &domain.RemoteMediaDescriptor{
				Document: &domain.RemoteDocument{FileID: "doc-ok", Size: int64(len("fetched blob content")), Filename: "ok.bin"},
			},
		},
		{
			ID: 6, Timestamp: time.Now(),
			Media: &domain.RemoteMediaDescriptor{
				Document: &domain.RemoteDocument{FileID: "doc-cancel", Size: 999, Filename: "cancelled.bin"},
			},
		},
	}}

	summary, err := pipeline.ProcessEntity(context.Background(), source, 13, 0, true)
	if err != nil {
		t.Fatalf("process entity: %v", err)
	}
	if summary.Messages != 1 || summary.Downloaded != 1 {
		t.Fatalf("expected only the completed item persisted, got %+v", summary)
	}
	if summary.ErrorsByKind[domain.KindCancelled] != 1 {
		t.Fatalf("expected the cancelled item counted, got %+v", summary.ErrorsByKind)
	}

	msgStore := store.NewMessageStore(s)
	if msg, err := msgStore.Get(5, 13); err != nil || msg == nil || msg.MediaRef == 0 {
		t.Fatalf("expected the completed message persisted with media_ref, got %+v (%v)", msg, err)
	}
	if msg, err := msgStore.Get(6, 13); err != nil {
		t.Fatalf("get cancelled message: %v", err)
	} else if msg != nil {
		t.Fatalf("expected no row for the cancelled item, got %+v", msg)
	}
}

func TestProcessEntitySkipsDownloadWhenDisabled(t *testing.T) {
	pipeline, s, _ := newTestPipeline(t)
	source := &fakeSource{messages: []RemoteMessage{
		{ID: 3, Timestamp: time.Now(), Media: &domain.RemoteMediaDescriptor{
			Document: &domain.RemoteDocument{FileID: "doc99", Size: 100},
		}},
	}}

	summary, err := pipeline.ProcessEntity(context.Background(), source, 9, 0, false)
	if err != nil {
		t.Fatalf("process entity: %v", err)
	}
	if summary.Downloaded != 0 || summary.Messages != 1 {
		t.Fatalf("expected no downloads with downloadMedia=false, got %+v", summary)
	}

	msgStore := store.NewMessageStore(s)
	msg, err := msgStore.Get(3, 9)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if msg.MediaRef != 0 {
		t.Fatalf("expected null media_ref when downloads are disabled")
	}
}
