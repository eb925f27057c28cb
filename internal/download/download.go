// Package download is a bounded-concurrency pool that fetches reserved
// media paths, validates and hashes the result, and merges it into the
// media index.
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/hashpool"
	"github.com/h33h/TelegramBackup/internal/infra/logger"
	"github.com/h33h/TelegramBackup/internal/progress"
	"github.com/h33h/TelegramBackup/internal/retry"
	"github.com/h33h/TelegramBackup/internal/stats"
	"github.com/h33h/TelegramBackup/internal/store"
	"github.com/h33h/TelegramBackup/internal/validate"
)

const diskSafetyMargin = 100 * 1024 * 1024 // 100 MiB

// Fetcher performs the actual blob transfer; implemented by the Telegram
// adapter in production and by a fake in tests.
type Fetcher interface {
	Fetch(ctx context.Context, item Item, dest string, onProgress func(delta int64)) error
}

// Item is one reserved download the Dedup Resolver could not satisfy
// locally.
type Item struct {
	FileID        string
	DeclaredSize  int64
	Path          string // reserved path from dedup.Resolution
	Discriminator string // "photo" | "video" | "document" | ... (informational; Validate keys off extension, not this)
	Meta          domain.ExtractedMetadata
}

// Result is the outcome of one Item after retry/validate/hash/merge.
type Result struct {
	Item    Item
	MediaID int64
	Path    string
	Err     error
}

// Config mirrors infra/config.DownloadConfig; kept separate so this
// package doesn't import the config package directly.
type Config struct {
	MaxConcurrentDownloads int
	MaxRetries             int
	RetryDelay             time.Duration
	MaxFileSize            int64
}

// Executor runs bounded-concurrency downloads against one entity's media
// directory and Media Index.
type Executor struct {
	cfg      Config
	fetcher  Fetcher
	media    *store.MediaStore
	hashes   *hashpool.Pool
	stats    *stats.Stats
	log      *logger.Logger
	mediaDir string

	// mergeMu covers the post-download merge + rename + commit triple:
	// a file rename must never be visible without its index update, and
	// vice versa, even though cfg.MaxConcurrentDownloads workers merge
	// concurrently.
	mergeMu sync.Mutex
}

// New builds an Executor.
func New(cfg Config, fetcher Fetcher, media *store.MediaStore, hashes *hashpool.Pool, st *stats.Stats, log *logger.Logger, mediaDir string) *Executor {
	return &Executor{cfg: cfg, fetcher: fetcher, media: media, hashes: hashes, stats: st, log: log.Sub("download"), mediaDir: mediaDir}
}

// batchAbort signals the whole batch must abort: a disk-full preflight
// failure stops the pipeline for the entity rather than failing one
// item at a time.
type batchAbort struct{ err error }

func (b *batchAbort) Error() string { return fmt.Sprintf("batch aborted: %v", b.err) }
func (b *batchAbort) Unwrap() error { return b.err }

// RunBatch fetches items with up to cfg.MaxConcurrentDownloads in flight,
// reports progress via ui (nil disables bars), and returns one Result per
// item in input order. On cancellation, partial files for in-flight items
// are removed before returning.
func (e *Executor) RunBatch(ctx context.Context, items []Item, ui *progress.UI) ([]Result, error) {
	results := make([]Result, len(items))
	sem := make(chan struct{}, e.cfg.MaxConcurrentDownloads)
	var wg sync.WaitGroup
	var abortOnce sync.Once
	var abortErr error

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, item := range items {
		i, item := i, item

		select {
		case sem <- struct{}{}:
		case <-batchCtx.Done():
			results[i] = Result{Item: item, Err: domain.NewError(domain.KindCancelled, batchCtx.Err())}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			var bar *progress.Bar
			if ui != nil {
				bar = ui.AddBar(item.FileID, item.DeclaredSize)
			}

			res := e.runOne(batchCtx, item, bar)
			if bar != nil {
				bar.Done(res.Err)
			}
			results[i] = res

			if domain.KindOf(res.Err) == domain.KindDiskFull {
				abortOnce.Do(func() {
					abortErr = res.Err
					cancel()
				})
			}
		}()
	}

	wg.Wait()

	if abortErr != nil {
		e.cleanupPartials(items, results)
		return results, &batchAbort{err: abortErr}
	}
	if ctx.Err() != nil {
		e.cleanupPartials(items, results)
	}

	return results, nil
}

func (e *Executor) cleanupPartials(items []Item, results []Result) {
	for i, item := range items {
		if results[i].Err != nil && item.Path != "" {
			os.Remove(item.Path)
		}
	}
}

func (e *Executor) runOne(ctx context.Context, item Item, bar *progress.Bar) Result {
	if e.cfg.MaxFileSize > 0 && item.DeclaredSize > e.cfg.MaxFileSize {
		e.stats.RecordSkip(item.DeclaredSize)
		return Result{Item: item, Err: domain.NewError(domain.KindSizeLimitExceeded, fmt.Errorf(
			"declared size %d exceeds max_file_size %d", item.DeclaredSize, e.cfg.MaxFileSize))}
	}

	if err := e.checkDiskSpace(item.DeclaredSize); err != nil {
		return Result{Item: item, Err: err}
	}

	cfg := retry.Config{MaxRetries: e.cfg.MaxRetries, InitialWait: e.cfg.RetryDelay, MaxWait: 60 * time.Second, Multiplier: 2.0}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	start := time.Now()
	path, err := retry.Do(ctx, cfg, func(n int) (string, error) {
		if n > 1 {
			e.stats.RecordRetry(item.FileID, n == 2)
		}
		return e.attempt(ctx, item, bar)
	})

	if err != nil {
		kind := domain.KindOf(err)
		e.stats.RecordFailure(kind, item.FileID)
		return Result{Item: item, Err: err}
	}

	sum, err := e.hashes.Hash(path)
	if err != nil {
		os.Remove(path)
		e.stats.RecordFailure(domain.KindValidationFailed, item.FileID)
		return Result{Item: item, Err: domain.NewError(domain.KindValidationFailed, fmt.Errorf("hash completed file: %w", err))}
	}

	info, err := os.Stat(path)
	if err != nil {
		e.stats.RecordFailure(domain.KindValidationFailed, item.FileID)
		return Result{Item: item, Err: domain.NewError(domain.KindValidationFailed, fmt.Errorf("stat completed file: %w", err))}
	}

	e.mergeMu.Lock()
	finalPath, mediaID, err := e.merge(sum, info.Size(), path, item)
	e.mergeMu.Unlock()
	if err != nil {
		e.stats.RecordFailure(domain.KindIndexConstraintRace, item.FileID)
		return Result{Item: item, Err: err}
	}

	e.stats.RecordSuccess(info.Size(), time.Since(start))
	return Result{Item: item, MediaID: mediaID, Path: finalPath}
}

func (e *Executor) attempt(ctx context.Context, item Item, bar *progress.Bar) (string, error) {
	if err := os.MkdirAll(filepath.Dir(item.Path), 0755); err != nil {
		return "", domain.NewError(domain.KindDiskFull, fmt.Errorf("create media directory: %w", err))
	}

	onProgress := func(delta int64) {
		if bar != nil {
			bar.Advance(delta)
		}
	}

	if err := e.fetcher.Fetch(ctx, item, item.Path, onProgress); err != nil {
		os.Remove(item.Path)
		return "", err
	}

	if err := validate.Validate(item.Path, item.DeclaredSize, item.Meta.Extension); err != nil {
		os.Remove(item.Path)
		return "", err
	}

	return item.Path, nil
}

// merge runs the post-download merge: upsert by identity, and if a
// different row already owns this content, keep the survivor and delete
// whichever file loses.
func (e *Executor) merge(hash string, size int64, downloadedPath string, item Item) (string, int64, error) {
	id, err := e.media.UpsertByIdentity(&domain.Media{
		Hash: hash, Size: size, FilePath: downloadedPath,
		FileID: item.Meta.FileID, AccessHash: item.Meta.AccessHash,
		Name: item.Meta.Name, Extension: item.Meta.Extension,
		DurationSeconds: item.Meta.Duration, Width: item.Meta.Width, Height: item.Meta.Height,
	})
	if err != nil {
		return "", 0, fmt.Errorf("upsert by identity: %w", err)
	}

	existing, err := e.media.Get(id)
	if err != nil {
		return "", 0, fmt.Errorf("fetch merged row: %w", err)
	}

	finalPath := downloadedPath
	keptOwnDownload := true
	if existing.FilePath != "" && existing.FilePath != downloadedPath {
		if _, statErr := os.Stat(existing.FilePath); statErr == nil {
			// Survivor's file still exists on disk: this download was the
			// race loser, drop it and keep the survivor exactly as named.
			os.Remove(downloadedPath)
			finalPath = existing.FilePath
			keptOwnDownload = false
		} else {
			// Survivor's file is missing: adopt this download's path.
			os.Remove(existing.FilePath)
			if err := e.media.SetPath(id, downloadedPath); err != nil {
				return "", 0, fmt.Errorf("repoint path to new download: %w", err)
			}
			finalPath = downloadedPath
		}
	} else if existing.FilePath == "" {
		if err := e.media.SetPath(id, downloadedPath); err != nil {
			return "", 0, fmt.Errorf("set path on fresh row: %w", err)
		}
	}

	// Only canonicalize the name when this download's own path survived;
	// a reused survivor file keeps whatever name it was already given.
	if keptOwnDownload && item.Meta.FileID != "" {
		canonical := filepath.Join(e.mediaDir, item.Meta.FileID+canonicalExtension(item))
		if canonical != finalPath {
			if _, statErr := os.Stat(canonical); os.IsNotExist(statErr) {
				if err := os.Rename(finalPath, canonical); err == nil {
					if err := e.media.SetPath(id, canonical); err != nil {
						return "", 0, fmt.Errorf("set path after canonical rename: %w", err)
					}
					finalPath = canonical
				}
			}
		}
	}

	if err := e.media.TouchLastUsed(id); err != nil {
		return "", 0, fmt.Errorf("touch last used: %w", err)
	}

	return finalPath, id, nil
}

func canonicalExtension(item Item) string {
	if item.Meta.Extension != "" {
		return item.Meta.Extension
	}
	return filepath.Ext(item.Path)
}

func (e *Executor) checkDiskSpace(declared int64) error {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(e.mediaDir, &fs); err != nil {
		// Can't determine free space; don't block the download on it.
		return nil
	}
	free := fs.Bavail * uint64(fs.Bsize)
	if free <= uint64(declared)+diskSafetyMargin {
		return domain.NewError(domain.KindDiskFull, fmt.Errorf(
			"insufficient disk space: %d bytes free, need %d + margin", free, declared))
	}
	return nil
}
