// Package app wires the per-entity media index, dedup resolver, download
// executor, ingestion pipeline, and reconciler into the runnable engine
// the CLI drives: config.Load() builds a Config, app.New(cfg) builds a
// ready App, and BackupEntity runs the whole graph for one entity at a
// time.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/h33h/TelegramBackup/internal/dedup"
	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/download"
	"github.com/h33h/TelegramBackup/internal/hashpool"
	"github.com/h33h/TelegramBackup/internal/infra/config"
	"github.com/h33h/TelegramBackup/internal/infra/logger"
	"github.com/h33h/TelegramBackup/internal/ingest"
	"github.com/h33h/TelegramBackup/internal/metadata"
	"github.com/h33h/TelegramBackup/internal/reconcile"
	"github.com/h33h/TelegramBackup/internal/stats"
	"github.com/h33h/TelegramBackup/internal/store"
	"github.com/h33h/TelegramBackup/internal/telegram"
	"github.com/h33h/TelegramBackup/internal/telegram/session"
)

// App is the top-level orchestrator: one Config, the session Bootstrap
// that connects to Telegram, and a fresh per-entity Engine built on
// demand (each entity gets its own backup.db and media directory).
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	Bootstrap *session.Bootstrap
}

// New loads the session bootstrap for cfg. It does not connect; callers
// invoke Login or Backup, which each manage their own client lifetime.
func New(cfg *config.Config) (*App, error) {
	log := logger.New("telegram-archive", cfg.LogLevel)

	if err := cfg.EnsureStorePath(); err != nil {
		return nil, fmt.Errorf("ensure store path: %w", err)
	}

	sessionDir := filepath.Join(cfg.StorePath, ".session")
	bootstrap := session.New(cfg.APIID, cfg.APIHash, sessionDir, log)

	return &App{Config: cfg, Log: log, Bootstrap: bootstrap}, nil
}

// Engine is the fully wired per-entity component graph.
type Engine struct {
	Store      *store.Store
	Media      *store.MediaStore
	Pipeline   *ingest.Pipeline
	Reconciler *reconcile.Reconciler
	Stats      *stats.Stats
	hashes     *hashpool.Pool
}

// Close releases the entity's store and hash worker pool.
func (e *Engine) Close() error {
	e.hashes.Close()
	return e.Store.Close()
}

// NewEngine opens (or creates) the backup.db and media directory for one
// entity and wires the full pipeline over a telegram.Client adapter.
func (a *App) NewEngine(entityDir string, client *telegram.Client) (*Engine, error) {
	dbPath := filepath.Join(entityDir, "backup.db")
	mediaDir := filepath.Join(entityDir, "media")

	s, err := store.New(dbPath, a.Log)
	if err != nil {
		return nil, fmt.Errorf("open entity store: %w", err)
	}

	if err := s.EnsureHashAlgorithm(a.Config.Download.HashAlgorithm); err != nil {
		s.Close()
		return nil, err
	}

	media := store.NewMediaStore(s)
	pool := hashpool.New(a.Config.Download.HashAlgorithm, hashWorkerCount(a.Config))
	resolver := dedup.New(media, pool, mediaDir)
	st := stats.New()

	dlCfg := download.Config{
		MaxConcurrentDownloads: a.Config.Download.MaxConcurrentDownloads,
		MaxRetries:             a.Config.Download.MaxRetries,
		RetryDelay:             a.Config.Download.RetryDelay,
		MaxFileSize:            a.Config.Download.MaxFileSize,
	}
	executor := download.New(dlCfg, client, media, pool, st, a.Log, mediaDir)
	extractor := metadata.New(nil)

	pipelineCfg := ingest.Config{
		BatchSize:      a.Config.Download.BatchSize,
		BatchSizeBytes: a.Config.Download.BatchSizeBytes,
		ShowProgress:   true,
	}
	pipeline := ingest.New(pipelineCfg, s, resolver, executor, extractor, st, a.Log)
	reconciler := reconcile.New(s, media, pool, mediaDir, a.Log)

	return &Engine{Store: s, Media: media, Pipeline: pipeline, Reconciler: reconciler, Stats: st, hashes: pool}, nil
}

// hashWorkerCount sizes the hashing pool at 3 workers, or the download
// worker count when that is smaller: hashing is CPU-bound and a few workers keep up with many more
// concurrent transfers.
func hashWorkerCount(cfg *config.Config) int {
	n := 3
	if cfg.Download.MaxConcurrentDownloads > 0 && cfg.Download.MaxConcurrentDownloads < n {
		n = cfg.Download.MaxConcurrentDownloads
	}
	return n
}

// BackupEntity resolves entity to its store directory, runs the
// Reconciler's pre-run refresh, then drives the Ingestion Pipeline over
// every message, newest-first, up to limit (<=0 meaning unbounded).
func (a *App) BackupEntity(ctx context.Context, client *telegram.Client, entity telegram.Entity, limit int, downloadMedia bool) (ingest.Summary, error) {
	dir := a.Config.EntityDir(domain.SanitizeEntityDir(entity.ID, entity.Name))

	engine, err := a.NewEngine(dir, client)
	if err != nil {
		return ingest.Summary{}, err
	}
	defer engine.Close()

	if _, err := engine.Reconciler.PrePass(); err != nil {
		a.Log.Warnf("pre-run index refresh failed for entity %d: %v", entity.ID, err)
	}

	summary, err := engine.Pipeline.ProcessEntity(ctx, client, entity.ID, limit, downloadMedia)
	if downloadMedia {
		a.Log.Infof("entity %d download report:\n%s", entity.ID, engine.Stats.Summary())
	}
	return summary, err
}
