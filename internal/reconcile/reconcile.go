// Package reconcile keeps the media index and the on-disk media
// directory converged through three passes: index refresh, orphan
// sweep, and unused/duplicate collapse.
package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/hashpool"
	"github.com/h33h/TelegramBackup/internal/infra/logger"
	"github.com/h33h/TelegramBackup/internal/store"
)

const (
	countDeviationTolerance = 5
	orphanGracePeriod       = 5 * time.Minute
	lastIndexMetaKey        = "last_media_index_time"
)

// Reconciler keeps one entity's store and media directory converged.
type Reconciler struct {
	store    *store.Store
	media    *store.MediaStore
	hashes   *hashpool.Pool
	mediaDir string
	log      *logger.Logger
}

// New builds a Reconciler for one entity.
func New(s *store.Store, media *store.MediaStore, hashes *hashpool.Pool, mediaDir string, log *logger.Logger) *Reconciler {
	return &Reconciler{store: s, media: media, hashes: hashes, mediaDir: mediaDir, log: log.Sub("reconcile")}
}

// Report summarizes one reconciliation pass.
type Report struct {
	Reindexed        int
	OrphansDeleted   int
	UnusedDeleted    int
	DuplicatesMerged int
}

// PrePass synchronizes the index with the on-disk media directory before
// an ingestion run begins. It only refreshes; the destructive sweeps stay
// in Run, because a freshly re-indexed file has no referencing message
// yet and the unused sweep would delete it before ingestion could link
// it.
func (r *Reconciler) PrePass() (Report, error) {
	var report Report

	reindexed, err := r.refreshIndex()
	if err != nil {
		return report, fmt.Errorf("refresh index: %w", err)
	}
	report.Reindexed = reindexed

	if err := r.recordIndexTime(); err != nil {
		return report, err
	}
	return report, nil
}

// Run executes all three passes in order: index refresh, orphan sweep,
// unused/duplicate collapse.
func (r *Reconciler) Run() (Report, error) {
	var report Report

	reindexed, err := r.refreshIndex()
	if err != nil {
		return report, fmt.Errorf("refresh index: %w", err)
	}
	report.Reindexed = reindexed

	orphans, err := r.sweepOrphans()
	if err != nil {
		return report, fmt.Errorf("sweep orphans: %w", err)
	}
	report.OrphansDeleted = orphans

	unused, err := r.sweepUnused()
	if err != nil {
		return report, fmt.Errorf("sweep unused: %w", err)
	}
	report.UnusedDeleted = unused

	merged, err := r.collapseDuplicates()
	if err != nil {
		return report, fmt.Errorf("collapse duplicates: %w", err)
	}
	report.DuplicatesMerged = merged

	if err := r.recordIndexTime(); err != nil {
		return report, err
	}

	return report, nil
}

func (r *Reconciler) recordIndexTime() error {
	if err := r.store.SetMetadata(lastIndexMetaKey, strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
		return fmt.Errorf("record index time: %w", err)
	}
	return nil
}

// refreshIndex is the first pass: re-index when the media
// directory's mtime is newer than the recorded last-index time, or when
// on-disk/indexed counts deviate by more than countDeviationTolerance.
func (r *Reconciler) refreshIndex() (int, error) {
	onDisk, err := r.listMediaFiles()
	if err != nil {
		return 0, err
	}

	shouldReindex, err := r.shouldReindex(len(onDisk))
	if err != nil {
		return 0, err
	}
	if !shouldReindex {
		return 0, nil
	}

	indexed, err := r.media.AllPaths()
	if err != nil {
		return 0, err
	}

	// Drop Media rows whose file no longer exists, nulling their
	// Message.media_ref so no message points at a missing row.
	onDiskSet := make(map[string]bool, len(onDisk))
	for _, p := range onDisk {
		onDiskSet[p] = true
	}
	for path, id := range indexed {
		if !onDiskSet[path] {
			if err := r.media.NullMediaRefsFor(id); err != nil {
				return 0, err
			}
			if err := r.media.Delete(id); err != nil {
				return 0, err
			}
		}
	}

	reindexedCount := 0
	for _, path := range onDisk {
		if _, alreadyIndexed := indexed[path]; alreadyIndexed {
			continue
		}
		if existing, err := r.media.FindByPath(path); err != nil {
			return 0, err
		} else if existing != nil {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		sum, err := r.hashes.Hash(path)
		if err != nil {
			r.log.Warnf("hash during reindex failed for %s: %v", path, err)
			continue
		}

		name := filepath.Base(path)
		ext := filepath.Ext(name)
		seed := &domain.Media{
			Hash:      sum,
			Size:      info.Size(),
			FilePath:  path,
			Name:      name,
			Extension: ext,
			FileID:    strings.TrimSuffix(name, ext),
		}
		if _, err := r.media.UpsertByIdentity(seed); err != nil {
			return 0, err
		}
		reindexedCount++
	}

	return reindexedCount, nil
}

func (r *Reconciler) shouldReindex(onDiskCount int) (bool, error) {
	info, err := os.Stat(r.mediaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	lastIndexStr, err := r.store.GetMetadata(lastIndexMetaKey)
	if err != nil {
		return false, err
	}
	if lastIndexStr == "" {
		return true, nil
	}
	lastIndexUnix, err := strconv.ParseInt(lastIndexStr, 10, 64)
	if err != nil {
		return true, nil
	}
	if info.ModTime().Unix() > lastIndexUnix {
		return true, nil
	}

	indexedCount, err := r.media.Count()
	if err != nil {
		return false, err
	}
	deviation := onDiskCount - indexedCount
	if deviation < 0 {
		deviation = -deviation
	}
	return deviation > countDeviationTolerance, nil
}

// sweepOrphans implements pass 2: files on disk referenced by no Media
// row and older than orphanGracePeriod are deleted.
func (r *Reconciler) sweepOrphans() (int, error) {
	onDisk, err := r.listMediaFiles()
	if err != nil {
		return 0, err
	}
	indexed, err := r.media.AllPaths()
	if err != nil {
		return 0, err
	}

	deleted := 0
	cutoff := time.Now().Add(-orphanGracePeriod)
	for _, path := range onDisk {
		if _, ok := indexed[path]; ok {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			r.log.Warnf("remove orphan %s: %v", path, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// sweepUnused implements pass 3's first half: Media rows with no
// referencing Message are deleted along with their files.
func (r *Reconciler) sweepUnused() (int, error) {
	unused, err := r.media.Unreferenced()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, m := range unused {
		if m.FilePath != "" {
			os.Remove(m.FilePath)
		}
		if err := r.media.Delete(m.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// collapseDuplicates implements pass 3's second half: Media rows sharing
// (hash,size) are collapsed onto the oldest-by-indexed_at survivor.
func (r *Reconciler) collapseDuplicates() (int, error) {
	groups, err := r.media.DuplicateGroups()
	if err != nil {
		return 0, err
	}

	merged := 0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		survivor := group[0]
		for _, dup := range group[1:] {
			if err := r.media.MigrateMessageRefs(dup.ID, survivor.ID); err != nil {
				return merged, err
			}
			if dup.FilePath != "" && dup.FilePath != survivor.FilePath {
				os.Remove(dup.FilePath)
			}
			if err := r.media.Delete(dup.ID); err != nil {
				return merged, err
			}
			merged++
		}
	}
	return merged, nil
}

func (r *Reconciler) listMediaFiles() ([]string, error) {
	entries, err := os.ReadDir(r.mediaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, filepath.Join(r.mediaDir, e.Name()))
	}
	return out, nil
}
