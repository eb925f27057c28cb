// Package dedup decides, for one piece of remote media, whether a
// download is needed at all: a tiered lookup over the media index
// (metadata match, remote file id, deterministic on-disk name) before
// falling back to reserving a path for a fresh fetch.
package dedup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/h33h/TelegramBackup/internal/domain"
	"github.com/h33h/TelegramBackup/internal/hashpool"
	"github.com/h33h/TelegramBackup/internal/store"
)

// Resolution is the outcome of resolving one media descriptor.
type Resolution struct {
	MediaID      int64  // 0 when not yet resolved
	Path         string // location under the entity's media directory
	NeedDownload bool
}

// Resolver ties the Media Index to the entity's on-disk media directory.
type Resolver struct {
	media    *store.MediaStore
	hashes   *hashpool.Pool
	mediaDir string
}

// New builds a Resolver rooted at mediaDir (the entity's media/ subdir).
func New(media *store.MediaStore, hashes *hashpool.Pool, mediaDir string) *Resolver {
	return &Resolver{media: media, hashes: hashes, mediaDir: mediaDir}
}

// Resolve runs the four-tier lookup against a single remote media
// descriptor, already reduced to its metadata tuple. First hit wins.
func (r *Resolver) Resolve(meta domain.ExtractedMetadata) (Resolution, error) {
	// Tier 1: metadata match.
	query := store.MetadataQuery{Size: meta.Size, Name: meta.Name, FileID: meta.FileID}
	if meta.Duration > 0 {
		d := meta.Duration
		query.Duration = &d
	}
	if meta.Width > 0 && meta.Height > 0 {
		w, h := meta.Width, meta.Height
		query.Width, query.Height = &w, &h
	}

	if hit, err := r.media.FindByMetadata(query); err != nil {
		return Resolution{}, fmt.Errorf("find by metadata: %w", err)
	} else if hit != nil {
		return r.settleHit(hit, meta)
	}

	// Tier 2: remote-id match.
	if meta.FileID != "" {
		if hit, err := r.media.FindByFileID(meta.FileID); err != nil {
			return Resolution{}, fmt.Errorf("find by file id: %w", err)
		} else if hit != nil {
			return r.settleHit(hit, meta)
		}
	}

	if meta.FileID == "" {
		// No remote id to build a deterministic path from; let the
		// downloader pick one.
		return Resolution{NeedDownload: true}, nil
	}

	deterministicName := meta.FileID + canonicalExtension(meta)
	deterministicPath := filepath.Join(r.mediaDir, deterministicName)

	// Tier 3: deterministic-name probe.
	if info, err := os.Stat(deterministicPath); err == nil && !info.IsDir() {
		if existing, err := r.media.FindByPath(deterministicPath); err != nil {
			return Resolution{}, fmt.Errorf("find by path: %w", err)
		} else if existing == nil {
			sum, err := r.hashes.Hash(deterministicPath)
			if err != nil {
				return Resolution{}, fmt.Errorf("hash unindexed file: %w", err)
			}
			id, err := r.media.UpsertByIdentity(&domain.Media{
				Hash: sum, Size: info.Size(), FilePath: deterministicPath,
				FileID: meta.FileID, AccessHash: meta.AccessHash, Name: meta.Name,
				Extension: meta.Extension, DurationSeconds: meta.Duration,
				Width: meta.Width, Height: meta.Height,
			})
			if err != nil {
				return Resolution{}, fmt.Errorf("upsert newly indexed file: %w", err)
			}
			return Resolution{MediaID: id, Path: deterministicPath, NeedDownload: false}, nil
		}
	}

	// Tier 4: reserve a path for the Download Executor.
	return Resolution{Path: deterministicPath, NeedDownload: true}, nil
}

// settleHit applies the rename/commit discipline shared by tiers 1 and 2:
// fill missing remote fields, bump last_used_at, then try to rename the
// on-disk file to its canonical name.
func (r *Resolver) settleHit(hit *domain.Media, meta domain.ExtractedMetadata) (Resolution, error) {
	if err := r.media.FillRemoteFields(hit.ID, meta.FileID, meta.AccessHash); err != nil {
		return Resolution{}, fmt.Errorf("fill remote fields: %w", err)
	}
	if err := r.media.TouchLastUsed(hit.ID); err != nil {
		return Resolution{}, fmt.Errorf("touch last used: %w", err)
	}

	path := hit.FilePath
	if meta.FileID != "" && hit.FilePath != "" {
		canonicalName := meta.FileID + canonicalExtension(meta)
		canonicalPath := filepath.Join(r.mediaDir, canonicalName)
		if canonicalPath != hit.FilePath {
			if _, err := os.Stat(canonicalPath); os.IsNotExist(err) {
				if err := os.Rename(hit.FilePath, canonicalPath); err == nil {
					if err := r.media.SetPath(hit.ID, canonicalPath); err != nil {
						return Resolution{}, fmt.Errorf("set path after rename: %w", err)
					}
					path = canonicalPath
				}
			}
		}
	}

	return Resolution{MediaID: hit.ID, Path: path, NeedDownload: false}, nil
}

func canonicalExtension(meta domain.ExtractedMetadata) string {
	if meta.Extension != "" {
		return meta.Extension
	}
	return ".bin"
}
