// Package metadata turns either a local file or a
// domain.RemoteMediaDescriptor into the normalized
// domain.ExtractedMetadata tuple the dedup resolver matches against.
package metadata

import (
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/h33h/TelegramBackup/internal/domain"
)

// mimeExtOverrides normalizes extensions mime.ExtensionsByType would
// otherwise return inconsistently (".jpe" for image/jpeg, etc.).
var mimeExtOverrides = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
	"audio/ogg":  ".ogg",
	"audio/mpeg": ".mp3",
}

// AVProbe is the optional media-duration/resolution backend. The default
// implementation reports nothing; a richer backend can be substituted by
// callers that link a real probing library.
type AVProbe interface {
	Probe(path string) (duration, width, height int, ok bool)
}

// NoopProbe is the zero-dependency AVProbe used when no richer backend is
// configured.
type NoopProbe struct{}

func (NoopProbe) Probe(string) (int, int, int, bool) { return 0, 0, 0, false }

// Extractor extracts domain.ExtractedMetadata from local files and remote
// descriptors.
type Extractor struct {
	probe AVProbe
}

// New builds an Extractor. probe may be nil, in which case NoopProbe is
// used and duration/resolution are left at zero for local files.
func New(probe AVProbe) *Extractor {
	if probe == nil {
		probe = NoopProbe{}
	}
	return &Extractor{probe: probe}
}

// FromLocalFile stats path and, if the probe backend supports it, fills
// in duration/width/height.
func (e *Extractor) FromLocalFile(path string) (domain.ExtractedMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.ExtractedMetadata{}, err
	}

	meta := domain.ExtractedMetadata{
		Name:      filepath.Base(path),
		Extension: filepath.Ext(path),
		Size:      info.Size(),
	}

	if d, w, h, ok := e.probe.Probe(path); ok {
		meta.Duration, meta.Width, meta.Height = d, w, h
	}

	return meta, nil
}

// FromRemote extracts the (name, ext, size, duration, width, height,
// file_id, access_hash) tuple from a descriptor by switching over its
// variant. Photos are always .jpg; documents prefer the declared
// filename's extension, then the MIME map, then .bin.
func (e *Extractor) FromRemote(desc domain.RemoteMediaDescriptor) domain.ExtractedMetadata {
	switch {
	case desc.Photo != nil:
		p := desc.Photo
		return domain.ExtractedMetadata{
			Extension:     ".jpg",
			Size:          p.Size,
			Width:         p.Width,
			Height:        p.Height,
			FileID:        p.FileID,
			RemoteID:      p.RemoteID,
			AccessHash:    p.AccessHash,
			FileReference: p.FileReference,
			ThumbSize:     p.ThumbSize,
			IsPhoto:       true,
		}

	case desc.Document != nil:
		d := desc.Document
		meta := domain.ExtractedMetadata{
			Size:          d.Size,
			Duration:      d.Duration,
			Width:         d.Width,
			Height:        d.Height,
			FileID:        d.FileID,
			RemoteID:      d.RemoteID,
			AccessHash:    d.AccessHash,
			FileReference: d.FileReference,
		}
		if d.Filename != "" {
			meta.Name = d.Filename
			meta.Extension = filepath.Ext(d.Filename)
		}
		if meta.Extension == "" {
			meta.Extension = extensionForMimeType(d.MimeType)
		}
		return meta

	default:
		return domain.ExtractedMetadata{}
	}
}

// extensionForMimeType maps a MIME type to a normalized extension,
// preferring the override table, then mime.ExtensionsByType, defaulting
// to ".bin".
func extensionForMimeType(mimeType string) string {
	if ext, ok := mimeExtOverrides[mimeType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext := exts[0]
		if ext == ".jpe" {
			ext = ".jpg"
		}
		return ext
	}
	return ".bin"
}

var trailingCopySuffix = regexp.MustCompile(`\s*\(\d+\)$`)

// NormalizeFilenameForSearch strips the extension and a trailing " (n)"
// duplicate-counter suffix, then trims whitespace, so fuzzy name
// matching is insensitive to download-manager renames.
func NormalizeFilenameForSearch(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = trailingCopySuffix.ReplaceAllString(base, "")
	return strings.TrimSpace(base)
}
