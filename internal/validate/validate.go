// Package validate runs existence, size-tolerance, and magic-byte checks
// against a freshly downloaded file before it is allowed into the media
// index.
package validate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h33h/TelegramBackup/internal/domain"
)

const minVideoSize = 1024

var (
	jpegMagic  = []byte{0xFF, 0xD8, 0xFF}
	pngMagic   = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	gif87Magic = []byte("GIF87a")
	gif89Magic = []byte("GIF89a")
	riffMagic  = []byte("RIFF")
	webpMagic  = []byte("WEBP")
)

// imageExtensions get a magic-byte check; videoExtensions only get the
// minimum-size check.
var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
var videoExtensions = map[string]bool{".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true}

// Validate checks the file at path against expectedSize and, by file
// extension, its magic bytes or minimum size. extension overrides the
// path's own suffix when non-empty (e.g. item.Meta.Extension, which may
// be more reliable than a not-yet-renamed download path); expectedSize
// <= 0 skips the size check.
func Validate(path string, expectedSize int64, extension string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewError(domain.KindValidationFailed, fmt.Errorf("downloaded file does not exist: %s", path))
		}
		return domain.NewError(domain.KindValidationFailed, fmt.Errorf("stat downloaded file: %w", err))
	}

	if info.Size() == 0 {
		return domain.NewError(domain.KindValidationFailed, fmt.Errorf("downloaded file is empty: %s", path))
	}

	if expectedSize > 0 {
		tolerance := expectedSize / 100
		if tolerance < 1024 {
			tolerance = 1024
		}
		diff := info.Size() - expectedSize
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			return domain.NewError(domain.KindValidationFailed, fmt.Errorf(
				"size mismatch: expected %d, got %d (tolerance %d)", expectedSize, info.Size(), tolerance))
		}
	}

	ext := strings.ToLower(extension)
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(path))
	}

	if videoExtensions[ext] {
		if info.Size() < minVideoSize {
			return domain.NewError(domain.KindValidationFailed, fmt.Errorf(
				"video file too small: %d bytes", info.Size()))
		}
		return nil
	}

	if !imageExtensions[ext] {
		// Unrecognized extensions (documents, audio, etc.) skip magic-byte
		// validation; only size/existence is checked.
		return nil
	}

	header := make([]byte, 16)
	f, err := os.Open(path)
	if err != nil {
		return domain.NewError(domain.KindValidationFailed, fmt.Errorf("open for magic check: %w", err))
	}
	defer f.Close()

	n, err := f.Read(header)
	if err != nil && n == 0 {
		return domain.NewError(domain.KindValidationFailed, fmt.Errorf("read header: %w", err))
	}
	header = header[:n]

	if bytes.HasPrefix(header, jpegMagic) ||
		bytes.HasPrefix(header, pngMagic) ||
		bytes.HasPrefix(header, gif87Magic) ||
		bytes.HasPrefix(header, gif89Magic) {
		return nil
	}

	if len(header) >= 12 && bytes.HasPrefix(header, riffMagic) && bytes.Equal(header[8:12], webpMagic) {
		return nil
	}

	return domain.NewError(domain.KindValidationFailed, fmt.Errorf("unrecognized image signature for %s", path))
}
