package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/h33h/TelegramBackup/internal/domain"
)

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.bin")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestValidateMissingFile(t *testing.T) {
	err := Validate(filepath.Join(t.TempDir(), "nope.bin"), 100, "")
	if domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("expected KindValidationFailed, got %v", err)
	}
}

func TestValidateEmptyFile(t *testing.T) {
	path := writeFile(t, []byte{})
	err := Validate(path, 0, "")
	if domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("expected KindValidationFailed for empty file, got %v", err)
	}
}

func TestValidateSizeWithinTolerance(t *testing.T) {
	path := writeFile(t, make([]byte, 1000))
	if err := Validate(path, 1000, ""); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateSizeToleranceBoundaries(t *testing.T) {
	// 200 KiB declared puts the tolerance at 1% (2 KiB): half a percent
	// over passes, two percent over fails.
	declared := int64(200 * 1024)

	pass := writeFile(t, make([]byte, declared+declared/200))
	if err := Validate(pass, declared, ""); err != nil {
		t.Fatalf("expected +0.5%% to pass, got %v", err)
	}

	fail := writeFile(t, make([]byte, declared+declared/50))
	if err := Validate(fail, declared, ""); domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("expected +2%% to fail validation, got %v", err)
	}
}

func TestValidateSizeOutsideTolerance(t *testing.T) {
	path := writeFile(t, make([]byte, 1000))
	err := Validate(path, 100000, "")
	if domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("expected KindValidationFailed for size mismatch, got %v", err)
	}
}

func TestValidateJPEGMagic(t *testing.T) {
	content := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 100)...)
	path := writeFile(t, content)
	if err := Validate(path, int64(len(content)), ".jpg"); err != nil {
		t.Fatalf("expected valid jpeg, got %v", err)
	}
}

func TestValidatePNGMagic(t *testing.T) {
	content := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}, make([]byte, 100)...)
	path := writeFile(t, content)
	if err := Validate(path, int64(len(content)), ".png"); err != nil {
		t.Fatalf("expected valid png, got %v", err)
	}
}

func TestValidateWebPMagic(t *testing.T) {
	content := append([]byte("RIFF\x00\x00\x00\x00WEBP"), make([]byte, 50)...)
	path := writeFile(t, content)
	if err := Validate(path, int64(len(content)), ".webp"); err != nil {
		t.Fatalf("expected valid webp, got %v", err)
	}
}

func TestValidateUnrecognizedImageSignature(t *testing.T) {
	content := make([]byte, 100)
	path := writeFile(t, content)
	err := Validate(path, int64(len(content)), ".jpg")
	if domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("expected KindValidationFailed for bad signature, got %v", err)
	}
}

func TestValidateVideoMinSize(t *testing.T) {
	path := writeFile(t, make([]byte, 10))
	err := Validate(path, 10, ".mp4")
	if domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("expected KindValidationFailed for tiny video, got %v", err)
	}
}

func TestValidateDocumentSkipsMagicCheck(t *testing.T) {
	content := make([]byte, 100)
	path := writeFile(t, content)
	if err := Validate(path, int64(len(content)), ".pdf"); err != nil {
		t.Fatalf("expected documents to skip magic validation, got %v", err)
	}
}

func TestValidateGarbageWithImageExtensionFails(t *testing.T) {
	// A Document delivered with a .jpg filename still gets magic-byte
	// checked: validation keys off extension, not the Telegram media
	// discriminator, so a garbage file can't masquerade as a photo.
	content := make([]byte, 100)
	path := writeFile(t, content)
	err := Validate(path, int64(len(content)), ".jpg")
	if domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("expected KindValidationFailed for garbage content under .jpg extension, got %v", err)
	}
}

func TestValidateExtensionFallsBackToPathSuffix(t *testing.T) {
	// When the caller has no extracted extension, Validate falls back to
	// the file's own path suffix.
	content := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 100)...)
	dir := t.TempDir()
	path := filepath.Join(dir, "A1.jpg")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := Validate(path, int64(len(content)), ""); err != nil {
		t.Fatalf("expected valid jpeg via path suffix, got %v", err)
	}
}
