package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/h33h/TelegramBackup/internal/domain"
)

func TestFromLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, make([]byte, 512), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	e := New(nil)
	meta, err := e.FromLocalFile(path)
	if err != nil {
		t.Fatalf("FromLocalFile: %v", err)
	}
	if meta.Name != "photo.jpg" || meta.Extension != ".jpg" || meta.Size != 512 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestFromRemotePhoto(t *testing.T) {
	e := New(nil)
	desc := domain.RemoteMediaDescriptor{
		Photo: &domain.RemotePhoto{FileID: "abc", AccessHash: 42, Size: 2048, Width: 800, Height: 600},
	}
	meta := e.FromRemote(desc)
	if meta.Extension != ".jpg" || meta.Size != 2048 || meta.Width != 800 || meta.FileID != "abc" {
		t.Fatalf("unexpected photo metadata: %+v", meta)
	}
}

func TestFromRemoteDocumentWithFilename(t *testing.T) {
	e := New(nil)
	desc := domain.RemoteMediaDescriptor{
		Document: &domain.RemoteDocument{FileID: "doc1", Size: 4096, Filename: "report.pdf"},
	}
	meta := e.FromRemote(desc)
	if meta.Name != "report.pdf" || meta.Extension != ".pdf" {
		t.Fatalf("unexpected document metadata: %+v", meta)
	}
}

func TestFromRemoteDocumentMimeFallback(t *testing.T) {
	e := New(nil)
	desc := domain.RemoteMediaDescriptor{
		Document: &domain.RemoteDocument{FileID: "doc2", Size: 1000, MimeType: "image/jpeg"},
	}
	meta := e.FromRemote(desc)
	if meta.Extension != ".jpg" {
		t.Fatalf("expected .jpg from mime override, got %q", meta.Extension)
	}
}

func TestNormalizeFilenameForSearch(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":        "photo",
		"photo (1).jpg":    "photo",
		"my file (23).png": "my file",
		"  spaced.gif":     "spaced",
	}
	for in, want := range cases {
		if got := NormalizeFilenameForSearch(in); got != want {
			t.Errorf("NormalizeFilenameForSearch(%q) = %q, want %q", in, got, want)
		}
	}
}
