package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/h33h/TelegramBackup/internal/infra/logger"
)

func TestIsAuthenticatedFalseWhenNoSessionFile(t *testing.T) {
	dir := t.TempDir()
	b := New(1, "hash", dir, logger.New("test", "error"))
	if b.IsAuthenticated() {
		t.Fatalf("expected no session to be reported as unauthenticated")
	}
}

func TestIsAuthenticatedTrueWhenSessionFilePresent(t *testing.T) {
	dir := t.TempDir()
	b := New(1, "hash", dir, logger.New("test", "error"))
	if err := os.WriteFile(filepath.Join(dir, "session.json"), []byte(`{"dc":1}`), 0600); err != nil {
		t.Fatalf("write session file: %v", err)
	}
	if !b.IsAuthenticated() {
		t.Fatalf("expected persisted non-empty session file to be reported as authenticated")
	}
}

func TestIsAuthenticatedFalseWhenSessionFileEmpty(t *testing.T) {
	dir := t.TempDir()
	b := New(1, "hash", dir, logger.New("test", "error"))
	if err := os.WriteFile(filepath.Join(dir, "session.json"), nil, 0600); err != nil {
		t.Fatalf("write empty session file: %v", err)
	}
	if b.IsAuthenticated() {
		t.Fatalf("expected empty session file to be reported as unauthenticated")
	}
}
