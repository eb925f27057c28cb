package stats

import (
	"strings"
	"testing"
	"time"

	"github.com/h33h/TelegramBackup/internal/domain"
)

func TestRecordSuccessAccumulates(t *testing.T) {
	s := New()
	s.RecordSuccess(1024, 10*time.Millisecond)
	s.RecordSuccess(2048, 20*time.Millisecond)

	if s.SuccessfulDownloads != 2 || s.TotalFiles != 2 {
		t.Fatalf("expected 2 successful downloads, got %+v", s)
	}
	if s.TotalBytesDownloaded != 3072 {
		t.Fatalf("expected 3072 bytes downloaded, got %d", s.TotalBytesDownloaded)
	}
}

func TestRecordFailureTracksErrorKindAndFileID(t *testing.T) {
	s := New()
	s.RecordFailure(domain.KindNetworkTransient, "file-1")
	s.RecordFailure(domain.KindNetworkTransient, "file-2")
	s.RecordFailure(domain.KindAuthFailed, "file-3")

	if s.ErrorsByKind[domain.KindNetworkTransient] != 2 {
		t.Fatalf("expected 2 network-transient failures, got %d", s.ErrorsByKind[domain.KindNetworkTransient])
	}
	if len(s.FailedFileIDs) != 3 {
		t.Fatalf("expected 3 failed file ids, got %v", s.FailedFileIDs)
	}
}

func TestSuccessRate(t *testing.T) {
	s := New()
	if s.SuccessRate() != 0 {
		t.Fatalf("expected 0 success rate with no attempts")
	}
	s.RecordSuccess(1, time.Millisecond)
	s.RecordSuccess(1, time.Millisecond)
	s.RecordFailure(domain.KindInvalidData, "")
	if rate := s.SuccessRate(); rate < 0.66 || rate > 0.67 {
		t.Fatalf("expected ~0.667 success rate, got %f", rate)
	}
}

func TestRunIDIsUniquePerInstance(t *testing.T) {
	a, b := New(), New()
	if a.RunID == "" || b.RunID == "" {
		t.Fatalf("expected non-empty run ids")
	}
	if a.RunID == b.RunID {
		t.Fatalf("expected distinct run ids across Stats instances")
	}
}

func TestSummaryIncludesRunIDAndErrorKinds(t *testing.T) {
	s := New()
	s.RecordFailure(domain.KindRateLimited, "f1")
	summary := s.Summary()
	if !strings.Contains(summary, s.RunID) {
		t.Fatalf("expected summary to include run id, got %q", summary)
	}
	if !strings.Contains(summary, "rate_limited") && !strings.Contains(strings.ToLower(summary), "ratelimited") {
		// Fall back to checking the kind appears at all, regardless of String() casing.
		if !strings.Contains(summary, domain.KindRateLimited.String()) {
			t.Fatalf("expected summary to mention the failed error kind, got %q", summary)
		}
	}
}
