// Package stats implements DownloadStats, the per-run counters
// summarized at end of run.
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/h33h/TelegramBackup/internal/domain"
)

// Stats accumulates counters across one ProcessEntity run. Safe for
// concurrent use by Download Executor workers.
type Stats struct {
	mu sync.Mutex

	// RunID identifies this ProcessEntity invocation in logs, independent
	// of any database primary key.
	RunID string

	TotalFiles           int
	SuccessfulDownloads  int
	FailedDownloads      int
	SkippedFiles         int
	TotalBytesDownloaded int64
	TotalBytesSkipped    int64
	TotalRetries         int
	FilesRequiringRetry  int
	ErrorsByKind         map[domain.ErrorKind]int
	FailedFileIDs        []string

	StartTime         time.Time
	TotalDownloadTime time.Duration
}

// New starts a fresh Stats with StartTime set to now.
func New() *Stats {
	return &Stats{
		RunID:        uuid.NewString(),
		ErrorsByKind: make(map[domain.ErrorKind]int),
		StartTime:    time.Now(),
	}
}

// RecordSuccess accounts one completed download of size bytes, taking
// elapsed wall-clock time dur.
func (s *Stats) RecordSuccess(bytes int64, dur time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalFiles++
	s.SuccessfulDownloads++
	s.TotalBytesDownloaded += bytes
	s.TotalDownloadTime += dur
}

// RecordFailure accounts one terminally failed download attributed to
// kind, identified by fileID for later diagnosis.
func (s *Stats) RecordFailure(kind domain.ErrorKind, fileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalFiles++
	s.FailedDownloads++
	s.ErrorsByKind[kind]++
	if fileID != "" {
		s.FailedFileIDs = append(s.FailedFileIDs, fileID)
	}
}

// RecordSkip accounts one item that was never attempted (size limit,
// already present, etc.).
func (s *Stats) RecordSkip(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalFiles++
	s.SkippedFiles++
	s.TotalBytesSkipped += bytes
}

// RecordRetry accounts one retry attempt for an item, marking the item
// itself counted toward FilesRequiringRetry only the first time.
func (s *Stats) RecordRetry(fileID string, isFirstRetryForFile bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalRetries++
	if isFirstRetryForFile {
		s.FilesRequiringRetry++
	}
}

// SuccessRate returns the fraction of attempted (non-skipped) files that
// succeeded, or 0 when nothing was attempted.
func (s *Stats) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempted := s.SuccessfulDownloads + s.FailedDownloads
	if attempted == 0 {
		return 0
	}
	return float64(s.SuccessfulDownloads) / float64(attempted)
}

// AverageSpeed returns bytes/sec averaged over TotalDownloadTime, or 0
// when no download time has accumulated.
func (s *Stats) AverageSpeed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TotalDownloadTime <= 0 {
		return 0
	}
	return float64(s.TotalBytesDownloaded) / s.TotalDownloadTime.Seconds()
}

// Elapsed returns wall-clock time since the run started.
func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.StartTime)
}

// Summary renders the multi-line end-of-run report.
func (s *Stats) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := fmt.Sprintf(
		"run %s\n"+
			"files: %d total, %d ok, %d failed, %d skipped\n"+
			"bytes: %d downloaded, %d skipped\n"+
			"retries: %d (%d files required one)\n"+
			"success rate: %.1f%%  avg speed: %.1f KiB/s  elapsed: %s\n",
		s.RunID,
		s.TotalFiles, s.SuccessfulDownloads, s.FailedDownloads, s.SkippedFiles,
		s.TotalBytesDownloaded, s.TotalBytesSkipped,
		s.TotalRetries, s.FilesRequiringRetry,
		s.successRateLocked()*100, s.averageSpeedLocked()/1024, time.Since(s.StartTime).Round(time.Second),
	)

	if len(s.ErrorsByKind) > 0 {
		out += "errors by kind:\n"
		for kind, count := range s.ErrorsByKind {
			out += fmt.Sprintf("  %s: %d\n", kind, count)
		}
	}

	return out
}

func (s *Stats) successRateLocked() float64 {
	attempted := s.SuccessfulDownloads + s.FailedDownloads
	if attempted == 0 {
		return 0
	}
	return float64(s.SuccessfulDownloads) / float64(attempted)
}

func (s *Stats) averageSpeedLocked() float64 {
	if s.TotalDownloadTime <= 0 {
		return 0
	}
	return float64(s.TotalBytesDownloaded) / s.TotalDownloadTime.Seconds()
}
