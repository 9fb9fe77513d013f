// Package journal is the append-only record of job lifecycle events.
// Every submission, status transition, success, and failure lands here with
// a timestamp. The file is only ever appended to, and a failed write must
// never abort job processing — it degrades to a log warning.
package journal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the journal file created under the log directory.
const FileName = "api_log.txt"

const filePerms = 0o644

// Entry is one lifecycle event. JobID may be empty before submission
// succeeds; OutputFile and Detail are optional.
type Entry struct {
	JobID       string
	RequestFile string
	Status      string
	OutputFile  string
	Detail      string
}

// Journal appends entries to a single text file.
type Journal struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex

	// now is overridable in tests for stable timestamps.
	now func() time.Time
}

// New creates a journal writing to api_log.txt under dir, creating the
// directory and file if needed.
func New(dir string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: creating log directory %s: %w", dir, err)
	}

	j := &Journal{
		path:   filepath.Join(dir, FileName),
		logger: logger,
		now:    time.Now,
	}

	return j, nil
}

// Event appends a formatted lifecycle entry.
func (j *Journal) Event(e Entry) {
	j.append(formatEntry(e, j.now()))
}

// Note appends a free-text line, for events outside any one job
// (startup, archive sweeps).
func (j *Journal) Note(msg string) {
	j.append(msg)
}

// append writes one timestamped block. Errors are reported via slog only:
// the journal is an audit trail, not a gate on job processing.
func (j *Journal) append(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Colon-separated milliseconds; time.Format only supports
	// dot-separated fractions.
	now := j.now().UTC()
	ts := now.Format("2006-01-02_15:04:05") + fmt.Sprintf(":%03d", now.Nanosecond()/int(time.Millisecond))
	block := ts + "\n" + msg + "\n\n"

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerms)
	if err != nil {
		j.logger.Warn("journal write failed",
			slog.String("path", j.path),
			slog.String("error", err.Error()),
		)

		return
	}

	if _, err := f.WriteString(block); err != nil {
		j.logger.Warn("journal write failed",
			slog.String("path", j.path),
			slog.String("error", err.Error()),
		)
	}

	if err := f.Close(); err != nil {
		j.logger.Warn("journal close failed",
			slog.String("path", j.path),
			slog.String("error", err.Error()),
		)
	}
}

// formatEntry renders the job message block. The layout follows the log
// format the previous automation produced, so existing log tooling keeps
// parsing it: a blank line before the block, minute-resolution Time line
// at the end.
func formatEntry(e Entry, now time.Time) string {
	jobID := e.JobID
	if jobID == "" {
		jobID = "N/A"
	}

	lines := []string{
		"",
		"Job Id: " + jobID,
		"Request file: " + e.RequestFile,
		"Status: " + e.Status,
		"Output file: " + e.OutputFile,
	}

	if e.Detail != "" {
		lines = append(lines, "Error message: "+e.Detail)
	}

	lines = append(lines, "Time: "+now.UTC().Format("2006-01-02 15:04"))

	return strings.Join(lines, "\n")
}
