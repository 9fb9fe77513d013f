package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"skyq/internal/job"
	"skyq/internal/journal"
)

// DefaultScanInterval is the fallback polling cadence for the inbound
// directory when filesystem notifications are quiet or unavailable.
const DefaultScanInterval = 5 * time.Second

// DefaultArchiveAge is how old a completed artifact must be before the
// sweep relocates it into the archive.
const DefaultArchiveAge = 6 * 24 * time.Hour

// Runner drives one descriptor through submission, polling, and download.
// internal/job's Controller is the real implementation.
type Runner interface {
	Run(ctx context.Context, d *job.Descriptor, requestFile, destDir string) (artifact, jobID string, err error)
}

// History records processed descriptors for later querying. Optional; a nil
// History disables recording. Failures are logged, never fatal.
type History interface {
	Begin(descriptor string, startedAt time.Time) (int64, error)
	Finish(rowID int64, jobID, status, outputFile, detail string, finishedAt time.Time) error
}

// Director is the single consumer of the inbound queue: it picks one
// descriptor at a time, dispatches it through the Runner, and relocates
// descriptor + artifact according to the outcome. Strictly sequential —
// one descriptor is fully resolved before the next is considered.
type Director struct {
	dirs    Dirs
	runner  Runner
	journal job.Recorder
	history History
	logger  *slog.Logger

	scanInterval time.Duration
	archiveAge   time.Duration

	// now is overridable in tests for the archive age threshold.
	now func() time.Time
}

// NewDirector wires a Director. rec must not be nil (use the journal);
// hist may be nil. Zero intervals select the defaults.
func NewDirector(
	dirs Dirs,
	runner Runner,
	rec job.Recorder,
	hist History,
	scanInterval, archiveAge time.Duration,
	logger *slog.Logger,
) *Director {
	if logger == nil {
		logger = slog.Default()
	}

	if scanInterval <= 0 {
		scanInterval = DefaultScanInterval
	}

	if archiveAge <= 0 {
		archiveAge = DefaultArchiveAge
	}

	return &Director{
		dirs:         dirs,
		runner:       runner,
		journal:      rec,
		history:      hist,
		logger:       logger,
		scanInterval: scanInterval,
		archiveAge:   archiveAge,
		now:          time.Now,
	}
}

// Run is the queue loop: wait for a descriptor, process it, sweep the
// archive, repeat. No error from one descriptor terminates the loop; Run
// returns only when ctx is canceled.
func (d *Director) Run(ctx context.Context) error {
	if err := d.dirs.EnsureAll(); err != nil {
		return err
	}

	d.logger.Info("queue director started",
		slog.String("inbound", d.dirs.Inbound()),
	)

	for {
		path, err := d.waitForDescriptor(ctx)
		if err != nil {
			d.logger.Info("queue director stopping", slog.String("reason", err.Error()))
			return err
		}

		d.Process(ctx, path)

		d.sweepArchive()
	}
}

// Process drives a single descriptor file to a terminal location. Every
// error converts into a failed-queue relocation plus a journal entry — the
// descriptor stays in inbound only until one terminal move succeeds, so a
// crash mid-processing is recovered by simply restarting the loop.
func (d *Director) Process(ctx context.Context, path string) {
	name := filepath.Base(path)

	d.journal.Event(journal.Entry{RequestFile: name, Status: "New request file"})

	rowID := d.historyBegin(name)

	desc, err := readDescriptor(path)
	if err != nil {
		d.fail(path, name, "", "", err, rowID)
		return
	}

	artifact, jobID, err := d.runner.Run(ctx, desc, name, d.dirs.Inbound())
	if err != nil {
		d.fail(path, name, jobID, artifact, err, rowID)
		return
	}

	d.complete(path, name, jobID, artifact, rowID)
}

// complete performs the success transition: artifact first, then the
// descriptor. If the descriptor move fails the file stays inbound and the
// next loop iteration retries the whole job.
func (d *Director) complete(path, name, jobID, artifact string, rowID int64) {
	outputName := ""

	if artifact != "" {
		dest, err := d.dirs.Move(artifact, StateCompleted)
		if err != nil {
			d.fail(path, name, jobID, artifact, err, rowID)
			return
		}

		outputName = filepath.Base(dest)
	}

	if _, err := d.dirs.Move(path, StateCompleted); err != nil {
		d.logger.Error("descriptor stuck in inbound, will retry",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
		d.journal.Event(journal.Entry{
			JobID:       jobID,
			RequestFile: name,
			Status:      "FAILED",
			Detail:      err.Error(),
		})

		return
	}

	d.logger.Info("descriptor completed",
		slog.String("file", name),
		slog.String("job_id", jobID),
		slog.String("output", outputName),
	)
	d.journal.Event(journal.Entry{
		JobID:       jobID,
		RequestFile: name,
		Status:      "Complete",
		OutputFile:  outputName,
	})

	d.historyFinish(rowID, jobID, "Complete", outputName, "")
}

// fail performs the failure transition: the descriptor and any partially
// downloaded artifact both land in failed/, and the triggering error is
// journaled with full detail.
func (d *Director) fail(path, name, jobID, artifact string, cause error, rowID int64) {
	d.logger.Error("descriptor failed",
		slog.String("file", name),
		slog.String("job_id", jobID),
		slog.String("error", cause.Error()),
	)

	if artifact != "" {
		if _, err := os.Stat(artifact); err == nil {
			if _, mvErr := d.dirs.Move(artifact, StateFailed); mvErr != nil {
				d.logger.Warn("failed to move partial artifact",
					slog.String("artifact", artifact),
					slog.String("error", mvErr.Error()),
				)
			}
		}
	}

	if _, err := d.dirs.Move(path, StateFailed); err != nil {
		d.logger.Error("descriptor stuck in inbound, will retry",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
	}

	d.journal.Event(journal.Entry{
		JobID:       jobID,
		RequestFile: name,
		Status:      "FAILED",
		Detail:      cause.Error(),
	})

	d.historyFinish(rowID, jobID, "FAILED", "", cause.Error())
}

func (d *Director) historyBegin(name string) int64 {
	if d.history == nil {
		return 0
	}

	rowID, err := d.history.Begin(name, d.now().UTC())
	if err != nil {
		d.logger.Warn("history record failed", slog.String("error", err.Error()))
		return 0
	}

	return rowID
}

func (d *Director) historyFinish(rowID int64, jobID, status, output, detail string) {
	if d.history == nil || rowID == 0 {
		return
	}

	if err := d.history.Finish(rowID, jobID, status, output, detail, d.now().UTC()); err != nil {
		d.logger.Warn("history record failed", slog.String("error", err.Error()))
	}
}

// readDescriptor loads and decodes one queue JSON file.
func readDescriptor(path string) (*job.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("queue: reading descriptor: %w", err)
	}

	var desc job.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("queue: decoding descriptor %s: %w", filepath.Base(path), err)
	}

	return &desc, nil
}
