package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"skyq/internal/journal"
)

// SKY query endpoints.
const (
	executeEndpoint      = "/query/queries/executebyid"
	executeAdHocEndpoint = "/query/queries/execute"
	jobStatusEndpoint    = "/query/jobs/"
)

// Polling defaults, from the query service's guidance.
const (
	DefaultPollInterval = 8 * time.Second
	DefaultMaxPoll      = 7 * 24 * time.Hour
)

// API is the slice of the SKY client the controller uses. Defined here per
// "accept interfaces, return structs"; internal/sky provides the real one.
type API interface {
	Request(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error)
	Download(ctx context.Context, signedURL, destPath string) (string, error)
}

// Recorder receives lifecycle events for the audit journal. Implementations
// must never fail the job on write errors.
type Recorder interface {
	Event(e journal.Entry)
}

// nopRecorder drops events; used when no journal is wired.
type nopRecorder struct{}

func (nopRecorder) Event(journal.Entry) {}

// Controller submits a job, polls it to a terminal state, and fetches the
// result artifact.
type Controller struct {
	api      API
	journal  Recorder
	logger   *slog.Logger
	interval time.Duration
	maxPoll  time.Duration

	// sleepFunc waits between polls. Tests override it to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewController creates a Controller. Zero interval/maxPoll select the
// defaults; a nil rec discards journal events.
func NewController(api API, rec Recorder, interval, maxPoll time.Duration, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	if rec == nil {
		rec = nopRecorder{}
	}

	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if maxPoll <= 0 {
		maxPoll = DefaultMaxPoll
	}

	return &Controller{
		api:       api,
		journal:   rec,
		logger:    logger,
		interval:  interval,
		maxPoll:   maxPoll,
		sleepFunc: timeSleep,
	}
}

// Submit posts the descriptor in its mode's shape and returns the created
// job record plus the query params the status endpoint expects back.
func (c *Controller) Submit(ctx context.Context, d *Descriptor) (Record, url.Values, error) {
	var (
		path   string
		params url.Values
		body   any
	)

	switch d.Mode() {
	case ModeGenerated:
		path = executeAdHocEndpoint
		// The ad-hoc endpoint wants the whole descriptor as the body and
		// fixed product/module params.
		params = url.Values{"product": {"RE"}, "module": {"None"}}
		body = d
	default:
		path = executeEndpoint
		params = url.Values{"product": {d.Product}, "module": {d.Module}}
		body = standardBody(d)
	}

	raw, err := c.api.Request(ctx, http.MethodPost, path, params, body)
	if err != nil {
		return Record{}, nil, fmt.Errorf("job: submitting query: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, nil, fmt.Errorf("job: decoding submission response: %w", err)
	}

	if rec.ID == "" {
		return Record{}, nil, ErrNoJobID
	}

	c.logger.Info("job submitted",
		slog.String("job_id", string(rec.ID)),
		slog.String("mode", string(d.Mode())),
	)

	return rec, params, nil
}

// standardBody strips the routing fields: product and module travel as query
// params, everything else (id plus options) is the body.
func standardBody(d *Descriptor) *Descriptor {
	b := *d
	b.Product = ""
	b.Module = ""
	b.Query = nil

	return &b
}

// Await polls the job until it reaches a terminal status or the bounded
// maximum wait elapses. Completed returns the record (carrying the signed
// result URL); Failed/Cancelled/Throttled return a TerminalError; exceeding
// the bound returns TerminalError{StatusTimedOut}, reported exactly like a
// failure and never retried automatically.
func (c *Controller) Await(ctx context.Context, id string, params url.Values) (Record, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}

	// OnceCompleted makes the terminal poll response carry the signed URL.
	q.Set("include_read_url", "OnceCompleted")
	q.Set("content_disposition", "Attachment")

	path := jobStatusEndpoint + url.PathEscape(id)
	last := Status("")

	for elapsed := time.Duration(0); elapsed < c.maxPoll; elapsed += c.interval {
		raw, err := c.api.Request(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return Record{}, fmt.Errorf("job: polling status: %w", err)
		}

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return Record{}, fmt.Errorf("job: decoding status response: %w", err)
		}

		if rec.Status != last {
			last = rec.Status
			c.logger.Info("job status changed",
				slog.String("job_id", id),
				slog.String("status", string(rec.Status)),
			)
			c.journal.Event(journal.Entry{
				JobID:  id,
				Status: "Job status: " + string(rec.Status),
			})
		}

		switch {
		case rec.Status == StatusCompleted:
			return rec, nil
		case rec.Status.Terminal():
			return rec, &TerminalError{Status: rec.Status}
		}

		if err := c.sleepFunc(ctx, c.interval); err != nil {
			return Record{}, fmt.Errorf("job: polling canceled: %w", err)
		}
	}

	c.logger.Error("polling timed out",
		slog.String("job_id", id),
		slog.Duration("max_poll", c.maxPoll),
	)

	return Record{}, &TerminalError{Status: StatusTimedOut}
}

// Run drives one descriptor end to end: validate, submit, poll when the
// descriptor is synchronous, download. Returns the artifact path ("" for an
// asynchronous job — no result is ever fetched inline for those) and the
// job id for journaling — the id is returned even on error once known.
func (c *Controller) Run(ctx context.Context, d *Descriptor, requestFile, destDir string) (string, string, error) {
	if err := d.Validate(); err != nil {
		return "", "", err
	}

	c.journal.Event(journal.Entry{RequestFile: requestFile, Status: "Processing"})

	rec, params, err := c.Submit(ctx, d)
	if err != nil {
		return "", "", err
	}

	id := string(rec.ID)

	c.journal.Event(journal.Entry{JobID: id, RequestFile: requestFile, Status: "Job created"})

	// Asynchronous: the submission response is the job record; no polling,
	// no inline result fetch.
	if !d.Synchronous() {
		return "", id, nil
	}

	c.journal.Event(journal.Entry{
		JobID:       id,
		RequestFile: requestFile,
		Status:      fmt.Sprintf("Polling status every %v...", c.interval),
	})

	rec, err = c.Await(ctx, id, params)
	if err != nil {
		return "", id, err
	}

	dest := filepath.Join(destDir, d.OutputName())

	artifact, err := c.api.Download(ctx, rec.SignedURL, dest)
	if err != nil {
		return artifact, id, fmt.Errorf("job: fetching artifact: %w", err)
	}

	c.journal.Event(journal.Entry{
		JobID:       id,
		RequestFile: requestFile,
		Status:      "File downloaded",
		OutputFile:  filepath.Base(artifact),
	})

	return artifact, id, nil
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
