// Package history keeps a queryable SQLite record of every processed
// descriptor, alongside the append-only text journal. One row per pickup:
// inserted when the director claims a descriptor, finalized when the entry
// reaches completed or failed.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // sqlite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Row is one processed descriptor.
type Row struct {
	ID         int64
	Descriptor string
	JobID      string
	Status     string
	OutputFile string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Ledger is the sqlite-backed job history.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the history database at path and applies
// pending schema migrations. The connection is capped at one writer — the
// director is the sole user.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: creating directory for %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// runMigrations applies pending schema migrations via the goose v3 Provider
// API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("history: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("history: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied history migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Begin inserts a row for a freshly picked-up descriptor and returns its id.
func (l *Ledger) Begin(descriptor string, startedAt time.Time) (int64, error) {
	res, err := l.db.Exec(
		`INSERT INTO job_history (descriptor, started_at) VALUES (?, ?)`,
		descriptor, startedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("history: inserting row: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: reading row id: %w", err)
	}

	return id, nil
}

// Finish finalizes a row with the terminal outcome.
func (l *Ledger) Finish(rowID int64, jobID, status, outputFile, detail string, finishedAt time.Time) error {
	_, err := l.db.Exec(
		`UPDATE job_history
		 SET job_id = ?, status = ?, output_file = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		jobID, status, outputFile, detail, finishedAt.Unix(), rowID,
	)
	if err != nil {
		return fmt.Errorf("history: finalizing row %d: %w", rowID, err)
	}

	return nil
}

// Recent returns the most recently started rows, newest first.
func (l *Ledger) Recent(limit int) ([]Row, error) {
	rows, err := l.db.Query(
		`SELECT id, descriptor, job_id, status, output_file, error, started_at, COALESCE(finished_at, 0)
		 FROM job_history ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: querying rows: %w", err)
	}

	defer rows.Close()

	var out []Row

	for rows.Next() {
		var (
			r        Row
			started  int64
			finished int64
		)

		if err := rows.Scan(&r.ID, &r.Descriptor, &r.JobID, &r.Status, &r.OutputFile, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("history: scanning row: %w", err)
		}

		r.StartedAt = time.Unix(started, 0).UTC()
		if finished > 0 {
			r.FinishedAt = time.Unix(finished, 0).UTC()
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating rows: %w", err)
	}

	return out, nil
}
