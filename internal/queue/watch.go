package queue

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// waitForDescriptor blocks until a descriptor file is available in the
// inbound directory and returns its path. It prefers filesystem
// notifications, with a polling ticker as a safety net (notifications can
// be dropped under load, and some filesystems do not deliver them at all).
// Returns ctx.Err() on cancellation.
func (d *Director) waitForDescriptor(ctx context.Context) (string, error) {
	// Fast path: work may already be queued.
	if path := d.scanInbound(); path != "" {
		return path, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warn("filesystem watcher unavailable, polling only",
			slog.String("error", err.Error()),
		)

		return d.pollInbound(ctx)
	}

	defer watcher.Close()

	if err := watcher.Add(d.dirs.Inbound()); err != nil {
		d.logger.Warn("cannot watch inbound directory, polling only",
			slog.String("error", err.Error()),
		)

		return d.pollInbound(ctx)
	}

	// A file created between the first scan and Add would be missed.
	if path := d.scanInbound(); path != "" {
		return path, nil
	}

	ticker := time.NewTicker(d.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return d.pollInbound(ctx)
			}

			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}

			if path := d.scanInbound(); path != "" {
				return path, nil
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return d.pollInbound(ctx)
			}

			d.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
			)

		case <-ticker.C:
			if path := d.scanInbound(); path != "" {
				return path, nil
			}
		}
	}
}

// pollInbound is the watcher-less fallback: scan on a fixed interval.
func (d *Director) pollInbound(ctx context.Context) (string, error) {
	ticker := time.NewTicker(d.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			if path := d.scanInbound(); path != "" {
				return path, nil
			}
		}
	}
}

// scanInbound returns one descriptor file from the inbound directory, or ""
// when none is ready. Pickup order is not contractual; the sort just makes
// it deterministic.
func (d *Director) scanInbound() string {
	matches, err := filepath.Glob(filepath.Join(d.dirs.Inbound(), "*.json"))
	if err != nil || len(matches) == 0 {
		return ""
	}

	sort.Strings(matches)

	for _, m := range matches {
		// Skip editors' and uploaders' hidden temp files.
		if strings.HasPrefix(filepath.Base(m), ".") {
			continue
		}

		return m
	}

	return ""
}
