package queue

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"skyq/internal/journal"
)

// disambiguatorLen is how many uuid characters are inserted when an archive
// name collides.
const disambiguatorLen = 8

// sweepArchive relocates old completed artifacts into the archive and
// journals the count. Sweep errors never affect job processing.
func (d *Director) sweepArchive() {
	moved, err := ArchiveOld(d.dirs, d.archiveAge, d.now(), d.logger)
	if err != nil {
		d.logger.Warn("archive sweep failed", slog.String("error", err.Error()))
		return
	}

	if moved > 0 {
		d.journal.Event(journal.Entry{Status: fmt.Sprintf("Archived %d old files", moved)})
	}
}

// ArchiveOld moves non-descriptor files in completed/ older than age into
// the archive, renaming each with a date prefix from its modification time
// and, on collision, a short random disambiguator. Descriptor (.json) files
// are never auto-archived. Returns how many files moved.
func ArchiveOld(dirs Dirs, age time.Duration, now time.Time, logger *slog.Logger) (int, error) {
	entries, err := os.ReadDir(dirs.Completed())
	if err != nil {
		return 0, fmt.Errorf("queue: listing completed directory: %w", err)
	}

	moved := 0

	for _, entry := range entries {
		if entry.IsDir() || strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logger.Warn("archive sweep: stat failed",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()),
			)

			continue
		}

		if now.Sub(info.ModTime()) <= age {
			continue
		}

		src := filepath.Join(dirs.Completed(), entry.Name())
		dest := archiveName(dirs, info.ModTime(), entry.Name())

		if err := os.Rename(src, dest); err != nil {
			logger.Warn("archive sweep: move failed",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()),
			)

			continue
		}

		logger.Info("archived old artifact",
			slog.String("file", entry.Name()),
			slog.String("dest", filepath.Base(dest)),
		)

		moved++
	}

	return moved, nil
}

// archiveName picks a collision-free destination: date-prefixed, with a
// short uuid inserted when the dated name is already taken.
func archiveName(dirs Dirs, modTime time.Time, name string) string {
	prefix := modTime.Format("2006-01-02") + "_"

	dest := filepath.Join(dirs.Archive(), prefix+name)
	if _, err := os.Stat(dest); err != nil {
		return dest
	}

	short := uuid.NewString()[:disambiguatorLen]

	return filepath.Join(dirs.Archive(), prefix+short+"_"+name)
}
