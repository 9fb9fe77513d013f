// Package queue implements the durable file-based job queue: a descriptor's
// directory is its state, and an atomic rename is the only state-transition
// primitive. The Director is the single consumer driving descriptors through
// the job controller.
package queue

import (
	"fmt"
	"os"
	"path/filepath"
)

// Directory names under the queue base, kept from the previous automation
// so existing deployments keep their layout.
const (
	inboundDirName   = "query_request"
	completedDirName = "query_completed"
	failedDirName    = "query_failed"
	archiveDirName   = "archived"
	logDirName       = "api_log"
)

const dirPerms = 0o755

// State is where a queue entry lives. A descriptor exists in exactly one
// state's directory at any time.
type State int

const (
	StateInbound State = iota
	StateCompleted
	StateFailed
	StateArchived
)

func (s State) String() string {
	switch s {
	case StateInbound:
		return "inbound"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateArchived:
		return "archived"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Dirs resolves the queue directories under a base directory. The archive
// nests under completed.
type Dirs struct {
	Base string
}

func (d Dirs) Inbound() string   { return filepath.Join(d.Base, inboundDirName) }
func (d Dirs) Completed() string { return filepath.Join(d.Base, completedDirName) }
func (d Dirs) Failed() string    { return filepath.Join(d.Base, failedDirName) }
func (d Dirs) Archive() string   { return filepath.Join(d.Base, completedDirName, archiveDirName) }
func (d Dirs) Logs() string      { return filepath.Join(d.Base, logDirName) }

// Dir maps a state to its directory.
func (d Dirs) Dir(s State) string {
	switch s {
	case StateCompleted:
		return d.Completed()
	case StateFailed:
		return d.Failed()
	case StateArchived:
		return d.Archive()
	default:
		return d.Inbound()
	}
}

// EnsureAll creates every queue directory.
func (d Dirs) EnsureAll() error {
	for _, dir := range []string{d.Inbound(), d.Completed(), d.Failed(), d.Archive(), d.Logs()} {
		if err := os.MkdirAll(dir, dirPerms); err != nil {
			return fmt.Errorf("queue: creating directory %s: %w", dir, err)
		}
	}

	return nil
}

// Move relocates a file into the given state's directory, keeping its base
// name. The rename is atomic with respect to process crashes: the file is
// never visible in two locations, and on any failure it remains at src.
func (d Dirs) Move(src string, to State) (string, error) {
	dest := filepath.Join(d.Dir(to), filepath.Base(src))

	if err := os.Rename(src, dest); err != nil {
		return "", fmt.Errorf("queue: moving %s to %s: %w", filepath.Base(src), to, err)
	}

	return dest, nil
}
