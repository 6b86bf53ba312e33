// Package bulkcopy drives a high-throughput copy mechanism over whole folders.
package bulkcopy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/courier/internal/model"
)

// EventKind identifies a mechanism event.
type EventKind int

// Event kinds.
const (
	EventFileCopied EventKind = iota
	EventFileSkipped
	EventError
)

// Event is emitted by a mechanism while a copy runs.
type Event struct {
	Path    string // relative to the source root
	Message string
	Size    int64
	Code    int
	Kind    EventKind
}

// Totals are the counts a dry run expects to copy.
type Totals struct {
	Files int
	Dirs  int
	Bytes int64
}

// RunResult is the final structured result of a live run.
type RunResult struct {
	Counts   model.TransferCounts
	ExitCode int
}

// Mechanism is the external bulk-copy tool the engine wraps.
//
// Run must not send on events after it returns; the engine closes the channel.
type Mechanism interface {
	Name() string
	List(ctx context.Context, source, destination string, cfg model.CopyConfiguration) (Totals, error)
	Run(ctx context.Context, source, destination string, cfg model.CopyConfiguration, events chan<- Event) (RunResult, error)
	Stop() error
}

// New returns the mechanism registered under name.
func New(name, rsyncPath string, logger *slog.Logger) (Mechanism, error) {
	switch name {
	case "native", "":
		return NewNative(logger), nil
	case "rsync":
		return NewRsync(rsyncPath, logger), nil
	default:
		return nil, fmt.Errorf("unknown bulk copy mechanism %q", name)
	}
}
