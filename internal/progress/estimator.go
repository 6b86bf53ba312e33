// Package progress tracks transfer progress and emits throttled snapshots.
package progress

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Veraticus/courier/internal/model"
)

// EmitInterval is the minimum spacing between two throttled emissions.
const EmitInterval = 500 * time.Millisecond

// Sink receives progress snapshots.
type Sink func(model.ProgressSnapshot)

// Discard is a sink that drops every snapshot.
func Discard(model.ProgressSnapshot) {}

// ChannelSink returns a sink that forwards snapshots to ch until ctx is done.
func ChannelSink(ctx context.Context, ch chan<- model.ProgressSnapshot) Sink {
	return func(s model.ProgressSnapshot) {
		select {
		case ch <- s:
		case <-ctx.Done():
		}
	}
}

// Tee fans a snapshot out to several sinks in order.
func Tee(sinks ...Sink) Sink {
	return func(s model.ProgressSnapshot) {
		for _, sink := range sinks {
			if sink != nil {
				sink(s)
			}
		}
	}
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) { e.now = now }
}

// WithInterval replaces the throttle interval.
func WithInterval(d time.Duration) Option {
	return func(e *Estimator) { e.interval = d }
}

// Estimator accumulates copy counters and computes percent, throughput and ETA.
type Estimator struct {
	start       time.Time
	lastEmit    time.Time
	sink        Sink
	now         func() time.Time
	currentFile string
	interval    time.Duration
	totalBytes  int64
	copiedBytes int64
	totalFiles  int
	copiedFiles int
	emitted     bool
	mu          sync.Mutex
	emitMu      sync.Mutex
}

// NewEstimator creates an estimator that pushes snapshots to sink.
func NewEstimator(sink Sink, opts ...Option) *Estimator {
	if sink == nil {
		sink = Discard
	}
	e := &Estimator{
		sink:     sink,
		now:      time.Now,
		interval: EmitInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.start = e.now()
	return e
}

// Start sets the totals computed up front and restarts the clock.
func (e *Estimator) Start(totalFiles int, totalBytes int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalFiles = totalFiles
	e.totalBytes = totalBytes
	e.copiedFiles = 0
	e.copiedBytes = 0
	e.start = e.now()
	e.emitted = false
}

// SetCurrentFile records the file being copied.
func (e *Estimator) SetCurrentFile(name string) {
	e.mu.Lock()
	e.currentFile = name
	e.mu.Unlock()
}

// AddBytes records partial progress of the current file.
func (e *Estimator) AddBytes(n int64) {
	e.mu.Lock()
	e.copiedBytes += n
	e.mu.Unlock()
	e.maybeEmit()
}

// FileCopied records a finished file of the given size.
func (e *Estimator) FileCopied(name string, size int64) {
	e.mu.Lock()
	e.currentFile = name
	e.copiedFiles++
	e.copiedBytes += size
	e.mu.Unlock()
	e.maybeEmit()
}

// Snapshot returns the current view without emitting it.
func (e *Estimator) Snapshot() model.ProgressSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.now())
}

// Complete always emits a final 100% snapshot with a zero ETA.
func (e *Estimator) Complete() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	now := e.now()
	snap := e.snapshotLocked(now)
	e.lastEmit = now
	e.emitted = true
	e.mu.Unlock()

	zero := time.Duration(0)
	snap.Percent = 100
	snap.ETA = &zero
	e.sink(snap)
}

func (e *Estimator) maybeEmit() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	now := e.now()
	done := e.totalFiles > 0 && e.copiedFiles >= e.totalFiles
	due := !e.emitted || now.Sub(e.lastEmit) >= e.interval
	if !done && !due {
		e.mu.Unlock()
		return
	}
	snap := e.snapshotLocked(now)
	e.lastEmit = now
	e.emitted = true
	e.mu.Unlock()

	e.sink(snap)
}

func (e *Estimator) snapshotLocked(now time.Time) model.ProgressSnapshot {
	elapsed := now.Sub(e.start).Seconds()
	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(e.copiedBytes) / elapsed
	}

	return model.ProgressSnapshot{
		CurrentFile:      e.currentFile,
		CompletedFiles:   e.copiedFiles,
		TotalFiles:       e.totalFiles,
		BytesTransferred: e.copiedBytes,
		TotalBytes:       e.totalBytes,
		Throughput:       throughput,
		Percent:          Percent(e.copiedBytes, e.totalBytes, e.copiedFiles, e.totalFiles),
		ETA:              ETA(e.copiedBytes, e.totalBytes, throughput),
	}
}

// Percent returns the integer completion percentage in [0, 100], preferring
// bytes over files and returning 0 when nothing is known.
func Percent(copiedBytes, totalBytes int64, copiedFiles, totalFiles int) int {
	var p int64
	switch {
	case totalBytes > 0:
		p = ratio(copiedBytes, totalBytes)
	case totalFiles > 0:
		p = ratio(int64(copiedFiles), int64(totalFiles))
	default:
		return 0
	}
	return int(min(max(p, 0), 100))
}

func ratio(done, total int64) int64 {
	if done <= math.MaxInt64/100 {
		return done * 100 / total
	}
	return int64(math.Floor(float64(done) / float64(total) * 100))
}

// ETA returns the remaining time, or nil when it cannot be estimated or the
// transfer is already complete.
func ETA(copiedBytes, totalBytes int64, throughput float64) *time.Duration {
	if throughput <= 0 || totalBytes <= 0 || copiedBytes >= totalBytes {
		return nil
	}
	seconds := float64(totalBytes-copiedBytes) / throughput
	eta := time.Duration(seconds * float64(time.Second))
	return &eta
}
