package progress

import (
	"sync"

	"github.com/Veraticus/courier/internal/model"
)

// Cumulative joins the snapshots of successive attempts at one transfer into
// a single stream. Each attempt estimates only what is left to copy, so its
// snapshots are shifted by what earlier attempts already copied. Percent never
// goes backwards.
type Cumulative struct {
	sink        Sink
	baseFiles   int
	baseBytes   int64
	totalFiles  int
	totalBytes  int64
	lastPercent int
	mu          sync.Mutex
}

// NewCumulative wraps sink. A nil sink discards snapshots.
func NewCumulative(sink Sink) *Cumulative {
	if sink == nil {
		sink = Discard
	}
	return &Cumulative{sink: sink}
}

// Sink returns the sink to hand to each attempt.
func (c *Cumulative) Sink() Sink {
	return c.forward
}

// Resume records what a finished attempt copied before the next one starts.
func (c *Cumulative) Resume(files int, bytes int64) {
	c.mu.Lock()
	c.baseFiles += files
	c.baseBytes += bytes
	c.mu.Unlock()
}

func (c *Cumulative) forward(s model.ProgressSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s.CompletedFiles += c.baseFiles
	s.BytesTransferred += c.baseBytes
	c.totalFiles = max(c.totalFiles, s.TotalFiles+c.baseFiles)
	c.totalBytes = max(c.totalBytes, s.TotalBytes+c.baseBytes)
	s.TotalFiles = c.totalFiles
	s.TotalBytes = c.totalBytes

	if s.Percent < 100 {
		s.Percent = Percent(s.BytesTransferred, s.TotalBytes, s.CompletedFiles, s.TotalFiles)
		s.ETA = ETA(s.BytesTransferred, s.TotalBytes, s.Throughput)
	}
	s.Percent = max(s.Percent, c.lastPercent)
	c.lastPercent = s.Percent

	c.sink(s)
}
