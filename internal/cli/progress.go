package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/courier/internal/model"
	"github.com/Veraticus/courier/internal/progress"
)

// ProgressBar renders transfer snapshots as a byte progress bar.
// Each folder gets its own bar, started with Start.
type ProgressBar struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	folder string
	mu     sync.Mutex
}

// NewProgressBar creates a progress bar writing to writer.
func NewProgressBar(writer io.Writer) *ProgressBar {
	if writer == nil {
		writer = os.Stderr
	}
	return &ProgressBar{writer: writer}
}

// Start begins a new bar for folder. Any previous bar is finished first.
func (p *ProgressBar) Start(folder string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
	p.folder = folder
}

// Sink returns a progress.Sink that updates the bar.
func (p *ProgressBar) Sink() progress.Sink {
	return p.update
}

// Finish completes the current bar.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *ProgressBar) update(s model.ProgressSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		p.bar = p.newBar(max(s.TotalBytes, 1))
	}

	p.bar.Describe(p.describe(s))
	if err := p.bar.Set64(min(s.BytesTransferred, p.bar.GetMax64())); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

func (p *ProgressBar) describe(s model.ProgressSnapshot) string {
	desc := fmt.Sprintf("[cyan][bold]%s[reset] %d/%d", p.folder, s.CompletedFiles, s.TotalFiles)
	if s.CurrentFile != "" && s.Percent < 100 {
		desc += " " + path.Base(s.CurrentFile)
	}
	return desc
}

func (p *ProgressBar) newBar(total int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

func (p *ProgressBar) finishLocked() {
	if p.bar == nil {
		return
	}
	if !p.bar.IsFinished() {
		if err := p.bar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
	}
	p.bar = nil
}
