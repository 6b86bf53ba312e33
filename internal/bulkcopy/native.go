package bulkcopy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/model"
)

const (
	defaultBufferSize = 1 << 20
	mtimeTolerance    = 2 * time.Second
)

// Native is an in-process copy mechanism with a worker pool. It reports its
// result with the same exit status bits as external tools.
type Native struct {
	logger *slog.Logger
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewNative creates the in-process mechanism.
func NewNative(logger *slog.Logger) *Native {
	return &Native{logger: common.LoggerOrDefault(logger)}
}

// Name implements Mechanism.
func (n *Native) Name() string { return "native" }

// copyPlan is the work a run will perform, computed before anything is written.
type copyPlan struct {
	dirs       []sourceEntry
	copies     []sourceEntry
	skipped    []sourceEntry
	mismatched []sourceEntry
	extras     []string
	counts     model.TransferCounts
}

// List implements Mechanism. An empty destination counts every file.
func (n *Native) List(ctx context.Context, source, destination string, cfg model.CopyConfiguration) (Totals, error) {
	plan, err := n.buildPlan(ctx, source, destination, cfg)
	if err != nil {
		return Totals{}, err
	}

	totals := Totals{Files: len(plan.copies), Dirs: len(plan.dirs)}
	for _, e := range plan.copies {
		totals.Bytes += e.info.Size()
	}
	return totals, nil
}

// Run implements Mechanism.
func (n *Native) Run(ctx context.Context, source, destination string, cfg model.CopyConfiguration, events chan<- Event) (RunResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	n.setCancel(cancel)
	defer n.setCancel(nil)

	plan, err := n.buildPlan(runCtx, source, destination, cfg)
	if err != nil {
		if runCtx.Err() != nil {
			return RunResult{}, canceledErr(ctx)
		}
		events <- Event{Kind: EventError, Path: "", Message: err.Error(), Code: ExitFatal}
		return RunResult{ExitCode: ExitFatal}, nil
	}

	counts := plan.counts
	if cfg.ListOnly {
		counts.FilesSkipped = len(plan.skipped) + len(plan.mismatched)
		return RunResult{Counts: counts, ExitCode: listExitCode(plan)}, nil
	}

	if err := os.MkdirAll(destination, 0o750); err != nil {
		events <- Event{Kind: EventError, Message: fmt.Sprintf("create destination: %v", err), Code: ExitFatal}
		return RunResult{Counts: counts, ExitCode: ExitFatal}, nil
	}
	counts.DirsCopied += n.createDirs(destination, plan, cfg, events)

	for _, e := range append(plan.skipped, plan.mismatched...) {
		counts.FilesSkipped++
		counts.BytesSkipped += e.info.Size()
		events <- Event{Kind: EventFileSkipped, Path: e.rel, Size: e.info.Size()}
	}

	copied := n.copyAll(runCtx, source, destination, plan.copies, cfg, &counts, events)
	if runCtx.Err() != nil {
		return RunResult{Counts: counts}, canceledErr(ctx)
	}

	extrasLeft := len(plan.extras)
	if cfg.Mirror || cfg.Purge {
		extrasLeft = n.purge(destination, plan.extras, events)
	}

	if cfg.Move {
		n.removeMoved(source, copied, plan.dirs)
	}

	code := ExitNoChange
	if counts.FilesCopied > 0 {
		code |= ExitCopied
	}
	if extrasLeft > 0 {
		code |= ExitExtra
	}
	if len(plan.mismatched) > 0 {
		code |= ExitMismatched
	}
	if counts.FilesFailed > 0 || counts.DirsFailed > 0 {
		code |= ExitFailed
	}
	return RunResult{Counts: counts, ExitCode: code}, nil
}

// Stop cancels the run in progress, if any.
func (n *Native) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		n.cancel()
	}
	return nil
}

func (n *Native) setCancel(cancel context.CancelFunc) {
	n.mu.Lock()
	n.cancel = cancel
	n.mu.Unlock()
}

func canceledErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return context.Canceled
}

func listExitCode(plan *copyPlan) int {
	code := ExitNoChange
	if len(plan.copies) > 0 {
		code |= ExitCopied
	}
	if len(plan.extras) > 0 {
		code |= ExitExtra
	}
	if len(plan.mismatched) > 0 {
		code |= ExitMismatched
	}
	return code
}

func (n *Native) buildPlan(ctx context.Context, source, destination string, cfg model.CopyConfiguration) (*copyPlan, error) {
	dirs, files, err := walkSource(ctx, source, cfg)
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}

	plan := &copyPlan{dirs: dirs}
	plan.counts.DirsScanned = len(dirs) + 1
	plan.counts.FilesScanned = len(files)

	for _, e := range files {
		plan.counts.BytesTotal += e.info.Size()
		if destination == "" {
			plan.copies = append(plan.copies, e)
			continue
		}

		st, err := os.Stat(filepath.Join(destination, filepath.FromSlash(e.rel)))
		switch {
		case err != nil:
			plan.copies = append(plan.copies, e)
		case st.IsDir():
			plan.mismatched = append(plan.mismatched, e)
		case sameFile(e.info, st):
			plan.skipped = append(plan.skipped, e)
		default:
			plan.copies = append(plan.copies, e)
		}
	}

	if destination != "" {
		plan.extras, err = findExtras(ctx, destination, dirs, files, cfg)
		if err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
	}
	return plan, nil
}

func sameFile(src, dst fs.FileInfo) bool {
	return src.Size() == dst.Size() && src.ModTime().Sub(dst.ModTime()).Abs() < mtimeTolerance
}

// findExtras lists destination entries with no source counterpart, deepest first.
func findExtras(ctx context.Context, destination string, dirs, files []sourceEntry, cfg model.CopyConfiguration) ([]string, error) {
	known := make(map[string]bool, len(dirs)+len(files))
	for _, e := range dirs {
		known[e.rel] = true
	}
	for _, e := range files {
		known[e.rel] = true
	}

	f := newFilter(cfg)
	var extras []string
	err := filepath.WalkDir(destination, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == destination {
			return nil
		}

		rel, err := filepath.Rel(destination, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if !cfg.CopySubdirectories || !f.dir(rel) {
				return filepath.SkipDir
			}
			if !known[rel] {
				extras = append(extras, rel)
				return filepath.SkipDir
			}
			return nil
		}
		if !known[rel] && f.file(rel) {
			extras = append(extras, rel)
		}
		return nil
	})
	sort.Sort(sort.Reverse(sort.StringSlice(extras)))
	return extras, err
}

func (n *Native) createDirs(destination string, plan *copyPlan, cfg model.CopyConfiguration, events chan<- Event) int {
	needed := make(map[string]bool)
	for _, e := range plan.copies {
		for dir := path.Dir(e.rel); dir != "."; dir = path.Dir(dir) {
			needed[dir] = true
		}
	}

	created := 0
	for _, d := range plan.dirs {
		if !cfg.IncludeEmptyDirs && !needed[d.rel] {
			continue
		}
		target := filepath.Join(destination, filepath.FromSlash(d.rel))
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := os.MkdirAll(target, 0o750); err != nil {
			events <- Event{Kind: EventError, Path: d.rel, Message: err.Error(), Code: ExitFailed}
			continue
		}
		created++
	}
	return created
}

// copyAll copies entries with cfg.Threads workers and returns the ones that succeeded.
func (n *Native) copyAll(ctx context.Context, source, destination string, entries []sourceEntry, cfg model.CopyConfiguration, counts *model.TransferCounts, events chan<- Event) []sourceEntry {
	limiter := newBandwidthLimiter(cfg.BandwidthLimit)
	defer limiter.Close()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		copied []sourceEntry
	)
	jobs := make(chan sourceEntry)

	for i := 0; i < max(cfg.Threads, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range jobs {
				err := copyFile(ctx, source, destination, e, cfg, limiter)
				if err != nil && ctx.Err() != nil {
					continue
				}

				mu.Lock()
				if err != nil {
					counts.FilesFailed++
					counts.BytesFailed += e.info.Size()
				} else {
					counts.FilesCopied++
					counts.BytesCopied += e.info.Size()
					copied = append(copied, e)
				}
				mu.Unlock()

				if err != nil {
					n.logger.Warn("file copy failed", "path", e.rel, "error", err)
					events <- Event{Kind: EventError, Path: e.rel, Message: err.Error(), Code: ExitFailed}
				} else {
					events <- Event{Kind: EventFileCopied, Path: e.rel, Size: e.info.Size()}
				}
			}
		}()
	}

feed:
	for _, e := range entries {
		select {
		case jobs <- e:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return copied
}

func copyFile(ctx context.Context, source, destination string, e sourceEntry, cfg model.CopyConfiguration, limiter *bandwidthLimiter) error {
	srcPath := filepath.Join(source, filepath.FromSlash(e.rel))
	dstPath := filepath.Join(destination, filepath.FromSlash(e.rel))

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o750); err != nil {
		return err
	}

	in, err := os.Open(srcPath) //nolint:gosec // path comes from walking the source root
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640) //nolint:gosec // destination is resolved by the caller
	if err != nil {
		return err
	}

	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}

	// Hide ReadFrom so the configured buffer is actually used.
	writer := struct{ io.Writer }{out}
	reader := &throttledReader{ctx: ctx, r: in, limiter: limiter}
	if _, err := io.CopyBuffer(writer, reader, make([]byte, bufSize)); err != nil {
		_ = out.Close()
		_ = os.Remove(dstPath)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if cfg.PreserveAttributes {
		if err := os.Chmod(dstPath, e.info.Mode().Perm()); err != nil {
			return err
		}
	}
	if cfg.PreserveTimestamps {
		mtime := e.info.ModTime()
		if err := os.Chtimes(dstPath, mtime, mtime); err != nil {
			return err
		}
	}
	return nil
}

// purge deletes extras and returns how many could not be removed.
func (n *Native) purge(destination string, extras []string, events chan<- Event) int {
	left := 0
	for _, rel := range extras {
		if err := os.RemoveAll(filepath.Join(destination, filepath.FromSlash(rel))); err != nil {
			left++
			events <- Event{Kind: EventError, Path: rel, Message: fmt.Sprintf("purge: %v", err), Code: ExitExtra}
			continue
		}
		n.logger.Debug("purged extra destination entry", "path", rel)
	}
	return left
}

// removeMoved deletes copied source files and any directories left empty.
func (n *Native) removeMoved(source string, copied, dirs []sourceEntry) {
	for _, e := range copied {
		if err := os.Remove(filepath.Join(source, filepath.FromSlash(e.rel))); err != nil {
			n.logger.Warn("could not remove moved source file", "path", e.rel, "error", err)
		}
	}

	rels := make([]string, 0, len(dirs))
	for _, d := range dirs {
		rels = append(rels, d.rel)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(rels)))
	for _, rel := range rels {
		_ = os.Remove(filepath.Join(source, filepath.FromSlash(rel)))
	}
}
