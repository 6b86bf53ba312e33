package bulkcopy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/model"
)

const (
	outFormat = "%i|%l|%n"
	stopGrace = 10 * time.Second

	// rsync exit statuses with a specific meaning for the bit mapping.
	rsyncPartial   = 23
	rsyncVanished  = 24
	rsyncSignaled  = 20
	rsyncTimeout   = 30
	rsyncConnTimed = 35
)

var (
	statFilesRe       = regexp.MustCompile(`^Number of files:\s*([\d,.]+)(?:\s*\(reg:\s*([\d,.]+)(?:,\s*dir:\s*([\d,.]+))?)?`)
	statTransferredRe = regexp.MustCompile(`^Number of regular files transferred:\s*([\d,.]+)`)
	statTotalSizeRe   = regexp.MustCompile(`^Total file size:\s*([\d,.]+)`)
	statXferSizeRe    = regexp.MustCompile(`^Total transferred file size:\s*([\d,.]+)`)
)

// Rsync drives an external rsync binary.
type Rsync struct {
	logger  *slog.Logger
	cmd     *exec.Cmd
	path    string
	mu      sync.Mutex
	stopped bool
}

// NewRsync creates a mechanism that runs the rsync binary at path.
func NewRsync(path string, logger *slog.Logger) *Rsync {
	if path == "" {
		path = "rsync"
	}
	return &Rsync{path: path, logger: common.LoggerOrDefault(logger)}
}

// Name implements Mechanism.
func (r *Rsync) Name() string { return "rsync" }

// List runs a dry run and reads the totals from its statistics.
func (r *Rsync) List(ctx context.Context, source, destination string, cfg model.CopyConfiguration) (Totals, error) {
	if destination == "" {
		destination = filepath.Join(os.TempDir(), "courier-estimate-"+uuid.NewString())
	}

	args := append(buildArgs(source, destination, cfg), "--dry-run", "--stats")
	cmd := exec.CommandContext(ctx, r.path, args...) //nolint:gosec // binary path comes from configuration
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return Totals{}, ctx.Err()
		}
		return Totals{}, fmt.Errorf("rsync dry run: %w", err)
	}

	var stats rsyncStats
	for _, line := range strings.Split(string(out), "\n") {
		stats.parseLine(strings.TrimSpace(line))
	}
	return Totals{Files: stats.transferred, Dirs: stats.dirs, Bytes: stats.transferredSize}, nil
}

// Run implements Mechanism.
func (r *Rsync) Run(ctx context.Context, source, destination string, cfg model.CopyConfiguration, events chan<- Event) (RunResult, error) {
	args := append(buildArgs(source, destination, cfg), "--stats", "--out-format="+outFormat)
	if cfg.ListOnly {
		args = append(args, "--dry-run")
	}

	cmd := exec.CommandContext(ctx, r.path, args...) //nolint:gosec // binary path comes from configuration
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = stopGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{}, fmt.Errorf("rsync stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return RunResult{}, fmt.Errorf("rsync stderr: %w", err)
	}

	r.logger.Debug("starting rsync", "path", r.path, "args", args)
	if err := cmd.Start(); err != nil {
		return RunResult{}, common.Permanent(fmt.Errorf("start %s: %w", r.path, err))
	}
	r.setCmd(cmd)
	defer r.setCmd(nil)

	var (
		counts model.TransferCounts
		stats  rsyncStats
		wg     sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.readOutput(stdout, &counts, &stats, events)
	}()
	go func() {
		defer wg.Done()
		r.readErrors(stderr, events)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	if ctx.Err() != nil || r.wasStopped() {
		return RunResult{Counts: counts}, canceledErr(ctx)
	}

	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return RunResult{Counts: counts}, fmt.Errorf("wait for rsync: %w", waitErr)
		}
		code = exitErr.ExitCode()
	}
	if code == rsyncSignaled {
		return RunResult{Counts: counts}, context.Canceled
	}

	stats.apply(&counts)
	return RunResult{Counts: counts, ExitCode: mapRsyncExit(code, counts.FilesCopied)}, nil
}

// Stop asks the running rsync process to exit.
func (r *Rsync) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return nil
	}
	r.stopped = true
	return r.cmd.Process.Signal(os.Interrupt)
}

func (r *Rsync) setCmd(cmd *exec.Cmd) {
	r.mu.Lock()
	r.cmd = cmd
	if cmd != nil {
		r.stopped = false
	}
	r.mu.Unlock()
}

func (r *Rsync) wasStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Rsync) readOutput(stdout io.Reader, counts *model.TransferCounts, stats *rsyncStats, events chan<- Event) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		ev, ok := parseItem(line)
		if !ok {
			stats.parseLine(line)
			continue
		}
		switch ev.Kind {
		case EventFileCopied:
			counts.FilesCopied++
			counts.BytesCopied += ev.Size
			events <- ev
		case EventFileSkipped:
			counts.DirsCopied++
		}
	}
	if err := scanner.Err(); err != nil {
		r.logger.Warn("reading rsync output failed", "error", err)
	}
}

func (r *Rsync) readErrors(stderr io.Reader, events chan<- Event) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		r.logger.Warn("rsync reported an error", "message", line)
		events <- Event{Kind: EventError, Message: line, Code: ExitFailed}
	}
}

// parseItem reads one --out-format line. Directory creations are reported as
// skipped events so they do not count as copied files.
func parseItem(line string) (Event, bool) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 || len(parts[0]) < 2 {
		return Event{}, false
	}

	item, name := parts[0], parts[2]
	size, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Event{}, false
	}

	switch {
	case item[1] == 'f' && strings.ContainsRune("<>c", rune(item[0])):
		return Event{Kind: EventFileCopied, Path: name, Size: size}, true
	case item[1] == 'd' && item[0] == 'c':
		return Event{Kind: EventFileSkipped, Path: strings.TrimSuffix(name, "/")}, true
	default:
		return Event{}, false
	}
}

type rsyncStats struct {
	files           int
	regular         int
	dirs            int
	transferred     int
	totalSize       int64
	transferredSize int64
}

func (s *rsyncStats) parseLine(line string) {
	if m := statFilesRe.FindStringSubmatch(line); m != nil {
		s.files = int(parseNumber(m[1]))
		s.regular = int(parseNumber(m[2]))
		s.dirs = int(parseNumber(m[3]))
		return
	}
	if m := statTransferredRe.FindStringSubmatch(line); m != nil {
		s.transferred = int(parseNumber(m[1]))
		return
	}
	if m := statXferSizeRe.FindStringSubmatch(line); m != nil {
		s.transferredSize = parseNumber(m[1])
		return
	}
	if m := statTotalSizeRe.FindStringSubmatch(line); m != nil {
		s.totalSize = parseNumber(m[1])
	}
}

func (s *rsyncStats) apply(c *model.TransferCounts) {
	c.FilesScanned = s.regular
	c.DirsScanned = s.dirs
	c.BytesTotal = s.totalSize
	c.FilesSkipped = max(s.regular-s.transferred, 0)
	c.BytesSkipped = max(s.totalSize-s.transferredSize, 0)
}

// parseNumber reads an integer printed with locale digit grouping.
func parseNumber(s string) int64 {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	n, _ := strconv.ParseInt(digits, 10, 64)
	return n
}

// mapRsyncExit converts an rsync exit status into the exit status bits.
func mapRsyncExit(code, copied int) int {
	copiedBit := 0
	if copied > 0 {
		copiedBit = ExitCopied
	}

	switch code {
	case 0:
		return copiedBit
	case rsyncPartial, rsyncVanished, rsyncTimeout, rsyncConnTimed:
		return ExitFailed | copiedBit
	default:
		return ExitFatal
	}
}

// literalIncludes anchors each path at the transfer root and lets rsync
// descend through its parent directories.
func literalIncludes(paths []string) []string {
	var args []string
	seen := make(map[string]bool)
	for _, p := range paths {
		p = path.Clean(filepath.ToSlash(p))
		var parents []string
		for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
			parents = append(parents, dir)
		}
		for i := len(parents) - 1; i >= 0; i-- {
			if !seen[parents[i]] {
				seen[parents[i]] = true
				args = append(args, "--include=/"+escapeRsyncPattern(parents[i])+"/")
			}
		}
		args = append(args, "--include=/"+escapeRsyncPattern(p))
	}
	return args
}

// escapeRsyncPattern makes a name match itself. rsync only honours backslash
// escapes in patterns that contain a wildcard, so plain names are left alone.
func escapeRsyncPattern(name string) string {
	if !strings.ContainsAny(name, "*?[") {
		return name
	}
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '\\', '*', '?', '[', ']':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func buildArgs(source, destination string, cfg model.CopyConfiguration) []string {
	var args []string
	if cfg.CopySubdirectories {
		args = append(args, "--recursive")
	} else {
		args = append(args, "--dirs")
	}
	if cfg.PreserveTimestamps {
		args = append(args, "--times")
	}
	if cfg.PreserveAttributes {
		args = append(args, "--perms")
	}
	if !cfg.IncludeEmptyDirs {
		args = append(args, "--prune-empty-dirs")
	}
	for _, d := range cfg.ExcludeDirs {
		args = append(args, "--exclude="+strings.TrimSuffix(d, "/")+"/")
	}
	for _, f := range cfg.ExcludeFiles {
		args = append(args, "--exclude="+f)
	}
	if len(cfg.IncludePaths) > 0 {
		args = append(args, literalIncludes(cfg.IncludePaths)...)
		args = append(args, "--exclude=*")
	} else if len(cfg.IncludeFiles) > 0 {
		args = append(args, "--include=*/")
		for _, f := range cfg.IncludeFiles {
			args = append(args, "--include="+f)
		}
		args = append(args, "--exclude=*")
	}
	if cfg.Mirror || cfg.Purge {
		args = append(args, "--delete")
	}
	if cfg.Move {
		args = append(args, "--remove-source-files")
	}
	if cfg.BandwidthLimit > 0 {
		kib := (cfg.BandwidthLimit + 1023) / 1024
		args = append(args, "--bwlimit="+strconv.FormatInt(kib, 10))
	}

	src := strings.TrimSuffix(filepath.ToSlash(source), "/") + "/"
	return append(args, src, destination)
}
