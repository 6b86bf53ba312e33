// Package retention manages the retention area that holds source folders after
// a successful transfer.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/Veraticus/courier/internal/common"
)

// Delete retry defaults.
const (
	DefaultAttempts   = 3
	DefaultRetryDelay = 500 * time.Millisecond
)

// Result summarizes one cleanup pass.
type Result struct {
	Deleted []string
	Skipped []string
	Kept    int
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithClock replaces the time source used for the cutoff.
func WithClock(now func() time.Time) Option {
	return func(c *Cleaner) { c.now = now }
}

// WithRetryDelay replaces the fixed delay between delete attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Cleaner) { c.delay = d }
}

// Cleaner deletes retention folders older than a configured age.
type Cleaner struct {
	logger   *slog.Logger
	now      func() time.Time
	remove   func(string) error
	attempts int
	delay    time.Duration
}

// NewCleaner creates a cleaner.
func NewCleaner(logger *slog.Logger, opts ...Option) *Cleaner {
	c := &Cleaner{
		logger:   common.LoggerOrDefault(logger),
		now:      time.Now,
		remove:   os.RemoveAll,
		attempts: DefaultAttempts,
		delay:    DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cleanup deletes every immediate subfolder of root whose age timestamp is
// before now minus days. Folders that cannot be deleted are skipped.
func (c *Cleaner) Cleanup(ctx context.Context, root string, days int) (Result, error) {
	var result Result
	if days < 0 {
		return result, fmt.Errorf("%w: retention days must be >= 0, got %d", common.ErrInvalidConfig, days)
	}

	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("retention root does not exist", "root", root)
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("failed to list retention root: %w", err)
	}

	cutoff := c.now().AddDate(0, 0, -days)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			c.logger.Warn("could not stat retention folder", "path", path, "error", err)
			result.Skipped = append(result.Skipped, path)
			continue
		}

		aged := FolderTime(path, info)
		if !aged.Before(cutoff) {
			result.Kept++
			continue
		}

		if err := c.deleteWithRetry(ctx, path); err != nil {
			if common.IsCanceled(err) {
				return result, err
			}
			c.logger.Warn("skipping retention folder", "path", path, "error", err)
			result.Skipped = append(result.Skipped, path)
			continue
		}
		c.logger.Info("deleted retention folder", "path", path, "age_timestamp", aged)
		result.Deleted = append(result.Deleted, path)
	}

	return result, nil
}

func (c *Cleaner) deleteWithRetry(ctx context.Context, path string) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		clearReadOnly(path)
		if err = c.remove(path); err == nil {
			return nil
		}
		if !isContention(err) {
			return err
		}

		c.logger.Debug("retention folder is locked, retrying",
			"path", path,
			"attempt", attempt,
			"error", err)
		if attempt < c.attempts {
			if werr := common.SleepContext(ctx, c.delay); werr != nil {
				return werr
			}
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", c.attempts, err)
}

// FolderTime is the timestamp used to age a retention folder: the earlier of
// its birth time, where the filesystem records one, and its modification time.
// A copy across devices gets a fresh birth time, but Move carries the
// modification time over.
func FolderTime(path string, info fs.FileInfo) time.Time {
	mtime := info.ModTime()
	if birth, ok := birthTime(path); ok && birth.Before(mtime) {
		return birth
	}
	return mtime
}

func isContention(err error) bool {
	return errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY)
}

// clearReadOnly adds owner write permission to everything under path, deepest
// entries first so parent listings stay readable.
func clearReadOnly(path string) {
	var paths []string
	_ = filepath.WalkDir(path, func(p string, _ fs.DirEntry, err error) error {
		if err == nil {
			paths = append(paths, p)
		}
		return nil
	})
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil || info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		mode := info.Mode().Perm()
		if info.IsDir() {
			mode |= 0o700
		} else {
			mode |= 0o200
		}
		if mode != info.Mode().Perm() {
			_ = os.Chmod(p, mode)
		}
	}
}
