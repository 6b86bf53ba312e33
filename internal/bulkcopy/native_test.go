package bulkcopy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/courier/internal/model"
)

func defaultCopyConfig() model.CopyConfiguration {
	return model.CopyConfiguration{
		Threads:            4,
		CopySubdirectories: true,
		PreserveTimestamps: true,
		PreserveAttributes: true,
	}
}

func runNative(t *testing.T, src, dst string, cfg model.CopyConfiguration) (RunResult, []Event) {
	t.Helper()
	events := make(chan Event, 1024)
	result, err := NewNative(nil).Run(context.Background(), src, dst, cfg, events)
	require.NoError(t, err)
	close(events)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	return result, got
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func TestNative_CopiesTree(t *testing.T) {
	src := sourceDir(t, map[string]string{
		"scan.raw":        "raw-bytes",
		"reports/a.pdf":   "pdf",
		"reports/x/b.csv": "1,2,3",
	})
	past := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(src, "scan.raw"), past, past))
	dst := filepath.Join(t.TempDir(), "out")

	result, events := runNative(t, src, dst, defaultCopyConfig())

	assert.Equal(t, ExitCopied, result.ExitCode)
	assert.Equal(t, 3, result.Counts.FilesCopied)
	assert.Equal(t, int64(17), result.Counts.BytesCopied)
	assert.Equal(t, "1,2,3", readFile(t, filepath.Join(dst, "reports", "x", "b.csv")))
	assert.Len(t, events, 3)

	info, err := os.Stat(filepath.Join(dst, "scan.raw"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past))
}

func TestNative_SecondRunSkipsIdenticalFiles(t *testing.T) {
	src := sourceDir(t, map[string]string{"a.txt": "aaa", "b.txt": "bbb"})
	dst := t.TempDir()

	runNative(t, src, dst, defaultCopyConfig())
	result, events := runNative(t, src, dst, defaultCopyConfig())

	assert.Equal(t, ExitNoChange, result.ExitCode)
	assert.Equal(t, 2, result.Counts.FilesSkipped)
	for _, ev := range events {
		assert.Equal(t, EventFileSkipped, ev.Kind)
	}
}

func TestNative_ExtrasAndPurge(t *testing.T) {
	src := sourceDir(t, map[string]string{"a.txt": "a"})
	dst := sourceDir(t, map[string]string{"stale.txt": "old", "old/dir.txt": "old"})

	result, _ := runNative(t, src, dst, defaultCopyConfig())
	assert.Equal(t, ExitCopied|ExitExtra, result.ExitCode)
	assert.FileExists(t, filepath.Join(dst, "stale.txt"))

	cfg := defaultCopyConfig()
	cfg.Purge = true
	result, _ = runNative(t, src, dst, cfg)
	assert.Equal(t, ExitNoChange, result.ExitCode)
	assert.NoFileExists(t, filepath.Join(dst, "stale.txt"))
	assert.NoDirExists(t, filepath.Join(dst, "old"))
	assert.FileExists(t, filepath.Join(dst, "a.txt"))
}

func TestNative_MismatchedDirectory(t *testing.T) {
	src := sourceDir(t, map[string]string{"clash": "file"})
	dst := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dst, "clash"), 0o750))

	result, _ := runNative(t, src, dst, defaultCopyConfig())
	assert.Equal(t, ExitMismatched, result.ExitCode)
	assert.Equal(t, 1, result.Counts.FilesSkipped)
}

func TestNative_Filters(t *testing.T) {
	src := sourceDir(t, map[string]string{
		"keep.raw":       "k",
		"skip.tmp":       "s",
		"cache/data.raw": "c",
		"nested/in.raw":  "n",
	})
	dst := t.TempDir()

	cfg := defaultCopyConfig()
	cfg.ExcludeFiles = []string{"*.TMP"}
	cfg.ExcludeDirs = []string{"cache"}
	result, _ := runNative(t, src, dst, cfg)

	assert.Equal(t, 2, result.Counts.FilesCopied)
	assert.FileExists(t, filepath.Join(dst, "keep.raw"))
	assert.FileExists(t, filepath.Join(dst, "nested", "in.raw"))
	assert.NoFileExists(t, filepath.Join(dst, "skip.tmp"))
	assert.NoDirExists(t, filepath.Join(dst, "cache"))
}

func TestNative_IncludeListAndNoSubdirectories(t *testing.T) {
	src := sourceDir(t, map[string]string{"a.txt": "a", "b.txt": "b", "sub/c.txt": "c"})

	dst := t.TempDir()
	cfg := defaultCopyConfig()
	cfg.IncludeFiles = []string{"sub/c.txt"}
	result, _ := runNative(t, src, dst, cfg)
	assert.Equal(t, 1, result.Counts.FilesCopied)
	assert.FileExists(t, filepath.Join(dst, "sub", "c.txt"))
	assert.NoFileExists(t, filepath.Join(dst, "a.txt"))

	flat := t.TempDir()
	cfg = defaultCopyConfig()
	cfg.CopySubdirectories = false
	result, _ = runNative(t, src, flat, cfg)
	assert.Equal(t, 2, result.Counts.FilesCopied)
	assert.NoDirExists(t, filepath.Join(flat, "sub"))
}

func TestNative_MoveRemovesSource(t *testing.T) {
	src := sourceDir(t, map[string]string{"a.txt": "a", "sub/b.txt": "b"})
	dst := t.TempDir()

	cfg := defaultCopyConfig()
	cfg.Move = true
	result, _ := runNative(t, src, dst, cfg)

	assert.Equal(t, ExitCopied, result.ExitCode)
	assert.NoFileExists(t, filepath.Join(src, "a.txt"))
	assert.NoDirExists(t, filepath.Join(src, "sub"))
	assert.FileExists(t, filepath.Join(dst, "sub", "b.txt"))
}

func TestNative_ListOnlyWritesNothing(t *testing.T) {
	src := sourceDir(t, map[string]string{"a.txt": "aa", "b.txt": "bbb"})
	dst := filepath.Join(t.TempDir(), "never")

	mech := NewNative(nil)
	totals, err := mech.List(context.Background(), src, dst, defaultCopyConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Files)
	assert.Equal(t, int64(5), totals.Bytes)

	cfg := defaultCopyConfig()
	cfg.ListOnly = true
	result, _ := runNative(t, src, dst, cfg)
	assert.Equal(t, ExitCopied, result.ExitCode)
	assert.NoDirExists(t, dst)
}

func TestNative_IncludeEmptyDirs(t *testing.T) {
	src := sourceDir(t, map[string]string{"a.txt": "a"})
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty", "deeper"), 0o750))

	without := t.TempDir()
	runNative(t, src, without, defaultCopyConfig())
	assert.NoDirExists(t, filepath.Join(without, "empty"))

	with := t.TempDir()
	cfg := defaultCopyConfig()
	cfg.IncludeEmptyDirs = true
	result, _ := runNative(t, src, with, cfg)
	assert.DirExists(t, filepath.Join(with, "empty", "deeper"))
	assert.Equal(t, 2, result.Counts.DirsCopied)
}

func TestNative_MissingSourceIsFatal(t *testing.T) {
	events := make(chan Event, 4)
	result, err := NewNative(nil).Run(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir(), defaultCopyConfig(), events)
	require.NoError(t, err)
	assert.Equal(t, ExitFatal, result.ExitCode)
	require.Len(t, events, 1)
	assert.Equal(t, EventError, (<-events).Kind)
}

func TestNative_CanceledContext(t *testing.T) {
	src := sourceDir(t, map[string]string{"a.txt": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewNative(nil).Run(ctx, src, t.TempDir(), defaultCopyConfig(), make(chan Event, 4))
	require.ErrorIs(t, err, context.Canceled)
}

func TestBandwidthLimiter(t *testing.T) {
	assert.Nil(t, newBandwidthLimiter(0))

	bl := newBandwidthLimiter(1000)
	defer bl.Close()
	require.NoError(t, bl.wait(context.Background(), 1000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bl.wait(ctx, 1000), context.Canceled)
}
