package retention

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/courier/internal/common"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func agedFolder(t *testing.T, root, name string, age time.Duration) string {
	t.Helper()
	p := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(p, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(p, "scan.raw"), []byte("data"), 0o600))
	stamp := testNow.Add(-age)
	require.NoError(t, os.Chtimes(p, stamp, stamp))
	return p
}

func newTestCleaner(opts ...Option) *Cleaner {
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithRetryDelay(time.Millisecond)}, opts...)
	return NewCleaner(nil, opts...)
}

func TestCleanup_DeletesOnlyExpiredFolders(t *testing.T) {
	root := t.TempDir()
	old := agedFolder(t, root, "E001_20260101_UG", 40*24*time.Hour)
	fresh := agedFolder(t, root, "E002_20260220_UG", 5*24*time.Hour)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o600))

	result, err := newTestCleaner().Cleanup(context.Background(), root, 30)
	require.NoError(t, err)

	assert.Equal(t, []string{old}, result.Deleted)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, 1, result.Kept)
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.FileExists(t, filepath.Join(root, "notes.txt"), "loose files are not touched")
}

func TestCleanup_ZeroDaysDeletesEverythingOlderThanNow(t *testing.T) {
	root := t.TempDir()
	agedFolder(t, root, "a", time.Minute)
	agedFolder(t, root, "b", time.Hour)

	result, err := newTestCleaner().Cleanup(context.Background(), root, 0)
	require.NoError(t, err)
	assert.Len(t, result.Deleted, 2)
}

func TestCleanup_RetriesLockedFolders(t *testing.T) {
	root := t.TempDir()
	locked := agedFolder(t, root, "locked", 90*24*time.Hour)

	calls := 0
	c := newTestCleaner()
	c.remove = func(p string) error {
		calls++
		if calls < 3 {
			return &fs.PathError{Op: "unlinkat", Path: p, Err: fs.ErrPermission}
		}
		return os.RemoveAll(p)
	}

	result, err := c.Cleanup(context.Background(), root, 30)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{locked}, result.Deleted)
}

func TestCleanup_SkipsAfterExhaustingRetries(t *testing.T) {
	root := t.TempDir()
	stuck := agedFolder(t, root, "a_stuck", 90*24*time.Hour)
	other := agedFolder(t, root, "b_other", 90*24*time.Hour)

	calls := map[string]int{}
	c := newTestCleaner()
	c.remove = func(p string) error {
		calls[p]++
		if p == stuck {
			return &fs.PathError{Op: "unlinkat", Path: p, Err: fs.ErrPermission}
		}
		return os.RemoveAll(p)
	}

	result, err := c.Cleanup(context.Background(), root, 30)
	require.NoError(t, err)
	assert.Equal(t, DefaultAttempts, calls[stuck])
	assert.Equal(t, []string{stuck}, result.Skipped)
	assert.Equal(t, []string{other}, result.Deleted, "cleanup continues past a stuck folder")
}

func TestCleanup_OtherErrorsAreNotRetried(t *testing.T) {
	root := t.TempDir()
	agedFolder(t, root, "broken", 90*24*time.Hour)

	calls := 0
	c := newTestCleaner()
	c.remove = func(string) error {
		calls++
		return errors.New("disk on fire")
	}

	result, err := c.Cleanup(context.Background(), root, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, result.Skipped, 1)
}

func TestCleanup_ReadOnlyContents(t *testing.T) {
	root := t.TempDir()
	p := agedFolder(t, root, "readonly", 90*24*time.Hour)
	require.NoError(t, os.Chmod(filepath.Join(p, "scan.raw"), 0o400))
	require.NoError(t, os.Chmod(p, 0o500))
	stamp := testNow.Add(-90 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(p, stamp, stamp))

	result, err := newTestCleaner().Cleanup(context.Background(), root, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{p}, result.Deleted)
	assert.NoDirExists(t, p)
}

func TestCleanup_EdgeCases(t *testing.T) {
	result, err := newTestCleaner().Cleanup(context.Background(), filepath.Join(t.TempDir(), "missing"), 30)
	require.NoError(t, err)
	assert.Empty(t, result.Deleted)

	_, err = newTestCleaner().Cleanup(context.Background(), t.TempDir(), -1)
	require.ErrorIs(t, err, common.ErrInvalidConfig)

	root := t.TempDir()
	agedFolder(t, root, "old", 90*24*time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestCleaner().Cleanup(ctx, root, 30)
	require.ErrorIs(t, err, context.Canceled)
	assert.DirExists(t, filepath.Join(root, "old"))
}
