package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/courier/internal/common"
)

func TestWaitForDestination(t *testing.T) {
	t.Run("already present", func(t *testing.T) {
		require.NoError(t, WaitForDestination(context.Background(), t.TempDir(), time.Millisecond))
	})

	t.Run("appears later", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "usb")
		go func() {
			time.Sleep(30 * time.Millisecond)
			_ = os.Mkdir(dir, 0o750)
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, WaitForDestination(ctx, dir, 5*time.Millisecond))
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WaitForDestination(ctx, filepath.Join(t.TempDir(), "never"), time.Millisecond)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("file is not a destination", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, nil, 0o600))
		err := WaitForDestination(context.Background(), file, time.Millisecond)
		assert.ErrorIs(t, err, common.ErrDestinationUnavailable)
		assert.True(t, common.IsPermanent(err))
	})
}
