package retention

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderTime_PrefersEarlierBirthTime(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "E001_20260116_UG")
	require.NoError(t, os.Mkdir(dir, 0o750))

	birth, ok := birthTime(dir)
	if !ok {
		t.Skip("filesystem does not record birth time")
	}

	future := time.Now().Add(48 * time.Hour)
	require.NoError(t, os.Chtimes(dir, future, future))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, FolderTime(dir, info).Equal(birth))

	past := time.Now().AddDate(0, 0, -90)
	require.NoError(t, os.Chtimes(dir, past, past))
	info, err = os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, FolderTime(dir, info).Equal(info.ModTime()))
}
