package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/courier/internal/testutil"
)

func TestRetentionCleanupCmd(t *testing.T) {
	env := setupEnv(t)
	viper.Set("retention.days", 30)

	old := testutil.NewStagedFolder(t, env.retention, "E001_20250101_UG").
		WithFile("scan.raw", 10).
		ModifiedAt(time.Now().AddDate(0, 0, -90)).
		Write()
	fresh := testutil.NewStagedFolder(t, env.retention, "E002_20260116_UG").
		WithFile("scan.raw", 10).
		Write()

	out, err := execute(t, retentionCmd(), "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 folders older than 30 days, kept 1")
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)

	out, err = execute(t, retentionCmd(), "cleanup", "--days", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "older than 0 days")
	assert.NoDirExists(t, filepath.Join(env.retention, "E002_20260116_UG"))
}

func TestRetentionWatchCmd_BadSchedule(t *testing.T) {
	setupEnv(t)
	viper.Set("retention.schedule", "every tuesday")

	_, err := execute(t, retentionCmd(), "watch")
	require.Error(t, err)
}
