package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/courier/internal/model"
	"github.com/Veraticus/courier/internal/testutil"
)

type testEnv struct {
	staging   string
	dest      string
	retention string
	records   string
	database  string
}

// setupEnv points the global configuration at temporary directories.
func setupEnv(t *testing.T) testEnv {
	t.Helper()
	root := t.TempDir()
	env := testEnv{
		staging:   filepath.Join(root, "staging"),
		dest:      filepath.Join(root, "dest"),
		retention: filepath.Join(root, "retention"),
		records:   filepath.Join(root, "records"),
		database:  filepath.Join(root, "db", "courier.db"),
	}
	require.NoError(t, os.MkdirAll(env.staging, 0o750))
	require.NoError(t, os.MkdirAll(env.dest, 0o750))

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("paths.staging", env.staging)
	viper.Set("paths.destination", env.dest)
	viper.Set("paths.retention", env.retention)
	viper.Set("paths.records", env.records)
	viper.Set("database.path", env.database)
	viper.Set("transfer.retry.base_delay", time.Millisecond)
	return env
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSetupLogging(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	tests := []struct {
		level   string
		format  string
		wantErr bool
	}{
		{"debug", "console", false},
		{"error", "json", false},
		{"loud", "console", true},
		{"info", "xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			viper.Set("logging.level", tt.level)
			viper.Set("logging.format", tt.format)
			err := setupLogging()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, versionCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "courier dev")
}

func TestAuditCmd(t *testing.T) {
	env := setupEnv(t)
	testutil.NewStagedFolder(t, env.staging, "E001_20260116_UG").WithFile("scan.raw", 500).Write()
	testutil.NewStagedFolder(t, env.staging, "E002_20260116_UG").WithFile("bundle.zip", 10).Write()
	testutil.NewStagedFolder(t, env.staging, "badname").WithFile("setup.exe", 10).Write()

	out, err := execute(t, auditCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "E001_20260116_UG")
	assert.Contains(t, out, "1 passed")
	assert.Contains(t, out, "1 caution")
	assert.Contains(t, out, "1 failed")

	_, err = execute(t, auditCmd(), "--strict")
	require.Error(t, err)

	_, err = execute(t, auditCmd(), "--strict", "E001_20260116_UG")
	require.NoError(t, err)
}

func TestTransferCmd_EndToEnd(t *testing.T) {
	env := setupEnv(t)
	viper.Set("transfer.mode", string(model.ModePerFile))
	viper.Set("records.formats", []string{"json", "csv"})
	testutil.NewStagedFolder(t, env.staging, "E001_20260116_UG").
		WithFile("scan_a.raw", 500).
		WithFile("sub/scan_b.raw", 1500).
		Write()
	testutil.NewStagedFolder(t, env.staging, "badname").WithFile("a.raw", 1).Write()

	out, err := execute(t, transferCmd(), "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, out, "E001_20260116_UG")
	assert.Contains(t, out, "badname not transferred")

	assert.FileExists(t, filepath.Join(env.dest, "E001_20260116_UG", "sub", "scan_b.raw"))
	assert.DirExists(t, filepath.Join(env.retention, "E001_20260116_UG"))
	assert.DirExists(t, filepath.Join(env.staging, "badname"))

	rendered, err := filepath.Glob(filepath.Join(env.records, "E001_20260116_UG_*"))
	require.NoError(t, err)
	assert.Len(t, rendered, 2)

	out, err = execute(t, historyCmd(), "search", "E001")
	require.NoError(t, err)
	assert.Contains(t, out, "E001_20260116_UG")
	assert.Contains(t, out, "Succeeded")

	out, err = execute(t, historyCmd(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "E001_20260116_UG")
}

func TestTransferCmd_RequiresDestination(t *testing.T) {
	setupEnv(t)
	viper.Set("paths.destination", "")

	_, err := execute(t, transferCmd())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no destination configured")
}

func TestTransferCmd_RejectsBadFlags(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, transferCmd(), "--policy", "merge")
	require.Error(t, err)

	_, err = execute(t, transferCmd(), "--mode", "teleport")
	require.Error(t, err)
}

func TestEstimateCmd(t *testing.T) {
	env := setupEnv(t)
	testutil.NewStagedFolder(t, env.staging, "E001_20260116_UG").
		WithFile("scan_a.raw", 500).
		WithFile("scan_b.raw", 1500).
		Write()

	out, err := execute(t, estimateCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "E001_20260116_UG")
	assert.Contains(t, out, "1 folders, 2 files, 2.0 KiB")
	assert.NoDirExists(t, filepath.Join(env.dest, "E001_20260116_UG"))
}
