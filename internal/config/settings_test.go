package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/model"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, model.ConflictAppendSequence, s.Transfer.ConflictPolicy)
	assert.Equal(t, model.ModeBulk, s.Transfer.Mode)
	assert.Equal(t, "native", s.Transfer.Mechanism)
	assert.Equal(t, model.HashSHA256, s.Transfer.HashAlgorithm)
	assert.True(t, s.Transfer.HashingEnabled)
	assert.Equal(t, 3, s.Transfer.Retry.MaxRetries)
	assert.Equal(t, time.Second, s.Transfer.Retry.BaseDelay)
	assert.Equal(t, 8, s.BulkCopy.Threads)
	assert.Equal(t, 30, s.Retention.Days)
	assert.Equal(t, []string{"UG", "OG", "LB"}, s.Audit.Datasets)
	assert.True(t, s.Audit.CheckEnabled(model.CheckDataset))
	assert.Equal(t, []string{"json"}, s.Formats)
}

func TestLoad_FromYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := `
paths:
  staging: /data/staging
transfer:
  conflict_policy: skip
  mode: perfile
  hashing:
    algorithm: SHA-512
  retry:
    max_retries: 5
    base_delay: 250ms
audit:
  checks: [name, extension]
bulkcopy:
  threads: 2
  retry_count: 7
  retry_wait: 30s
records:
  formats: [json, csv, xlsx]
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(cfgPath)
	require.NoError(t, v.ReadInConfig())

	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/data/staging", s.Paths.Staging)
	assert.Equal(t, model.ConflictSkip, s.Transfer.ConflictPolicy)
	assert.Equal(t, model.ModePerFile, s.Transfer.Mode)
	assert.Equal(t, model.HashSHA512, s.Transfer.HashAlgorithm)
	assert.Equal(t, 5, s.Transfer.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, s.Transfer.Retry.BaseDelay)
	assert.False(t, s.Audit.CheckEnabled(model.CheckDataset))
	assert.Equal(t, 7, s.BulkCopy.RetryCount)

	cfg := s.CopyConfiguration()
	assert.Equal(t, 0, cfg.RetryCount, "mechanism retries are always disabled")
	assert.Zero(t, cfg.RetryWait)
	assert.Equal(t, 2, cfg.Threads)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{name: "bad policy", key: "transfer.conflict_policy", val: "merge"},
		{name: "bad algorithm", key: "transfer.hashing.algorithm", val: "crc32"},
		{name: "bad regex", key: "audit.name_pattern", val: "(["},
		{name: "bad mode", key: "transfer.mode", val: "teleport"},
		{name: "bad mechanism", key: "transfer.mechanism", val: "robocopy"},
		{name: "negative retries", key: "transfer.retry.max_retries", val: -1},
		{name: "zero threads", key: "bulkcopy.threads", val: 0},
		{name: "negative retention", key: "retention.days", val: -3},
		{name: "bad format", key: "records.formats", val: []string{"pdf"}},
		{name: "bad check", key: "audit.checks", val: []string{"virus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("COURIER_TEST_DIR", "/mnt/usb")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "x", "y"), ExpandPath("~/x/y"))
	assert.Equal(t, "/mnt/usb/dest", ExpandPath("$COURIER_TEST_DIR/dest"))
	assert.Equal(t, `\\server\share\dest`, ExpandPath(`\\server\share\dest`))
}
