package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCmd(t *testing.T) {
	env := setupEnv(t)

	out, err := execute(t, migrateCmd(), "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 0")
	assert.Contains(t, out, "Migrations pending")

	out, err = execute(t, migrateCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2")

	out, err = execute(t, migrateCmd(), "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 2")
	assert.NotContains(t, out, "Migrations pending")

	backup := filepath.Join(filepath.Dir(env.database), "backup.db")
	out, err = execute(t, migrateCmd(), "--backup", backup)
	require.NoError(t, err)
	assert.Contains(t, out, "Backup written")
	assert.FileExists(t, backup)

	_, err = execute(t, migrateCmd(), "--backup", backup)
	require.Error(t, err, "existing backups are never overwritten")
}
