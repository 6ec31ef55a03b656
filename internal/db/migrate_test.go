package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingFilesOrdersUpMigrations(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_audit_log.up.sql", "001_verification.up.sql", "001_verification.down.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "003_dir.up.sql"), 0o700))

	files, err := pendingFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_verification.up.sql", "002_audit_log.up.sql"}, files)
}

func TestPendingFilesMissingDir(t *testing.T) {
	_, err := pendingFiles(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestRepoMigrationsAreLoadable(t *testing.T) {
	files, err := pendingFiles("../../migrations")
	require.NoError(t, err)
	assert.NotEmpty(t, files)
}
