package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		mode       Mode
		wantTxLock bool
	}{
		{ModeWrite, true},
		{ModeRead, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			dsn := buildDSN("/var/lib/duckflow/meta.sqlite", tt.mode)
			assert.True(t, strings.HasPrefix(dsn, "/var/lib/duckflow/meta.sqlite?"))
			assert.Contains(t, dsn, "_journal_mode=WAL")
			assert.Contains(t, dsn, "_busy_timeout=5000")
			assert.Contains(t, dsn, "_foreign_keys=on")
			assert.Equal(t, tt.wantTxLock, strings.Contains(dsn, "_txlock=immediate"))
		})
	}
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "meta.sqlite"), "rw", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/meta.sqlite", ModeWrite, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")
}

func TestOpenSQLitePair_PoolSizes(t *testing.T) {
	writeDB, readDB, err := OpenSQLitePair(filepath.Join(t.TempDir(), "meta.sqlite"), 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	assert.Equal(t, 1, writeDB.Stats().MaxOpenConnections)
	assert.Equal(t, defaultReadPool, readDB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, readDB.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))
}

func TestRunMigrations(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)
	ctx := context.Background()

	for _, table := range []string{"pipeline_runs", "task_runs", "storage_credentials"} {
		var name string
		err := readDB.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}

	v, err := SchemaVersion(ctx, writeDB)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	// Re-running is a no-op.
	require.NoError(t, RunMigrations(ctx, writeDB))
}
