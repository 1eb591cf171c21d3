package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rpxp.db")
	conn, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`CREATE TABLE t (x INTEGER)`)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)

	var mode string
	require.NoError(t, conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpenSQLiteMemory(t *testing.T) {
	conn, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec(`CREATE TABLE t (x INTEGER)`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO t VALUES (1)`)
	assert.NoError(t, err, "the single connection keeps the in-memory schema")
}
