package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/db"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "rpxp.db"))
	require.NoError(t, err)
	s := New(conn)
	t.Cleanup(func() { _ = s.Close() })
	_, err = s.Migrate(ctx)
	require.NoError(t, err)
	return s
}

func TestSQLiteStore(t *testing.T) {
	suite.Run(t, &storetest.Suite{NewStore: func() rpxp.Store { return openTestStore(t) }})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	applied, err := s.Migrate(context.Background())
	require.NoError(t, err)
	require.Empty(t, applied)
}
