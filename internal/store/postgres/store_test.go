package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/db"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store/storetest"
)

// The suite needs a disposable database; every table is truncated
// before each test.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("RPXP_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("RPXP_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool)
	_, err = s.Migrate(ctx)
	require.NoError(t, err)

	suite.Run(t, &storetest.Suite{NewStore: func() rpxp.Store {
		_, err := pool.Exec(ctx, `TRUNCATE guilds, users, tuppers`)
		require.NoError(t, err)
		return s
	}})
}
