// Package store picks and opens the character store backend.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/db"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store/memory"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store/postgres"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store/sqlite"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMemory   = "memory"
)

// Backend is an rpxp.Store that owns a connection and a schema.
type Backend interface {
	rpxp.Store
	Migrate(ctx context.Context) ([]string, error)
	Close() error
}

type Options struct {
	Dialect     string
	SQLitePath  string
	DatabaseURL string
}

func Open(ctx context.Context, opts Options) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Dialect)) {
	case "", DialectSQLite:
		conn, err := db.OpenSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlite.New(conn), nil
	case DialectPostgres, "postgresql", "pgx":
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres dialect")
		}
		pool, err := db.Connect(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return postgres.New(pool), nil
	case DialectMemory:
		return memoryBackend{memory.New()}, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT %q", opts.Dialect)
	}
}

type memoryBackend struct {
	*memory.Store
}

func (memoryBackend) Migrate(context.Context) ([]string, error) { return nil, nil }

func (memoryBackend) Close() error { return nil }
