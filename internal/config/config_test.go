package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBotDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", " abc ")
	t.Setenv("PORT", "")
	cfg, err := LoadBotFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.DiscordToken)
	assert.Equal(t, "$", cfg.Prefix)
	assert.Equal(t, "sqlite", cfg.Store.Dialect)
	assert.Equal(t, "RPXP_databank.db", cfg.Store.SQLitePath)
	assert.Equal(t, 10*time.Minute, cfg.TagCacheTTL)
	assert.Equal(t, 15*time.Second, cfg.JobTimeout)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.True(t, cfg.HTTPEnabled())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadBotOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "abc")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DIALECT", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/rpxp")
	t.Setenv("RPXP_LOG_LEVEL", "debug")
	t.Setenv("RPXP_JOB_TIMEOUT", "2s")
	cfg, err := LoadBotFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.Store.Dialect)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, 2*time.Second, cfg.JobTimeout)
}

func TestLoadBotValidation(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	_, err := LoadBotFromEnv()
	assert.ErrorContains(t, err, "DISCORD_TOKEN")

	t.Setenv("RPXP_DISCORD", "false")
	t.Setenv("DB_DIALECT", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err = LoadBotFromEnv()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DB_DIALECT", "mongo")
	_, err = LoadBotFromEnv()
	assert.ErrorContains(t, err, "unknown DB_DIALECT")

	t.Setenv("DB_DIALECT", "memory")
	t.Setenv("RPXP_HTTP_ADDR", "off")
	cfg, err := LoadBotFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.HTTPEnabled())
}

func TestLoadStore(t *testing.T) {
	t.Setenv("DB_DIALECT", " SQLITE ")
	t.Setenv("DB_SQLITE_PATH", "/tmp/rpxp.db")
	cfg, err := LoadStoreFromEnv()
	require.NoError(t, err)
	assert.Equal(t, StoreConfig{Dialect: "sqlite", SQLitePath: "/tmp/rpxp.db"}, cfg)
}

func TestLoadCLI(t *testing.T) {
	t.Setenv("RPXP_API_BASE_URL", "http://bot.internal:8080/")
	t.Setenv("RPXP_ADMIN_TOKEN", "s3cret")
	cfg := LoadCLIFromEnv()
	assert.Equal(t, "http://bot.internal:8080", cfg.APIBaseURL)
	assert.Equal(t, "s3cret", cfg.AdminToken)
}
