package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// StoreConfig selects the database backend.
type StoreConfig struct {
	Dialect     string `env:"DB_DIALECT"     envDefault:"sqlite"`
	SQLitePath  string `env:"DB_SQLITE_PATH" envDefault:"RPXP_databank.db"`
	DatabaseURL string `env:"DATABASE_URL"`
}

type BotConfig struct {
	Store         StoreConfig
	DiscordToken  string        `env:"DISCORD_TOKEN"`
	Prefix        string        `env:"RPXP_COMMAND_PREFIX" envDefault:"$"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	TagCacheTTL   time.Duration `env:"RPXP_TAG_CACHE_TTL"  envDefault:"10m"`
	HTTPAddr      string        `env:"RPXP_HTTP_ADDR"      envDefault:":8080"`
	Port          string        `env:"PORT"`
	AdminToken    string        `env:"RPXP_ADMIN_TOKEN"`
	JobTimeout    time.Duration `env:"RPXP_JOB_TIMEOUT"    envDefault:"15s"`
	LogLevel      string        `env:"RPXP_LOG_LEVEL"      envDefault:"info"`
	DiscordEnable bool          `env:"RPXP_DISCORD"        envDefault:"true"`
}

type CLIConfig struct {
	APIBaseURL string `env:"RPXP_API_BASE_URL" envDefault:"http://localhost:8080"`
	AdminToken string `env:"RPXP_ADMIN_TOKEN"`
}

// HTTPEnabled reports whether the admin API should listen.
func (c BotConfig) HTTPEnabled() bool {
	return !strings.EqualFold(c.HTTPAddr, "off") && c.HTTPAddr != ""
}

func (c BotConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func LoadBotFromEnv() (BotConfig, error) {
	var cfg BotConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if port := strings.TrimSpace(cfg.Port); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.HTTPAddr = port
	}
	cfg.Store = cfg.Store.normalize()
	cfg.DiscordToken = strings.TrimSpace(cfg.DiscordToken)
	return cfg, cfg.Validate()
}

func LoadStoreFromEnv() (StoreConfig, error) {
	var cfg StoreConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg = cfg.normalize()
	return cfg, cfg.Validate()
}

func (c StoreConfig) normalize() StoreConfig {
	c.Dialect = strings.ToLower(strings.TrimSpace(c.Dialect))
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	return c
}

func (c StoreConfig) Validate() error {
	switch c.Dialect {
	case "", "sqlite":
		if c.SQLitePath == "" {
			return errors.New("DB_SQLITE_PATH is required for sqlite")
		}
	case "postgres", "postgresql", "pgx":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown DB_DIALECT %q", c.Dialect)
	}
	return nil
}

func (c BotConfig) Validate() error {
	if c.DiscordEnable && c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}
	if strings.TrimSpace(c.Prefix) == "" {
		return errors.New("RPXP_COMMAND_PREFIX must not be blank")
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.JobTimeout <= 0 {
		return errors.New("RPXP_JOB_TIMEOUT must be positive")
	}
	return nil
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	if err := env.Parse(&cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.AdminToken = strings.TrimSpace(cfg.AdminToken)
	return cfg
}
