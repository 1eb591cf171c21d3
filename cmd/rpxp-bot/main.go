package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/api"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/clock"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/config"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/discord"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rollover"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/syncq"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/tagcache"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadBotFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	backend, err := store.Open(ctx, store.Options{
		Dialect:     cfg.Store.Dialect,
		SQLitePath:  cfg.Store.SQLitePath,
		DatabaseURL: cfg.Store.DatabaseURL,
	})
	if err != nil {
		logger.Error("db open failed", "err", err)
		os.Exit(1)
	}
	defer backend.Close()

	applied, err := backend.Migrate(ctx)
	if err != nil {
		logger.Error("db migrate failed", "err", err)
		os.Exit(1)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "versions", applied)
	}

	clk := clock.New()
	svc := rpxp.NewService(backend, clk, logger)
	if cfg.RedisAddr != "" {
		client, err := tagcache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		defer client.Close()
		cache, err := tagcache.New(tagcache.Config{Client: client, TTL: cfg.TagCacheTTL})
		if err != nil {
			logger.Error("tag cache init failed", "err", err)
			os.Exit(1)
		}
		svc.UseTagCache(cache)
		logger.Info("tag cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.TagCacheTTL.String())
	}

	queue := syncq.New(logger, cfg.JobTimeout)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("job queue stopped", "err", err)
		}
	}()

	var notify rollover.Notifier
	var session *discordgo.Session
	if cfg.DiscordEnable {
		session, err = discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			logger.Error("discord session init failed", "err", err)
			os.Exit(1)
		}
		session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent | discordgo.IntentsGuildMembers
		bot := discord.New(svc, queue, discord.Config{Prefix: cfg.Prefix, Timeout: cfg.JobTimeout}, logger)
		session.AddHandler(bot.Handler(ctx))
		session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			logger.Info("discord ready", "user", r.User.Username, "guilds", len(r.Guilds))
		})
		notify = discord.NewNotifier(session)
	}

	scheduler := rollover.New(svc, queue, notify, clk, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Run(ctx)
	}()

	var httpServer *http.Server
	if cfg.HTTPEnabled() {
		server := api.New(api.Config{AdminToken: cfg.AdminToken}, logger, svc, scheduler, queue)
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("rpxp api listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server failed", "err", err)
				stop()
			}
		}()
	}

	if session != nil {
		if err := session.Open(); err != nil {
			logger.Error("discord connect failed", "err", err)
			os.Exit(1)
		}
	}
	logger.Info("rpxp bot started", "dialect", cfg.Store.Dialect, "prefix", cfg.Prefix, "discord", cfg.DiscordEnable)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	if session != nil {
		if err := session.Close(); err != nil {
			logger.Warn("discord close failed", "err", err)
		}
	}
	wg.Wait()
}
