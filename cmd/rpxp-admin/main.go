package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cl "github.com/erikbrgr/alluria-rpxp-bot/internal/cli"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/config"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store"
)

type globals struct {
	apiBase string
	token   string
}

func main() {
	cfg := config.LoadCLIFromEnv()
	g := &globals{apiBase: cfg.APIBaseURL, token: cfg.AdminToken}

	root := &cobra.Command{
		Use:          "rpxp-admin",
		Short:        "Operator tool for the RP XP bot",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.apiBase, "api", g.apiBase, "bot API base URL")

	root.AddCommand(
		newMigrateCmd(),
		newHealthCmd(g),
		newSettingsCmd(g),
		newSummaryCmd(g),
		newTuppersCmd(g),
		newRolloverCmd(g),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (g *globals) client() *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(g.apiBase), "/"), g.token)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStoreFromEnv()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			backend, err := store.Open(ctx, store.Options{
				Dialect:     cfg.Dialect,
				SQLitePath:  cfg.SQLitePath,
				DatabaseURL: cfg.DatabaseURL,
			})
			if err != nil {
				return err
			}
			defer backend.Close()
			applied, err := backend.Migrate(ctx)
			if err != nil {
				return err
			}
			renderMigrations(cfg.Dialect, applied)
			return nil
		},
	}
}

func newHealthCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the bot API is up",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			h, err := g.client().Health(ctx)
			if err != nil {
				return err
			}
			renderHealth(h)
			return nil
		},
	}
}

func newSettingsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "settings <guild_id>",
		Short: "Show a guild's settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			guild, err := g.client().Settings(ctx, args[0])
			if err != nil {
				return err
			}
			renderSettings(guild)
			return nil
		},
	}
}

func newSummaryCmd(g *globals) *cobra.Command {
	var total bool
	cmd := &cobra.Command{
		Use:   "summary <guild_id>",
		Short: "Show monthly or all-time statistics for a guild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := rpxp.ScopeMonth
			if total {
				scope = rpxp.ScopeTotal
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			sum, err := g.client().Summary(ctx, args[0], scope)
			if err != nil {
				return err
			}
			renderSummary(sum)
			return nil
		},
	}
	cmd.Flags().BoolVar(&total, "total", false, "use all-time counters")
	return cmd
}

func newTuppersCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tuppers <guild_id> <user_id>",
		Short: "List a member's registered characters",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			list, err := g.client().Tuppers(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			renderTuppers(args[1], list)
			return nil
		},
	}
}

func newRolloverCmd(g *globals) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rollover <guild_id>",
		Short: "Close the month for one guild now",
		Long:  "Posts the monthly summary and zeroes the monthly counters of one guild. Requires RPXP_ADMIN_TOKEN.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.token == "" {
				return fmt.Errorf("RPXP_ADMIN_TOKEN is required for rollover")
			}
			if !yes {
				ok, err := promptConfirm(fmt.Sprintf("Reset monthly counters of guild %s", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					printWarn("Aborted.")
					return nil
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := g.client().Rollover(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Month closed for guild " + args[0] + ".")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
