// Package rollover resets monthly counters at the start of every UTC
// calendar month.
package rollover

import (
	"context"
	"log/slog"
	"time"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/clock"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/syncq"
)

// Engine is the slice of rpxp.Service the scheduler needs.
type Engine interface {
	Guilds(ctx context.Context) ([]rpxp.Guild, error)
	Rollover(ctx context.Context, guildID string) (rpxp.RolloverResult, error)
}

// Notifier receives the closing summary of each guild's month.
type Notifier interface {
	MonthClosed(ctx context.Context, g rpxp.Guild, s rpxp.Summary) error
}

type NotifierFunc func(ctx context.Context, g rpxp.Guild, s rpxp.Summary) error

func (f NotifierFunc) MonthClosed(ctx context.Context, g rpxp.Guild, s rpxp.Summary) error {
	return f(ctx, g, s)
}

type Scheduler struct {
	engine Engine
	queue  *syncq.Queue
	notify Notifier
	clock  clock.Clock
	log    *slog.Logger

	// wait blocks until d has passed or ctx is done.
	wait func(ctx context.Context, d time.Duration) error
}

func New(engine Engine, queue *syncq.Queue, notify Notifier, clk clock.Clock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	if notify == nil {
		notify = NotifierFunc(func(context.Context, rpxp.Guild, rpxp.Summary) error { return nil })
	}
	return &Scheduler{
		engine: engine,
		queue:  queue,
		notify: notify,
		clock:  clk,
		log:    logger,
		wait:   sleepWithContext,
	}
}

// NextMonthBoundary returns midnight UTC on the first day of the month
// after t.
func NextMonthBoundary(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// Run waits for each month boundary and rolls every guild over. It returns
// when ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		now := s.clock.Now()
		next := NextMonthBoundary(now)
		s.log.Info("monthly rollover armed", "at", next.Format(time.RFC3339))
		if err := s.wait(ctx, next.Sub(now)); err != nil {
			return nil
		}
		// Never roll over before the boundary.
		for s.clock.Now().Before(next) {
			if err := s.wait(ctx, next.Sub(s.clock.Now())); err != nil {
				return nil
			}
		}
		s.RunOnce(ctx)
	}
}

// RunOnce rolls every configured guild over and reports how many
// succeeded.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	guilds, err := s.engine.Guilds(ctx)
	if err != nil {
		s.log.Error("monthly rollover: list guilds", "err", err)
		return 0
	}
	done := 0
	for _, g := range guilds {
		if err := s.RolloverGuild(ctx, g); err != nil {
			s.log.Error("monthly rollover failed", "guild_id", g.GuildID, "err", err)
			continue
		}
		done++
	}
	s.log.Info("monthly rollover finished", "guilds", len(guilds), "succeeded", done)
	return done
}

// RolloverGuild snapshots and resets one guild through the job queue and
// then notifies. A failed notification does not undo the reset.
func (s *Scheduler) RolloverGuild(ctx context.Context, g rpxp.Guild) error {
	var res rpxp.RolloverResult
	err := s.queue.Do(ctx, "rollover", func(ctx context.Context) error {
		var err error
		res, err = s.engine.Rollover(ctx, g.GuildID)
		return err
	})
	if err != nil {
		return err
	}
	if err := s.notify.MonthClosed(ctx, g, res.Summary); err != nil {
		s.log.Warn("monthly summary not delivered", "guild_id", g.GuildID, "err", err)
	}
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
