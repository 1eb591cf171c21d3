package rollover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/clock"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store/memory"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/syncq"
)

func TestNextMonthBoundary(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC), time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		// 20:00 on Oct 31 in UTC-5 is already November in UTC.
		{time.Date(2026, 10, 31, 20, 0, 0, 0, time.FixedZone("EST", -5*3600)), time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NextMonthBoundary(tc.in), tc.in.String())
	}
}

type fixture struct {
	svc   *rpxp.Service
	clock *clock.Manual
	queue *syncq.Queue
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
	svc := rpxp.NewService(memory.New(), clk, nil)
	q := syncq.New(nil, 0)
	qctx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = q.Run(qctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	for _, guild := range []string{"g1", "g2"} {
		_, err := svc.Setup(ctx, guild)
		require.NoError(t, err)
		level := 3
		_, err = svc.Register(ctx, rpxp.RegisterInput{GuildID: guild, OwnerID: "o1", Tag: "B.", Name: "Bob", Role: rpxp.RolePC, Level: &level})
		require.NoError(t, err)
		_, ok, err := svc.ProcessMessage(ctx, rpxp.Message{GuildID: guild, AuthorID: "o1", Content: "B. one two three four"})
		require.NoError(t, err)
		require.True(t, ok)
	}
	return fixture{svc: svc, clock: clk, queue: q}
}

func TestRunRollsOverAtEachBoundary(t *testing.T) {
	f := newFixture(t)

	var (
		mu      sync.Mutex
		notices []rpxp.Summary
	)
	notify := NotifierFunc(func(_ context.Context, g rpxp.Guild, s rpxp.Summary) error {
		mu.Lock()
		defer mu.Unlock()
		notices = append(notices, s)
		return nil
	})
	s := New(f.svc, f.queue, notify, f.clock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var waits []time.Duration
	s.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 3 {
			cancel()
			return ctx.Err()
		}
		f.clock.Advance(d)
		return nil
	}

	require.NoError(t, s.Run(ctx))

	require.Len(t, waits, 3)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC).Sub(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)), waits[0])
	assert.Equal(t, 30*24*time.Hour, waits[1])

	mu.Lock()
	defer mu.Unlock()
	// Two guilds rolled over at each of the two boundaries reached.
	require.Len(t, notices, 4)
	assert.Equal(t, int64(4), notices[0].TotalWords)
	assert.Equal(t, "o1", notices[0].TopUserID)
	assert.Equal(t, int64(0), notices[2].TotalWords)

	sum, err := f.svc.Summary(context.Background(), "g1", rpxp.ScopeTotal)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sum.TotalWords)
}

func TestRunOnceKeepsGoingAfterNotifyFailure(t *testing.T) {
	f := newFixture(t)
	calls := 0
	notify := NotifierFunc(func(context.Context, rpxp.Guild, rpxp.Summary) error {
		calls++
		return errors.New("discord down")
	})
	s := New(f.svc, f.queue, notify, f.clock, nil)

	assert.Equal(t, 2, s.RunOnce(context.Background()))
	assert.Equal(t, 2, calls)

	month, err := f.svc.Summary(context.Background(), "g2", rpxp.ScopeMonth)
	require.NoError(t, err)
	assert.Zero(t, month.TotalWords)
	assert.Zero(t, month.TotalXP)
}

type failingEngine struct{}

func (failingEngine) Guilds(context.Context) ([]rpxp.Guild, error) {
	return []rpxp.Guild{{GuildID: "gone"}}, nil
}

func (failingEngine) Rollover(context.Context, string) (rpxp.RolloverResult, error) {
	return rpxp.RolloverResult{}, rpxp.ErrGuildNotSetUp
}

func TestRolloverGuildReportsEngineErrors(t *testing.T) {
	f := newFixture(t)
	notified := false
	s := New(failingEngine{}, f.queue, NotifierFunc(func(context.Context, rpxp.Guild, rpxp.Summary) error {
		notified = true
		return nil
	}), f.clock, nil)

	err := s.RolloverGuild(context.Background(), rpxp.Guild{GuildID: "gone"})
	assert.ErrorIs(t, err, rpxp.ErrGuildNotSetUp)
	assert.False(t, notified)
	assert.Zero(t, s.RunOnce(context.Background()))
}
