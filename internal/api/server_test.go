package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/clock"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rollover"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/store/memory"
	"github.com/erikbrgr/alluria-rpxp-bot/internal/syncq"
)

type fixture struct {
	srv     *httptest.Server
	svc     *rpxp.Service
	notices []rpxp.Summary
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
	svc := rpxp.NewService(memory.New(), clk, nil)
	q := syncq.New(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = q.Run(ctx)
	}()

	f := &fixture{svc: svc}
	notify := rollover.NotifierFunc(func(_ context.Context, _ rpxp.Guild, s rpxp.Summary) error {
		f.notices = append(f.notices, s)
		return nil
	})
	sched := rollover.New(svc, q, notify, clk, nil)
	f.srv = httptest.NewServer(New(Config{AdminToken: token}, nil, svc, sched, q).Handler())
	t.Cleanup(func() {
		f.srv.Close()
		cancel()
		<-stopped
	})
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Setup(ctx, "g1")
	require.NoError(t, err)
	lvl := 3
	_, err = f.svc.Register(ctx, rpxp.RegisterInput{GuildID: "g1", OwnerID: "u1", Tag: "A.", Name: "Ada", Role: rpxp.RolePC, Level: &lvl})
	require.NoError(t, err)
	_, ok, err := f.svc.ProcessMessage(ctx, rpxp.Message{GuildID: "g1", AuthorID: "u1", Content: "A. one two three four"})
	require.NoError(t, err)
	require.True(t, ok)
}

func (f *fixture) do(t *testing.T, method, path, token string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, "")
	var body map[string]any
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(0), body["queue_depth"])
}

func TestSummaryAndTuppers(t *testing.T) {
	f := newFixture(t, "")
	f.seed(t)

	var sum rpxp.Summary
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/guilds/g1/summary?scope=total", "", &sum))
	assert.Equal(t, rpxp.ScopeTotal, sum.Scope)
	assert.Equal(t, int64(4), sum.TotalWords)
	assert.Equal(t, "u1", sum.TopUserID)

	var list rpxp.TupperList
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/guilds/g1/users/u1/tuppers", "", &list))
	require.Len(t, list.PCs, 1)
	assert.Equal(t, "Ada", list.PCs[0].Name)
}

func TestDomainErrors(t *testing.T) {
	f := newFixture(t, "")
	var body map[string]string
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/guilds/nope/summary", "", &body))
	assert.Equal(t, "this server is not set up yet", body["error"])

	f.seed(t)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/guilds/g1/summary?scope=weekly", "", &body))
}

func TestRolloverRequiresToken(t *testing.T) {
	f := newFixture(t, "s3cret")
	f.seed(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/v1/guilds/g1/rollover", "", nil))
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/v1/guilds/g1/rollover", "wrong", nil))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/guilds/g1/rollover", "s3cret", nil))

	require.Len(t, f.notices, 1)
	assert.Equal(t, int64(4), f.notices[0].TotalWords)

	var sum rpxp.Summary
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/guilds/g1/summary", "", &sum))
	assert.Equal(t, int64(0), sum.TotalWords)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/guilds/g1/summary?scope=total", "", &sum))
	assert.Equal(t, int64(4), sum.TotalWords)
}

func TestRolloverDisabledWithoutToken(t *testing.T) {
	f := newFixture(t, "")
	f.seed(t)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/v1/guilds/g1/rollover", "anything", nil))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken(""))
}
