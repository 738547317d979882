package workload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonload/internal/httpx"
	"dungeonload/internal/stats"
	"dungeonload/internal/target"
)

func newScript(t *testing.T, cfg target.ServerConfig, opts Options) (*DungeonScript, *stats.Aggregator) {
	t.Helper()
	srv := httptest.NewServer(target.New(cfg).Handler())
	t.Cleanup(srv.Close)

	agg := stats.NewAggregator()
	opts.BaseURL = srv.URL
	s, err := NewDungeonScript(httpx.New(httpx.Options{Timeout: 5 * time.Second}, agg), agg, opts)
	require.NoError(t, err)
	return s, agg
}

func TestFullWorkflowAgainstTarget(t *testing.T) {
	t.Parallel()

	s, agg := newScript(t, target.ServerConfig{}, Options{Variant: VariantFull, Seed: 1})
	vu := s.NewUser(1)
	vu.Iterate(context.Background(), 0)
	vu.Iterate(context.Background(), 1)

	sum := agg.Summary()
	assert.EqualValues(t, 14, sum.Requests)
	assert.Zero(t, sum.Fail)
	assert.Zero(t, sum.DataErrors)
	assert.EqualValues(t, 2, sum.Iterations)

	for _, name := range Steps() {
		c, ok := sum.Check(name)
		require.True(t, ok, name)
		assert.EqualValues(t, 2, c.Passes, name)
		assert.Zero(t, c.Fails, name)
	}
	for _, ep := range []string{"POST /api/players", "POST /api/boards", "POST /api/games/play",
		"GET /api/players/{id}", "GET /api/boards/{id}", "GET /api/games/{id}", "GET /api/games"} {
		e, ok := sum.Endpoint(ep)
		require.True(t, ok, ep)
		assert.EqualValues(t, 2, e.Requests, ep)
	}
}

func TestBasicVariantSkipsGameFetch(t *testing.T) {
	t.Parallel()

	s, agg := newScript(t, target.ServerConfig{}, Options{Variant: VariantBasic})
	s.NewUser(1).Iterate(context.Background(), 0)

	sum := agg.Summary()
	assert.EqualValues(t, 6, sum.Requests)
	assert.EqualValues(t, 1, sum.DataErrors)
	_, sent := sum.Endpoint("GET /api/games/{id}")
	assert.False(t, sent)

	c, ok := sum.Check(CheckGameFetched)
	require.True(t, ok)
	assert.EqualValues(t, 1, c.Skips)
	assert.Zero(t, c.Passes+c.Fails)
}

// playWithoutGameID answers play requests with a 200 that carries no gameId.
func playWithoutGameID(t *testing.T, v Variant) stats.Summary {
	t.Helper()
	api := target.New(target.ServerConfig{}).Handler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/games/play" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"playerName": "p"}`))
			return
		}
		api.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	agg := stats.NewAggregator()
	s, err := NewDungeonScript(httpx.New(httpx.Options{Timeout: 5 * time.Second}, agg), agg, Options{BaseURL: srv.URL, Variant: v})
	require.NoError(t, err)
	s.NewUser(1).Iterate(context.Background(), 0)
	return agg.Summary()
}

func TestFullVariantRequiresGameID(t *testing.T) {
	t.Parallel()

	sum := playWithoutGameID(t, VariantFull)
	c, ok := sum.Check(CheckGamePlayed)
	require.True(t, ok)
	assert.EqualValues(t, 1, c.Fails)
	assert.Zero(t, sum.Fail, "a 200 without a gameId is a failed check, not a failed request")
	fetched, _ := sum.Check(CheckGameFetched)
	assert.EqualValues(t, 1, fetched.Skips)

	sum = playWithoutGameID(t, VariantBasic)
	c, _ = sum.Check(CheckGamePlayed)
	assert.EqualValues(t, 1, c.Passes)
	assert.Zero(t, c.Fails)
}

func TestFailingTargetSkipsDependentSteps(t *testing.T) {
	t.Parallel()

	s, agg := newScript(t, target.ServerConfig{ErrorRate: 1}, Options{})
	s.NewUser(1).Iterate(context.Background(), 0)

	sum := agg.Summary()
	// Both creates and the list are sent; play and the three fetches are not.
	assert.EqualValues(t, 3, sum.Requests)
	assert.EqualValues(t, 3, sum.Fail)
	assert.EqualValues(t, 4, sum.DataErrors)
	assert.EqualValues(t, 1, sum.Iterations)

	totals := sum.CheckTotals()
	assert.EqualValues(t, 0, totals.Passes)
	assert.EqualValues(t, 3, totals.Fails)
	assert.EqualValues(t, 4, totals.Skips)
}

func TestNoStepAfterDeadline(t *testing.T) {
	t.Parallel()

	s, agg := newScript(t, target.ServerConfig{}, Options{StartDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s.NewUser(1).Iterate(ctx, 0)
	sum := agg.Summary()
	assert.Zero(t, sum.Requests)
	assert.Zero(t, sum.Iterations)
}

func TestInFlightRequestOutlivesDeadline(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 1}`))
	}))
	defer srv.Close()

	agg := stats.NewAggregator()
	s, err := NewDungeonScript(httpx.New(httpx.Options{}, agg), agg, Options{BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	s.NewUser(1).Iterate(ctx, 0)

	assert.EqualValues(t, 1, hits.Load(), "only the first step started before the deadline")
	sum := agg.Summary()
	assert.Zero(t, sum.Fail, "the request was not cut short")
	c, _ := sum.Check(CheckPlayerCreated)
	assert.EqualValues(t, 1, c.Passes)
}

func TestNewDungeonScriptValidates(t *testing.T) {
	t.Parallel()

	agg := stats.NewAggregator()
	client := httpx.New(httpx.Options{}, agg)

	_, err := NewDungeonScript(client, agg, Options{BaseURL: "not a url"})
	assert.Error(t, err)
	_, err = NewDungeonScript(nil, agg, Options{BaseURL: "http://localhost"})
	assert.Error(t, err)
	_, err = NewDungeonScript(client, agg, Options{BaseURL: "http://localhost", Board: BoardBounds{MinSize: 3, MaxSize: 1}})
	assert.Error(t, err)

	v, err := ParseVariant(" Basic ")
	require.NoError(t, err)
	assert.Equal(t, VariantBasic, v)
	v, err = ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantFull, v)
	_, err = ParseVariant("fancy")
	assert.Error(t, err)
}
