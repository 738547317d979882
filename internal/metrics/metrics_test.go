package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonload/internal/engine"
	"dungeonload/internal/stats"
)

type fixedSource struct {
	snap engine.Snapshot
	ok   bool
}

func (f fixedSource) Latest() (engine.Snapshot, bool) { return f.snap, f.ok }

func filled() *stats.Aggregator {
	a := stats.NewAggregator()
	for i := 0; i < 4; i++ {
		a.RecordRequest(stats.RequestSample{
			Endpoint:   "POST /api/players",
			StatusCode: 201,
			Duration:   20 * time.Millisecond,
			Bytes:      64,
		})
	}
	a.RecordRequest(stats.RequestSample{Endpoint: "GET /api/games", StatusCode: 500, Duration: 5 * time.Millisecond, Failed: true})
	a.RecordCheck(stats.CheckResult{Name: "player created", Passed: true})
	a.RecordCheck(stats.CheckResult{Name: "game fetched", Skipped: true})
	a.RecordDataError()
	a.RecordIteration(3 * time.Second)
	return a
}

func TestCollectorExposesAggregates(t *testing.T) {
	t.Parallel()

	src := fixedSource{ok: true, snap: engine.Snapshot{Active: 7, Retiring: 2, Target: 9, MaxVUs: 50, Stage: 1}}
	c := NewCollector(filled(), src)

	expected := `
# HELP dungeonload_http_reqs_total Requests sent, by endpoint.
# TYPE dungeonload_http_reqs_total counter
dungeonload_http_reqs_total{endpoint="GET /api/games"} 1
dungeonload_http_reqs_total{endpoint="POST /api/players"} 4
# HELP dungeonload_http_req_failed_total Failed requests, by endpoint.
# TYPE dungeonload_http_req_failed_total counter
dungeonload_http_req_failed_total{endpoint="GET /api/games"} 1
dungeonload_http_req_failed_total{endpoint="POST /api/players"} 0
# HELP dungeonload_vus Virtual users by state.
# TYPE dungeonload_vus gauge
dungeonload_vus{state="active"} 7
dungeonload_vus{state="retiring"} 2
# HELP dungeonload_stage Index of the running stage, starting at 1.
# TYPE dungeonload_stage gauge
dungeonload_stage 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"dungeonload_http_reqs_total",
		"dungeonload_http_req_failed_total",
		"dungeonload_vus",
		"dungeonload_stage",
	)
	require.NoError(t, err)

	// 4 endpoint series each, 3 per check, 5 gauges, 4 run-wide series
	assert.Equal(t, 2*4+2*3+5+4, testutil.CollectAndCount(c))
}

func TestCollectorWithoutSnapshot(t *testing.T) {
	t.Parallel()

	c := NewCollector(stats.NewAggregator(), fixedSource{})
	assert.Zero(t, testutil.CollectAndCount(c, "dungeonload_vus", "dungeonload_vus_target"))
	assert.Equal(t, 4, testutil.CollectAndCount(c))

	require.NoError(t, testutil.CollectAndCompare(NewCollector(filled(), nil), strings.NewReader(`
# HELP dungeonload_data_errors_total Steps skipped for lack of a captured id.
# TYPE dungeonload_data_errors_total counter
dungeonload_data_errors_total 1
# HELP dungeonload_checks_total Check evaluations, by check and outcome.
# TYPE dungeonload_checks_total counter
dungeonload_checks_total{check="game fetched",outcome="fail"} 0
dungeonload_checks_total{check="game fetched",outcome="pass"} 0
dungeonload_checks_total{check="game fetched",outcome="skip"} 1
dungeonload_checks_total{check="player created",outcome="fail"} 0
dungeonload_checks_total{check="player created",outcome="pass"} 1
dungeonload_checks_total{check="player created",outcome="skip"} 0
`), "dungeonload_data_errors_total", "dungeonload_checks_total"))
}

func TestHandlerServesMetrics(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(NewCollector(filled(), nil))
	require.NoError(t, err)
	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `dungeonload_http_req_duration_seconds_count{endpoint="POST /api/players"} 4`)
	assert.Contains(t, string(body), "dungeonload_iterations_total 1")
	assert.Contains(t, string(body), "go_goroutines")

	resp2, err := http.Post(srv.URL+"/metrics", "text/plain", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestServeStopsWithContext(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(NewCollector(stats.NewAggregator(), nil))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", reg, nil) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	assert.Error(t, Serve(context.Background(), "256.0.0.1:bad", reg, nil))
}
