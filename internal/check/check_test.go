package check

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonload/internal/httpx"
	"dungeonload/internal/stats"
)

func TestStatusOKAgainstCreated(t *testing.T) {
	t.Parallel()

	agg := stats.NewAggregator()
	resp := httpx.Response{Status: 201}

	ok := Evaluate(agg, resp, Check{Name: "game played", Predicate: StatusOK()})
	assert.False(t, ok)

	c, found := agg.Summary().Check("game played")
	require.True(t, found)
	assert.EqualValues(t, 0, c.Passes)
	assert.EqualValues(t, 1, c.Fails)
}

func TestStatusIn(t *testing.T) {
	t.Parallel()

	created := StatusIn(200, 201)
	assert.True(t, created(httpx.Response{Status: 200}))
	assert.True(t, created(httpx.Response{Status: 201}))
	assert.False(t, created(httpx.Response{Status: 204}))
	assert.False(t, created(httpx.Response{Status: 0, Err: errors.New("refused")}))
}

func TestJSONHas(t *testing.T) {
	t.Parallel()

	p := JSONHas("gameId")
	assert.True(t, p(httpx.Response{Status: 200, Body: []byte(`{"gameId": 1}`)}))
	assert.False(t, p(httpx.Response{Status: 200, Body: []byte(`{"id": 1}`)}))
	assert.False(t, p(httpx.Response{Status: 200, Body: []byte(`<html>`)}))
	assert.False(t, JSONHas("[[")(httpx.Response{Body: []byte(`{}`)}))
}

func TestEvaluateRunsEveryCheck(t *testing.T) {
	t.Parallel()

	agg := stats.NewAggregator()
	resp := httpx.Response{Status: 200, Body: []byte(`{"id": 5}`)}
	ok := Evaluate(agg, resp,
		Check{Name: "status", Predicate: StatusIn(201)},
		Check{Name: "has id", Predicate: JSONHas("id")},
		Check{Name: "both", Predicate: All(StatusOK(), JSONHas("id"))},
		Check{Name: "nil predicate"},
	)
	assert.False(t, ok)

	s := agg.Summary()
	require.Len(t, s.Checks, 4)
	totals := s.CheckTotals()
	assert.EqualValues(t, 2, totals.Passes)
	assert.EqualValues(t, 2, totals.Fails)
}

func TestSkip(t *testing.T) {
	t.Parallel()

	agg := stats.NewAggregator()
	Skip(agg, "game fetched", "board fetched")
	Skip(nil, "ignored")
	assert.True(t, Evaluate(nil, httpx.Response{Status: 200}, Check{Name: "x", Predicate: StatusOK()}))

	s := agg.Summary()
	c, _ := s.Check("game fetched")
	assert.EqualValues(t, 1, c.Skips)
	assert.Zero(t, c.PassRate())
}
