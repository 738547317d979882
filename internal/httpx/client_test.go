package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonload/internal/stats"
)

type sampleSink struct {
	mu      sync.Mutex
	samples []stats.RequestSample
}

func (s *sampleSink) RecordRequest(r stats.RequestSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, r)
}

func TestClientPostRecordsSample(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Load-Test"))
		assert.Equal(t, "1", r.Header.Get("X-Step"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": 42, "name": "`+in["name"]+`"}`)
	}))
	defer srv.Close()

	sink := &sampleSink{}
	c := New(Options{Timeout: time.Second, Headers: map[string]string{"X-Load-Test": "yes"}}, sink)
	resp := c.Post(context.Background(), srv.URL+"/api/players", map[string]string{"name": "p1"}, map[string]string{"X-Step": "1"})

	require.NoError(t, resp.Err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	id, ok := resp.Capture("id")
	assert.True(t, ok)
	assert.Equal(t, "42", id)
	name, ok := resp.Capture("name")
	assert.True(t, ok)
	assert.Equal(t, "p1", name)

	require.Len(t, sink.samples, 1)
	s := sink.samples[0]
	assert.Equal(t, "POST "+srv.URL+"/api/players", s.Endpoint)
	assert.Equal(t, http.StatusCreated, s.StatusCode)
	assert.False(t, s.Failed)
	assert.Positive(t, s.Bytes)
}

func TestClientTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sink := &sampleSink{}
	c := New(Options{Timeout: time.Second}, sink)
	resp := c.Do(context.Background(), Request{Method: http.MethodGet, URL: url + "/api/games", Endpoint: "GET /api/games", VU: 7})

	assert.Error(t, resp.Err)
	assert.Zero(t, resp.Status)
	require.Len(t, sink.samples, 1)
	assert.True(t, sink.samples[0].Failed)
	assert.NotEmpty(t, sink.samples[0].Err)
	assert.EqualValues(t, 7, sink.samples[0].VU)
	assert.Equal(t, "GET /api/games", sink.samples[0].Endpoint)
}

func TestClientStatusFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	sink := &sampleSink{}
	resp := New(Options{}, sink).Get(context.Background(), srv.URL+"/api/games/")
	require.NoError(t, resp.Err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.True(t, sink.samples[0].Failed)
}

func TestClientBadInputDoesNotPanic(t *testing.T) {
	t.Parallel()

	c := New(Options{}, nil)
	resp := c.Post(context.Background(), "http://127.0.0.1:1/x", func() {}, nil)
	assert.ErrorContains(t, resp.Err, "encode body")

	resp = c.Get(context.Background(), "://bad url")
	assert.Error(t, resp.Err)
}

func TestResponseCapture(t *testing.T) {
	t.Parallel()

	r := Response{Body: []byte(`{"gameId": 9, "result": {"score": 12.5, "won": true}, "empty": "", "nothing": null}`)}
	v, ok := r.Capture("gameId")
	assert.True(t, ok)
	assert.Equal(t, "9", v)
	v, ok = r.Capture("result.score")
	assert.True(t, ok)
	assert.Equal(t, "12.5", v)
	v, ok = r.Capture("result.won")
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	for _, expr := range []string{"missing", "empty", "nothing", "result", "[[["} {
		_, ok = r.Capture(expr)
		assert.False(t, ok, expr)
	}

	_, ok = Response{Body: []byte("not json")}.Capture("id")
	assert.False(t, ok)
	assert.Nil(t, Response{}.JSON())
}
