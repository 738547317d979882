package engine

import (
	"time"

	"dungeonload/internal/pool"
)

// Snapshot is sent over the updates channel
type Snapshot struct {
	Elapsed time.Duration
	Total   time.Duration
	Stage   int
	Stages  int
	Target  int

	Active   int
	Retiring int
	MaxVUs   int

	Requests   uint64
	Success    uint64
	Fail       uint64
	Bytes      uint64
	Iterations uint64
	DataErrors uint64
	Panics     uint64

	// Pre-calculated percentiles for the UI (cheap copy)
	P50Ms float64
	P90Ms float64
	P95Ms float64
	P99Ms float64
	MaxMs float64

	Done bool
}

// UpdateChan is the channel type
type UpdateChan chan Snapshot

// RPS is the mean request rate since the start of the run.
func (s Snapshot) RPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Requests) / s.Elapsed.Seconds()
}

// Progress is the elapsed share of the profile, 0..1.
func (s Snapshot) Progress() float64 {
	if s.Total <= 0 {
		return 1
	}
	return min(1, float64(s.Elapsed)/float64(s.Total))
}

func (e *Engine) snapshot(pl *pool.Pool, start time.Time, done bool) Snapshot {
	a := e.agg
	trend := a.Duration.Trend()
	return Snapshot{
		Elapsed:    time.Since(start),
		Total:      e.opts.Profile.TotalDuration(),
		Stage:      int(e.stage.Load()),
		Stages:     len(e.opts.Profile.Stages),
		Target:     int(e.target.Load()),
		Active:     pl.Active(),
		Retiring:   pl.Retiring(),
		MaxVUs:     pl.MaxVUs(),
		Requests:   a.Requests.Load(),
		Success:    a.Success.Load(),
		Fail:       a.Fail.Load(),
		Bytes:      a.Bytes.Load(),
		Iterations: a.Iterations.Load(),
		DataErrors: a.DataErrors.Load(),
		Panics:     a.Panics.Load(),
		P50Ms:      trend.Med,
		P90Ms:      trend.P90,
		P95Ms:      trend.P95,
		P99Ms:      trend.P99,
		MaxMs:      trend.Max,
		Done:       done,
	}
}
