package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// RequestSample is one finished HTTP request.
type RequestSample struct {
	Timestamp  time.Time     `json:"timestamp"`
	Endpoint   string        `json:"endpoint"`
	Method     string        `json:"method"`
	URL        string        `json:"url"`
	VU         int64         `json:"vu"`
	StatusCode int           `json:"status"`
	Duration   time.Duration `json:"duration"`
	Bytes      int64         `json:"bytes"`
	Failed     bool          `json:"failed"`
	Err        string        `json:"error,omitempty"`
}

// CheckResult is the outcome of one named check. Skipped checks were never
// evaluated because the request they guard was not sent.
type CheckResult struct {
	Name      string    `json:"name"`
	Passed    bool      `json:"passed"`
	Skipped   bool      `json:"skipped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsFailure reports whether a response counts against http_req_failed:
// transport errors and anything outside 2xx/3xx.
func IsFailure(status int, err error) bool {
	return err != nil || status < 200 || status >= 400
}

type endpointStats struct {
	requests atomic.Uint64
	fail     atomic.Uint64
	bytes    atomic.Uint64
	duration *SafeHistogram
}

type checkStats struct {
	pass atomic.Uint64
	fail atomic.Uint64
	skip atomic.Uint64
}

// Aggregator holds the cumulative metrics of a run. It is safe for use by
// any number of virtual users at once.
type Aggregator struct {
	Requests atomic.Uint64
	Success  atomic.Uint64
	Fail     atomic.Uint64
	Bytes    atomic.Uint64

	Iterations atomic.Uint64
	DataErrors atomic.Uint64
	Panics     atomic.Uint64

	Duration          *SafeHistogram
	IterationDuration *SafeHistogram

	mu        sync.RWMutex
	endpoints map[string]*endpointStats
	checks    map[string]*checkStats

	keepSamples bool
	samplesMu   sync.Mutex
	samples     []RequestSample
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		Duration:          NewSafeHistogram(),
		IterationDuration: NewSafeHistogram(),
		endpoints:         make(map[string]*endpointStats),
		checks:            make(map[string]*checkStats),
	}
}

// KeepSamples makes the aggregator retain every RequestSample for export.
func (a *Aggregator) KeepSamples(keep bool) {
	a.samplesMu.Lock()
	a.keepSamples = keep
	a.samplesMu.Unlock()
}

func (a *Aggregator) RecordRequest(s RequestSample) {
	a.Requests.Add(1)
	if s.Failed {
		a.Fail.Add(1)
	} else {
		a.Success.Add(1)
	}
	if s.Bytes > 0 {
		a.Bytes.Add(uint64(s.Bytes))
	}
	a.Duration.Record(s.Duration)

	e := a.endpoint(s.Endpoint)
	e.requests.Add(1)
	if s.Failed {
		e.fail.Add(1)
	}
	if s.Bytes > 0 {
		e.bytes.Add(uint64(s.Bytes))
	}
	e.duration.Record(s.Duration)

	a.samplesMu.Lock()
	if a.keepSamples {
		a.samples = append(a.samples, s)
	}
	a.samplesMu.Unlock()
}

func (a *Aggregator) RecordCheck(c CheckResult) {
	cs := a.check(c.Name)
	switch {
	case c.Skipped:
		cs.skip.Add(1)
	case c.Passed:
		cs.pass.Add(1)
	default:
		cs.fail.Add(1)
	}
}

// RecordDataError counts a step that could not be built from the data
// captured earlier in the iteration.
func (a *Aggregator) RecordDataError() {
	a.DataErrors.Add(1)
}

func (a *Aggregator) RecordIteration(d time.Duration) {
	a.Iterations.Add(1)
	a.IterationDuration.Record(d)
}

func (a *Aggregator) RecordPanic() {
	a.Panics.Add(1)
}

func (a *Aggregator) endpoint(name string) *endpointStats {
	a.mu.RLock()
	e, ok := a.endpoints[name]
	a.mu.RUnlock()
	if ok {
		return e
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// Double check
	if e, ok = a.endpoints[name]; ok {
		return e
	}
	e = &endpointStats{duration: NewSafeHistogram()}
	a.endpoints[name] = e
	return e
}

func (a *Aggregator) check(name string) *checkStats {
	a.mu.RLock()
	c, ok := a.checks[name]
	a.mu.RUnlock()
	if ok {
		return c
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok = a.checks[name]; ok {
		return c
	}
	c = &checkStats{}
	a.checks[name] = c
	return c
}

// Samples returns a copy of the retained samples.
func (a *Aggregator) Samples() []RequestSample {
	a.samplesMu.Lock()
	defer a.samplesMu.Unlock()
	out := make([]RequestSample, len(a.samples))
	copy(out, a.samples)
	return out
}

// Summary freezes the current state. The returned value shares nothing with
// the aggregator.
func (a *Aggregator) Summary() Summary {
	s := Summary{
		Requests:          a.Requests.Load(),
		Success:           a.Success.Load(),
		Fail:              a.Fail.Load(),
		Bytes:             a.Bytes.Load(),
		Iterations:        a.Iterations.Load(),
		DataErrors:        a.DataErrors.Load(),
		Panics:            a.Panics.Load(),
		Duration:          a.Duration.Trend(),
		IterationDuration: a.IterationDuration.Trend(),
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	for name, e := range a.endpoints {
		s.Endpoints = append(s.Endpoints, EndpointSummary{
			Name:     name,
			Requests: e.requests.Load(),
			Fail:     e.fail.Load(),
			Bytes:    e.bytes.Load(),
			Duration: e.duration.Trend(),
		})
	}
	sort.Slice(s.Endpoints, func(i, j int) bool {
		return s.Endpoints[i].Name < s.Endpoints[j].Name
	})

	for name, c := range a.checks {
		s.Checks = append(s.Checks, CheckSummary{
			Name:   name,
			Passes: c.pass.Load(),
			Fails:  c.fail.Load(),
			Skips:  c.skip.Load(),
		})
	}
	sort.Slice(s.Checks, func(i, j int) bool {
		return s.Checks[i].Name < s.Checks[j].Name
	})
	return s
}
