package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// SafeHistogram is a thread-safe wrapper around hdrhistogram
type SafeHistogram struct {
	hist *hdrhistogram.Histogram
	mu   sync.Mutex
}

func NewSafeHistogram() *SafeHistogram {
	// 1us to 10min, 3 significant figures
	h := hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
	return &SafeHistogram{hist: h}
}

// Record stores d in microseconds, clamped to the trackable range.
func (h *SafeHistogram) Record(d time.Duration) {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if us > h.hist.HighestTrackableValue() {
		us = h.hist.HighestTrackableValue()
	}
	_ = h.hist.RecordValue(us)
}

// Trend is a frozen view of a histogram, in milliseconds.
type Trend struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Avg   float64 `json:"avg"`
	Med   float64 `json:"med"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`

	// frozen copy of the source histogram, nil for decoded trends
	dist *hdrhistogram.Histogram
}

// Percentile returns the p-th percentile in milliseconds. Trends decoded from
// JSON only know 50, 90, 95, 99 and 100.
func (t Trend) Percentile(p float64) (float64, bool) {
	if p < 0 || p > 100 {
		return 0, false
	}
	if t.Count == 0 {
		return 0, true
	}
	if t.dist != nil {
		return usToMs(t.dist.ValueAtQuantile(p)), true
	}
	switch p {
	case 50:
		return t.Med, true
	case 90:
		return t.P90, true
	case 95:
		return t.P95, true
	case 99:
		return t.P99, true
	case 100:
		return t.Max, true
	}
	return 0, false
}

func (h *SafeHistogram) Trend() Trend {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hist.TotalCount() == 0 {
		return Trend{}
	}
	return Trend{
		Count: h.hist.TotalCount(),
		Min:   usToMs(h.hist.Min()),
		Avg:   h.hist.Mean() / 1000.0,
		Med:   usToMs(h.hist.ValueAtQuantile(50)),
		P90:   usToMs(h.hist.ValueAtQuantile(90)),
		P95:   usToMs(h.hist.ValueAtQuantile(95)),
		P99:   usToMs(h.hist.ValueAtQuantile(99)),
		Max:   usToMs(h.hist.Max()),
		dist:  hdrhistogram.Import(h.hist.Export()),
	}
}

func (h *SafeHistogram) TotalCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount()
}

func usToMs(v int64) float64 {
	return float64(v) / 1000.0
}
