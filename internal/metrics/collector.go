// Package metrics exposes the live aggregates of a run in the Prometheus
// text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"dungeonload/internal/engine"
	"dungeonload/internal/stats"
)

const namespace = "dungeonload"

// SnapshotSource reports the latest engine snapshot; *engine.Engine is one.
type SnapshotSource interface {
	Latest() (engine.Snapshot, bool)
}

// Collector reads the aggregator on every scrape, so nothing is double
// counted and nothing needs updating on the request path.
type Collector struct {
	agg *stats.Aggregator
	src SnapshotSource

	vus        *prometheus.Desc
	vusTarget  *prometheus.Desc
	vusMax     *prometheus.Desc
	stage      *prometheus.Desc
	reqs       *prometheus.Desc
	reqsFailed *prometheus.Desc
	bytes      *prometheus.Desc
	duration   *prometheus.Desc
	checks     *prometheus.Desc
	iterations *prometheus.Desc
	iterDur    *prometheus.Desc
	dataErrors *prometheus.Desc
	panics     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector; src may be nil when only the aggregator
// is known.
func NewCollector(agg *stats.Aggregator, src SnapshotSource) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		agg: agg,
		src: src,

		vus:        desc("vus", "Virtual users by state.", "state"),
		vusTarget:  desc("vus_target", "Number of users the schedule asks for."),
		vusMax:     desc("vus_max", "Concurrency ceiling of the profile."),
		stage:      desc("stage", "Index of the running stage, starting at 1."),
		reqs:       desc("http_reqs_total", "Requests sent, by endpoint.", "endpoint"),
		reqsFailed: desc("http_req_failed_total", "Failed requests, by endpoint.", "endpoint"),
		bytes:      desc("data_received_bytes_total", "Response bytes read, by endpoint.", "endpoint"),
		duration:   desc("http_req_duration_seconds", "Request latency, by endpoint.", "endpoint"),
		checks:     desc("checks_total", "Check evaluations, by check and outcome.", "check", "outcome"),
		iterations: desc("iterations_total", "Completed workflow iterations."),
		iterDur:    desc("iteration_duration_seconds", "Duration of completed iterations."),
		dataErrors: desc("data_errors_total", "Steps skipped for lack of a captured id."),
		panics:     desc("panics_total", "Iterations that panicked."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.vus, c.vusTarget, c.vusMax, c.stage,
		c.reqs, c.reqsFailed, c.bytes, c.duration,
		c.checks, c.iterations, c.iterDur, c.dataErrors, c.panics,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.src != nil {
		if s, ok := c.src.Latest(); ok {
			ch <- prometheus.MustNewConstMetric(c.vus, prometheus.GaugeValue, float64(s.Active), "active")
			ch <- prometheus.MustNewConstMetric(c.vus, prometheus.GaugeValue, float64(s.Retiring), "retiring")
			ch <- prometheus.MustNewConstMetric(c.vusTarget, prometheus.GaugeValue, float64(s.Target))
			ch <- prometheus.MustNewConstMetric(c.vusMax, prometheus.GaugeValue, float64(s.MaxVUs))
			ch <- prometheus.MustNewConstMetric(c.stage, prometheus.GaugeValue, float64(s.Stage+1))
		}
	}

	sum := c.agg.Summary()
	for _, ep := range sum.Endpoints {
		ch <- prometheus.MustNewConstMetric(c.reqs, prometheus.CounterValue, float64(ep.Requests), ep.Name)
		ch <- prometheus.MustNewConstMetric(c.reqsFailed, prometheus.CounterValue, float64(ep.Fail), ep.Name)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.CounterValue, float64(ep.Bytes), ep.Name)
		ch <- trendSummary(c.duration, ep.Duration, ep.Name)
	}
	for _, ck := range sum.Checks {
		ch <- prometheus.MustNewConstMetric(c.checks, prometheus.CounterValue, float64(ck.Passes), ck.Name, "pass")
		ch <- prometheus.MustNewConstMetric(c.checks, prometheus.CounterValue, float64(ck.Fails), ck.Name, "fail")
		ch <- prometheus.MustNewConstMetric(c.checks, prometheus.CounterValue, float64(ck.Skips), ck.Name, "skip")
	}
	ch <- prometheus.MustNewConstMetric(c.iterations, prometheus.CounterValue, float64(sum.Iterations))
	ch <- trendSummary(c.iterDur, sum.IterationDuration)
	ch <- prometheus.MustNewConstMetric(c.dataErrors, prometheus.CounterValue, float64(sum.DataErrors))
	ch <- prometheus.MustNewConstMetric(c.panics, prometheus.CounterValue, float64(sum.Panics))
}

// trendSummary converts a millisecond trend into a seconds summary.
func trendSummary(d *prometheus.Desc, t stats.Trend, labels ...string) prometheus.Metric {
	const ms = 1e-3
	return prometheus.MustNewConstSummary(d,
		uint64(t.Count),
		t.Avg*float64(t.Count)*ms,
		map[float64]float64{
			0.5:  t.Med * ms,
			0.9:  t.P90 * ms,
			0.95: t.P95 * ms,
			0.99: t.P99 * ms,
		},
		labels...,
	)
}
