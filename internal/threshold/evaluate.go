package threshold

import (
	"fmt"
	"strings"

	"dungeonload/internal/stats"
)

// Result is the outcome of one expression.
type Result struct {
	Expression string  `json:"expression"`
	Actual     float64 `json:"actual"`
	Passed     bool    `json:"passed"`
	// Missing is set when the selector matched nothing; such thresholds fail.
	Missing bool `json:"missing,omitempty"`
}

// Report is the outcome of a whole Set. Passed is the AND of all results; an
// empty set passes.
type Report struct {
	Results []Result `json:"results"`
	Passed  bool     `json:"passed"`
}

func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Evaluate computes every expression against a frozen summary. It only
// reads s, so repeated calls give the same report.
func (set Set) Evaluate(s stats.Summary) Report {
	rep := Report{Passed: true}
	for _, e := range set {
		res := e.Evaluate(s)
		rep.Results = append(rep.Results, res)
		rep.Passed = rep.Passed && res.Passed
	}
	return rep
}

func (e Expression) Evaluate(s stats.Summary) Result {
	actual, ok := e.value(s)
	res := Result{Expression: e.String(), Actual: actual}
	if !ok {
		res.Missing = true
		return res
	}
	res.Passed = e.Comparator.holds(actual, e.Limit)
	return res
}

func (e Expression) value(s stats.Summary) (float64, bool) {
	_, name, _ := strings.Cut(e.Selector, ":")
	name = strings.TrimSpace(name)

	switch e.Metric {
	case MetricReqFailed:
		if name == "" {
			return s.FailRate(), true
		}
		ep, ok := s.Endpoint(name)
		return ep.FailRate(), ok
	case MetricReqs:
		count := s.Requests
		if name != "" {
			ep, ok := s.Endpoint(name)
			if !ok {
				return 0, false
			}
			count = ep.Requests
		}
		return float64(count), true
	case MetricReqDuration:
		trend := s.Duration
		if name != "" {
			ep, ok := s.Endpoint(name)
			if !ok {
				return 0, false
			}
			trend = ep.Duration
		}
		return trendValue(trend, e.Aggregation)
	case MetricChecks:
		c := s.CheckTotals()
		if name != "" {
			var ok bool
			if c, ok = s.Check(name); !ok {
				return 0, false
			}
		}
		return c.PassRate(), true
	case MetricIterations:
		return float64(s.Iterations), true
	case MetricIterationDuration:
		return trendValue(s.IterationDuration, e.Aggregation)
	case MetricDataErrors:
		return float64(s.DataErrors), true
	}
	return 0, false
}

func trendValue(t stats.Trend, agg string) (float64, bool) {
	switch agg {
	case "avg":
		return t.Avg, true
	case "min":
		return t.Min, true
	case "max":
		return t.Max, true
	case "med":
		return t.Med, true
	}
	p, ok := aggregate(kindTrend, agg)
	if !ok || p < 0 {
		return 0, false
	}
	return t.Percentile(p)
}

func (r Result) String() string {
	mark := "✓"
	if !r.Passed {
		mark = "✗"
	}
	if r.Missing {
		return fmt.Sprintf("%s %s (no data)", mark, r.Expression)
	}
	return fmt.Sprintf("%s %s (actual %.4g)", mark, r.Expression, r.Actual)
}
