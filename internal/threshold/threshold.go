package threshold

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var ErrSyntax = errors.New("invalid threshold")

// Metric names understood by the evaluator.
const (
	MetricReqFailed         = "http_req_failed"
	MetricReqDuration       = "http_req_duration"
	MetricReqs              = "http_reqs"
	MetricChecks            = "checks"
	MetricIterations        = "iterations"
	MetricIterationDuration = "iteration_duration"
	MetricDataErrors        = "data_errors"
)

type Comparator string

const (
	LT Comparator = "<"
	LE Comparator = "<="
	GT Comparator = ">"
	GE Comparator = ">="
	EQ Comparator = "=="
	NE Comparator = "!="
)

func (c Comparator) holds(actual, limit float64) bool {
	switch c {
	case LT:
		return actual < limit
	case LE:
		return actual <= limit
	case GT:
		return actual > limit
	case GE:
		return actual >= limit
	case EQ:
		return actual == limit
	case NE:
		return actual != limit
	}
	return false
}

// Expression is one pass/fail condition, e.g. http_req_duration p(95)<200.
type Expression struct {
	Metric string
	// Selector narrows the metric to one endpoint or check, e.g.
	// "endpoint:GET /api/games". Empty means the whole run.
	Selector    string
	Aggregation string
	Comparator  Comparator
	Limit       float64

	source string
}

func (e Expression) String() string {
	name := e.Metric
	if e.Selector != "" {
		name += "{" + e.Selector + "}"
	}
	if e.source != "" {
		return name + " " + e.source
	}
	return fmt.Sprintf("%s %s%s%g", name, e.Aggregation, e.Comparator, e.Limit)
}

var comparators = []Comparator{LE, GE, EQ, NE, LT, GT}

// Parse reads a metric key such as "http_req_duration{endpoint:GET /api/games}"
// and an expression such as "p(95)<200".
func Parse(metric, expr string) (Expression, error) {
	name, selector, err := splitMetric(metric)
	if err != nil {
		return Expression{}, err
	}
	src := strings.TrimSpace(expr)
	compact := strings.ReplaceAll(src, " ", "")

	var (
		cmp Comparator
		idx = -1
	)
	for _, c := range comparators {
		if i := strings.Index(compact, string(c)); i > 0 {
			cmp, idx = c, i
			break
		}
	}
	if idx < 0 {
		return Expression{}, fmt.Errorf("%w %q: no comparison operator", ErrSyntax, expr)
	}
	agg := compact[:idx]
	limit, err := strconv.ParseFloat(compact[idx+len(cmp):], 64)
	if err != nil {
		return Expression{}, fmt.Errorf("%w %q: bad limit: %v", ErrSyntax, expr, err)
	}

	e := Expression{
		Metric:      name,
		Selector:    selector,
		Aggregation: agg,
		Comparator:  cmp,
		Limit:       limit,
		source:      src,
	}
	if err := e.validate(); err != nil {
		return Expression{}, err
	}
	return e, nil
}

func splitMetric(metric string) (string, string, error) {
	metric = strings.TrimSpace(metric)
	open := strings.Index(metric, "{")
	if open < 0 {
		return metric, "", nil
	}
	if !strings.HasSuffix(metric, "}") {
		return "", "", fmt.Errorf("%w metric %q: unterminated selector", ErrSyntax, metric)
	}
	return metric[:open], strings.TrimSpace(metric[open+1 : len(metric)-1]), nil
}

func (e Expression) validate() error {
	k, ok := metricKinds[e.Metric]
	if !ok {
		return fmt.Errorf("%w: unknown metric %q", ErrSyntax, e.Metric)
	}
	if e.Selector != "" {
		if !selectable[e.Metric] {
			return fmt.Errorf("%w: metric %s does not accept a selector, got %q", ErrSyntax, e.Metric, e.Selector)
		}
		key, _, found := strings.Cut(e.Selector, ":")
		want := "endpoint"
		if e.Metric == MetricChecks {
			want = "check"
		}
		if !found || key != want {
			return fmt.Errorf("%w: metric %s only accepts a %q selector, got %q", ErrSyntax, e.Metric, want, e.Selector)
		}
	}
	if _, ok := aggregate(k, e.Aggregation); !ok {
		return fmt.Errorf("%w: aggregation %q is not valid for %s", ErrSyntax, e.Aggregation, e.Metric)
	}
	return nil
}

type kind int

const (
	kindRate kind = iota
	kindTrend
	kindCounter
)

var metricKinds = map[string]kind{
	MetricReqFailed:         kindRate,
	MetricChecks:            kindRate,
	MetricReqDuration:       kindTrend,
	MetricIterationDuration: kindTrend,
	MetricReqs:              kindCounter,
	MetricIterations:        kindCounter,
	MetricDataErrors:        kindCounter,
}

// selectable metrics are tracked per endpoint or per check.
var selectable = map[string]bool{
	MetricReqFailed:   true,
	MetricReqDuration: true,
	MetricReqs:        true,
	MetricChecks:      true,
}

// aggregate validates an aggregation name for a metric kind and returns the
// percentile it refers to, or -1 for non-percentile aggregations.
func aggregate(k kind, agg string) (float64, bool) {
	switch k {
	case kindRate:
		return -1, agg == "rate"
	case kindCounter:
		return -1, agg == "count"
	}
	switch agg {
	case "avg", "min", "max", "med":
		return -1, true
	}
	if strings.HasPrefix(agg, "p(") && strings.HasSuffix(agg, ")") {
		p, err := strconv.ParseFloat(agg[2:len(agg)-1], 64)
		if err != nil || p < 0 || p > 100 {
			return 0, false
		}
		return p, true
	}
	return 0, false
}

// Set is every expression declared for a run.
type Set []Expression

// ParseMap parses the k6-style map of metric -> expressions. The result is
// ordered by metric name, then declaration order.
func ParseMap(m map[string][]string) (Set, error) {
	metrics := make([]string, 0, len(m))
	for k := range m {
		metrics = append(metrics, k)
	}
	sort.Strings(metrics)

	var (
		set  Set
		errs []error
	)
	for _, metric := range metrics {
		for _, expr := range m[metric] {
			e, err := Parse(metric, expr)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			set = append(set, e)
		}
	}
	return set, errors.Join(errs...)
}
