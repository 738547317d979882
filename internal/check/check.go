// Package check evaluates named boolean assertions against HTTP responses.
// A failed check is an observation, never an error: it is counted and the
// workflow carries on.
package check

import (
	"slices"
	"time"

	"github.com/jmespath/go-jmespath"

	"dungeonload/internal/httpx"
	"dungeonload/internal/stats"
)

// Recorder receives check outcomes.
type Recorder interface {
	RecordCheck(stats.CheckResult)
}

// Predicate must be pure: it may only look at the response.
type Predicate func(httpx.Response) bool

type Check struct {
	Name      string
	Predicate Predicate
}

// StatusIn passes when the response status is one of codes.
func StatusIn(codes ...int) Predicate {
	return func(r httpx.Response) bool {
		return r.Err == nil && slices.Contains(codes, r.Status)
	}
}

// StatusOK passes on exactly 200.
func StatusOK() Predicate {
	return StatusIn(200)
}

// JSONHas passes when the JMESPath expression yields a non-null value.
func JSONHas(expr string) Predicate {
	compiled, err := jmespath.Compile(expr)
	return func(r httpx.Response) bool {
		if err != nil {
			return false
		}
		doc := r.JSON()
		if doc == nil {
			return false
		}
		v, err := compiled.Search(doc)
		return err == nil && v != nil
	}
}

// All combines predicates.
func All(ps ...Predicate) Predicate {
	return func(r httpx.Response) bool {
		for _, p := range ps {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

// Evaluate runs every check, records each result and reports whether all of
// them passed.
func Evaluate(rec Recorder, resp httpx.Response, checks ...Check) bool {
	now := time.Now()
	ok := true
	for _, c := range checks {
		passed := c.Predicate != nil && c.Predicate(resp)
		if rec != nil {
			rec.RecordCheck(stats.CheckResult{Name: c.Name, Passed: passed, Timestamp: now})
		}
		ok = ok && passed
	}
	return ok
}

// Skip records checks whose request was never made.
func Skip(rec Recorder, names ...string) {
	if rec == nil {
		return
	}
	now := time.Now()
	for _, n := range names {
		rec.RecordCheck(stats.CheckResult{Name: n, Skipped: true, Timestamp: now})
	}
}
