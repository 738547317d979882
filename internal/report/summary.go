package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"dungeonload/internal/engine"
	"dungeonload/internal/stats"
)

const rule = "======================================================================"

// WriteText prints the end-of-run summary: totals, latency, endpoints,
// checks and thresholds.
func WriteText(w io.Writer, res *engine.Result) {
	s := res.Summary
	elapsed := res.Duration()
	rps := 0.0
	if elapsed > 0 {
		rps = float64(s.Requests) / elapsed.Seconds()
	}

	fmt.Fprintf(w, "\n📊 LOAD TEST RESULTS\n")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Run ID         : %s\n", res.RunID)
	fmt.Fprintf(w, "Total Duration : %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Iterations     : %d\n", s.Iterations)
	fmt.Fprintf(w, "Requests Sent  : %d\n", s.Requests)
	fmt.Fprintf(w, "Success        : %d\n", s.Success)
	fmt.Fprintf(w, "Failures       : %d (%.2f%%)\n", s.Fail, s.FailRate()*100)
	fmt.Fprintf(w, "Data Errors    : %d\n", s.DataErrors)
	if s.Panics > 0 {
		fmt.Fprintf(w, "Panics         : %d\n", s.Panics)
	}
	fmt.Fprintf(w, "Actual RPS     : %.2f\n", rps)
	if res.Interrupted {
		fmt.Fprintf(w, "Interrupted    : yes\n")
	}
	if !res.Drained {
		fmt.Fprintf(w, "Drained        : no, users were still running after graceful stop\n")
	}

	fmt.Fprintf(w, "\n⏱️  RESPONSE TIMES (ms)\n")
	writeTrend(w, s.Duration)

	if len(s.Endpoints) > 0 {
		fmt.Fprintf(w, "\n🔗 ENDPOINTS\n")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "   NAME\tREQS\tFAIL\tAVG\tP95\tMAX")
		for _, e := range s.Endpoints {
			fmt.Fprintf(tw, "   %s\t%d\t%.2f%%\t%.2f\t%.2f\t%.2f\n",
				e.Name, e.Requests, e.FailRate()*100, e.Duration.Avg, e.Duration.P95, e.Duration.Max)
		}
		tw.Flush()
	}

	if len(s.Checks) > 0 {
		fmt.Fprintf(w, "\n✔️  CHECKS\n")
		for _, c := range s.Checks {
			fmt.Fprintf(w, "   %s %s\n", checkMark(c), checkLine(c))
		}
		totals := s.CheckTotals()
		fmt.Fprintf(w, "   checks: %.2f%% (%d passed, %d failed, %d skipped)\n",
			totals.PassRate()*100, totals.Passes, totals.Fails, totals.Skips)
	}

	if len(res.Thresholds.Results) > 0 {
		fmt.Fprintf(w, "\n🎯 THRESHOLDS\n")
		for _, r := range res.Thresholds.Results {
			fmt.Fprintf(w, "   %s\n", r)
		}
		verdict := "PASSED"
		if !res.Thresholds.Passed {
			verdict = "FAILED"
		}
		fmt.Fprintf(w, "   => %s\n", verdict)
	}
	fmt.Fprintln(w, rule)
}

func writeTrend(w io.Writer, t stats.Trend) {
	fmt.Fprintf(w, "   Avg : %.2f\n", t.Avg)
	fmt.Fprintf(w, "   Min : %.2f\n", t.Min)
	fmt.Fprintf(w, "   P50 : %.2f\n", t.Med)
	fmt.Fprintf(w, "   P90 : %.2f\n", t.P90)
	fmt.Fprintf(w, "   P95 : %.2f\n", t.P95)
	fmt.Fprintf(w, "   P99 : %.2f\n", t.P99)
	fmt.Fprintf(w, "   Max : %.2f\n", t.Max)
}

func checkMark(c stats.CheckSummary) string {
	switch {
	case c.Fails == 0 && c.Passes > 0:
		return "✓"
	case c.Passes+c.Fails == 0:
		return "-"
	}
	return "✗"
}

func checkLine(c stats.CheckSummary) string {
	var b strings.Builder
	b.WriteString(c.Name)
	fmt.Fprintf(&b, " %d/%d", c.Passes, c.Passes+c.Fails)
	if c.Skips > 0 {
		fmt.Fprintf(&b, " (%d skipped)", c.Skips)
	}
	return b.String()
}
