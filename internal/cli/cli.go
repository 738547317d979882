package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"dungeonload/internal/engine"
	"dungeonload/internal/report"
	"dungeonload/internal/schedule"
)

// Header describes the run before it starts.
type Header struct {
	BaseURL    string
	Variant    string
	Profile    schedule.Profile
	Seed       uint64
	Thresholds int
}

// Runner is the part of the engine the monitor drives.
type Runner interface {
	Run(ctx context.Context) (*engine.Result, error)
	Updates() engine.UpdateChan
}

// Start prints the header, shows a progress line while r runs and prints the
// summary. With outPrefix set the samples and summary are exported as well.
func Start(ctx context.Context, w io.Writer, r Runner, h Header, outPrefix string) (*engine.Result, error) {
	printHeader(w, h)

	watchCtx, stopWatch := context.WithCancel(ctx)
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		Watch(watchCtx, w, r.Updates())
	}()

	res, err := r.Run(ctx)
	stopWatch()
	<-watched
	if err != nil {
		return nil, err
	}

	report.WriteText(w, res)
	if outPrefix != "" {
		fmt.Fprintf(w, "\n💾 Generating reports with prefix: %s\n", outPrefix)
		if err := report.ExportAll(res, res.Samples, outPrefix); err != nil {
			return res, fmt.Errorf("export reports: %w", err)
		}
		fmt.Fprintf(w, "✅ Reports saved to %s{.csv,.json,_timeline.json,_summary.json}\n", outPrefix)
	}
	return res, nil
}

// Watch redraws the progress line for every snapshot until the final one
// arrives or ctx ends. Snapshots already queued when ctx ends are still drawn.
func Watch(ctx context.Context, w io.Writer, updates engine.UpdateChan) {
	draw := func(s engine.Snapshot) bool {
		fmt.Fprint(w, "\r"+ProgressLine(s))
		return s.Done
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case s := <-updates:
					if draw(s) {
						fmt.Fprintln(w)
						return
					}
				default:
					fmt.Fprintln(w)
					return
				}
			}
		case s := <-updates:
			if draw(s) {
				fmt.Fprintln(w)
				return
			}
		}
	}
}

// ProgressLine renders one snapshot.
func ProgressLine(s engine.Snapshot) string {
	pct := s.Progress()
	stage := "flat"
	if s.Stages > 0 {
		stage = fmt.Sprintf("%d/%d", min(s.Stage+1, s.Stages), s.Stages)
	}
	if s.Elapsed >= s.Total && !s.Done {
		return fmt.Sprintf("%s %3.0f%% | %s/%s | Draining: %d users...                ",
			progressBar(1, 20), 100.0,
			s.Elapsed.Round(time.Second), s.Total,
			s.Active+s.Retiring,
		)
	}
	return fmt.Sprintf("%s %3.0f%% | %s/%s | Stage: %s | VUs: %3d/%3d | RPS: %.1f | OK: %d | Err: %d | p95: %.0fms",
		progressBar(pct, 20), pct*100,
		s.Elapsed.Round(time.Second), s.Total,
		stage,
		s.Active, s.Target,
		s.RPS(),
		s.Success,
		s.Fail,
		s.P95Ms,
	)
}

func printHeader(w io.Writer, h Header) {
	p := h.Profile
	fmt.Fprintf(w, "\n🚀 STARTING DUNGEONLOAD\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Target URL : %s\n", h.BaseURL)
	fmt.Fprintf(w, "Variant    : %s\n", h.Variant)
	if p.IsFlat() {
		fmt.Fprintf(w, "Load       : %d VUs for %s\n", p.VUs, p.Duration)
	} else {
		stages := make([]string, len(p.Stages))
		for i, s := range p.Stages {
			stages[i] = s.String()
		}
		fmt.Fprintf(w, "Stages     : %s\n", strings.Join(stages, " → "))
		fmt.Fprintf(w, "Max VUs    : %d\n", p.MaxTarget())
	}
	fmt.Fprintf(w, "Duration   : %s\n", p.TotalDuration())
	fmt.Fprintf(w, "Seed       : %d\n", h.Seed)
	fmt.Fprintf(w, "Thresholds : %d\n", h.Thresholds)
	fmt.Fprintf(w, "======================================================================\n\n")
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}
