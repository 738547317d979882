package result

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"dungeonload/internal/engine"
	"dungeonload/internal/stats"
	"dungeonload/internal/tui/styles"
)

// Model shows a finished run.
type Model struct {
	Result *engine.Result

	Width  int
	Height int
}

func NewModel(res *engine.Result) Model {
	return Model{Result: res}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.WindowSizeMsg); ok {
		m.Width = msg.Width
		m.Height = msg.Height
	}
	return m, nil
}

func (m Model) View() string {
	if m.Result == nil {
		return styles.Subtle.Render("No finished run yet.")
	}
	res := m.Result
	s := res.Summary
	var b strings.Builder

	verdict := styles.Success.Render("PASSED")
	if !res.Thresholds.Passed {
		verdict = styles.Error.Render("FAILED")
	}
	b.WriteString(styles.Title.Render("📊 Test Complete  " + verdict))
	b.WriteString("\n\n")

	b.WriteString(styles.Active.Render("Overview"))
	b.WriteString("\n")
	overview := fmt.Sprintf(
		"Run:          %s\nDuration:     %s\nIterations:   %d\nRequests:     %d\nFailed:       %d (%.2f%%)\nData errors:  %d",
		res.RunID, res.Duration().Round(time.Millisecond), s.Iterations, s.Requests, s.Fail, s.FailRate()*100, s.DataErrors,
	)
	if res.Interrupted {
		overview += "\n" + styles.Warn.Render("Interrupted before the end of the profile")
	}
	b.WriteString(styles.Box.Render(overview))
	b.WriteString("\n\n")

	b.WriteString(styles.Active.Render("Latency (ms)"))
	b.WriteString("\n")
	b.WriteString(styles.Box.Render(trend(s.Duration)))
	b.WriteString("\n\n")

	if len(s.Checks) > 0 {
		b.WriteString(styles.Active.Render("Checks"))
		b.WriteString("\n")
		lines := make([]string, len(s.Checks))
		for i, c := range s.Checks {
			lines[i] = fmt.Sprintf("%s %-16s %d/%d passed, %d skipped",
				styles.Verdict(c.Fails == 0), c.Name, c.Passes, c.Passes+c.Fails, c.Skips)
		}
		b.WriteString(styles.Box.Render(strings.Join(lines, "\n")))
		b.WriteString("\n\n")
	}

	if len(res.Thresholds.Results) > 0 {
		b.WriteString(styles.Active.Render("Thresholds"))
		b.WriteString("\n")
		lines := make([]string, len(res.Thresholds.Results))
		for i, r := range res.Thresholds.Results {
			lines[i] = r.String()
		}
		b.WriteString(styles.Box.Render(strings.Join(lines, "\n")))
		b.WriteString("\n\n")
	}

	b.WriteString(styles.Subtle.Render("Press q to quit"))
	return b.String()
}

func trend(t stats.Trend) string {
	return fmt.Sprintf("Avg: %.2f\nP50: %.2f\nP90: %.2f\nP95: %.2f\nP99: %.2f\nMax: %.2f",
		t.Avg, t.Med, t.P90, t.P95, t.P99, t.Max)
}
