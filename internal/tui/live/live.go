package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dungeonload/internal/engine"
	"dungeonload/internal/tui/components"
	"dungeonload/internal/tui/styles"
)

// Model is the dashboard of a running test, fed with engine snapshots.
type Model struct {
	Snap     engine.Snapshot
	Progress progress.Model

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline
	VUsLine     components.Sparkline

	lastElapsed time.Duration
	lastReqs    uint64

	Width  int
	Height int
}

func NewModel() Model {
	return Model{
		Progress:    progress.New(progress.WithDefaultGradient()),
		RpsLine:     components.NewSparkline(40, "RPS", styles.Active),
		LatencyLine: components.NewSparkline(40, "Latency P95 (ms)", styles.Warn),
		VUsLine:     components.NewSparkline(40, "Active VUs", styles.Value),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case engine.Snapshot:
		// rate over the last interval, not the run average
		dt := (msg.Elapsed - m.lastElapsed).Seconds()
		if dt > 0 && msg.Requests >= m.lastReqs {
			m.RpsLine.Add(float64(msg.Requests-m.lastReqs) / dt)
		}
		m.LatencyLine.Add(msg.P95Ms)
		m.VUsLine.Add(float64(msg.Active))

		m.Snap = msg
		m.lastElapsed = msg.Elapsed
		m.lastReqs = msg.Requests
		return m, m.Progress.SetPercent(msg.Progress())

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4

		third := max(msg.Width/3-8, 10)
		m.RpsLine.Width = third
		m.LatencyLine.Width = third
		m.VUsLine.Width = third
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m Model) stage() string {
	s := m.Snap
	if s.Stages == 0 {
		return "flat"
	}
	return fmt.Sprintf("%d/%d", min(s.Stage+1, s.Stages), s.Stages)
}

func (m Model) View() string {
	s := m.Snap
	var b strings.Builder

	errPct := 0.0
	if s.Requests > 0 {
		errPct = float64(s.Fail) / float64(s.Requests) * 100
	}

	vus := fmt.Sprintf("VUS: %d / %d\nRETIRING: %d  MAX: %d", s.Active, s.Target, s.Retiring, s.MaxVUs)
	reqs := fmt.Sprintf("REQ: %d\nRPS: %.1f", s.Requests, s.RPS())
	errs := fmt.Sprintf("ERR: %.2f%%\nFAIL: %d", errPct, s.Fail)
	iters := fmt.Sprintf("ITER: %d\nDATA ERR: %d", s.Iterations, s.DataErrors)
	if s.Panics > 0 {
		iters += styles.Error.Render(fmt.Sprintf("  PANIC: %d", s.Panics))
	}
	stage := fmt.Sprintf("STAGE: %s\nKB IN: %d", m.stage(), s.Bytes/1024)

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(styles.Active.Render(vus)),
		styles.Box.Render(reqs),
		styles.Box.Render(styles.ErrorRate(errPct).Render(errs)),
		styles.Box.Render(iters),
		styles.Box.Render(stage),
	))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
		styles.Box.Render(m.VUsLine.View()),
	))
	b.WriteString("\n\n")

	latencies := fmt.Sprintf(
		"P50: %.2f ms  |  P90: %.2f ms  |  P95: %.2f ms  |  P99: %.2f ms  |  Max: %.2f ms",
		s.P50Ms, s.P90Ms, s.P95Ms, s.P99Ms, s.MaxMs,
	)
	b.WriteString(styles.Box.Width(max(m.Width-4, 20)).Render(latencies))
	b.WriteString("\n\n")

	status := fmt.Sprintf("%s / %s", s.Elapsed.Round(time.Second), s.Total)
	if s.Elapsed >= s.Total && !s.Done {
		status += styles.Warn.Render(fmt.Sprintf("  draining %d users", s.Active+s.Retiring))
	}
	b.WriteString(styles.Subtle.Render(status))
	b.WriteString("\n")
	b.WriteString(m.Progress.View())
	return b.String()
}
