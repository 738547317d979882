package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dungeonload/internal/engine"
	"dungeonload/internal/report"
	"dungeonload/internal/storage"
	"dungeonload/internal/tui/history"
	"dungeonload/internal/tui/live"
	"dungeonload/internal/tui/result"
	"dungeonload/internal/tui/styles"
)

type ClearStatusMsg struct{}

func clearStatusCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

type ViewID int

const (
	ViewDashboard ViewID = iota
	ViewResult
	ViewHistory
)

// Runner is the part of the engine the dashboard drives.
type Runner interface {
	Run(ctx context.Context) (*engine.Result, error)
	Updates() engine.UpdateChan
}

type SnapshotMsg engine.Snapshot

// DoneMsg carries the outcome of the run.
type DoneMsg struct {
	Result *engine.Result
	Err    error
}

type Options struct {
	Runner Runner
	// Store backs the history view; nil hides it.
	Store *storage.Store
	// OnFinish runs once with the result before it is shown, e.g. to save it.
	OnFinish func(*engine.Result) error
	// ExportPrefix names the files written by the export key; empty means a
	// timestamped dungeonload_report_* prefix.
	ExportPrefix string
}

// run is shared by every copy of the model so the caller can wait for the
// engine after the program exits.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
	res    *engine.Result
	err    error
}

type Model struct {
	opts Options
	run  *run

	Width  int
	Height int

	CurrentView ViewID
	MenuItems   []string

	DashView    live.Model
	ResultView  result.Model
	HistoryView history.Model

	StatusMsg string
}

func NewModel(opts Options) Model {
	return Model{
		opts:        opts,
		run:         &run{done: make(chan struct{})},
		CurrentView: ViewDashboard,
		MenuItems:   []string{"[1] Dashboard", "[2] Result", "[3] History"},
		DashView:    live.NewModel(),
		HistoryView: history.NewModel(opts.Store),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.start(),
		waitForUpdate(m.opts.Runner.Updates()),
	)
}

// start launches the engine; its DoneMsg arrives when Run returns.
func (m Model) start() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.run.cancel = cancel
	r := m.run
	return func() tea.Msg {
		res, err := m.opts.Runner.Run(ctx)
		if err == nil && m.opts.OnFinish != nil {
			err = m.opts.OnFinish(res)
		}
		r.res, r.err = res, err
		close(r.done)
		return DoneMsg{Result: res, Err: err}
	}
}

func waitForUpdate(sub engine.UpdateChan) tea.Cmd {
	return func() tea.Msg {
		return SnapshotMsg(<-sub)
	}
}

// ErrNotStarted is returned by Wait when the program exited before Init.
var ErrNotStarted = errors.New("run was never started")

// Wait blocks until the engine has returned, then reports its outcome.
func (m Model) Wait() (*engine.Result, error) {
	if m.run.cancel == nil {
		return nil, ErrNotStarted
	}
	<-m.run.done
	return m.run.res, m.run.err
}

// Stop cancels the run; the engine still drains and reports.
func (m Model) Stop() {
	if m.run.cancel != nil {
		m.run.cancel()
	}
}

func (m Model) finished() bool {
	select {
	case <-m.run.done:
		return true
	default:
		return false
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ClearStatusMsg:
		m.StatusMsg = ""
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.Stop()
			return m, tea.Quit

		case "s":
			if !m.finished() {
				m.Stop()
				m.StatusMsg = "Stopping, waiting for users to drain..."
				return m, clearStatusCmd()
			}
			return m, nil

		case "1":
			m.CurrentView = ViewDashboard
			return m, nil
		case "2":
			m.CurrentView = ViewResult
			return m, nil
		case "3":
			m.HistoryView.Refresh()
			m.CurrentView = ViewHistory
			return m, nil
		case "tab":
			m.CurrentView = (m.CurrentView + 1) % 3
			if m.CurrentView == ViewHistory {
				m.HistoryView.Refresh()
			}
			return m, nil

		case "e":
			m.StatusMsg = m.export()
			return m, clearStatusCmd()
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		inner := tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 7}
		m.DashView, _ = m.DashView.Update(inner)
		m.ResultView, _ = m.ResultView.Update(inner)
		m.HistoryView, _ = m.HistoryView.Update(inner)
		return m, nil

	case SnapshotMsg:
		var c tea.Cmd
		m.DashView, c = m.DashView.Update(engine.Snapshot(msg))
		cmds = append(cmds, c)
		if !msg.Done {
			cmds = append(cmds, waitForUpdate(m.opts.Runner.Updates()))
		}
		return m, tea.Batch(cmds...)

	case DoneMsg:
		if msg.Err != nil {
			m.StatusMsg = fmt.Sprintf("Run failed: %v", msg.Err)
		}
		if msg.Result != nil {
			m.ResultView = result.NewModel(msg.Result)
			m.ResultView, _ = m.ResultView.Update(tea.WindowSizeMsg{Width: m.Width, Height: m.Height - 7})
			m.CurrentView = ViewResult
			m.HistoryView.Refresh()
		}
		return m, nil
	}

	// forward everything else to the visible view (progress frames, table keys)
	var cmd tea.Cmd
	switch m.CurrentView {
	case ViewDashboard:
		m.DashView, cmd = m.DashView.Update(msg)
	case ViewResult:
		m.ResultView, cmd = m.ResultView.Update(msg)
	case ViewHistory:
		m.HistoryView, cmd = m.HistoryView.Update(msg)
	}
	return m, cmd
}

// export writes the finished run, or the selected history entry's summary.
func (m Model) export() string {
	if m.CurrentView == ViewHistory {
		rec := m.HistoryView.Selected()
		if rec == nil {
			return "No run selected."
		}
		prefix := "dungeonload_history_" + rec.ID
		res := rec.Result()
		if err := report.ExportAll(res, nil, prefix); err != nil {
			return fmt.Sprintf("Export failed: %v", err)
		}
		_, _, summary := report.Files(prefix)
		return "Exported history to " + summary
	}

	if !m.finished() || m.run.res == nil {
		return "No results to export yet."
	}
	prefix := m.opts.ExportPrefix
	if prefix == "" {
		prefix = "dungeonload_report_" + time.Now().Format("20060102-150405")
	}
	if err := report.ExportAll(m.run.res, m.run.res.Samples, prefix); err != nil {
		return fmt.Sprintf("Export failed: %v", err)
	}
	return fmt.Sprintf("Exported to %s{.csv,.json,_timeline.json,_summary.json}", prefix)
}

func (m Model) View() string {
	if m.Width == 0 {
		return "Loading..."
	}

	var nav strings.Builder
	for i, item := range m.MenuItems {
		if ViewID(i) == m.CurrentView {
			nav.WriteString(styles.TabActive.Render(item))
		} else {
			nav.WriteString(styles.TabBase.Render(item))
		}
	}
	navBar := styles.FooterBase.Width(m.Width).Render(nav.String())

	var content string
	switch m.CurrentView {
	case ViewDashboard:
		content = m.DashView.View()
	case ViewResult:
		content = m.ResultView.View()
	case ViewHistory:
		content = m.HistoryView.View()
	}
	panel := styles.Panel.Width(m.Width - 2).Height(max(m.Height-7, 1)).Render(content)

	keys1 := []string{
		styles.RenderKey("1-3/Tab", "View"),
		styles.RenderKey("↑/↓", "Select"),
		styles.RenderKey("x", "Delete run"),
	}
	keys2 := []string{
		styles.RenderKey("s", "Stop"),
		styles.RenderKey("e", "Export"),
		styles.RenderKey("q", "Quit"),
	}
	footer := lipgloss.JoinVertical(lipgloss.Left,
		styles.FooterBase.Width(m.Width).Render(strings.Join(keys1, "   ")),
		styles.FooterBase.Width(m.Width).Render(strings.Join(keys2, "   ")),
	)

	if m.StatusMsg != "" {
		status := styles.Box.BorderForeground(styles.ColorHighlight).Render(m.StatusMsg)
		return lipgloss.JoinVertical(lipgloss.Left, navBar, panel, status, footer)
	}
	return lipgloss.JoinVertical(lipgloss.Left, navBar, panel, footer)
}
