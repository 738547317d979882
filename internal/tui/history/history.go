package history

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dungeonload/internal/storage"
	"dungeonload/internal/tui/styles"
)

// Limit caps how many runs the table loads.
const Limit = 100

type Model struct {
	Store *storage.Store
	Table table.Model

	records []storage.RunRecord
	Err     error

	Width  int
	Height int
}

func NewModel(store *storage.Store) Model {
	columns := []table.Column{
		{Title: "Started", Width: 20},
		{Title: "ID", Width: 10},
		{Title: "URL", Width: 28},
		{Title: "VUs", Width: 6},
		{Title: "Reqs", Width: 9},
		{Title: "Fail %", Width: 7},
		{Title: "p95 ms", Width: 8},
		{Title: "Result", Width: 7},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := Model{
		Store: store,
		Table: t,
	}
	m.Refresh()
	return m
}

// Refresh reloads the runs from the store, newest first.
func (m *Model) Refresh() {
	if m.Store == nil {
		m.records = nil
		m.Table.SetRows(nil)
		return
	}
	items, err := m.Store.List(Limit)
	m.Err = err
	m.records = items

	rows := make([]table.Row, len(items))
	for i, item := range items {
		result := "pass"
		if !item.Passed() {
			result = "FAIL"
		}
		rows[i] = table.Row{
			item.StartedAt.Local().Format(time.DateTime),
			shortID(item.ID),
			item.BaseURL,
			fmt.Sprintf("%d", item.MaxVUs),
			fmt.Sprintf("%d", item.Summary.Requests),
			fmt.Sprintf("%.2f", item.Summary.FailRate()*100),
			fmt.Sprintf("%.1f", item.Summary.Duration.P95),
			result,
		}
	}
	m.Table.SetRows(rows)
}

// Selected returns the highlighted run, or nil.
func (m Model) Selected() *storage.RunRecord {
	i := m.Table.Cursor()
	if i < 0 || i >= len(m.records) {
		return nil
	}
	r := m.records[i]
	return &r
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		m.Table.SetHeight(max(msg.Height-6, 3))

	case tea.KeyMsg:
		if msg.String() == "x" {
			if r := m.Selected(); r != nil && m.Store != nil {
				m.Err = m.Store.Delete(r.ID)
				m.Refresh()
			}
			return m, nil
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Store == nil {
		return styles.Subtle.Render("Run history is disabled.")
	}
	view := styles.Box.Render(m.Table.View())
	if m.Err != nil {
		view += "\n" + styles.Error.Render(m.Err.Error())
	}
	return view
}
