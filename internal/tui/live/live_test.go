package live

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"dungeonload/internal/engine"
)

func TestSnapshotsFeedSparklines(t *testing.T) {
	t.Parallel()

	m := NewModel()
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 32, m.RpsLine.Width)

	m, _ = m.Update(engine.Snapshot{Elapsed: time.Second, Total: 10 * time.Second, Requests: 100, Active: 5, Target: 5, P95Ms: 40})
	m, _ = m.Update(engine.Snapshot{Elapsed: 2 * time.Second, Total: 10 * time.Second, Requests: 150, Active: 8, Target: 10, P95Ms: 55, Stages: 3, Stage: 1})

	assert.Equal(t, []float64{100, 50}, m.RpsLine.Data)
	assert.Equal(t, []float64{40, 55}, m.LatencyLine.Data)
	assert.Equal(t, 8.0, m.VUsLine.Last())
	assert.Equal(t, "2/3", m.stage())

	view := m.View()
	assert.Contains(t, view, "VUS: 8 / 10")
	assert.Contains(t, view, "REQ: 150")
	assert.Contains(t, view, "P95: 55.00 ms")
}

func TestDrainingStatus(t *testing.T) {
	t.Parallel()

	m := NewModel()
	m, _ = m.Update(engine.Snapshot{Elapsed: 11 * time.Second, Total: 10 * time.Second, Active: 1, Retiring: 3})
	assert.Equal(t, "flat", m.stage())
	assert.Contains(t, m.View(), "draining 4 users")
}
