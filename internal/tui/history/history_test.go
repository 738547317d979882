package history

import (
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonload/internal/stats"
	"dungeonload/internal/storage"
	"dungeonload/internal/threshold"
)

func TestTableListsRunsNewestFirst(t *testing.T) {
	t.Parallel()

	store, err := storage.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"0f3c9a2e-old", "7ab4e1d0-new"} {
		require.NoError(t, store.Save(storage.RunRecord{
			ID:         id,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			EndedAt:    base.Add(time.Duration(i)*time.Hour + time.Minute),
			BaseURL:    "http://localhost:8080",
			MaxVUs:     50,
			Summary:    stats.Summary{Requests: 200, Fail: 2},
			Thresholds: threshold.Report{Passed: i == 0},
		}))
	}

	m := NewModel(store)
	require.NoError(t, m.Err)
	rows := m.Table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "7ab4e1d0", rows[0][1])
	assert.Equal(t, "1.00", rows[0][5])
	assert.Equal(t, "FAIL", rows[0][7])
	assert.Equal(t, "pass", rows[1][7])

	require.NotNil(t, m.Selected())
	assert.Equal(t, "7ab4e1d0-new", m.Selected().ID)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	require.NoError(t, m.Err)
	require.Len(t, m.Table.Rows(), 1)
	assert.Equal(t, "0f3c9a2e-old", m.Selected().ID)
}

func TestNilStore(t *testing.T) {
	t.Parallel()

	m := NewModel(nil)
	assert.Nil(t, m.Selected())
	assert.Contains(t, m.View(), "disabled")
}
