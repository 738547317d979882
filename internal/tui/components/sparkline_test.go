package components

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestSparklineScrollsAndScales(t *testing.T) {
	t.Parallel()

	s := NewSparkline(4, "RPS", lipgloss.NewStyle())
	assert.Equal(t, "    ", s.Graph())
	assert.Zero(t, s.Last())

	for _, v := range []float64{8, 0, 4, 8, 2} {
		s.Add(v)
	}
	assert.Equal(t, []float64{0, 4, 8, 2}, s.Data)
	assert.Equal(t, 8.0, s.Peak)
	assert.Equal(t, 2.0, s.Last())
	assert.Equal(t, " ▄█▂", s.Graph())

	s.Add(-3)
	assert.Equal(t, 0.0, s.Last(), "negative values are clamped")
	assert.Contains(t, s.View(), "RPS")
}

func TestSparklineZeroWidth(t *testing.T) {
	t.Parallel()

	s := NewSparkline(0, "x", lipgloss.NewStyle())
	s.Add(1)
	assert.Empty(t, s.View())
}
