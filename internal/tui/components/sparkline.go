package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var levels = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// Sparkline is a one-row scrolling chart of the last Width values.
type Sparkline struct {
	Data  []float64
	Width int
	Peak  float64
	Style lipgloss.Style
	Label string
}

func NewSparkline(width int, label string, style lipgloss.Style) Sparkline {
	return Sparkline{
		Width: width,
		Label: label,
		Style: style,
		Data:  make([]float64, 0, width),
	}
}

func (s *Sparkline) Add(val float64) {
	s.Data = append(s.Data, max(val, 0))
	if len(s.Data) > s.Width {
		s.Data = s.Data[len(s.Data)-s.Width:]
	}
	// scale to the visible window
	s.Peak = 0
	for _, v := range s.Data {
		s.Peak = max(s.Peak, v)
	}
}

// Last is the most recent value, 0 when empty.
func (s Sparkline) Last() float64 {
	if len(s.Data) == 0 {
		return 0
	}
	return s.Data[len(s.Data)-1]
}

// Graph renders the bars only, padded to Width.
func (s Sparkline) Graph() string {
	var graph strings.Builder
	for _, v := range s.Data {
		idx := 0
		if s.Peak > 0 {
			idx = int(v / s.Peak * float64(len(levels)-1))
		}
		graph.WriteString(levels[min(max(idx, 0), len(levels)-1)])
	}
	if pad := s.Width - len(s.Data); pad > 0 {
		graph.WriteString(strings.Repeat(" ", pad))
	}
	return graph.String()
}

func (s Sparkline) View() string {
	if s.Width <= 0 {
		return ""
	}
	return s.Style.Render(s.Label) + "\n" + s.Style.Render(s.Graph())
}
