package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Header renders the title bar with the run's targets.
type Header struct {
	width   int
	targets []string
	env     string
}

// NewHeader creates a new Header.
func NewHeader(targets []string, env string) *Header {
	return &Header{
		width:   80,
		targets: targets,
		env:     env,
	}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// View renders the header.
func (h *Header) View() string {
	colors := []string{"#FF8E53", "#FFC857", "#4ECDC4", "#45B7D1"}
	name := "assetflow"

	var b strings.Builder
	for i, r := range name {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(colors[i%len(colors)])).Bold(true)
		b.WriteString(style.Render(string(r)))
	}

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Italic(true).
		Render(strings.Join(h.targets, " ") + " · " + h.env)

	return lipgloss.NewStyle().
		Width(h.width).
		PaddingBottom(1).
		Render(b.String() + "  " + subtitle)
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 2
}
