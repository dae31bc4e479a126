package repl

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Styles render status lines. Streamed model output is never styled.
type Styles struct {
	Error  lipgloss.Style
	Notice lipgloss.Style
	Hint   lipgloss.Style
	Prompt lipgloss.Style
}

// NewStyles builds styles for output written to w. Color is dropped
// automatically when w is not a terminal.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Error:  r.NewStyle().Foreground(lipgloss.Color("9")),
		Notice: r.NewStyle().Foreground(lipgloss.Color("8")),
		Hint:   r.NewStyle().Foreground(lipgloss.Color("11")),
		Prompt: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
	}
}
