package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines colors and symbols for the CLI using lipgloss
type Theme struct {
	Bold   lipgloss.Style
	Cyan   lipgloss.Style
	Green  lipgloss.Style
	Yellow lipgloss.Style
	Dim    lipgloss.Style

	Bullet  string
	BoxTree string
	BoxLast string

	IconFetch string
	IconStore string
	IconHelp  string
}

// NewTheme returns the default theme, with colors enabled only when w is a
// terminal supporting them.
func NewTheme(w io.Writer) *Theme {
	r := lipgloss.NewRenderer(w)
	return &Theme{
		Bold:   r.NewStyle().Bold(true),
		Cyan:   r.NewStyle().Foreground(lipgloss.Color("6")),
		Green:  r.NewStyle().Foreground(lipgloss.Color("2")),
		Yellow: r.NewStyle().Foreground(lipgloss.Color("3")),
		Dim:    r.NewStyle().Faint(true),

		Bullet:  "•",
		BoxTree: "├──",
		BoxLast: "└──",

		IconFetch: "🌐",
		IconStore: "💾",
		IconHelp:  "💡",
	}
}

func (t *Theme) Styled(style lipgloss.Style, text string) string {
	return style.Render(text)
}
