package tui

import "github.com/charmbracelet/lipgloss"

// ═══════════════════════════════════════════════════════════════════════════════
// STYLES
// ═══════════════════════════════════════════════════════════════════════════════

// Styles holds the pre-computed lipgloss styles of the chat UI.
type Styles struct {
	Header    lipgloss.Style
	HeaderDim lipgloss.Style
	Footer    lipgloss.Style

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Meta           lipgloss.Style
	System         lipgloss.Style
	Error          lipgloss.Style
	Spinner        lipgloss.Style
}

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#5A4FCF", Dark: "#A99CFF"}
	colorUser   = lipgloss.AdaptiveColor{Light: "#1F7A4D", Dark: "#6BD6A0"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#707070", Dark: "#8A8A8A"}
	colorError  = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF6B6B"}
)

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1),
		HeaderDim: lipgloss.NewStyle().Foreground(colorMuted),
		Footer:    lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1),

		UserLabel:      lipgloss.NewStyle().Bold(true).Foreground(colorUser),
		AssistantLabel: lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Meta:           lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		System:         lipgloss.NewStyle().Foreground(colorMuted),
		Error:          lipgloss.NewStyle().Foreground(colorError),
		Spinner:        lipgloss.NewStyle().Foreground(colorAccent),
	}
}
