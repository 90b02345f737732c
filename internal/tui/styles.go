package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorMuted   = lipgloss.Color("#6B7280")
	colorError   = lipgloss.Color("#EF4444")
	colorFg      = lipgloss.Color("#F9FAFB")
)

// emotionColors tints the last letter by detected emotion.
var emotionColors = map[string]lipgloss.Color{
	"neutral": colorFg,
	"happy":   lipgloss.Color("#F59E0B"),
	"sad":     lipgloss.Color("#3B82F6"),
	"angry":   colorError,
	"excited": lipgloss.Color("#EC4899"),
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(1, 2)

	letterStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	bufferStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Width(10)

	outburstStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(colorPrimary)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError)
)

// emotionStyle returns letterStyle tinted for emotion.
func emotionStyle(emotion string) lipgloss.Style {
	c, ok := emotionColors[emotion]
	if !ok {
		c = colorFg
	}
	return letterStyle.Foreground(c)
}
