// Package tui is the terminal front end: it forwards keystrokes to the
// application and renders the hints it publishes.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/lettucespeak/internal/dispatch"
	"github.com/MrWong99/lettucespeak/internal/hints"
)

// maxBuffer is how many typed letters stay on screen.
const maxBuffer = 40

// Controller is the part of the application the UI drives.
type Controller interface {
	Key(ctx context.Context, k dispatch.Key) (hints.Hint, bool, error)
	Test(ctx context.Context) (hints.Hint, error)
}

// hintMsg carries one published hint; ok is false once the stream closed.
type hintMsg struct {
	hint hints.Hint
	ok   bool
}

// testDoneMsg reports the outcome of the speech test.
type testDoneMsg struct{ err error }

// Model is the bubbletea model for the typing screen.
type Model struct {
	ctx  context.Context
	ctrl Controller
	sub  <-chan hints.Hint

	keys keyMap
	help help.Model

	buffer string
	last   hints.Hint
	seen   bool
	err    error
	width  int
}

// New creates the model. ctx is handed to every keystroke and must live as
// long as the application. sub is a hint subscription.
func New(ctx context.Context, ctrl Controller, sub <-chan hints.Hint) Model {
	return Model{
		ctx:  ctx,
		ctrl: ctrl,
		sub:  sub,
		keys: defaultKeyMap(),
		help: help.New(),
	}
}

// Init starts listening for hints.
func (m Model) Init() tea.Cmd {
	return waitForHint(m.sub)
}

func waitForHint(sub <-chan hints.Hint) tea.Cmd {
	return func() tea.Msg {
		h, ok := <-sub
		return hintMsg{hint: h, ok: ok}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case hintMsg:
		if !msg.ok {
			return m, nil
		}
		m.last = msg.hint
		m.seen = true
		return m, waitForHint(m.sub)

	case testDoneMsg:
		m.err = msg.err
	}
	return m, nil
}

// handleKey forwards keys synchronously so they reach the dispatcher in
// typing order.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Test):
		ctx, ctrl := m.ctx, m.ctrl
		return m, func() tea.Msg {
			_, err := ctrl.Test(ctx)
			return testDoneMsg{err: err}
		}

	case key.Matches(msg, m.keys.Reject):
		_, _, m.err = m.ctrl.Key(m.ctx, dispatch.BackspaceKey)
		return m, nil

	case msg.Type == tea.KeyRunes && len(msg.Runes) == 1 && !msg.Alt:
		letter := string(msg.Runes)
		_, ok, err := m.ctrl.Key(m.ctx, dispatch.Letter(letter))
		m.err = err
		if ok {
			m.buffer = trimBuffer(m.buffer + letter)
		}
		return m, nil
	}
	return m, nil
}

func trimBuffer(s string) string {
	if len(s) > maxBuffer {
		return s[len(s)-maxBuffer:]
	}
	return s
}

// View renders the screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("🥬 LettuceSpeak"))
	b.WriteString("\n")

	var body strings.Builder
	if !m.seen {
		body.WriteString(bufferStyle.Render("Type any letter…"))
	} else {
		body.WriteString(m.renderHint())
	}
	b.WriteString(boxStyle.Render(body.String()))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderHint() string {
	h := m.last
	big := h.Text
	if h.Letter != "" {
		big = h.Letter
	}

	rows := []string{
		lipgloss.JoinHorizontal(lipgloss.Center,
			emotionStyle(h.Emotion).Render(big),
			bufferStyle.Render(m.buffer),
		),
		"",
		row("emotion", h.Emotion),
		row("category", h.Category),
		row("voice", voiceName(h.Voice)),
	}
	if h.Outburst != "" {
		rows = append(rows, "", outburstStyle.Render(fmt.Sprintf("…%s", h.Outburst)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func voiceName(v string) string {
	if v == "" {
		return "(default)"
	}
	return v
}
