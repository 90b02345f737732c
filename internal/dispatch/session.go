package dispatch

import (
	"context"
	"strings"

	"github.com/MrWong99/lettucespeak/internal/hints"
	"github.com/MrWong99/lettucespeak/internal/observe"
)

// Key is one input event.
type Key struct {
	// Text is the typed text. Only a single ASCII letter is accepted.
	Text string

	// Backspace marks the rejection key. Text is ignored when set.
	Backspace bool
}

// Letter returns the key event for typed text s.
func Letter(s string) Key { return Key{Text: s} }

// BackspaceKey is the Backspace event.
var BackspaceKey = Key{Backspace: true}

// Session accumulates accepted letters and routes keys to a [Dispatcher].
// Unlike the dispatcher it must only be used from one goroutine.
type Session struct {
	d       *Dispatcher
	metrics *observe.Metrics
	buf     strings.Builder
}

// NewSession starts a session with an empty input buffer.
func NewSession(d *Dispatcher) *Session {
	return &Session{d: d, metrics: d.metrics}
}

// Key handles one input event. A single ASCII letter is appended to the
// buffer and spoken; Backspace is rejected aloud without touching the
// buffer. Anything else is ignored and reported as not accepted.
func (s *Session) Key(ctx context.Context, k Key) (hints.Hint, bool) {
	switch {
	case k.Backspace:
		s.metrics.RecordKeystroke(ctx, "backspace")
		return s.d.Reject(ctx), true
	case isLetter(k.Text):
		s.metrics.RecordKeystroke(ctx, "letter")
		s.buf.WriteString(k.Text)
		return s.d.Letter(ctx, k.Text, s.buf.String()), true
	default:
		s.metrics.RecordKeystroke(ctx, "ignored")
		return hints.Hint{}, false
	}
}

// Buffer returns every letter accepted so far.
func (s *Session) Buffer() string {
	return s.buf.String()
}

func isLetter(s string) bool {
	if len(s) != 1 {
		return false
	}
	b := s[0] | 0x20
	return b >= 'a' && b <= 'z'
}
