package speech

import (
	"context"
	"log/slog"
	"sync"
)

// Nop is a Platform that has no voices and speaks nothing. It stands in when
// no real backend can be built so the rest of the application keeps working
// silently. The first Speak call logs a single warning.
type Nop struct {
	// Reason is included in the warning, e.g. the error that made the real
	// backend unavailable.
	Reason string

	warnOnce sync.Once
}

var _ Platform = (*Nop)(nil)

// Voices always returns an empty list.
func (n *Nop) Voices(context.Context) ([]Voice, error) { return nil, nil }

// Speak completes immediately without producing sound.
func (n *Nop) Speak(_ context.Context, u Utterance, done func(error)) error {
	n.warnOnce.Do(func() {
		slog.Warn("speech disabled, utterances are dropped", "reason", n.Reason, "text", u.Text)
	})
	if done != nil {
		go done(nil)
	}
	return nil
}

// CancelAll is a no-op.
func (n *Nop) CancelAll() {}
