// Package speech defines the Platform interface for speech synthesis backends.
//
// A Platform wraps a synthesizer (a local CLI such as espeak-ng or macOS say,
// or a remote service such as ElevenLabs) and exposes the three operations
// LettuceSpeak needs: enumerate voices, speak an utterance fire-and-forget,
// and cancel everything that is queued or playing.
//
// Implementations must be safe for concurrent use.
package speech

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when a backend cannot be used on this host
// (binary missing, API key absent, unsupported OS).
var ErrUnavailable = errors.New("speech: platform unavailable")

// Kind distinguishes the utterance issued for a keystroke from the delayed
// emotional outburst that may follow it.
type Kind int

const (
	// KindPrimary is the utterance issued directly for a keystroke.
	KindPrimary Kind = iota

	// KindSecondary is an outburst issued after a delay. It never cancels
	// anything already in flight.
	KindSecondary
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Voice is a synthetic voice offered by a platform. The core never invents
// voices; it only filters and selects what a platform reports.
type Voice struct {
	// ID is the platform-specific voice identifier passed back to Speak.
	ID string

	// Name is the human-readable voice name. Classification is based on it.
	Name string

	// Language is a BCP-47 language tag (e.g. "en-GB"). May be empty.
	Language string

	// Provider identifies which platform this voice belongs to.
	Provider string

	// Metadata holds provider-specific attributes (gender, age, accent, ...).
	Metadata map[string]string
}

// Params are the delivery parameters of an utterance, already clamped by the
// caller to rate ∈ [0.1, 10], pitch ∈ [0, 2] and volume ∈ [0, 1]. A value of
// 1 for rate and pitch means the platform's default delivery.
type Params struct {
	Rate   float64
	Pitch  float64
	Volume float64
}

// Utterance is one unit of synthesized speech.
type Utterance struct {
	// ID uniquely identifies the utterance for logging and completion tracking.
	ID string

	// Text is spoken verbatim.
	Text string

	// Voice selects the voice. Nil lets the platform pick its default.
	Voice *Voice

	// Params controls rate, pitch and volume.
	Params Params

	// Kind is informational for platforms; the dispatcher uses it for state.
	Kind Kind
}

// Platform is the abstraction over any speech synthesis backend.
type Platform interface {
	// Voices returns the voices currently available. The list may be empty
	// and may change between calls.
	Voices(ctx context.Context) ([]Voice, error)

	// Speak queues u for playback behind anything already queued and returns
	// immediately. A non-nil return means the utterance could not be started
	// and done will not be called. Otherwise done is called exactly once, on
	// an arbitrary goroutine, when the utterance finishes (nil), fails, or is
	// cancelled by CancelAll ([context.Canceled]).
	Speak(ctx context.Context, u Utterance, done func(error)) error

	// CancelAll stops the utterance currently playing and drops everything
	// queued behind it.
	CancelAll()
}

// VoiceWatcher is implemented by platforms that can report changes to their
// voice list. Only one callback is kept; later calls replace earlier ones.
// The callback runs on an internal goroutine and must not block.
type VoiceWatcher interface {
	OnVoicesChanged(cb func())
}
