// Package hints fans out per-keystroke display hints to an external visual
// layer. Hints carry what was spoken and why; rendering is up to the client.
package hints

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Hint describes the outcome of one dispatched keystroke.
type Hint struct {
	// Letter is the upper-case letter spoken, or empty for non-letter speech.
	Letter string `json:"letter,omitempty"`

	// Text is what the primary utterance says.
	Text string `json:"text"`

	// Emotion is the detected emotion label.
	Emotion string `json:"emotion"`

	// Category is the voice category the utterance was drawn from.
	Category string `json:"category"`

	// Voice is the name of the chosen voice, empty for the platform default.
	Voice string `json:"voice,omitempty"`

	// Rejected is set for the Backspace rejection.
	Rejected bool `json:"rejected,omitempty"`

	// Outburst is the exclamation scheduled to follow, if any.
	Outburst string `json:"outburst,omitempty"`

	// Time is when the keystroke was dispatched.
	Time time.Time `json:"time"`
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 32

// Broadcaster delivers hints to any number of subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the hint.
// Safe for concurrent use.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	buffer int
	closed bool
}

type subscription struct {
	ch      chan Hint
	dropped atomic.Int64
}

// NewBroadcaster creates a broadcaster. buffer <= 0 uses [DefaultBuffer].
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{subs: make(map[*subscription]struct{}), buffer: buffer}
}

// Subscribe registers a new subscriber. The returned cancel func unregisters
// it and closes the channel; it is idempotent.
func (b *Broadcaster) Subscribe() (<-chan Hint, func()) {
	s := &subscription{ch: make(chan Hint, b.buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[s]; ok {
				delete(b.subs, s)
				close(s.ch)
			}
		})
	}
}

// Publish sends h to every subscriber that has room for it.
func (b *Broadcaster) Publish(h Hint) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- h:
		default:
			if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
				slog.Warn("hints: slow subscriber, dropping", "dropped", n)
			}
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unregisters every subscriber and closes their channels. Later
// subscriptions receive an already closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		close(s.ch)
	}
}
