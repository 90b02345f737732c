package speech

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"sync"
	"time"
)

// Poller decorates a Platform that has no change notifications of its own
// and turns it into a [VoiceWatcher]: it lists voices on a fixed interval and
// fires the registered callback whenever the list differs from the last one
// seen. It uses polling because none of the supported synthesizers push
// voice-list events.
type Poller struct {
	Platform

	interval time.Duration

	mu       sync.Mutex
	cb       func()
	lastHash [sha256.Size]byte
	seeded   bool

	done     chan struct{}
	stopOnce sync.Once
}

var (
	_ Platform     = (*Poller)(nil)
	_ VoiceWatcher = (*Poller)(nil)
)

// NewPoller wraps p. Polling starts with [Poller.Start].
func NewPoller(p Platform, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		Platform: p,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// OnVoicesChanged registers cb. Only the latest registration is kept. When
// the wrapped platform reports changes itself, cb is registered there too.
func (p *Poller) OnVoicesChanged(cb func()) {
	p.mu.Lock()
	p.cb = cb
	p.mu.Unlock()

	if w, ok := p.Platform.(VoiceWatcher); ok {
		w.OnVoicesChanged(cb)
	}
}

// Start runs the poll loop in a background goroutine until ctx is cancelled
// or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case <-ticker.C:
				p.check(ctx)
			}
		}
	}()
}

// Stop ends polling. It is safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

// check lists voices once and fires the callback when the list changed. The
// first successful listing only seeds the hash.
func (p *Poller) check(ctx context.Context) {
	voices, err := p.Platform.Voices(ctx)
	if err != nil {
		slog.Debug("voice poller: list failed", "err", err)
		return
	}
	hash := hashVoices(voices)

	p.mu.Lock()
	changed := p.seeded && hash != p.lastHash
	p.lastHash = hash
	p.seeded = true
	cb := p.cb
	p.mu.Unlock()

	if changed && cb != nil {
		slog.Info("voice poller: voice list changed", "voices", len(voices))
		cb()
	}
}

// hashVoices fingerprints the identity and order of a voice list.
func hashVoices(voices []Voice) [sha256.Size]byte {
	h := sha256.New()
	for _, v := range voices {
		h.Write([]byte(v.ID))
		h.Write([]byte{0})
		h.Write([]byte(v.Name))
		h.Write([]byte{0})
		h.Write([]byte(v.Language))
		h.Write([]byte{'\n'})
	}
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
