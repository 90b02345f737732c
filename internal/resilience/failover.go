package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/lettucespeak/internal/observe"
	"github.com/MrWong99/lettucespeak/pkg/speech"
)

// ErrAllFailed is returned when every platform in a [Failover] fails or has
// an open circuit breaker.
var ErrAllFailed = errors.New("all speech platforms failed")

// FailoverConfig configures the per-platform circuit breakers of a
// [Failover].
type FailoverConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// Metrics records one provider request per Speak attempt. Nil uses the
	// default metrics.
	Metrics *observe.Metrics
}

type failoverEntry struct {
	name     string
	platform speech.Platform
	breaker  *CircuitBreaker
}

// Failover implements [speech.Platform] over a primary and zero or more
// fallback platforms, each behind its own circuit breaker. Calls go to the
// first platform whose breaker admits them. Both synchronous start errors
// and asynchronous completion errors count as failures; cancellation does
// not.
type Failover struct {
	cfg     FailoverConfig
	metrics *observe.Metrics

	mu      sync.RWMutex
	entries []failoverEntry
}

var (
	_ speech.Platform     = (*Failover)(nil)
	_ speech.VoiceWatcher = (*Failover)(nil)
	_ io.Closer           = (*Failover)(nil)
)

// NewFailover creates a [Failover] with primary as the preferred platform.
func NewFailover(primary speech.Platform, primaryName string, cfg FailoverConfig) *Failover {
	f := &Failover{cfg: cfg, metrics: cfg.Metrics}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}
	f.AddFallback(primaryName, primary)
	return f
}

// AddFallback appends a platform. Fallbacks are tried in the order they are
// added, after the primary.
func (f *Failover) AddFallback(name string, p speech.Platform) {
	cbCfg := f.cfg.CircuitBreaker
	cbCfg.Name = name
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, failoverEntry{name: name, platform: p, breaker: NewCircuitBreaker(cbCfg)})
}

func (f *Failover) snapshot() []failoverEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.entries
}

// Voices lists the voices of the first healthy platform.
func (f *Failover) Voices(ctx context.Context) ([]speech.Voice, error) {
	var lastErr error
	for _, e := range f.snapshot() {
		var voices []speech.Voice
		err := e.breaker.Execute(func() error {
			var err error
			voices, err = e.platform.Voices(ctx)
			return err
		})
		if err == nil {
			return voices, nil
		}
		lastErr = err
		logSkip(e.name, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// Speak hands u to the first platform that admits and starts it. A voice
// that belongs to a different provider is dropped so the platform uses its
// default.
func (f *Failover) Speak(ctx context.Context, u speech.Utterance, done func(error)) error {
	var lastErr error
	for _, e := range f.snapshot() {
		finish, err := e.breaker.Acquire()
		if err != nil {
			lastErr = err
			logSkip(e.name, err)
			continue
		}

		eu := u
		if eu.Voice != nil && eu.Voice.Provider != "" && eu.Voice.Provider != e.name {
			eu.Voice = nil
		}

		name := e.name
		err = e.platform.Speak(ctx, eu, func(err error) {
			f.complete(ctx, name, finish, err)
			if done != nil {
				done(err)
			}
		})
		if err == nil {
			return nil
		}
		finish(err)
		f.metrics.RecordProviderRequest(ctx, name, "error")
		lastErr = err
		logSkip(name, err)
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

func (f *Failover) complete(ctx context.Context, name string, finish func(error), err error) {
	switch {
	case err == nil:
		finish(nil)
		f.metrics.RecordProviderRequest(ctx, name, "ok")
	case errors.Is(err, context.Canceled):
		finish(nil)
		f.metrics.RecordProviderRequest(ctx, name, "canceled")
	default:
		finish(err)
		f.metrics.RecordProviderRequest(ctx, name, "error")
	}
}

// CancelAll cancels on every platform, since earlier utterances may have
// gone to any of them.
func (f *Failover) CancelAll() {
	for _, e := range f.snapshot() {
		e.platform.CancelAll()
	}
}

// OnVoicesChanged registers cb with every platform that reports voice-list
// changes.
func (f *Failover) OnVoicesChanged(cb func()) {
	for _, e := range f.snapshot() {
		if w, ok := e.platform.(speech.VoiceWatcher); ok {
			w.OnVoicesChanged(cb)
		}
	}
}

// Close closes every platform that holds resources.
func (f *Failover) Close() error {
	var errs []error
	for _, e := range f.snapshot() {
		if c, ok := e.platform.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", e.name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Names returns the platform names in failover order.
func (f *Failover) Names() []string {
	entries := f.snapshot()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Breaker returns the circuit breaker guarding the named platform, or nil.
func (f *Failover) Breaker(name string) *CircuitBreaker {
	for _, e := range f.snapshot() {
		if e.name == name {
			return e.breaker
		}
	}
	return nil
}

func logSkip(name string, err error) {
	if errors.Is(err, ErrCircuitOpen) {
		slog.Debug("skipping speech platform (circuit open)", "provider", name)
		return
	}
	slog.Warn("speech platform failed, trying next", "provider", name, "err", err)
}
