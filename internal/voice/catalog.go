package voice

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"

	"github.com/MrWong99/lettucespeak/internal/observe"
	"github.com/MrWong99/lettucespeak/pkg/speech"
)

// DefaultRetryDelay is how long Start waits before listing voices a second
// time, for platforms that populate their list late without notifying.
const DefaultRetryDelay = time.Second

// Scheduler runs fn once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// TimerScheduler is a [Scheduler] backed by [time.AfterFunc].
type TimerScheduler struct{}

// AfterFunc schedules fn on its own goroutine after d.
func (TimerScheduler) AfterFunc(d time.Duration, fn func()) { time.AfterFunc(d, fn) }

// Snapshot is one immutable classification of the platform's voices.
// Snapshots are replaced wholesale; never modify one after publication.
type Snapshot struct {
	// Voices is the full catalog in platform enumeration order.
	Voices []speech.Voice

	// Table is the classification of Voices.
	Table Table

	// LoadedAt is when the snapshot was built.
	LoadedAt time.Time
}

// emptySnapshot is served before the first load completes.
var emptySnapshot = &Snapshot{}

// Option configures a [Catalog].
type Option func(*Catalog)

// WithScheduler sets the scheduler used for the delayed retry.
func WithScheduler(s Scheduler) Option {
	return func(c *Catalog) { c.sched = s }
}

// WithRetryDelay overrides [DefaultRetryDelay]. Zero disables the retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Catalog) { c.retryDelay = d }
}

// WithMetrics records catalog size on m instead of the default metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// OnUpdate registers cb to be called with every newly published snapshot.
func OnUpdate(cb func(*Snapshot)) Option {
	return func(c *Catalog) { c.onUpdate = cb }
}

// Catalog loads voices from a platform and publishes classified snapshots.
// Load may be called concurrently from any goroutine; readers always observe
// a complete snapshot.
type Catalog struct {
	platform   speech.Platform
	sched      Scheduler
	retryDelay time.Duration
	metrics    *observe.Metrics
	onUpdate   func(*Snapshot)

	// loadMu serialises loads so snapshots are published in call order.
	loadMu sync.Mutex
	snap   atomic.Pointer[Snapshot]
}

// NewCatalog creates a catalog for platform. Nothing is loaded until Load or
// Start is called.
func NewCatalog(platform speech.Platform, opts ...Option) *Catalog {
	c := &Catalog{
		platform:   platform,
		sched:      TimerScheduler{},
		retryDelay: DefaultRetryDelay,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.snap.Store(emptySnapshot)
	return c
}

// Snapshot returns the current classification. It never returns nil.
func (c *Catalog) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Load lists the platform's voices, classifies them and publishes the result,
// replacing any previous snapshot. An enumeration error is logged and treated
// as an empty catalog.
func (c *Catalog) Load(ctx context.Context) []speech.Voice {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	voices, err := c.platform.Voices(ctx)
	if err != nil {
		slog.Warn("voice catalog: listing voices failed, treating catalog as empty", "err", err)
		c.metrics.RecordPlatformError(ctx, "voices")
		voices = nil
	}
	voices = normalize(voices)

	snap := &Snapshot{
		Voices:   voices,
		Table:    Classify(voices),
		LoadedAt: time.Now(),
	}
	c.snap.Store(snap)

	counts := snap.Table.Counts()
	c.metrics.RecordCatalog(ctx, len(voices), counts[Male], counts[Female], counts[Kids])
	slog.Info("voice catalog loaded",
		"voices", len(voices),
		"male", counts[Male],
		"female", counts[Female],
		"kids", counts[Kids],
	)

	if c.onUpdate != nil {
		c.onUpdate(snap)
	}
	return voices
}

// Start performs the initial load, subscribes to voice-list changes when the
// platform supports them, and schedules one delayed reload. Reloads use ctx
// and stop happening once it is cancelled.
func (c *Catalog) Start(ctx context.Context) {
	c.Load(ctx)

	if w, ok := c.platform.(speech.VoiceWatcher); ok {
		w.OnVoicesChanged(func() {
			if ctx.Err() != nil {
				return
			}
			c.Load(ctx)
		})
	}

	if c.retryDelay > 0 {
		c.sched.AfterFunc(c.retryDelay, func() {
			if ctx.Err() != nil {
				return
			}
			c.Load(ctx)
		})
	}
}

// normalize returns a copy of voices with canonical BCP-47 language tags.
// Tags that do not parse are kept verbatim.
func normalize(voices []speech.Voice) []speech.Voice {
	if len(voices) == 0 {
		return nil
	}
	out := make([]speech.Voice, len(voices))
	for i, v := range voices {
		v.Language = canonicalTag(v.Language)
		out[i] = v
	}
	return out
}

func canonicalTag(raw string) string {
	if raw == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(raw, "_", "-"))
	if err != nil {
		return raw
	}
	return tag.String()
}
