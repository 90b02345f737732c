// Package dispatch turns keystrokes into speech. Every keystroke cancels
// whatever is playing and issues one primary utterance; an emotional
// keystroke may additionally schedule a delayed outburst that plays after it.
//
// A Dispatcher is safe for concurrent use. Outbursts and completion callbacks
// run wherever the configured [voice.Scheduler] puts them: on timer
// goroutines by default, or serialised on one goroutine with
// internal/app.Loop.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/lettucespeak/internal/emotion"
	"github.com/MrWong99/lettucespeak/internal/hints"
	"github.com/MrWong99/lettucespeak/internal/observe"
	"github.com/MrWong99/lettucespeak/internal/voice"
	"github.com/MrWong99/lettucespeak/pkg/speech"
)

// Defaults for the outburst rule.
const (
	DefaultOutburstDelay       = 300 * time.Millisecond
	DefaultOutburstProbability = 0.30
)

// State is the dispatcher's speaking state.
type State int

const (
	Idle State = iota
	SpeakingPrimary
	SpeakingSecondary
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SpeakingPrimary:
		return "speaking(primary)"
	case SpeakingSecondary:
		return "speaking(secondary)"
	default:
		return "unknown"
	}
}

// SnapshotSource provides the current voice classification.
type SnapshotSource interface {
	Snapshot() *voice.Snapshot
}

// Detector infers an emotion from the input buffer.
type Detector interface {
	Detect(buffer string) emotion.Label
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithScheduler sets the scheduler for outbursts and completion callbacks.
func WithScheduler(s voice.Scheduler) Option {
	return func(d *Dispatcher) { d.sched = s }
}

// WithDetector replaces the default emotion detector.
func WithDetector(det Detector) Option {
	return func(d *Dispatcher) { d.detector = det }
}

// WithMetrics records dispatch metrics on m instead of the default metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithOutburstDelay overrides [DefaultOutburstDelay].
func WithOutburstDelay(delay time.Duration) Option {
	return func(d *Dispatcher) { d.outburstDelay = delay }
}

// WithOutburstProbability overrides [DefaultOutburstProbability].
func WithOutburstProbability(p float64) Option {
	return func(d *Dispatcher) { d.outburstProb = p }
}

// WithIDGenerator replaces the utterance ID generator (random UUIDs).
func WithIDGenerator(gen func() string) Option {
	return func(d *Dispatcher) { d.newID = gen }
}

// active is an utterance handed to the platform that has not finished yet.
type active struct {
	kind    speech.Kind
	started time.Time
}

// Dispatcher issues utterances for keystrokes.
type Dispatcher struct {
	platform      speech.Platform
	catalog       SnapshotSource
	rng           emotion.Random
	detector      Detector
	sched         voice.Scheduler
	metrics       *observe.Metrics
	outburstDelay time.Duration
	outburstProb  float64
	newID         func() string

	// mu guards active and every draw from rng.
	mu sync.Mutex
	// active holds utterances issued since the last cancellation.
	active map[string]active
}

// New creates a dispatcher speaking through platform with voices from
// catalog. rng drives every random choice.
func New(platform speech.Platform, catalog SnapshotSource, rng emotion.Random, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		platform:      platform,
		catalog:       catalog,
		rng:           rng,
		sched:         voice.TimerScheduler{},
		outburstDelay: DefaultOutburstDelay,
		outburstProb:  DefaultOutburstProbability,
		newID:         uuid.NewString,
		active:        make(map[string]active),
	}
	for _, o := range opts {
		o(d)
	}
	if d.detector == nil {
		d.detector = emotion.NewDetector(rng)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// State reports whether an utterance is playing and of which kind.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.active) == 0 {
		return Idle
	}
	for _, a := range d.active {
		if a.kind == speech.KindSecondary {
			return SpeakingSecondary
		}
	}
	return SpeakingPrimary
}

// ActivePrimaries returns how many primary utterances are considered active.
// It is never more than one.
func (d *Dispatcher) ActivePrimaries() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, a := range d.active {
		if a.kind == speech.KindPrimary {
			n++
		}
	}
	return n
}

// Letter speaks an accepted letter. buffer is the input typed so far,
// including letter.
func (d *Dispatcher) Letter(ctx context.Context, letter, buffer string) hints.Hint {
	ctx, span := observe.StartKeystrokeSpan(ctx, letter)
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	label := d.detector.Detect(buffer)
	h := d.speak(ctx, strings.ToUpper(letter), label, voice.LetterCategory(letter))
	h.Letter = strings.ToUpper(letter)
	return h
}

// Reject answers Backspace with the rejection phrase in an angry voice.
func (d *Dispatcher) Reject(ctx context.Context) hints.Hint {
	ctx, span := observe.StartKeystrokeSpan(ctx, "backspace")
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.speak(ctx, emotion.Rejection, emotion.Angry, voice.LetterCategory(emotion.Rejection))
	h.Rejected = true
	return h
}

// Test speaks the test phrase with excited delivery.
func (d *Dispatcher) Test(ctx context.Context) hints.Hint {
	ctx, span := observe.StartSpan(ctx, "test")
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speak(ctx, emotion.TestPhrase, emotion.Excited, voice.LetterCategory(emotion.TestPhrase))
}

// speak cancels everything in flight, issues text as the primary utterance
// and possibly schedules an outburst.
func (d *Dispatcher) speak(ctx context.Context, text string, label emotion.Label, cat voice.Category) hints.Hint {
	start := time.Now()

	if n := len(d.active); n > 0 {
		d.metrics.Cancellations.Add(ctx, int64(n))
	}
	d.platform.CancelAll()
	clear(d.active)

	params := emotion.Resolve(label)
	v := d.pickVoice(cat)
	d.issue(ctx, speech.Utterance{
		ID:     d.newID(),
		Text:   text,
		Voice:  v,
		Params: params,
		Kind:   speech.KindPrimary,
	}, label)

	h := hints.Hint{
		Text:     text,
		Emotion:  label.String(),
		Category: cat.String(),
		Time:     start,
	}
	if v != nil {
		h.Voice = v.Name
	}
	h.Outburst = d.maybeOutburst(ctx, label, cat, params)

	d.metrics.DispatchDuration.Record(ctx, time.Since(start).Seconds())
	return h
}

// maybeOutburst schedules the secondary utterance and returns its text, or
// returns "" when none was scheduled.
func (d *Dispatcher) maybeOutburst(ctx context.Context, label emotion.Label, cat voice.Category, primary speech.Params) string {
	if label == emotion.Neutral {
		return ""
	}
	phrases := emotion.Phrases(label)
	if len(phrases) == 0 || d.rng.Float64() >= d.outburstProb {
		return ""
	}
	text := phrases[d.rng.IntN(len(phrases))]
	params := emotion.Outburst(primary)
	d.metrics.RecordOutburst(ctx, label.String())

	ctx = context.WithoutCancel(ctx)
	d.sched.AfterFunc(d.outburstDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.issue(ctx, speech.Utterance{
			ID:     d.newID(),
			Text:   text,
			Voice:  d.pickVoice(cat),
			Params: params,
			Kind:   speech.KindSecondary,
		}, label)
	})
	return text
}

// pickVoice draws uniformly from cat, then from the whole catalog, and
// returns nil when there are no voices at all.
func (d *Dispatcher) pickVoice(cat voice.Category) *speech.Voice {
	snap := d.catalog.Snapshot()
	pool := snap.Table.Get(cat)
	if len(pool) == 0 {
		pool = snap.Voices
	}
	if len(pool) == 0 {
		return nil
	}
	v := pool[d.rng.IntN(len(pool))]
	return &v
}

// issue hands u to the platform and tracks it until it completes. The done
// callback only schedules finish, so platforms may call it from CancelAll
// while d.mu is held.
func (d *Dispatcher) issue(ctx context.Context, u speech.Utterance, label emotion.Label) {
	log := observe.Logger(ctx).With("utterance", u.ID, "kind", u.Kind.String(), "text", u.Text)
	d.metrics.RecordUtterance(ctx, u.Kind.String(), label.String())

	err := d.platform.Speak(ctx, u, func(err error) {
		d.sched.AfterFunc(0, func() { d.finish(ctx, u, err) })
	})
	if err != nil {
		log.Warn("dispatch: speech failed to start", "err", err)
		d.metrics.RecordSynthesisError(ctx, u.Kind.String(), "start")
		return
	}

	d.active[u.ID] = active{kind: u.Kind, started: time.Now()}
	log.Debug("dispatch: utterance issued",
		"emotion", label.String(),
		"rate", u.Params.Rate,
		"pitch", u.Params.Pitch,
		"volume", u.Params.Volume,
	)
}

// finish handles a completion callback. Failures are logged and otherwise
// treated like a normal end of speech.
func (d *Dispatcher) finish(ctx context.Context, u speech.Utterance, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.active[u.ID]; ok {
		delete(d.active, u.ID)
		d.metrics.RecordUtteranceDuration(ctx, u.Kind.String(), time.Since(a.started))
	}

	switch {
	case err == nil, errors.Is(err, context.Canceled):
	default:
		observe.Logger(ctx).Warn("dispatch: speech failed",
			"utterance", u.ID, "kind", u.Kind.String(), "err", err)
		d.metrics.RecordSynthesisError(ctx, u.Kind.String(), "completion")
	}
}
