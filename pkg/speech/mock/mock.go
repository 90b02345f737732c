// Package mock provides a test double for the speech.Platform interface.
//
// Use Platform to feed a controlled voice list to the catalog and to verify
// which utterances the dispatcher issues and when it cancels.
//
// Example:
//
//	p := &mock.Platform{
//	    VoicesResult: []speech.Voice{{ID: "v1", Name: "Samantha"}},
//	}
//	_ = p.Speak(ctx, u, func(err error) {})
//	p.Complete(u.ID, nil)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lettucespeak/pkg/speech"
)

// SpeakCall records a single invocation of Speak.
type SpeakCall struct {
	// Ctx is the context passed to Speak.
	Ctx context.Context
	// Utterance is the utterance passed to Speak.
	Utterance speech.Utterance
}

// Platform is a mock implementation of speech.Platform and speech.VoiceWatcher.
type Platform struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// VoicesResult is returned by Voices.
	VoicesResult []speech.Voice

	// VoicesErr, if non-nil, is returned as the error from Voices.
	VoicesErr error

	// SpeakErr, if non-nil, is returned from Speak and the utterance is not
	// recorded as pending.
	SpeakErr error

	// --- Call records ---

	// SpeakCalls records every call to Speak in order.
	SpeakCalls []SpeakCall

	// VoicesCalls counts calls to Voices.
	VoicesCalls int

	// CancelAllCalls counts calls to CancelAll.
	CancelAllCalls int

	pending  map[string]func(error)
	onChange func()
}

var (
	_ speech.Platform     = (*Platform)(nil)
	_ speech.VoiceWatcher = (*Platform)(nil)
)

// Voices records the call and returns VoicesResult, VoicesErr.
func (p *Platform) Voices(context.Context) ([]speech.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VoicesCalls++
	return p.VoicesResult, p.VoicesErr
}

// Speak records the call. Unless SpeakErr is set, the done callback is held
// until Complete or CancelAll is called.
func (p *Platform) Speak(ctx context.Context, u speech.Utterance, done func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SpeakCalls = append(p.SpeakCalls, SpeakCall{Ctx: ctx, Utterance: u})
	if p.SpeakErr != nil {
		return p.SpeakErr
	}
	if p.pending == nil {
		p.pending = make(map[string]func(error))
	}
	p.pending[u.ID] = done
	return nil
}

// CancelAll records the call and completes every pending utterance with
// context.Canceled.
func (p *Platform) CancelAll() {
	p.mu.Lock()
	p.CancelAllCalls++
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, done := range pending {
		if done != nil {
			done(context.Canceled)
		}
	}
}

// Complete finishes the pending utterance id with err. It reports false if
// no such utterance is pending.
func (p *Platform) Complete(id string, err error) bool {
	p.mu.Lock()
	done, ok := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()

	if ok && done != nil {
		done(err)
	}
	return ok
}

// Pending returns the number of utterances awaiting completion.
func (p *Platform) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Utterances returns a copy of every utterance passed to Speak, in order.
func (p *Platform) Utterances() []speech.Utterance {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]speech.Utterance, len(p.SpeakCalls))
	for i, c := range p.SpeakCalls {
		out[i] = c.Utterance
	}
	return out
}

// OnVoicesChanged stores cb so tests can fire it with FireVoicesChanged.
func (p *Platform) OnVoicesChanged(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = cb
}

// FireVoicesChanged invokes the registered voices-changed callback, if any.
func (p *Platform) FireVoicesChanged() {
	p.mu.Lock()
	cb := p.onChange
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// SetVoices replaces VoicesResult under the lock.
func (p *Platform) SetVoices(voices []speech.Voice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VoicesResult = voices
}

// Reset clears all recorded calls. Thread-safe.
func (p *Platform) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SpeakCalls = nil
	p.VoicesCalls = 0
	p.CancelAllCalls = 0
	p.pending = nil
}
