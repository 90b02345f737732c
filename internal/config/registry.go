package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/lettucespeak/pkg/speech"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// SpeechFactory builds a speech platform from its configuration entry.
type SpeechFactory func(ProviderEntry) (speech.Platform, error)

// Registry maps speech provider names to their constructor functions. It is
// safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	speech map[string]SpeechFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{speech: make(map[string]SpeechFactory)}
}

// Register registers a speech platform factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory SpeechFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[name] = factory
}

// Create instantiates a speech platform using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) Create(entry ProviderEntry) (speech.Platform, error) {
	r.mu.RLock()
	factory, ok := r.speech[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: speech/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.speech))
	for name := range r.speech {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
