package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/lettucespeak/internal/resilience"
	"github.com/MrWong99/lettucespeak/internal/voice"
)

// SnapshotSource provides the current voice classification.
type SnapshotSource interface {
	Snapshot() *voice.Snapshot
}

// VoiceCatalog reports ready once the catalog has completed its first load.
// An empty catalog is still ready; utterances then use the platform default.
func VoiceCatalog(src SnapshotSource) Checker {
	return Checker{
		Name: "voices",
		Check: func(context.Context) error {
			if src.Snapshot().LoadedAt.IsZero() {
				return errors.New("voice catalog not loaded yet")
			}
			return nil
		},
	}
}

// BreakerSource reports a circuit breaker's state.
type BreakerSource interface {
	State() resilience.State
}

// Breaker fails while the named platform's circuit breaker is open.
func Breaker(name string, b BreakerSource) Checker {
	return Checker{
		Name: "speech:" + name,
		Check: func(context.Context) error {
			if s := b.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit %s", s)
			}
			return nil
		},
	}
}
