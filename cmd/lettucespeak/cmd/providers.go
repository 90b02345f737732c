package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/MrWong99/lettucespeak/internal/config"
	"github.com/MrWong99/lettucespeak/internal/health"
	"github.com/MrWong99/lettucespeak/internal/observe"
	"github.com/MrWong99/lettucespeak/internal/resilience"
	"github.com/MrWong99/lettucespeak/pkg/playback"
	"github.com/MrWong99/lettucespeak/pkg/playback/portaudio"
	"github.com/MrWong99/lettucespeak/pkg/speech"
	"github.com/MrWong99/lettucespeak/pkg/speech/coqui"
	"github.com/MrWong99/lettucespeak/pkg/speech/elevenlabs"
	"github.com/MrWong99/lettucespeak/pkg/speech/espeak"
	"github.com/MrWong99/lettucespeak/pkg/speech/say"
)

// audioOutput decides where synthesizers that return PCM play it. With a
// file set, each utterance is written there as WAV and the synthesizers that
// can only drive the speakers themselves are unavailable.
type audioOutput struct {
	file io.Writer

	mu   sync.Mutex
	sink *portaudio.Sink
}

// Sink returns the shared output, opening the speakers on first use.
func (o *audioOutput) Sink() (playback.Sink, error) {
	if o.file != nil {
		return playback.WAVWriter{W: o.file}, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sink == nil {
		s, err := portaudio.Open()
		if err != nil {
			return nil, fmt.Errorf("open speakers: %w: %w", err, speech.ErrUnavailable)
		}
		o.sink = s
	}
	return o.sink, nil
}

// speakersOnly fails for a synthesizer that cannot write to a file.
func (o *audioOutput) speakersOnly(name string) error {
	if o.file != nil {
		return fmt.Errorf("%s plays through the speakers only: %w", name, speech.ErrUnavailable)
	}
	return nil
}

// Close releases the speakers if they were opened.
func (o *audioOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sink == nil {
		return nil
	}
	return o.sink.Close()
}

// defaultProviderName is used when the config names no speech provider.
func defaultProviderName() string {
	if runtime.GOOS == "darwin" {
		return "say"
	}
	return "espeak"
}

// newRegistry wires all built-in speech providers into a registry. Each
// factory receives a config.ProviderEntry and constructs the platform from
// the real implementation package.
func newRegistry(out *audioOutput) *config.Registry {
	reg := config.NewRegistry()

	reg.Register("espeak", func(entry config.ProviderEntry) (speech.Platform, error) {
		if err := out.speakersOnly("espeak"); err != nil {
			return nil, err
		}
		var opts []espeak.Option
		if bin := entry.Option("binary"); bin != "" {
			opts = append(opts, espeak.WithBinary(bin))
		}
		return espeak.New(opts...)
	})

	reg.Register("say", func(config.ProviderEntry) (speech.Platform, error) {
		if err := out.speakersOnly("say"); err != nil {
			return nil, err
		}
		return say.New()
	})

	reg.Register("elevenlabs", func(entry config.ProviderEntry) (speech.Platform, error) {
		// Check the key before touching the audio device.
		if entry.APIKey == "" {
			return nil, fmt.Errorf("elevenlabs: api_key is not set: %w", speech.ErrUnavailable)
		}
		sink, err := out.Sink()
		if err != nil {
			return nil, err
		}
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.Option("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if v := entry.Option("default_voice"); v != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(v))
		}
		return elevenlabs.New(entry.APIKey, sink, opts...)
	})

	reg.Register("coqui", func(entry config.ProviderEntry) (speech.Platform, error) {
		sink, err := out.Sink()
		if err != nil {
			return nil, err
		}
		var opts []coqui.Option
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		return coqui.New(entry.BaseURL, sink, opts...)
	})

	reg.Register("nop", func(config.ProviderEntry) (speech.Platform, error) {
		return &speech.Nop{Reason: "nop provider configured"}, nil
	})

	for _, name := range reg.Names() {
		slog.Debug("registered provider", "kind", "speech", "name", name)
	}
	return reg
}

// speechStack is the speech platform the application talks to.
type speechStack struct {
	platform speech.Platform

	// failover is nil when no configured provider could be built.
	failover *resilience.Failover
}

// checkers returns one readiness check per platform circuit breaker.
func (s speechStack) checkers() []health.Checker {
	if s.failover == nil {
		return nil
	}
	var cs []health.Checker
	for _, name := range s.failover.Names() {
		cs = append(cs, health.Breaker(name, s.failover.Breaker(name)))
	}
	return cs
}

// names lists the platforms in failover order.
func (s speechStack) names() []string {
	if s.failover == nil {
		return nil
	}
	return s.failover.Names()
}

// buildSpeech instantiates the primary provider and its fallbacks behind a
// failover. Unavailable providers are skipped with a warning; when none is
// left the toy runs silently on speech.Nop.
func buildSpeech(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (speechStack, error) {
	entries := append([]config.ProviderEntry{cfg.Speech.Provider}, cfg.Speech.Fallbacks...)
	if entries[0].Name == "" {
		entries[0].Name = defaultProviderName()
	}

	var (
		f       *resilience.Failover
		skipped []error
	)
	for _, entry := range entries {
		p, err := reg.Create(entry)
		switch {
		case errors.Is(err, speech.ErrUnavailable):
			slog.Warn("speech provider unavailable, skipping", "name", entry.Name, "err", err)
			skipped = append(skipped, err)
			continue
		case err != nil:
			return speechStack{}, fmt.Errorf("create speech provider %q: %w", entry.Name, err)
		}

		slog.Info("provider created", "kind", "speech", "name", entry.Name)
		if f == nil {
			f = resilience.NewFailover(p, entry.Name, resilience.FailoverConfig{Metrics: metrics})
		} else {
			f.AddFallback(entry.Name, p)
		}
	}

	if f == nil {
		reason := errors.Join(skipped...).Error()
		slog.Warn("no speech provider available, running silently", "reason", reason)
		return speechStack{platform: &speech.Nop{Reason: reason}}, nil
	}
	return speechStack{platform: f, failover: f}, nil
}
