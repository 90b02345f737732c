package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/lettucespeak/internal/config"
)

func prob(p float64) *float64 { return &p }

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Speech: config.SpeechConfig{
			Provider: config.ProviderEntry{
				Name:    "espeak",
				Options: map[string]any{"binary": "espeak-ng"},
			},
			Fallbacks:         []config.ProviderEntry{{Name: "nop"}},
			VoicePollInterval: 30 * time.Second,
		},
		Behaviour: config.BehaviourConfig{
			VoiceRetryDelay:          time.Second,
			OutburstDelay:            300 * time.Millisecond,
			OutburstProbability:      prob(0.3),
			RandomEmotionProbability: prob(0.1),
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.SpeechChanged || d.BehaviourChanged {
		t.Errorf("only the log level changed, got %+v", d)
	}
}

func TestDiff_Speech(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"provider name", func(c *config.Config) { c.Speech.Provider.Name = "say" }},
		{"provider option", func(c *config.Config) { c.Speech.Provider.Options["binary"] = "/opt/espeak" }},
		{"api key", func(c *config.Config) { c.Speech.Provider.APIKey = "k" }},
		{"fallback added", func(c *config.Config) {
			c.Speech.Fallbacks = append(c.Speech.Fallbacks, config.ProviderEntry{Name: "coqui"})
		}},
		{"fallback removed", func(c *config.Config) { c.Speech.Fallbacks = nil }},
		{"poll interval", func(c *config.Config) { c.Speech.VoicePollInterval = time.Minute }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			new := baseConfig()
			tc.mutate(new)
			d := config.Diff(baseConfig(), new)
			if !d.SpeechChanged {
				t.Error("expected SpeechChanged=true")
			}
			if d.BehaviourChanged || d.LogLevelChanged {
				t.Errorf("only speech changed, got %+v", d)
			}
		})
	}
}

func TestDiff_Behaviour(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"retry delay", func(c *config.Config) { c.Behaviour.VoiceRetryDelay = 2 * time.Second }},
		{"outburst delay", func(c *config.Config) { c.Behaviour.OutburstDelay = time.Second }},
		{"outburst probability", func(c *config.Config) { c.Behaviour.OutburstProbability = prob(0.9) }},
		{"probability unset", func(c *config.Config) { c.Behaviour.RandomEmotionProbability = nil }},
		{"seed", func(c *config.Config) { c.Behaviour.Seed = 7 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			new := baseConfig()
			tc.mutate(new)
			d := config.Diff(baseConfig(), new)
			if !d.BehaviourChanged {
				t.Error("expected BehaviourChanged=true")
			}
			if d.SpeechChanged || d.LogLevelChanged {
				t.Errorf("only behaviour changed, got %+v", d)
			}
		})
	}
}

func TestDiff_EqualProbabilityPointers(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	// Distinct pointers with the same value are not a change.
	new.Behaviour.OutburstProbability = prob(0.3)
	if d := config.Diff(old, new); d.BehaviourChanged {
		t.Error("expected BehaviourChanged=false for equal values")
	}
}

func TestDiff_Sections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		modify func(c *config.Config)
		want   []config.Section
	}{
		{name: "nothing", modify: func(*config.Config) {}},
		{name: "log file", modify: func(c *config.Config) { c.Server.LogFile = "toy.log" }, want: []config.Section{config.SectionServer}},
		{name: "listen address", modify: func(c *config.Config) { c.Server.ListenAddr = "off" }, want: []config.Section{config.SectionServer}},
		{name: "fallback added", modify: func(c *config.Config) {
			c.Speech.Fallbacks = append(c.Speech.Fallbacks, config.ProviderEntry{Name: "say"})
		}, want: []config.Section{config.SectionSpeech}},
		{name: "seed and log level", modify: func(c *config.Config) {
			c.Behaviour.Seed = 42
			c.Server.LogLevel = config.LogError
		}, want: []config.Section{config.SectionServer, config.SectionBehaviour}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			updated := baseConfig()
			tc.modify(updated)

			d := config.Diff(baseConfig(), updated)
			if got := d.Sections(); !slices.Equal(got, tc.want) {
				t.Errorf("Sections() = %v, want %v", got, tc.want)
			}
			if d.Changed() != (len(tc.want) > 0) {
				t.Errorf("Changed() = %v with sections %v", d.Changed(), tc.want)
			}
		})
	}
}
