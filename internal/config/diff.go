package config

import (
	"maps"
	"reflect"
	"slices"
)

// Section names a top-level config section.
type Section string

const (
	SectionServer    Section = "server"
	SectionSpeech    Section = "speech"
	SectionBehaviour Section = "behaviour"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ListenChanged is true when listen_addr or log_file differs. Both take
	// effect on restart.
	ListenChanged bool

	// SpeechChanged is true when the provider chain or poll interval
	// differs. The running platform is kept; the voice catalog is reloaded
	// and the new chain takes effect on restart.
	SpeechChanged bool

	// BehaviourChanged is true when any behaviour setting differs. These
	// take effect on restart.
	BehaviourChanged bool
}

// Changed reports whether anything at all differs.
func (d ConfigDiff) Changed() bool {
	return len(d.Sections()) > 0
}

// Sections lists the changed sections in file order.
func (d ConfigDiff) Sections() []Section {
	var out []Section
	if d.LogLevelChanged || d.ListenChanged {
		out = append(out, SectionServer)
	}
	if d.SpeechChanged {
		out = append(out, SectionSpeech)
	}
	if d.BehaviourChanged {
		out = append(out, SectionBehaviour)
	}
	return out
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFile != new.Server.LogFile {
		d.ListenChanged = true
	}

	if old.Speech.VoicePollInterval != new.Speech.VoicePollInterval ||
		!providerEqual(old.Speech.Provider, new.Speech.Provider) ||
		!slices.EqualFunc(old.Speech.Fallbacks, new.Speech.Fallbacks, providerEqual) {
		d.SpeechChanged = true
	}

	if !behaviourEqual(old.Behaviour, new.Behaviour) {
		d.BehaviourChanged = true
	}

	return d
}

func providerEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		maps.EqualFunc(a.Options, b.Options, func(x, y any) bool { return reflect.DeepEqual(x, y) })
}

func behaviourEqual(a, b BehaviourConfig) bool {
	return a.VoiceRetryDelay == b.VoiceRetryDelay &&
		a.OutburstDelay == b.OutburstDelay &&
		a.Seed == b.Seed &&
		floatPtrEqual(a.OutburstProbability, b.OutburstProbability) &&
		floatPtrEqual(a.RandomEmotionProbability, b.RandomEmotionProbability)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
