// Package config provides the configuration schema, loader, and speech
// provider registry for LettuceSpeak.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr               = "127.0.0.1:7410"
	DefaultVoicePollInterval        = 30 * time.Second
	DefaultVoiceRetryDelay          = time.Second
	DefaultOutburstDelay            = 300 * time.Millisecond
	DefaultOutburstProbability      = 0.30
	DefaultRandomEmotionProbability = 0.10
)

// Config is the root configuration structure. It is loaded from a YAML or
// TOML file using [Load], or from a reader using [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Speech    SpeechConfig    `yaml:"speech" toml:"speech"`
	Behaviour BehaviourConfig `yaml:"behaviour" toml:"behaviour"`
}

// ServerConfig holds logging and HTTP settings.
type ServerConfig struct {
	// ListenAddr is the address serving /hints, /metrics and the health
	// endpoints. "off" runs without the HTTP server.
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" toml:"log_level"`

	// LogFile receives log output while the terminal UI owns the screen.
	// Empty discards logs in that mode.
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// SpeechConfig selects the speech platform.
type SpeechConfig struct {
	// Provider is the primary speech platform. An empty name picks the
	// platform's native synthesizer.
	Provider ProviderEntry `yaml:"provider" toml:"provider"`

	// Fallbacks are tried in order when the primary keeps failing.
	Fallbacks []ProviderEntry `yaml:"fallbacks" toml:"fallbacks"`

	// VoicePollInterval is how often the voice list is re-read to detect
	// changes. Zero selects [DefaultVoicePollInterval]; negative disables
	// polling.
	VoicePollInterval time.Duration `yaml:"voice_poll_interval" toml:"voice_poll_interval"`
}

// ProviderEntry is the configuration for a single speech provider.
type ProviderEntry struct {
	// Name is the registered provider name (e.g., "espeak", "elevenlabs").
	Name string `yaml:"name" toml:"name"`

	// APIKey is the authentication credential for cloud providers.
	APIKey string `yaml:"api_key" toml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url" toml:"base_url"`

	// Model selects a specific model variant.
	Model string `yaml:"model" toml:"model"`

	// Options holds provider-specific settings (e.g., "binary", "language").
	Options map[string]any `yaml:"options" toml:"options"`
}

// Option returns the string value of a provider option, or "" when unset
// or not a string.
func (p ProviderEntry) Option(key string) string {
	s, _ := p.Options[key].(string)
	return s
}

// BehaviourConfig tunes the toy's randomness and timing.
type BehaviourConfig struct {
	// VoiceRetryDelay is the delay before the voice list is read a second
	// time after startup.
	VoiceRetryDelay time.Duration `yaml:"voice_retry_delay" toml:"voice_retry_delay"`

	// OutburstDelay is how long after a primary utterance an outburst plays.
	OutburstDelay time.Duration `yaml:"outburst_delay" toml:"outburst_delay"`

	// OutburstProbability is the chance an emotional keystroke triggers an
	// outburst. Nil selects [DefaultOutburstProbability].
	OutburstProbability *float64 `yaml:"outburst_probability" toml:"outburst_probability"`

	// RandomEmotionProbability is the chance an unmatched keystroke gets a
	// random emotion. Nil selects [DefaultRandomEmotionProbability].
	RandomEmotionProbability *float64 `yaml:"random_emotion_probability" toml:"random_emotion_probability"`

	// Seed fixes the random source. Zero seeds from the clock.
	Seed uint64 `yaml:"seed" toml:"seed"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Speech.VoicePollInterval == 0 {
		c.Speech.VoicePollInterval = DefaultVoicePollInterval
	}
	if c.Behaviour.VoiceRetryDelay == 0 {
		c.Behaviour.VoiceRetryDelay = DefaultVoiceRetryDelay
	}
	if c.Behaviour.OutburstDelay == 0 {
		c.Behaviour.OutburstDelay = DefaultOutburstDelay
	}
	if c.Behaviour.OutburstProbability == nil {
		p := DefaultOutburstProbability
		c.Behaviour.OutburstProbability = &p
	}
	if c.Behaviour.RandomEmotionProbability == nil {
		p := DefaultRandomEmotionProbability
		c.Behaviour.RandomEmotionProbability = &p
	}
}

// HTTPEnabled reports whether the HTTP server should run.
func (s ServerConfig) HTTPEnabled() bool {
	return s.ListenAddr != "" && s.ListenAddr != "off"
}
