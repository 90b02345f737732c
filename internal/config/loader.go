package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/antzucaro/matchr"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in speech provider names. Used by
// [Validate] to warn about unrecognised names.
var ValidProviderNames = []string{"espeak", "say", "elevenlabs", "coqui", "nop"}

// suggestThreshold is the minimum Jaro-Winkler similarity for a known name
// to be offered as a correction.
const suggestThreshold = 0.75

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format by file extension. Anything other than
// ".toml" is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads the configuration file at path and returns a validated
// [Config] with defaults applied. The syntax follows the file extension.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := Decode(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	return Decode(r, FormatYAML)
}

// Decode reads a config in the given format, applies defaults and
// validates the result. Unknown keys are rejected in both formats.
func Decode(r io.Reader, format Format) (*Config, error) {
	cfg := &Config{}
	switch format {
	case FormatTOML:
		md, err := toml.NewDecoder(r).Decode(cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: decode toml: unknown keys: %s", strings.Join(keys, ", "))
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported format %q", format)
	}

	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Speech
	validateProviderName("speech.provider", cfg.Speech.Provider.Name)
	seen := map[string]string{}
	if cfg.Speech.Provider.Name != "" {
		seen[cfg.Speech.Provider.Name] = "speech.provider"
	}
	for i, fb := range cfg.Speech.Fallbacks {
		prefix := fmt.Sprintf("speech.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[fb.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of %s", prefix, fb.Name, prev))
			continue
		}
		seen[fb.Name] = prefix
		validateProviderName(prefix, fb.Name)
	}
	for _, entry := range append([]ProviderEntry{cfg.Speech.Provider}, cfg.Speech.Fallbacks...) {
		if entry.Name == "elevenlabs" && entry.APIKey == "" {
			slog.Warn("elevenlabs provider has no api_key; it will be unavailable")
		}
		if entry.Name == "coqui" && entry.BaseURL == "" {
			slog.Warn("coqui provider has no base_url; it will be unavailable")
		}
	}

	// Behaviour
	b := cfg.Behaviour
	if b.VoiceRetryDelay < 0 {
		errs = append(errs, fmt.Errorf("behaviour.voice_retry_delay %s must not be negative", b.VoiceRetryDelay))
	}
	if b.OutburstDelay < 0 {
		errs = append(errs, fmt.Errorf("behaviour.outburst_delay %s must not be negative", b.OutburstDelay))
	}
	if p := b.OutburstProbability; p != nil && (*p < 0 || *p > 1) {
		errs = append(errs, fmt.Errorf("behaviour.outburst_probability %.2f is out of range [0, 1]", *p))
	}
	if p := b.RandomEmotionProbability; p != nil && (*p < 0 || *p > 1) {
		errs = append(errs, fmt.Errorf("behaviour.random_emotion_probability %.2f is out of range [0, 1]", *p))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not one of
// [ValidProviderNames], suggesting the closest known name when there is one.
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	attrs := []any{"field", field, "name", name, "known", ValidProviderNames}
	if s := Suggest(name); s != "" {
		attrs = append(attrs, "did_you_mean", s)
	}
	slog.Warn("unknown speech provider name; may be a typo or third-party provider", attrs...)
}

// Suggest returns the known provider name most similar to name, or "" when
// none is similar enough.
func Suggest(name string) string {
	best, bestScore := "", suggestThreshold
	for _, known := range ValidProviderNames {
		if score := matchr.JaroWinkler(strings.ToLower(name), known, false); score >= bestScore {
			best, bestScore = known, score
		}
	}
	return best
}
