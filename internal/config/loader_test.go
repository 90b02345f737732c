package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/lettucespeak/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name: "bad log level",
			yaml: `
server:
  log_level: bananas
`,
			wantErr: []string{"server.log_level"},
		},
		{
			name: "fallback without name",
			yaml: `
speech:
  fallbacks:
    - model: x
`,
			wantErr: []string{"speech.fallbacks[0].name is required"},
		},
		{
			name: "duplicate provider",
			yaml: `
speech:
  provider:
    name: espeak
  fallbacks:
    - name: say
    - name: espeak
`,
			wantErr: []string{"speech.fallbacks[1].name", "duplicate of speech.provider"},
		},
		{
			name: "probabilities out of range",
			yaml: `
behaviour:
  outburst_probability: 1.5
  random_emotion_probability: -0.1
`,
			wantErr: []string{"behaviour.outburst_probability", "behaviour.random_emotion_probability"},
		},
		{
			name: "negative delays",
			yaml: `
behaviour:
  voice_retry_delay: -1s
  outburst_delay: -300ms
`,
			wantErr: []string{"behaviour.voice_retry_delay", "behaviour.outburst_delay"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
behaviour:
  outburst_probability: 2
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error")
	}
	if n := strings.Count(err.Error(), "\n") + 1; n != 2 {
		t.Errorf("expected 2 joined errors, got %d: %v", n, err)
	}
}

func TestValidate_UnknownProviderIsOnlyAWarning(t *testing.T) {
	t.Parallel()
	yaml := `
speech:
  provider:
    name: espek
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unknown provider names must not fail validation: %v", err)
	}
	if cfg.Speech.Provider.Name != "espek" {
		t.Errorf("provider name: got %q", cfg.Speech.Provider.Name)
	}
}

func TestLoadFromReader_UnknownFieldYAML(t *testing.T) {
	t.Parallel()
	yaml := `
speech:
  voice: Samantha
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "voice") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestDecode_UnknownKeyTOML(t *testing.T) {
	t.Parallel()
	toml := `
[speech]
voice = "Samantha"
`
	_, err := config.Decode(strings.NewReader(toml), config.FormatTOML)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "speech.voice") {
		t.Errorf("error should name the unknown key, got: %v", err)
	}
}

func TestDecode_MalformedTOML(t *testing.T) {
	t.Parallel()
	if _, err := config.Decode(strings.NewReader("[server\nlog_level ="), config.FormatTOML); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecode_UnsupportedFormat(t *testing.T) {
	t.Parallel()
	if _, err := config.Decode(strings.NewReader(""), config.Format("ini")); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestFormatFromPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want config.Format
	}{
		{"lettucespeak.toml", config.FormatTOML},
		{"/etc/LETTUCESPEAK.TOML", config.FormatTOML},
		{"lettucespeak.yaml", config.FormatYAML},
		{"lettucespeak.yml", config.FormatYAML},
		{"lettucespeak", config.FormatYAML},
	}
	for _, tc := range tests {
		if got := config.FormatFromPath(tc.path); got != tc.want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"espek", "espeak"},
		{"espeak-ng", "espeak"},
		{"ElevenLabs", "elevenlabs"},
		{"eleven", "elevenlabs"},
		{"coquii", "coqui"},
		{"polly", ""},
	}
	for _, tc := range tests {
		if got := config.Suggest(tc.in); got != tc.want {
			t.Errorf("Suggest(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
