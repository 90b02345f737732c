package say

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/lettucespeak/pkg/playback"
	"github.com/MrWong99/lettucespeak/pkg/speech"
)

const voicesOutput = `Alex                en_US    # Most people recognize me by my voice.
Bad News            en_US    # The light you see at the end of the tunnel is the headlamp of a fast approaching train.
Eddy (English (UK)) en_GB    # Hello! My name is Eddy.
Fiona               en-scotland # Hello, my name is Fiona.
Junior              en_US    # Hello, my name is Junior.

not a voice line
`

func TestParseVoices(t *testing.T) {
	voices := parseVoices([]byte(voicesOutput))

	want := []struct{ name, lang string }{
		{"Alex", "en_US"},
		{"Bad News", "en_US"},
		{"Eddy (English (UK))", "en_GB"},
		{"Fiona", "en-scotland"},
		{"Junior", "en_US"},
	}
	if len(voices) != len(want) {
		t.Fatalf("got %d voices, want %d: %+v", len(voices), len(want), voices)
	}
	for i, w := range want {
		v := voices[i]
		if v.Name != w.name || v.ID != w.name {
			t.Errorf("voice %d: Name/ID = %q/%q, want %q", i, v.Name, v.ID, w.name)
		}
		if v.Language != w.lang {
			t.Errorf("voice %d: Language = %q, want %q", i, v.Language, w.lang)
		}
		if v.Provider != "say" {
			t.Errorf("voice %d: Provider = %q, want say", i, v.Provider)
		}
	}
	if got := voices[2].Metadata["sample"]; got != "Hello! My name is Eddy." {
		t.Errorf("sample = %q", got)
	}
}

func TestLooksLikeLocale(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"en_US", true},
		{"de-DE", true},
		{"en-scotland", true},
		{"line", false},
		{"EN_US", false},
		{"e_US", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := looksLikeLocale(tc.in); got != tc.want {
			t.Errorf("looksLikeLocale(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		u    speech.Utterance
		want []string
	}{
		{
			name: "default delivery",
			u:    speech.Utterance{Text: "A", Params: speech.Params{Rate: 1, Pitch: 1, Volume: 1}},
			want: []string{"-r", "175", "[[pbas +0]][[volm 1.00]]A"},
		},
		{
			name: "sad voice",
			u: speech.Utterance{
				Text:   "Q",
				Voice:  &speech.Voice{ID: "Bad News"},
				Params: speech.Params{Rate: 0.8, Pitch: 0.8, Volume: 0.6},
			},
			want: []string{"-v", "Bad News", "-r", "140", "[[pbas -2]][[volm 0.60]]Q"},
		},
		{
			name: "outburst",
			u:    speech.Utterance{Text: "-", Params: speech.Params{Rate: 2, Pitch: 2, Volume: 0.8}},
			want: []string{"-r", "350", "[[pbas +12]][[volm 0.80]]-"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildArgs(tc.u); !slices.Equal(got, tc.want) {
				t.Errorf("buildArgs = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSpeakAndCancel(t *testing.T) {
	started := make(chan []string, 4)
	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		started <- append([]string{name}, args...)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p := &Platform{run: run, queue: playback.NewQueue()}
	defer p.Close()

	done := make(chan error, 1)
	if err := p.Speak(context.Background(), speech.Utterance{ID: "u1", Text: "A", Params: speech.Params{Rate: 1, Pitch: 1, Volume: 1}}, func(err error) { done <- err }); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	select {
	case cmd := <-started:
		if cmd[0] != "say" {
			t.Errorf("command = %v, want say", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("say never started")
	}

	p.CancelAll()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("done err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestVoices_Error(t *testing.T) {
	run := func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("boom")
	}
	p := &Platform{run: run, queue: playback.NewQueue()}
	defer p.Close()

	if _, err := p.Voices(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
