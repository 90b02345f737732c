package coqui

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/lettucespeak/pkg/playback"
	"github.com/MrWong99/lettucespeak/pkg/speech"
)

// captureSink records every buffer it is asked to play.
type captureSink struct {
	mu     sync.Mutex
	played [][]byte
	format playback.Format
}

func (c *captureSink) Play(_ context.Context, pcm []byte, f playback.Format) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.played = append(c.played, append([]byte(nil), pcm...))
	c.format = f
	return nil
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
		return nil
	}
}

func newTestPlatform(t *testing.T, h http.Handler, sink playback.Sink, opts ...Option) *Platform {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := New(srv.URL+"/", sink, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestVoices(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantNames []string
		wantIDs   []string
	}{
		{
			name:      "multi-speaker sorted",
			body:      `{"model_name":"vctk/vits","language":"en","speakers":["p243","p225"]}`,
			wantNames: []string{"p225", "p243"},
			wantIDs:   []string{"p225", "p243"},
		},
		{
			name:      "single speaker",
			body:      `{"model_name":"ljspeech/tacotron2-DDC","language":"en"}`,
			wantNames: []string{"ljspeech/tacotron2-DDC"},
			wantIDs:   []string{""},
		},
		{
			name:      "unnamed single speaker",
			body:      `{}`,
			wantNames: []string{"default"},
			wantIDs:   []string{""},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/details" {
					t.Errorf("path = %q, want /details", r.URL.Path)
				}
				_, _ = w.Write([]byte(tc.body))
			})
			p := newTestPlatform(t, h, &captureSink{})

			voices, err := p.Voices(context.Background())
			if err != nil {
				t.Fatalf("Voices: %v", err)
			}
			if len(voices) != len(tc.wantNames) {
				t.Fatalf("got %d voices, want %d", len(voices), len(tc.wantNames))
			}
			for i, v := range voices {
				if v.Name != tc.wantNames[i] || v.ID != tc.wantIDs[i] {
					t.Errorf("voice %d = %q/%q, want %q/%q", i, v.ID, v.Name, tc.wantIDs[i], tc.wantNames[i])
				}
				if v.Provider != "coqui" {
					t.Errorf("voice %d provider = %q", i, v.Provider)
				}
			}
		})
	}
}

func TestVoices_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, "", "status 500"},
		{"bad json", http.StatusOK, "{", "decode"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			p := newTestPlatform(t, h, &captureSink{})
			if _, err := p.Voices(context.Background()); err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestSpeak_PlaysDecodedWAV(t *testing.T) {
	pcm := []byte{10, 0, 20, 0, 30, 0, 40, 0}
	format := playback.Format{SampleRate: 22050, Channels: 1}

	queries := make(chan string, 1)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" {
			t.Errorf("path = %q, want /api/tts", r.URL.Path)
		}
		queries <- r.URL.RawQuery
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(playback.EncodeWAV(pcm, format))
	})
	sink := &captureSink{}
	p := newTestPlatform(t, h, sink, WithLanguage("en"))

	done := make(chan error, 1)
	u := speech.Utterance{
		ID:     "u1",
		Text:   "NOPE!",
		Voice:  &speech.Voice{ID: "p225"},
		Params: speech.Params{Rate: 1, Pitch: 1, Volume: 0.5},
	}
	if err := p.Speak(context.Background(), u, func(err error) { done <- err }); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("done err = %v", err)
	}

	gotQuery := <-queries
	for _, want := range []string{"text=NOPE%21", "speaker_id=p225", "language_id=en"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.played) != 1 {
		t.Fatalf("played %d buffers, want 1", len(sink.played))
	}
	if sink.format != format {
		t.Errorf("format = %+v, want %+v", sink.format, format)
	}
	want := []byte{5, 0, 10, 0, 15, 0, 20, 0}
	if string(sink.played[0]) != string(want) {
		t.Errorf("pcm = %v, want %v (half volume)", sink.played[0], want)
	}
}

func TestSpeak_SingleSpeakerSendsNoSpeakerID(t *testing.T) {
	queries := make(chan string, 1)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		_, _ = w.Write(playback.EncodeWAV([]byte{1, 0}, playback.Format{SampleRate: 16000, Channels: 1}))
	})
	p := newTestPlatform(t, h, &captureSink{})

	done := make(chan error, 1)
	_ = p.Speak(context.Background(), speech.Utterance{ID: "u1", Text: "A", Voice: &speech.Voice{Name: "default"}, Params: speech.Params{Rate: 1, Pitch: 1, Volume: 1}}, func(err error) { done <- err })
	if err := waitDone(t, done); err != nil {
		t.Fatalf("done err = %v", err)
	}
	if gotQuery := <-queries; strings.Contains(gotQuery, "speaker_id") {
		t.Errorf("query %q should not carry speaker_id", gotQuery)
	}
}

func TestSpeak_BadWAV(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not audio"))
	})
	p := newTestPlatform(t, h, &captureSink{})

	done := make(chan error, 1)
	_ = p.Speak(context.Background(), speech.Utterance{ID: "u1", Text: "A"}, func(err error) { done <- err })
	if err := waitDone(t, done); err == nil || !strings.Contains(err.Error(), "coqui") {
		t.Errorf("done err = %v, want WAV error", err)
	}
}

func TestCancelAll_AbortsRequest(t *testing.T) {
	entered := make(chan struct{}, 1)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-r.Context().Done()
	})
	p := newTestPlatform(t, h, &captureSink{})

	done := make(chan error, 1)
	_ = p.Speak(context.Background(), speech.Utterance{ID: "u1", Text: "A"}, func(err error) { done <- err })
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the server")
	}

	p.CancelAll()
	if err := waitDone(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("done err = %v, want context.Canceled", err)
	}
}

func TestNew_EmptyURL(t *testing.T) {
	if _, err := New("", playback.Silent{}); !errors.Is(err, speech.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}
