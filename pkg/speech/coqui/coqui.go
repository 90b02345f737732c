// Package coqui provides a speech.Platform backed by a Coqui TTS server
// (the standard "tts-server" HTTP API).
//
// Voices come from GET /details: one voice per speaker for multi-speaker
// models, or a single voice named after the model. Each utterance is one
// GET /api/tts request whose WAV response is decoded, shaped with the
// utterance's params and played through a [playback.Sink].
package coqui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/lettucespeak/pkg/playback"
	"github.com/MrWong99/lettucespeak/pkg/speech"
)

const (
	apiTTSEndpoint  = "/api/tts"
	detailsEndpoint = "/details"

	defaultTimeout = 30 * time.Second
)

var _ speech.Platform = (*Platform)(nil)

// Option is a functional option for configuring the Platform.
type Option func(*Platform)

// WithLanguage sets the language_id sent with every request. Only
// multi-lingual models need it.
func WithLanguage(lang string) Option {
	return func(p *Platform) { p.language = lang }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Platform) { p.httpClient.Timeout = d }
}

// Platform implements speech.Platform backed by a Coqui TTS server.
type Platform struct {
	serverURL  string
	language   string
	httpClient *http.Client

	sink  playback.Sink
	queue *playback.Queue
}

// New creates a Coqui platform for the server at serverURL playing through
// sink.
func New(serverURL string, sink playback.Sink, opts ...Option) (*Platform, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("coqui: server URL must not be empty: %w", speech.ErrUnavailable)
	}
	if sink == nil {
		return nil, errors.New("coqui: sink must not be nil")
	}
	p := &Platform{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		sink:       sink,
	}
	for _, o := range opts {
		o(p)
	}
	p.queue = playback.NewQueue()
	return p, nil
}

// detailsResponse is the response from GET /details.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Voices lists the loaded model's speakers.
func (p *Platform) Voices(ctx context.Context) ([]speech.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+detailsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", detailsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", detailsEndpoint, resp.StatusCode)
	}

	var details detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}
	return toVoices(details), nil
}

// toVoices maps model details onto voices, sorted by speaker name.
func toVoices(d detailsResponse) []speech.Voice {
	if len(d.Speakers) == 0 {
		name := d.ModelName
		if name == "" {
			name = "default"
		}
		return []speech.Voice{{
			Name:     name,
			Language: d.Language,
			Provider: "coqui",
			Metadata: map[string]string{"type": "single-speaker", "model_name": name},
		}}
	}

	speakers := append([]string(nil), d.Speakers...)
	sort.Strings(speakers)
	voices := make([]speech.Voice, 0, len(speakers))
	for _, spk := range speakers {
		voices = append(voices, speech.Voice{
			ID:       spk,
			Name:     spk,
			Language: d.Language,
			Provider: "coqui",
			Metadata: map[string]string{"type": "speaker", "model_name": d.ModelName},
		})
	}
	return voices
}

// Speak queues synthesis and playback of u.
func (p *Platform) Speak(ctx context.Context, u speech.Utterance, done func(error)) error {
	return p.queue.Enqueue(ctx, playback.Job{
		ID: u.ID,
		Run: func(ctx context.Context) error {
			wav, err := p.synthesize(ctx, u)
			if err != nil {
				return err
			}
			return p.sink.Play(ctx, playback.Shape(wav.Data, wav.Format, u.Params), wav.Format)
		},
		Done: done,
	})
}

// CancelAll aborts the running request or playback and drops queued
// utterances.
func (p *Platform) CancelAll() {
	p.queue.Interrupt()
}

// Close cancels everything and stops the queue.
func (p *Platform) Close() error {
	return p.queue.Close()
}

// synthesize performs a single GET /api/tts request and decodes the WAV
// response. Single-speaker voices have no ID and send no speaker_id.
func (p *Platform) synthesize(ctx context.Context, u speech.Utterance) (playback.WAV, error) {
	params := url.Values{}
	params.Set("text", u.Text)
	if u.Voice != nil && u.Voice.ID != "" {
		params.Set("speaker_id", u.Voice.ID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	reqURL := p.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return playback.WAV{}, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return playback.WAV{}, fmt.Errorf("coqui: GET %s: %w", apiTTSEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return playback.WAV{}, fmt.Errorf("coqui: GET %s returned status %d", apiTTSEndpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return playback.WAV{}, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	wav, err := playback.ParseWAV(body)
	if err != nil {
		return playback.WAV{}, fmt.Errorf("coqui: %w", err)
	}
	return wav, nil
}
