// Package elevenlabs provides a speech.Platform backed by the ElevenLabs
// streaming WebSocket API.
//
// Voices are listed over HTTP. Each utterance opens one WebSocket, streams
// the text, collects the returned PCM and plays it through a
// [playback.Sink]. Rate, pitch and volume are applied locally with
// [playback.Shape].
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/lettucespeak/pkg/playback"
	"github.com/MrWong99/lettucespeak/pkg/speech"
)

const (
	defaultAPIURL    = "https://api.elevenlabs.io"
	defaultWSURL     = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"

	// defaultVoiceID is used when an utterance carries no voice.
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
)

var _ speech.Platform = (*Platform)(nil)

// Option is a functional option for configuring the Platform.
type Option func(*Platform)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Platform) { p.model = model }
}

// WithOutputFormat sets the PCM output format (e.g., "pcm_16000", "pcm_24000").
func WithOutputFormat(format string) Option {
	return func(p *Platform) { p.outputFormat = format }
}

// WithDefaultVoice sets the voice used for utterances without one.
func WithDefaultVoice(id string) Option {
	return func(p *Platform) { p.defaultVoice = id }
}

// WithBaseURLs overrides the HTTP and WebSocket API roots.
func WithBaseURLs(apiURL, wsURL string) Option {
	return func(p *Platform) {
		p.apiURL = strings.TrimRight(apiURL, "/")
		p.wsURL = strings.TrimRight(wsURL, "/")
	}
}

// WithHTTPClient sets the client used for voice listing.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Platform) { p.httpClient = c }
}

// Platform implements speech.Platform backed by the ElevenLabs API.
type Platform struct {
	apiKey       string
	model        string
	outputFormat string
	defaultVoice string
	apiURL       string
	wsURL        string
	httpClient   *http.Client

	format playback.Format
	sink   playback.Sink
	queue  *playback.Queue
}

// New creates an ElevenLabs platform playing through sink. It fails with
// [speech.ErrUnavailable] when apiKey is empty.
func New(apiKey string, sink playback.Sink, opts ...Option) (*Platform, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: api key must not be empty: %w", speech.ErrUnavailable)
	}
	if sink == nil {
		return nil, errors.New("elevenlabs: sink must not be nil")
	}
	p := &Platform{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		defaultVoice: defaultVoiceID,
		apiURL:       defaultAPIURL,
		wsURL:        defaultWSURL,
		httpClient:   &http.Client{},
		sink:         sink,
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := sampleRate(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.format = playback.Format{SampleRate: rate, Channels: 1}
	p.queue = playback.NewQueue()
	return p, nil
}

// sampleRate extracts the rate from a "pcm_<rate>" output format.
func sampleRate(format string) (int, error) {
	s, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw PCM", format)
	}
	rate, err := strconv.Atoi(s)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid output format %q", format)
	}
	return rate, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text                 string         `json:"text"`
	VoiceSettings        *voiceSettings `json:"voice_settings,omitempty"`
	TryTriggerGeneration bool           `json:"try_trigger_generation,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Speak queues synthesis and playback of u.
func (p *Platform) Speak(ctx context.Context, u speech.Utterance, done func(error)) error {
	return p.queue.Enqueue(ctx, playback.Job{
		ID: u.ID,
		Run: func(ctx context.Context) error {
			pcm, err := p.synthesize(ctx, u)
			if err != nil {
				return err
			}
			return p.sink.Play(ctx, playback.Shape(pcm, p.format, u.Params), p.format)
		},
		Done: done,
	})
}

// CancelAll aborts the running synthesis or playback and drops queued
// utterances.
func (p *Platform) CancelAll() {
	p.queue.Interrupt()
}

// Close cancels everything and stops the queue.
func (p *Platform) Close() error {
	return p.queue.Close()
}

// synthesize streams u.Text over one WebSocket session and returns the
// concatenated PCM.
func (p *Platform) synthesize(ctx context.Context, u speech.Utterance) ([]byte, error) {
	voiceID := p.defaultVoice
	if u.Voice != nil && u.Voice.ID != "" {
		voiceID = u.Voice.ID
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voiceID), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()

	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	msgs := []any{
		// ElevenLabs requires a non-empty first text value.
		boiMessage{Text: " ", VoiceSettings: vs, XiAPIKey: p.apiKey, OutputFormat: p.outputFormat},
		textMessage{Text: u.Text + " ", TryTriggerGeneration: true},
		// An empty text closes the input and flushes the remaining audio.
		textMessage{Text: ""},
	}
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: encode message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("elevenlabs: server error: %s", resp.Error)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")
	return pcm, nil
}

// streamURL builds the stream-input WebSocket URL for a voice.
func (p *Platform) streamURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	return p.wsURL + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

// ---- Voices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// Voices returns all voices available for the configured API key.
func (p *Platform) Voices(ctx context.Context) ([]speech.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return toVoices(vr), nil
}

// toVoices maps API voices onto speech voices. Labels become metadata; the
// "language" label, when present, becomes the voice language.
func toVoices(vr voicesResponse) []speech.Voice {
	voices := make([]speech.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, speech.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Language: v.Labels["language"],
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return voices
}
