// Package say provides a speech.Platform backed by the macOS say command.
//
// Rate is passed with "-r"; pitch and volume are set through the embedded
// speech commands [[pbas]] and [[volm]] at the start of the text. Each
// utterance is one say process, serialised through a [playback.Queue] so
// that CancelAll can kill it.
package say

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/MrWong99/lettucespeak/pkg/playback"
	"github.com/MrWong99/lettucespeak/pkg/speech"
)

const (
	binary = "say"

	// defaultWPM is the rate say uses for most voices.
	defaultWPM = 175

	// semitonesPerPitch maps the pitch multiplier onto a relative [[pbas]]
	// offset: pitch 2 raises the base pitch by this amount.
	semitonesPerPitch = 12
)

var _ speech.Platform = (*Platform)(nil)

// Option is a functional option for configuring the Platform.
type Option func(*Platform)

// WithRunner replaces the process runner. Intended for tests.
func WithRunner(r speech.Runner) Option {
	return func(p *Platform) { p.run = r }
}

// Platform implements speech.Platform on top of macOS say.
type Platform struct {
	run   speech.Runner
	queue *playback.Queue
}

// New returns a say platform. It fails with [speech.ErrUnavailable] on
// anything but macOS or when say is not on PATH.
func New(opts ...Option) (*Platform, error) {
	if runtime.GOOS != "darwin" {
		return nil, fmt.Errorf("say: requires macOS, running on %s: %w", runtime.GOOS, speech.ErrUnavailable)
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("say: %w", speech.ErrUnavailable)
	}
	p := &Platform{run: speech.RunCommand, queue: playback.NewQueue()}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Voices runs "say -v ?" and parses its listing.
func (p *Platform) Voices(ctx context.Context) ([]speech.Voice, error) {
	out, err := p.run(ctx, binary, "-v", "?")
	if err != nil {
		return nil, fmt.Errorf("say: list voices: %w", err)
	}
	return parseVoices(out), nil
}

// Speak queues one say invocation for u.
func (p *Platform) Speak(ctx context.Context, u speech.Utterance, done func(error)) error {
	args := buildArgs(u)
	return p.queue.Enqueue(ctx, playback.Job{
		ID: u.ID,
		Run: func(ctx context.Context) error {
			if _, err := p.run(ctx, binary, args...); err != nil {
				return fmt.Errorf("say: speak %q: %w", u.Text, err)
			}
			return nil
		},
		Done: done,
	})
}

// CancelAll kills the running say process and drops queued utterances.
func (p *Platform) CancelAll() {
	p.queue.Interrupt()
}

// Close cancels everything and stops the queue.
func (p *Platform) Close() error {
	return p.queue.Close()
}

// buildArgs maps an utterance onto say arguments.
func buildArgs(u speech.Utterance) []string {
	args := make([]string, 0, 5)
	if u.Voice != nil && u.Voice.ID != "" {
		args = append(args, "-v", u.Voice.ID)
	}
	wpm := max(int(math.Round(defaultWPM*u.Params.Rate)), 1)
	args = append(args, "-r", strconv.Itoa(wpm))
	return append(args, embed(u.Params)+u.Text)
}

// embed returns the embedded commands for pitch and volume. The result
// always starts with "[[", so the text argument can never look like a flag.
func embed(p speech.Params) string {
	var b strings.Builder
	offset := int(math.Round((p.Pitch - 1) * semitonesPerPitch))
	fmt.Fprintf(&b, "[[pbas %+d]]", offset)
	fmt.Fprintf(&b, "[[volm %s]]", strconv.FormatFloat(p.Volume, 'f', 2, 64))
	return b.String()
}

// parseVoices reads the output of "say -v ?":
//
//	Alex                en_US    # Most people recognize me by my voice.
//	Bad News            en_US    # The light you see at the end of the tunnel...
//	Eddy (English (UK)) en_GB    # Hello! My name is Eddy.
//
// Names may contain spaces and parentheses; the locale is the last field
// before the "#" sample sentence.
func parseVoices(out []byte) []speech.Voice {
	var voices []speech.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line, sample, _ := strings.Cut(sc.Text(), "#")
		line = strings.TrimSpace(line)
		i := strings.LastIndexAny(line, " \t")
		if i < 0 {
			continue
		}
		name := strings.TrimSpace(line[:i])
		locale := line[i+1:]
		if name == "" || !looksLikeLocale(locale) {
			continue
		}
		voices = append(voices, speech.Voice{
			ID:       name,
			Name:     name,
			Language: locale,
			Provider: "say",
			Metadata: map[string]string{"sample": strings.TrimSpace(sample)},
		})
	}
	return voices
}

// looksLikeLocale reports whether s has the shape ll_CC or ll-CC, optionally
// with a longer region such as en-scotland.
func looksLikeLocale(s string) bool {
	if len(s) < 4 || (s[2] != '_' && s[2] != '-') {
		return false
	}
	for _, r := range s[:2] {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
