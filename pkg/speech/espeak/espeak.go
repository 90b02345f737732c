// Package espeak provides a speech.Platform backed by the espeak-ng command
// line synthesizer.
//
// Every utterance runs one espeak-ng process that plays straight to the
// default audio device. Utterances are serialised through a
// [playback.Queue]; CancelAll kills the running process and drops the rest.
//
// espeak-ng must be installed and on PATH (or configured with [WithBinary]).
package espeak

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/lettucespeak/pkg/playback"
	"github.com/MrWong99/lettucespeak/pkg/speech"
)

const (
	// DefaultBinary is the executable looked up on PATH.
	DefaultBinary = "espeak-ng"

	// defaultWPM is espeak-ng's default speed in words per minute.
	defaultWPM = 175
	minWPM     = 80
	maxWPM     = 500

	// defaultPitch is espeak-ng's default pitch on its 0-99 scale.
	defaultPitch = 50

	// defaultAmplitude is espeak-ng's default amplitude on its 0-200 scale.
	defaultAmplitude = 100
)

var _ speech.Platform = (*Platform)(nil)

// Option is a functional option for configuring the Platform.
type Option func(*Platform)

// WithBinary sets the espeak-ng executable name or path.
func WithBinary(path string) Option {
	return func(p *Platform) { p.binary = path }
}

// WithRunner replaces the process runner. Intended for tests.
func WithRunner(r speech.Runner) Option {
	return func(p *Platform) { p.run = r }
}

// Platform implements speech.Platform on top of espeak-ng.
type Platform struct {
	binary string
	run    speech.Runner
	queue  *playback.Queue
}

// New returns an espeak-ng platform. It fails with [speech.ErrUnavailable]
// when the binary cannot be found.
func New(opts ...Option) (*Platform, error) {
	p := &Platform{binary: DefaultBinary, run: speech.RunCommand}
	for _, o := range opts {
		o(p)
	}
	if _, err := exec.LookPath(p.binary); err != nil {
		return nil, fmt.Errorf("espeak: %s not found: %w", p.binary, speech.ErrUnavailable)
	}
	p.queue = playback.NewQueue()
	return p, nil
}

// Voices runs "espeak-ng --voices" and parses the table it prints.
func (p *Platform) Voices(ctx context.Context) ([]speech.Voice, error) {
	out, err := p.run(ctx, p.binary, "--voices")
	if err != nil {
		return nil, fmt.Errorf("espeak: list voices: %w", err)
	}
	return parseVoices(out), nil
}

// Speak queues one espeak-ng invocation for u.
func (p *Platform) Speak(ctx context.Context, u speech.Utterance, done func(error)) error {
	args := buildArgs(u)
	return p.queue.Enqueue(ctx, playback.Job{
		ID: u.ID,
		Run: func(ctx context.Context) error {
			if _, err := p.run(ctx, p.binary, args...); err != nil {
				return fmt.Errorf("espeak: speak %q: %w", u.Text, err)
			}
			return nil
		},
		Done: done,
	})
}

// CancelAll kills the running espeak-ng process and drops queued utterances.
func (p *Platform) CancelAll() {
	p.queue.Interrupt()
}

// Close cancels everything and stops the queue.
func (p *Platform) Close() error {
	return p.queue.Close()
}

// buildArgs maps an utterance onto espeak-ng flags. Text is passed after
// "--" so that input starting with a dash is never read as a flag.
func buildArgs(u speech.Utterance) []string {
	args := make([]string, 0, 10)
	if u.Voice != nil && u.Voice.ID != "" {
		args = append(args, "-v", u.Voice.ID)
	}
	wpm := clampInt(int(math.Round(defaultWPM*u.Params.Rate)), minWPM, maxWPM)
	pitch := clampInt(int(math.Round(defaultPitch*u.Params.Pitch)), 0, 99)
	amp := clampInt(int(math.Round(defaultAmplitude*u.Params.Volume)), 0, 200)
	args = append(args,
		"-s", strconv.Itoa(wpm),
		"-p", strconv.Itoa(pitch),
		"-a", strconv.Itoa(amp),
		"--", u.Text,
	)
	return args
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// parseVoices reads the output of "espeak-ng --voices":
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  af              --/M      Afrikaans          gmw/af
//	 5  en-gb           --/M      English_(Great_Britain) gmw/en
//
// The language column doubles as the voice ID because "-v" accepts it.
// Underscores in voice names stand for spaces.
func parseVoices(out []byte) []speech.Voice {
	var voices []speech.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		v := speech.Voice{
			ID:       fields[1],
			Name:     strings.ReplaceAll(fields[3], "_", " "),
			Language: fields[1],
			Provider: "espeak",
			Metadata: map[string]string{},
		}
		if _, gender, ok := strings.Cut(fields[2], "/"); ok {
			switch gender {
			case "M":
				v.Metadata["gender"] = "male"
			case "F":
				v.Metadata["gender"] = "female"
			}
		}
		if len(fields) > 4 {
			v.Metadata["file"] = fields[4]
		}
		voices = append(voices, v)
	}
	return voices
}
