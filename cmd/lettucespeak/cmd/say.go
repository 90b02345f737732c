package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrWong99/lettucespeak/internal/emotion"
	"github.com/MrWong99/lettucespeak/internal/observe"
	"github.com/MrWong99/lettucespeak/internal/voice"
	"github.com/MrWong99/lettucespeak/pkg/speech"
)

var (
	sayEmotion string
	sayVoice   string
	sayOut     string
)

var sayCmd = &cobra.Command{
	Use:   "say TEXT",
	Short: "Speak a phrase once",
	Long: `Speak TEXT with the given emotion and exit. Without --voice, the
voice is drawn from the category of the first letter.

With --out the audio is written to a WAV file instead of the speakers.
Only synthesizers that produce audio data (elevenlabs, coqui) can do that.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSay,
}

func init() {
	sayCmd.Flags().StringVarP(&sayEmotion, "emotion", "e", "neutral", "neutral, angry, happy, sad or excited")
	sayCmd.Flags().StringVar(&sayVoice, "voice", "", "voice name or ID")
	sayCmd.Flags().StringVarP(&sayOut, "out", "o", "", "write a WAV file instead of playing")
	rootCmd.AddCommand(sayCmd)
}

func runSay(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return errors.New("nothing to say")
	}
	label, ok := emotion.ParseLabel(sayEmotion)
	if !ok {
		return fmt.Errorf("unknown emotion %q", sayEmotion)
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupCLILogger(cfg)

	out := &audioOutput{}
	if sayOut != "" {
		f, err := os.Create(sayOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", sayOut, err)
		}
		defer f.Close()
		out.file = f
	}
	defer out.Close()

	stack, err := buildSpeech(cfg, newRegistry(out), observe.DefaultMetrics())
	if err != nil {
		return err
	}
	if stack.failover == nil {
		return errors.New("no speech provider available")
	}
	defer stack.failover.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	catalog := voice.NewCatalog(stack.platform, voice.WithRetryDelay(0))
	catalog.Load(ctx)
	v, err := chooseVoice(catalog.Snapshot(), sayVoice, text)
	if err != nil {
		return err
	}

	return speakAndWait(ctx, stack.platform, speech.Utterance{
		ID:     uuid.NewString(),
		Text:   text,
		Voice:  v,
		Params: emotion.Resolve(label),
		Kind:   speech.KindPrimary,
	})
}

// chooseVoice finds the voice named (or with ID) want, or, when want is
// empty, the first voice of text's category. Nil means the platform default.
func chooseVoice(snap *voice.Snapshot, want, text string) (*speech.Voice, error) {
	if want != "" {
		for _, v := range snap.Voices {
			if strings.EqualFold(v.Name, want) || v.ID == want {
				return &v, nil
			}
		}
		return nil, fmt.Errorf("voice %q not found; see lettucespeak voices", want)
	}
	pool := snap.Table.Get(voice.LetterCategory(text[:1]))
	if len(pool) == 0 {
		pool = snap.Voices
	}
	if len(pool) == 0 {
		return nil, nil
	}
	v := pool[0]
	return &v, nil
}

// speakAndWait issues u and blocks until it finishes or ctx ends.
func speakAndWait(ctx context.Context, p speech.Platform, u speech.Utterance) error {
	done := make(chan error, 1)
	if err := p.Speak(ctx, u, func(err error) { done <- err }); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("speak: %w", err)
		}
		return nil
	case <-ctx.Done():
		p.CancelAll()
		return ctx.Err()
	}
}
