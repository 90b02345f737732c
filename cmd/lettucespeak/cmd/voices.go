package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/MrWong99/lettucespeak/internal/config"
	"github.com/MrWong99/lettucespeak/internal/observe"
	"github.com/MrWong99/lettucespeak/internal/voice"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the available voices by category",
	Long: `List every voice the configured speech providers offer, grouped into
the male, female and kids categories the letters are spoken in.`,
	Args: cobra.NoArgs,
	RunE: runVoices,
}

func init() {
	rootCmd.AddCommand(voicesCmd)
}

func runVoices(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupCLILogger(cfg)

	out := &audioOutput{}
	defer out.Close()
	stack, err := buildSpeech(cfg, newRegistry(out), observe.DefaultMetrics())
	if err != nil {
		return err
	}
	if stack.failover != nil {
		defer stack.failover.Close()
	}

	catalog := voice.NewCatalog(stack.platform, voice.WithRetryDelay(0))
	catalog.Load(cmd.Context())
	fmt.Fprintln(cmd.OutOrStdout(), renderVoices(catalog.Snapshot()))
	return nil
}

// renderVoices formats a classification as one table row per voice and
// category. A voice may appear under more than one category.
func renderVoices(snap *voice.Snapshot) string {
	if len(snap.Voices) == 0 {
		return "No voices available; utterances use the platform default."
	}

	var rows [][]string
	for _, c := range voice.Categories {
		for _, v := range snap.Table.Get(c) {
			rows = append(rows, []string{c.String(), v.Name, v.Language, v.Provider})
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("CATEGORY", "NAME", "LANGUAGE", "PROVIDER").
		Rows(rows...)

	summary := ""
	for _, c := range voice.Categories {
		summary += fmt.Sprintf("%-7s letters %s\n", c.String()+":", voice.Letters(c))
	}
	return t.String() + "\n" + summary + fmt.Sprintf("%d voices in total", len(snap.Voices))
}

// setupCLILogger logs to stderr for the one-shot commands.
func setupCLILogger(cfg *config.Config) {
	lv := new(slog.LevelVar)
	lv.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(os.Stderr, lv))
}
