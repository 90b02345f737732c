// Package cmd holds the lettucespeak command tree.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/MrWong99/lettucespeak/internal/config"
)

// defaultConfigPath is read when --config is not given. It may be absent.
const defaultConfigPath = "lettucespeak.yaml"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lettucespeak",
	Short: "A typing toy that speaks every letter",
	Long: `LettuceSpeak speaks every letter you type in a voice picked for that
letter. Typing patterns like "grr" or "haha" change the mood, and
emotional keystrokes sometimes earn an extra outburst.

Running without a subcommand starts the interactive typing screen.`,
	SilenceUsage: true,
	RunE:         runRun,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file (YAML, or TOML by .toml extension)")
}

// loadConfig reads the config file. A missing default file yields the
// built-in defaults; a missing file named explicitly is an error.
func loadConfig(cmd *cobra.Command) (cfg *config.Config, path string, err error) {
	cfg, err = config.Load(cfgFile)
	switch {
	case err == nil:
		return cfg, cfgFile, nil
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = &config.Config{}
		cfg.ApplyDefaults()
		return cfg, "", nil
	default:
		return nil, "", fmt.Errorf("load config: %w", err)
	}
}
