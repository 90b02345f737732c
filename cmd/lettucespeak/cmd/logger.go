package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MrWong99/lettucespeak/internal/config"
)

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// logOutput picks the log destination. While the typing screen owns the
// terminal, logs go to the configured file or nowhere.
func logOutput(cfg *config.Config, interactive bool) (io.Writer, func() error, error) {
	if !interactive {
		return os.Stderr, func() error { return nil }, nil
	}
	if cfg.Server.LogFile == "" {
		return io.Discard, func() error { return nil }, nil
	}
	f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, f.Close, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, configPath string, providers []string) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║      LettuceSpeak — startup summary   ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Config", orDefault(configPath, "(defaults)"))
	printRow(w, "Speech", orDefault(strings.Join(providers, " → "), "(silent)"))
	printRow(w, "Listen addr", cfg.Server.ListenAddr)
	printRow(w, "Log level", string(cfg.Server.LogLevel))
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s   : %-19s ║\n", label, value)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
