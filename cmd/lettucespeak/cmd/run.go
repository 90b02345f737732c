package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lettucespeak/internal/app"
	"github.com/MrWong99/lettucespeak/internal/config"
	"github.com/MrWong99/lettucespeak/internal/observe"
	"github.com/MrWong99/lettucespeak/internal/tui"
)

const shutdownTimeout = 15 * time.Second

var headless bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the typing screen",
	Long: `Start LettuceSpeak. Every letter you type is spoken.

Keys:
  a-z       - Speak the letter
  Backspace - "NOPE!"
  Ctrl+T    - Speak a test phrase
  Esc       - Quit

With --headless no typing screen is shown; keystrokes can still be
observed on the /hints WebSocket and the process runs until interrupted.`,
	RunE: runRun,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, runCmd} {
		c.Flags().BoolVar(&headless, "headless", false, "run without the typing screen")
	}
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, cfgPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	interactive := !headless
	logOut, closeLog, err := logOutput(cfg, interactive)
	if err != nil {
		return err
	}
	defer closeLog()
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(logOut, levelVar))

	slog.Info("lettucespeak starting",
		"config", cfgPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: Version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Speech providers ──────────────────────────────────────────────────────
	out := &audioOutput{}
	defer func() {
		if err := out.Close(); err != nil {
			slog.Warn("audio output close error", "err", err)
		}
	}()
	stack, err := buildSpeech(cfg, newRegistry(out), metrics)
	if err != nil {
		return err
	}

	application, err := app.New(cfg, stack.platform,
		app.WithMetrics(metrics),
		app.WithMetricsHandler(telemetry.Handler()),
		app.WithHealthCheckers(stack.checkers()...),
		app.WithLogLevel(levelVar),
	)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if cfgPath != "" {
		watcher, err := config.NewWatcher(cfgPath)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			go watcher.Watch(ctx, func(c config.Change) {
				application.ApplyChange(ctx, c)
			})
		}
	}

	if !interactive {
		printStartupSummary(cmd.ErrOrStderr(), cfg, cfgPath, stack.names())
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	runErr := serve(ctx, application, interactive)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		if runErr == nil {
			runErr = err
		}
	}
	slog.Info("goodbye")
	return runErr
}

// serve runs the application, plus the typing screen when interactive, until
// ctx is cancelled or the user quits.
func serve(ctx context.Context, application *app.App, interactive bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(ctx) })

	if interactive {
		sub, unsubscribe := application.Hints().Subscribe()
		g.Go(func() error {
			defer cancel()
			defer unsubscribe()

			p := tea.NewProgram(tui.New(ctx, application, sub), tea.WithAltScreen())
			go func() {
				<-ctx.Done()
				p.Quit()
			}()
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("typing screen: %w", err)
			}
			return nil
		})
	} else {
		slog.Info("ready, press Ctrl+C to shut down")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
