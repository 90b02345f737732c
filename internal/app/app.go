// Package app wires the LettuceSpeak subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run drives the event loop and the optional HTTP surface, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithRandom,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lettucespeak/internal/config"
	"github.com/MrWong99/lettucespeak/internal/dispatch"
	"github.com/MrWong99/lettucespeak/internal/emotion"
	"github.com/MrWong99/lettucespeak/internal/health"
	"github.com/MrWong99/lettucespeak/internal/hints"
	"github.com/MrWong99/lettucespeak/internal/observe"
	"github.com/MrWong99/lettucespeak/internal/voice"
	"github.com/MrWong99/lettucespeak/pkg/speech"
)

// shutdownGrace bounds how long Run waits for the HTTP server to drain.
const shutdownGrace = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	platform speech.Platform

	loop       *Loop
	catalog    *voice.Catalog
	dispatcher *dispatch.Dispatcher
	session    *dispatch.Session
	hints      *hints.Broadcaster
	poller     *speech.Poller
	health     *health.Handler

	rng            emotion.Random
	metrics        *observe.Metrics
	metricsHandler http.Handler
	checkers       []health.Checker
	levelVar       *slog.LevelVar

	// listener is set once the HTTP server is listening.
	listenerMu sync.Mutex
	listener   net.Listener
	ready      chan struct{}

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRandom replaces the seeded random source.
func WithRandom(rng emotion.Random) Option {
	return func(a *App) { a.rng = rng }
}

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithHealthCheckers adds readiness checks on top of the voice catalog check.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, checkers...) }
}

// WithLogLevel lets ApplyChange change the log level at runtime.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App speaking through platform. Unset fields of cfg take
// their defaults; cfg itself is not modified.
func New(cfg *config.Config, platform speech.Platform, opts ...Option) (*App, error) {
	if platform == nil {
		return nil, errors.New("app: speech platform is required")
	}
	resolved := *cfg
	resolved.ApplyDefaults()
	cfg = &resolved

	a := &App{
		cfg:      cfg,
		platform: platform,
		loop:     NewLoop(),
		hints:    hints.NewBroadcaster(hints.DefaultBuffer),
		ready:    make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.rng == nil {
		a.rng = newRandom(cfg.Behaviour.Seed)
	}

	// ── 1. Voice-change notifications ────────────────────────────────────
	source := platform
	if cfg.Speech.VoicePollInterval > 0 {
		a.poller = speech.NewPoller(platform, cfg.Speech.VoicePollInterval)
		a.closers = append(a.closers, func() error {
			a.poller.Stop()
			return nil
		})
		source = a.poller
	}

	// ── 2. Voice catalog ─────────────────────────────────────────────────
	a.catalog = voice.NewCatalog(source,
		voice.WithRetryDelay(cfg.Behaviour.VoiceRetryDelay),
		voice.WithMetrics(a.metrics),
	)

	// ── 3. Dispatcher ────────────────────────────────────────────────────
	b := cfg.Behaviour
	detector := emotion.NewDetector(a.rng, emotion.WithRandomProbability(*b.RandomEmotionProbability))
	a.dispatcher = dispatch.New(platform, a.catalog, a.rng,
		dispatch.WithScheduler(a.loop),
		dispatch.WithDetector(detector),
		dispatch.WithMetrics(a.metrics),
		dispatch.WithOutburstDelay(b.OutburstDelay),
		dispatch.WithOutburstProbability(*b.OutburstProbability),
	)
	a.session = dispatch.NewSession(a.dispatcher)

	// ── 4. Health ────────────────────────────────────────────────────────
	a.health = health.New(append([]health.Checker{health.VoiceCatalog(a.catalog)}, a.checkers...)...)

	a.closers = append(a.closers, func() error {
		a.hints.Close()
		return nil
	})
	if c, ok := platform.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	return a, nil
}

// newRandom returns a PCG source seeded with seed, or with the clock when
// seed is zero.
func newRandom(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the event loop, loads the voice catalog, starts voice polling
// and, unless disabled, serves the HTTP surface. It blocks until ctx is
// cancelled or a component fails and returns nil on a clean cancellation.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.catalog.Start(ctx)
		return nil
	})

	if a.poller != nil {
		a.poller.Start(ctx)
	}

	if a.cfg.Server.HTTPEnabled() {
		g.Go(func() error { return a.serve(ctx) })
	} else {
		close(a.ready)
	}

	slog.Info("app running", "http", a.cfg.Server.HTTPEnabled())
	return g.Wait()
}

// serve runs the HTTP server until ctx is done.
func (a *App) serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		close(a.ready)
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.listenerMu.Lock()
	a.listener = ln
	a.listenerMu.Unlock()
	close(a.ready)

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown", "err", err)
	}
	return nil
}

// Handler returns the HTTP surface: the hint stream, health probes and,
// when configured, the metrics endpoint.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /hints", hints.NewHandler(a.hints, hints.WithHandlerMetrics(a.metrics)))
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	return observe.Middleware(a.metrics)(mux)
}

// Addr returns the HTTP listen address once the server is up, or nil when
// the HTTP surface is disabled or failed to start. It blocks until Run has
// decided.
func (a *App) Addr(ctx context.Context) net.Addr {
	select {
	case <-a.ready:
	case <-ctx.Done():
		return nil
	}
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// ─── Input ───────────────────────────────────────────────────────────────────

// Key routes one input event through the session on the event loop and
// publishes the resulting hint. ctx is handed to the speech platform and
// must outlive the utterance, so callers pass the application context.
func (a *App) Key(ctx context.Context, k dispatch.Key) (hints.Hint, bool, error) {
	var (
		h  hints.Hint
		ok bool
	)
	err := a.loop.Do(ctx, func() {
		h, ok = a.session.Key(ctx, k)
	})
	if err != nil {
		return hints.Hint{}, false, err
	}
	if ok {
		a.hints.Publish(h)
	}
	return h, ok, nil
}

// Test speaks the self-test phrase and publishes its hint.
func (a *App) Test(ctx context.Context) (hints.Hint, error) {
	var h hints.Hint
	if err := a.loop.Do(ctx, func() { h = a.dispatcher.Test(ctx) }); err != nil {
		return hints.Hint{}, err
	}
	a.hints.Publish(h)
	return h, nil
}

// State reports the dispatcher state as seen from the event loop.
func (a *App) State(ctx context.Context) (dispatch.State, error) {
	var s dispatch.State
	err := a.loop.Do(ctx, func() { s = a.dispatcher.State() })
	return s, err
}

// Buffer returns the letters accepted so far.
func (a *App) Buffer(ctx context.Context) (string, error) {
	var buf string
	err := a.loop.Do(ctx, func() { buf = a.session.Buffer() })
	return buf, err
}

// Hints returns the hint broadcaster.
func (a *App) Hints() *hints.Broadcaster { return a.hints }

// Catalog returns the voice catalog.
func (a *App) Catalog() *voice.Catalog { return a.catalog }

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyChange reacts to an edited configuration file, section by section.
// The log level changes immediately and a speech change triggers a voice
// reload; everything else takes effect on restart.
func (a *App) ApplyChange(ctx context.Context, c config.Change) {
	d := c.Diff
	for _, section := range c.Sections() {
		switch section {
		case config.SectionServer:
			if d.LogLevelChanged && a.levelVar != nil {
				a.levelVar.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			if d.ListenChanged {
				slog.Warn("listen_addr or log_file changed; they take effect on restart")
			}
		case config.SectionSpeech:
			slog.Warn("speech provider settings changed; they take effect on restart, reloading voices")
			go a.catalog.Load(ctx)
		case config.SectionBehaviour:
			slog.Info("behaviour settings changed; they take effect on restart")
		}
	}
}

// slogLevel maps a config log level to its slog equivalent.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
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

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown silences all speech and tears down subsystems in init order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.platform.CancelAll()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
