package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/lettucespeak/internal/app"
	"github.com/MrWong99/lettucespeak/internal/config"
	"github.com/MrWong99/lettucespeak/internal/dispatch"
	"github.com/MrWong99/lettucespeak/internal/health"
	"github.com/MrWong99/lettucespeak/internal/observe"
	"github.com/MrWong99/lettucespeak/pkg/speech"
	"github.com/MrWong99/lettucespeak/pkg/speech/mock"
)

// calmRandom never triggers a random emotion or an outburst.
type calmRandom struct{}

func (calmRandom) Float64() float64 { return 0.99 }
func (calmRandom) IntN(int) int     { return 0 }

// testConfig returns a config without the HTTP server.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: "off", LogLevel: config.LogInfo},
	}
	cfg.ApplyDefaults()
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testPlatform() *mock.Platform {
	return &mock.Platform{VoicesResult: []speech.Voice{
		{ID: "v1", Name: "Daniel", Language: "en-GB"},
		{ID: "v2", Name: "Samantha", Language: "en-US"},
		{ID: "v3", Name: "Junior", Language: "en-US"},
	}}
}

// runApp starts a in the background and stops it when the test ends.
func runApp(t *testing.T, a *app.App) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run() did not return within 5s after cancellation")
		}
	})
	return ctx
}

func newTestApp(t *testing.T, p speech.Platform, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithRandom(calmRandom{}), app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(testConfig(), p, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return a
}

func TestNew_RequiresPlatform(t *testing.T) {
	t.Parallel()

	if _, err := app.New(testConfig(), nil); err == nil {
		t.Fatal("New(nil platform) returned nil error")
	}
}

func TestNew_DoesNotModifyConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if _, err := app.New(cfg, testPlatform(), app.WithRandom(calmRandom{})); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if cfg.Server.ListenAddr != "" || cfg.Behaviour.OutburstProbability != nil {
		t.Errorf("config was modified: %+v", cfg)
	}
}

func TestApp_Key(t *testing.T) {
	t.Parallel()

	p := testPlatform()
	a := newTestApp(t, p)
	ctx := runApp(t, a)

	sub, unsubscribe := a.Hints().Subscribe()
	defer unsubscribe()

	tests := []struct {
		name       string
		key        dispatch.Key
		wantOK     bool
		wantText   string
		wantReject bool
	}{
		{name: "lower-case letter", key: dispatch.Letter("a"), wantOK: true, wantText: "A"},
		{name: "upper-case letter", key: dispatch.Letter("B"), wantOK: true, wantText: "B"},
		{name: "backspace", key: dispatch.BackspaceKey, wantOK: true, wantText: "NOPE!", wantReject: true},
		{name: "digit", key: dispatch.Letter("1"), wantOK: false},
		{name: "space", key: dispatch.Letter(" "), wantOK: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := len(p.Utterances())

			h, ok, err := a.Key(ctx, tc.key)
			if err != nil {
				t.Fatalf("Key() error: %v", err)
			}
			if ok != tc.wantOK {
				t.Fatalf("accepted = %v, want %v", ok, tc.wantOK)
			}

			spoken := p.Utterances()[before:]
			if !tc.wantOK {
				if len(spoken) != 0 {
					t.Errorf("ignored key spoke %d utterances", len(spoken))
				}
				return
			}

			if h.Text != tc.wantText || h.Rejected != tc.wantReject {
				t.Errorf("hint = %+v, want text %q rejected %v", h, tc.wantText, tc.wantReject)
			}
			if len(spoken) != 1 || spoken[0].Text != tc.wantText {
				t.Fatalf("spoken = %+v, want one %q", spoken, tc.wantText)
			}

			select {
			case got := <-sub:
				if got.Text != tc.wantText {
					t.Errorf("published hint text = %q, want %q", got.Text, tc.wantText)
				}
			case <-time.After(time.Second):
				t.Fatal("hint was not published")
			}
		})
	}

	buf, err := a.Buffer(ctx)
	if err != nil {
		t.Fatalf("Buffer() error: %v", err)
	}
	if buf != "aB" {
		t.Errorf("buffer = %q, want %q", buf, "aB")
	}
}

func TestApp_KeyCancelsPreviousSpeech(t *testing.T) {
	t.Parallel()

	p := testPlatform()
	a := newTestApp(t, p)
	ctx := runApp(t, a)

	for _, l := range []string{"a", "b", "c"} {
		if _, _, err := a.Key(ctx, dispatch.Letter(l)); err != nil {
			t.Fatalf("Key(%q) error: %v", l, err)
		}
	}

	if got := p.Pending(); got != 1 {
		t.Errorf("pending utterances = %d, want 1", got)
	}
	if p.CancelAllCalls != 3 {
		t.Errorf("CancelAll calls = %d, want 3", p.CancelAllCalls)
	}
}

func TestApp_CompletionReturnsToIdle(t *testing.T) {
	t.Parallel()

	p := testPlatform()
	a := newTestApp(t, p)
	ctx := runApp(t, a)

	if _, _, err := a.Key(ctx, dispatch.Letter("q")); err != nil {
		t.Fatalf("Key() error: %v", err)
	}
	if s, _ := a.State(ctx); s != dispatch.SpeakingPrimary {
		t.Fatalf("state = %v, want %v", s, dispatch.SpeakingPrimary)
	}

	u := p.Utterances()[0]
	p.Complete(u.ID, nil)

	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := a.State(ctx)
		if err != nil {
			t.Fatalf("State() error: %v", err)
		}
		if s == dispatch.Idle {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want idle after completion", s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestApp_Test(t *testing.T) {
	t.Parallel()

	p := testPlatform()
	a := newTestApp(t, p)
	ctx := runApp(t, a)

	h, err := a.Test(ctx)
	if err != nil {
		t.Fatalf("Test() error: %v", err)
	}
	if h.Text != "TEST" || h.Emotion != "excited" {
		t.Errorf("hint = %+v, want excited TEST", h)
	}
	if got := p.Utterances(); len(got) != 1 || got[0].Text != "TEST" {
		t.Errorf("spoken = %+v", got)
	}
}

func TestApp_KeyAfterStop(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testPlatform())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if _, _, err := a.Key(context.Background(), dispatch.Letter("a")); !errors.Is(err, app.ErrLoopStopped) {
		t.Errorf("Key() err = %v, want ErrLoopStopped", err)
	}
}

func TestApp_HTTPSurface(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"

	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "lettucespeak_keystrokes_total 0\n")
	})
	a, err := app.New(cfg, testPlatform(),
		app.WithRandom(calmRandom{}),
		app.WithMetrics(testMetrics(t)),
		app.WithMetricsHandler(metricsHandler),
		app.WithHealthCheckers(health.Checker{Name: "extra", Check: func(context.Context) error { return nil }}),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := runApp(t, a)

	addrCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	addr := a.Addr(addrCtx)
	if addr == nil {
		t.Fatal("Addr() = nil, want listening address")
	}
	base := "http://" + addr.String()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, _ := get("/healthz"); code != http.StatusOK {
		t.Errorf("/healthz status = %d", code)
	}
	if code, body := get("/metrics"); code != http.StatusOK || !strings.Contains(body, "keystrokes") {
		t.Errorf("/metrics = %d %q", code, body)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		code, body := get("/readyz")
		if code == http.StatusOK {
			if !strings.Contains(body, `"voices":"ok"`) || !strings.Contains(body, `"extra":"ok"`) {
				t.Errorf("/readyz body = %s", body)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("/readyz never became ready: %d %s", code, body)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestApp_AddrWithoutHTTP(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testPlatform())
	ctx := runApp(t, a)

	addrCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if addr := a.Addr(addrCtx); addr != nil {
		t.Errorf("Addr() = %v, want nil with HTTP off", addr)
	}
}

func TestApp_CatalogLoadsOnRun(t *testing.T) {
	t.Parallel()

	p := testPlatform()
	a := newTestApp(t, p)
	runApp(t, a)

	deadline := time.Now().Add(2 * time.Second)
	for a.Catalog().Snapshot().LoadedAt.IsZero() {
		if time.Now().After(deadline) {
			t.Fatal("catalog never loaded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := len(a.Catalog().Snapshot().Voices); n != 3 {
		t.Errorf("catalog voices = %d, want 3", n)
	}
}

func TestApp_ApplyChange(t *testing.T) {
	t.Parallel()

	lv := new(slog.LevelVar)
	p := testPlatform()
	a := newTestApp(t, p, app.WithLogLevel(lv))

	old := testConfig()
	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	updated.Speech.Provider.Name = "say"

	a.ApplyChange(context.Background(), config.Change{Old: old, New: updated, Diff: config.Diff(old, updated)})

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}

	// A speech change reloads the catalog in the background.
	deadline := time.Now().Add(2 * time.Second)
	for a.Catalog().Snapshot().LoadedAt.IsZero() {
		if time.Now().After(deadline) {
			t.Fatal("speech change did not reload voices")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type closingPlatform struct {
	*mock.Platform
	closed atomic.Int32
}

func (c *closingPlatform) Close() error {
	c.closed.Add(1)
	return nil
}

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()

	p := &closingPlatform{Platform: testPlatform()}
	a := newTestApp(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}

	if p.CancelAllCalls != 1 {
		t.Errorf("CancelAll calls = %d, want 1", p.CancelAllCalls)
	}
	if got := p.closed.Load(); got != 1 {
		t.Errorf("Close calls = %d, want 1", got)
	}

	sub, _ := a.Hints().Subscribe()
	if _, ok := <-sub; ok {
		t.Error("hint broadcaster still open after shutdown")
	}
}

func TestApp_ShutdownDeadline(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &closingPlatform{Platform: testPlatform()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown() err = %v, want context.Canceled", err)
	}
}
