package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] looks at the file.
const DefaultWatchInterval = 5 * time.Second

// Change is an accepted edit of the watched file.
type Change struct {
	Old  *Config
	New  *Config
	Diff ConfigDiff
}

// Sections lists the sections the edit touched.
func (c Change) Sections() []Section { return c.Diff.Sections() }

// Watcher follows a config file while the toy runs. Edits that fail to parse
// or validate are rejected and the previous settings stay in force; edits
// that change no setting (comments, reordering) are swallowed.
type Watcher struct {
	path     string
	format   Format
	interval time.Duration

	mu      sync.Mutex
	current *Config
	raw     []byte
	modTime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and returns a watcher holding it as the current
// config. Nothing is polled until [Watcher.Watch] runs.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		format:   FormatFromPath(path),
		interval: DefaultWatchInterval,
	}
	for _, opt := range opts {
		opt(w)
	}

	raw, modTime, err := readConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	cfg, err := Decode(bytes.NewReader(raw), w.format)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.raw, w.modTime = cfg, raw, modTime
	return w, nil
}

// Current returns the config in force.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Watch polls the file until ctx is done and calls apply, on the calling
// goroutine, for every edit that changes at least one section.
func (w *Watcher) Watch(ctx context.Context, apply func(Change)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if c, ok := w.Reload(); ok {
			apply(c)
		}
	}
}

// Reload looks at the file once. It reports false when the file is
// untouched, byte-for-byte unchanged, rejected, or changes no setting.
func (w *Watcher) Reload() (Change, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return Change{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if info.ModTime().Equal(w.modTime) {
		return Change{}, false
	}
	raw, modTime, err := readConfigFile(w.path)
	if err != nil {
		slog.Warn("config: cannot read watched file", "path", w.path, "err", err)
		return Change{}, false
	}
	w.modTime = modTime
	if bytes.Equal(raw, w.raw) {
		return Change{}, false
	}
	// Remember rejected bytes too, so a broken file is reported once per edit.
	w.raw = raw

	cfg, err := Decode(bytes.NewReader(raw), w.format)
	if err != nil {
		slog.Warn("config: edit rejected, keeping previous settings", "path", w.path, "err", err)
		return Change{}, false
	}

	old := w.current
	w.current = cfg
	d := Diff(old, cfg)
	if !d.Changed() {
		slog.Debug("config: file edited but no setting changed", "path", w.path)
		return Change{}, false
	}

	slog.Info("config: settings changed", "path", w.path, "sections", d.Sections())
	return Change{Old: old, New: cfg, Diff: d}, true
}

func readConfigFile(path string) ([]byte, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return raw, info.ModTime(), nil
}
