// Package observe provides application-wide observability primitives for
// LettuceSpeak: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all LettuceSpeak metrics.
const meterName = "github.com/MrWong99/lettucespeak"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// DispatchDuration tracks how long handling one keystroke takes, from
	// cancellation to the primary utterance being handed to the platform.
	DispatchDuration metric.Float64Histogram

	// UtteranceDuration tracks the time from issuing an utterance until the
	// platform reports it finished, failed or cancelled. Use with attribute:
	//   attribute.String("kind", ...)
	UtteranceDuration metric.Float64Histogram

	// --- Counters ---

	// Keystrokes counts input events. Use with attribute:
	//   attribute.String("key", "letter"|"backspace"|"ignored")
	Keystrokes metric.Int64Counter

	// Utterances counts issued utterances. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("emotion", ...)
	Utterances metric.Int64Counter

	// Outbursts counts scheduled secondary utterances. Use with attribute:
	//   attribute.String("emotion", ...)
	Outbursts metric.Int64Counter

	// Cancellations counts utterances interrupted by a later keystroke.
	Cancellations metric.Int64Counter

	// ProviderRequests counts speech provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// SynthesisErrors counts utterances that failed to start or to finish.
	// Use with attributes:
	//   attribute.String("kind", ...), attribute.String("stage", "start"|"completion")
	SynthesisErrors metric.Int64Counter

	// PlatformErrors counts failed non-synthesis platform operations. Use with
	// attribute:
	//   attribute.String("op", ...)
	PlatformErrors metric.Int64Counter

	// --- Gauges ---

	// CatalogVoices is the size of the current voice catalog. Use with
	// attribute:
	//   attribute.String("category", "all"|"male"|"female"|"kids")
	CatalogVoices metric.Int64Gauge

	// HintSubscribers tracks the number of connected display-hint clients.
	HintSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Dispatch
// is sub-millisecond, single letters play for well under a second and cloud
// synthesis can take a few seconds.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DispatchDuration, err = m.Float64Histogram("lettucespeak.dispatch.duration",
		metric.WithDescription("Latency of handling one keystroke."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("lettucespeak.utterance.duration",
		metric.WithDescription("Time from issuing an utterance until it ends."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Keystrokes, err = m.Int64Counter("lettucespeak.keystrokes",
		metric.WithDescription("Total input events by key class."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("lettucespeak.utterances",
		metric.WithDescription("Total utterances issued by kind and emotion."),
	); err != nil {
		return nil, err
	}
	if met.Outbursts, err = m.Int64Counter("lettucespeak.outbursts",
		metric.WithDescription("Total secondary outbursts scheduled by emotion."),
	); err != nil {
		return nil, err
	}
	if met.Cancellations, err = m.Int64Counter("lettucespeak.cancellations",
		metric.WithDescription("Total utterances interrupted by a later keystroke."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("lettucespeak.provider.requests",
		metric.WithDescription("Total speech provider requests by provider and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.SynthesisErrors, err = m.Int64Counter("lettucespeak.synthesis.errors",
		metric.WithDescription("Total synthesis failures by kind and stage."),
	); err != nil {
		return nil, err
	}
	if met.PlatformErrors, err = m.Int64Counter("lettucespeak.platform.errors",
		metric.WithDescription("Total failed platform operations by operation."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.CatalogVoices, err = m.Int64Gauge("lettucespeak.catalog.voices",
		metric.WithDescription("Number of voices in the current catalog by category."),
	); err != nil {
		return nil, err
	}
	if met.HintSubscribers, err = m.Int64UpDownCounter("lettucespeak.hint.subscribers",
		metric.WithDescription("Number of connected display-hint clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lettucespeak.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordKeystroke counts one input event of the given class.
func (m *Metrics) RecordKeystroke(ctx context.Context, key string) {
	m.Keystrokes.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

// RecordUtterance counts one issued utterance.
func (m *Metrics) RecordUtterance(ctx context.Context, kind, emotion string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("emotion", emotion),
		),
	)
}

// RecordUtteranceDuration records how long an utterance of kind was active.
func (m *Metrics) RecordUtteranceDuration(ctx context.Context, kind string, d time.Duration) {
	m.UtteranceDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordOutburst counts one scheduled secondary utterance.
func (m *Metrics) RecordOutburst(ctx context.Context, emotion string) {
	m.Outbursts.Add(ctx, 1, metric.WithAttributes(attribute.String("emotion", emotion)))
}

// RecordSynthesisError counts one failed utterance. stage is "start" for
// errors returned by Speak and "completion" for errors delivered later.
func (m *Metrics) RecordSynthesisError(ctx context.Context, kind, stage string) {
	m.SynthesisErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("stage", stage),
		),
	)
}

// RecordPlatformError counts one failed platform operation such as listing
// voices.
func (m *Metrics) RecordPlatformError(ctx context.Context, op string) {
	m.PlatformErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordCatalog sets the catalog size gauges.
func (m *Metrics) RecordCatalog(ctx context.Context, total, male, female, kids int) {
	for _, p := range []struct {
		category string
		n        int
	}{
		{"all", total},
		{"male", male},
		{"female", female},
		{"kids", kids},
	} {
		m.CatalogVoices.Record(ctx, int64(p.n),
			metric.WithAttributes(attribute.String("category", p.category)))
	}
}
