package telemetry

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Metrics provides Prometheus metrics for the app registry and settings.
// A zero-value or disabled Metrics is safe to use; every method is a no-op.
type Metrics struct {
	config MetricsConfig

	// Registry metrics
	populateRuns     *prometheus.CounterVec
	phaseDuration    *prometheus.HistogramVec
	appUnits         prometheus.Gauge
	modelsRegistered *prometheus.CounterVec
	modelQueryCache  *prometheus.CounterVec

	// Settings metrics
	settingsMaterializations prometheus.Counter
	settingsLookups          *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		populateRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apps",
				Name:      "populate_total",
				Help:      "Total number of registry populate calls by outcome",
			},
			[]string{"status"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "apps",
				Name:      "populate_phase_duration_seconds",
				Help:      "Duration of each populate phase in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),
		appUnits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "apps",
				Name:      "units",
				Help:      "Number of app units in the registry",
			},
		),
		modelsRegistered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apps",
				Name:      "models_registered_total",
				Help:      "Total number of models registered per app label",
			},
			[]string{"app_label"},
		),
		modelQueryCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apps",
				Name:      "model_query_cache_total",
				Help:      "Lookups of the memoized model query by result",
			},
			[]string{"result"},
		),

		settingsMaterializations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settings",
				Name:      "materializations_total",
				Help:      "Total number of settings store materializations",
			},
		),
		settingsLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settings",
				Name:      "lookups_total",
				Help:      "Settings lookups through the lazy proxy by cache result",
			},
			[]string{"result"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.populateRuns,
		m.phaseDuration,
		m.appUnits,
		m.modelsRegistered,
		m.modelQueryCache,
		m.settingsMaterializations,
		m.settingsLookups,
		m.errorsByKind,
	)

	return m, nil
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// DefaultMetrics returns the process-wide metrics collector.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(DefaultConfig().Metrics)
		if err != nil {
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Registry Metrics

// RecordPopulate records the outcome of a populate call.
func (m *Metrics) RecordPopulate(status string) {
	if m == nil || m.populateRuns == nil {
		return
	}
	m.populateRuns.WithLabelValues(status).Inc()
}

// RecordPhase records how long a populate phase took.
func (m *Metrics) RecordPhase(phase string, duration time.Duration) {
	if m == nil || m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// SetAppUnits sets the number of app units in the registry.
func (m *Metrics) SetAppUnits(count int) {
	if m == nil || m.appUnits == nil {
		return
	}
	m.appUnits.Set(float64(count))
}

// RecordModelRegistered counts a model registration for an app label.
func (m *Metrics) RecordModelRegistered(appLabel string) {
	if m == nil || m.modelsRegistered == nil {
		return
	}
	m.modelsRegistered.WithLabelValues(appLabel).Inc()
}

// RecordModelQuery records a memoized model query hit or miss.
func (m *Metrics) RecordModelQuery(hit bool) {
	if m == nil || m.modelQueryCache == nil {
		return
	}
	m.modelQueryCache.WithLabelValues(cacheResult(hit)).Inc()
}

// Settings Metrics

// RecordSettingsMaterialized counts a settings store materialization.
func (m *Metrics) RecordSettingsMaterialized() {
	if m == nil || m.settingsMaterializations == nil {
		return
	}
	m.settingsMaterializations.Inc()
}

// RecordSettingsLookup records a cached or resolved settings lookup.
func (m *Metrics) RecordSettingsLookup(hit bool) {
	if m == nil || m.settingsLookups == nil {
		return
	}
	m.settingsLookups.WithLabelValues(cacheResult(hit)).Inc()
}

// Error Metrics

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m == nil || m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

func cacheResult(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Registry returns the underlying prometheus registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// WriteText writes every collected metric family to w in the prometheus
// text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil || m.registry == nil {
		return nil
	}

	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
