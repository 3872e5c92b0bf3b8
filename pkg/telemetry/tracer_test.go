package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gojango/gojango/pkg/core"
)

func TestNewTracer_Disabled(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "gojango", "dev", "test")
	require.NoError(t, err)

	ctx, span := tr.StartPopulateSpan(context.Background(), "run-1", 2)
	defer span.End()

	_, phase := tr.StartPhaseSpan(ctx, "apps")
	RecordError(phase, errors.New("boom"))
	RecordError(phase, nil)
	phase.End()

	assert.Empty(t, TraceID(context.Background()))
	require.NoError(t, tr.Shutdown(context.Background()))
}

func TestNewTracer_UnsupportedExporter(t *testing.T) {
	_, err := NewTracer(TracingConfig{Enabled: true, Exporter: "zipkin", SamplingRate: 1}, "gojango", "dev", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zipkin")
}

func TestDefaultTracer(t *testing.T) {
	tr := DefaultTracer()
	assert.Same(t, tr, DefaultTracer())

	_, span := tr.StartSettingsSpan(context.Background(), "mysite.settings")
	RecordSuccess(span)
	span.End()
	require.NoError(t, tr.Shutdown(context.Background()))
}

func TestConfigureTracing(t *testing.T) {
	tr, err := ConfigureTracing(nil, "dev")
	require.NoError(t, err)
	assert.Nil(t, tr)

	tr, err = ConfigureTracing(map[string]any{"enabled": false, "exporter": "stdout"}, "dev")
	require.NoError(t, err)
	assert.Nil(t, tr)

	tr, err = ConfigureTracing(map[string]any{
		"enabled":        true,
		"exporter":       "none",
		"service_name":   "mysite",
		"environment":    "test",
		"export_timeout": "5s",
	}, "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, tr)
	defer func() { require.NoError(t, tr.Shutdown(context.Background())) }()

	ctx, span := tr.StartPopulateSpan(context.Background(), "run-1", 1)
	assert.Len(t, TraceID(ctx), 32)
	assert.Len(t, SpanID(ctx), 16)
	span.End()

	ctx, span = DefaultTracer().StartSettingsSpan(context.Background(), "mysite.settings")
	assert.Equal(t, span.SpanContext().TraceID().String(), TraceID(ctx))
	span.End()
}

func TestConfigureTracing_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
	}{
		{"unknown exporter", map[string]any{"enabled": true, "exporter": "zipkin"}},
		{"sampling rate", map[string]any{"enabled": true, "sampling_rate": 2.5}},
		{"otlp without endpoint", map[string]any{"enabled": true, "exporter": "otlp"}},
		{"wrong type", map[string]any{"enabled": "yes please"}},
		{"bad timeout", map[string]any{"export_timeout": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := ConfigureTracing(tt.settings, "dev")
			require.Error(t, err)
			assert.Nil(t, tr)
			assert.True(t, core.IsConfiguration(err))
			assert.Contains(t, err.Error(), "TRACING")
		})
	}
}
