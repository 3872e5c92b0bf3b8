// Package bootstrap wires settings, logging, the script prefix and the app
// registry together at process start.
package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/gojango/gojango/pkg/apps"
	"github.com/gojango/gojango/pkg/conf"
	"github.com/gojango/gojango/pkg/core"
	"github.com/gojango/gojango/pkg/telemetry"
	"github.com/gojango/gojango/pkg/urls"
	"github.com/gojango/gojango/pkg/version"
)

var (
	tracerMu sync.Mutex
	tracer   *telemetry.Tracer
)

type options struct {
	settings  *conf.LazySettings
	registry  *apps.Registry
	setPrefix bool
}

// Option configures Setup.
type Option func(*options)

// WithSettings reads settings from s instead of conf.Default.
func WithSettings(s *conf.LazySettings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithRegistry populates r instead of apps.Default.
func WithRegistry(r *apps.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithoutScriptPrefix leaves the process script prefix alone.
func WithoutScriptPrefix() Option {
	return func(o *options) {
		o.setPrefix = false
	}
}

// Setup configures logging from LOGGING_CONFIG and LOGGING and tracing from
// TRACING. It then sets the script prefix from FORCE_SCRIPT_NAME and
// populates the registry with INSTALLED_APPS. A tracer installed by Setup
// stays active until Shutdown.
func Setup(ctx context.Context, opts ...Option) error {
	o := &options{
		settings:  conf.Default,
		registry:  apps.Default,
		setPrefix: true,
	}
	for _, opt := range opts {
		opt(o)
	}

	hook, err := optionalString(o.settings, "LOGGING_CONFIG")
	if err != nil {
		return err
	}
	logging, err := o.settings.GetMap("LOGGING")
	if err != nil && !core.IsLookup(err) {
		return err
	}
	if err := telemetry.ConfigureLogging(hook, logging); err != nil {
		return err
	}

	if err := setupTracing(ctx, o.settings); err != nil {
		return err
	}

	ctx, span := telemetry.DefaultTracer().StartSpan(ctx, "bootstrap.setup")
	defer span.End()
	telemetry.AddEvent(span, "logging.configured")

	if o.setPrefix {
		prefix, err := optionalString(o.settings, "FORCE_SCRIPT_NAME")
		if err != nil {
			return err
		}
		if prefix == "" {
			prefix = "/"
		}
		urls.SetScriptPrefix(prefix)
	}

	installed, err := o.settings.GetStrings("INSTALLED_APPS")
	if err != nil && !core.IsLookup(err) {
		return err
	}

	telemetry.Component("bootstrap").Debug().
		Str("trace_id", telemetry.TraceID(ctx)).
		Str("logging_config", hook).
		Str("script_prefix", urls.ScriptPrefix()).
		Strs("installed_apps", installed).
		Msg("Setting up")

	if err := o.registry.Populate(ctx, apps.Names(installed...)); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to populate apps: %w", err)
	}
	telemetry.RecordSuccess(span)
	return nil
}

// setupTracing replaces the tracer installed by an earlier Setup with one
// built from TRACING.
func setupTracing(ctx context.Context, s *conf.LazySettings) error {
	settings, err := s.GetMap("TRACING")
	if err != nil && !core.IsLookup(err) {
		return err
	}

	release, err := version.Get(version.Current)
	if err != nil {
		release = version.Current.String()
	}

	next, err := telemetry.ConfigureTracing(settings, release)
	if err != nil {
		return err
	}

	tracerMu.Lock()
	prev := tracer
	tracer = next
	tracerMu.Unlock()

	if prev != nil {
		if err := prev.Shutdown(ctx); err != nil {
			telemetry.Component("bootstrap").Warn().Err(err).Msg("Previous tracer did not shut down cleanly")
		}
	}
	return nil
}

// Tracer returns the tracer installed from TRACING, or nil when tracing is
// disabled.
func Tracer() *telemetry.Tracer {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	return tracer
}

// Shutdown flushes and stops the tracer installed by Setup, if any.
func Shutdown(ctx context.Context) error {
	tracerMu.Lock()
	t := tracer
	tracer = nil
	tracerMu.Unlock()

	if t == nil {
		return nil
	}
	if err := t.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down tracer: %w", err)
	}
	return nil
}

// optionalString reads a string setting, treating an undefined setting as
// empty.
func optionalString(s *conf.LazySettings, key string) (string, error) {
	v, err := s.GetString(key)
	if err != nil && !core.IsLookup(err) {
		return "", err
	}
	return v, nil
}
