// Package telemetry provides the logging, metrics and tracing used by the
// app registry, the settings layer and the management commands.
//
// # Logging
//
// Logging is built on zerolog. ConfigureLogging runs once during
// bootstrap: it installs the default logger (level from LOG_LEVEL, console
// output on stderr) and then passes the LOGGING setting to the
// configurator named by LOGGING_CONFIG:
//
//	err := telemetry.ConfigureLogging("telemetry.DictConfig", map[string]any{
//	    "level":  "debug",
//	    "format": "json",
//	    "output": "/var/log/gojango/app.log",
//	    "loggers": map[string]any{"apps": "warn"},
//	})
//
// File outputs are rotated through lumberjack. Additional configurators
// can be registered with RegisterConfigurator. Per-component levels from
// the "loggers" key apply to loggers obtained with Component.
//
// # Metrics
//
// Metrics are exposed through a private prometheus registry. All methods
// on *Metrics are no-ops when metrics are disabled or the receiver is nil:
//
//	m := telemetry.DefaultMetrics()
//	m.RecordPhase("apps", time.Since(start))
//	_ = m.WriteText(os.Stdout)
//
// # Tracing
//
// Populate runs, their phases and settings loading are traced with
// OpenTelemetry. DefaultTracer uses the global provider. ConfigureTracing
// decodes the TRACING setting and, when enabled, installs a provider
// exporting to stdout or an OTLP gRPC endpoint:
//
//	tr, err := telemetry.ConfigureTracing(map[string]any{
//	    "enabled":  true,
//	    "exporter": "otlp",
//	    "endpoint": "localhost:4317",
//	}, "0.1.0")
//	defer tr.Shutdown(ctx)
//
// Management commands log through the *Logger stored in their context;
// see FromContext.
package telemetry
