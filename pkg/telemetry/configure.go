package telemetry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/gojango/gojango/pkg/core"
)

// DefaultConfigurator is the configurator used when LOGGING_CONFIG is not set.
const DefaultConfigurator = "telemetry.DictConfig"

// Configurator installs logging from the free-form LOGGING setting.
type Configurator func(settings map[string]any) error

var (
	configuratorsMu sync.RWMutex
	configurators   = map[string]Configurator{
		DefaultConfigurator: DictConfig,
	}

	validate     *validator.Validate
	validateOnce sync.Once
)

// RegisterConfigurator makes a logging configurator available under name,
// so LOGGING_CONFIG can refer to it.
func RegisterConfigurator(name string, fn Configurator) {
	configuratorsMu.Lock()
	defer configuratorsMu.Unlock()
	configurators[name] = fn
}

// Configurators returns the registered configurator names, sorted.
func Configurators() []string {
	configuratorsMu.RLock()
	defer configuratorsMu.RUnlock()

	names := make([]string, 0, len(configurators))
	for name := range configurators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfigureLogging applies the default logging setup, then hands the
// LOGGING settings to the configurator named by hookName. An empty hook
// name leaves the default setup in place, as does an empty settings map.
func ConfigureLogging(hookName string, settings map[string]any) error {
	if err := applyDefaultLogging(); err != nil {
		return err
	}

	if hookName == "" {
		return nil
	}

	configuratorsMu.RLock()
	fn, ok := configurators[hookName]
	configuratorsMu.RUnlock()
	if !ok {
		return core.NewImportError(hookName, "logging configurator %q is not registered", hookName)
	}

	if len(settings) == 0 {
		return nil
	}

	if err := fn(settings); err != nil {
		return fmt.Errorf("failed to configure logging with %s: %w", hookName, err)
	}
	return nil
}

// DictConfig decodes LOGGING into a LoggingConfig layered over the
// defaults and installs the resulting logger process-wide.
func DictConfig(settings map[string]any) error {
	cfg := DefaultLoggingConfig()

	raw, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode logging settings: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return core.NewConfigurationError("invalid LOGGING setting: %v", err).WithKey("LOGGING")
	}

	if err := validateStruct(cfg); err != nil {
		return core.NewConfigurationError("invalid LOGGING setting: %v", err).WithKey("LOGGING")
	}

	return Install(cfg)
}

// Install builds a logger from cfg and makes it the process logger.
func Install(cfg LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	log.Logger = logger.Zerolog()
	setComponentLevels(cfg.Loggers)
	return nil
}

// applyDefaultLogging installs the default logger, honouring LOG_LEVEL.
func applyDefaultLogging() error {
	cfg := DefaultLoggingConfig()
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	return Install(cfg)
}

func validateStruct(v any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate.Struct(v)
}

// ConfigureTracing decodes the TRACING setting over the default tracing
// config and, when tracing is enabled, installs a tracer provider
// process-wide. It returns nil when tracing stays disabled. Callers own
// the returned tracer and must shut it down.
func ConfigureTracing(settings map[string]any, serviceVersion string) (*Tracer, error) {
	if len(settings) == 0 {
		return nil, nil
	}

	cfg := DefaultConfig()
	cfg.ServiceVersion = serviceVersion

	raw, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tracing settings: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg.Tracing); err != nil {
		return nil, core.NewConfigurationError("invalid TRACING setting: %v", err).WithKey("TRACING")
	}
	if cfg.Tracing.ServiceName != "" {
		cfg.ServiceName = cfg.Tracing.ServiceName
	}

	if err := cfg.Validate(); err != nil {
		return nil, core.NewConfigurationError("invalid TRACING setting: %v", err).WithKey("TRACING")
	}
	if !cfg.Tracing.Enabled {
		return nil, nil
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Tracing.Environment)
	if err != nil {
		return nil, core.NewConfigurationError("invalid TRACING setting: %v", err).WithKey("TRACING")
	}

	Component("telemetry").Debug().
		Str("exporter", cfg.Tracing.Exporter).
		Float64("sampling_rate", cfg.Tracing.SamplingRate).
		Msg("Tracing enabled")
	return tracer, nil
}
