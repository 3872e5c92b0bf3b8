package conf

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/gojango/gojango/pkg/core"
	"github.com/gojango/gojango/pkg/lazy"
	"github.com/gojango/gojango/pkg/signals"
	"github.com/gojango/gojango/pkg/telemetry"
	"github.com/gojango/gojango/pkg/urls"
)

// EnvironmentVariable names the settings module to load.
const EnvironmentVariable = "GOJANGO_SETTINGS_MODULE"

// LazySettings loads the settings module named by GOJANGO_SETTINGS_MODULE
// on first access and caches every value it hands out.
type LazySettings struct {
	ref     *lazy.Ref[*Settings]
	opts    []Option
	metrics *telemetry.Metrics

	mu    sync.RWMutex
	cache map[string]any
	// gen changes whenever cached entries are dropped.
	gen uint64
}

// NewLazySettings creates an unevaluated settings proxy. The options are
// used when the settings module is loaded.
func NewLazySettings(opts ...Option) *LazySettings {
	l := &LazySettings{
		opts:  opts,
		cache: make(map[string]any),
	}
	l.ref = lazy.New(l.setupFor(context.Background(), ""))
	return l
}

// Default is the process-wide settings proxy.
var Default = func() *LazySettings {
	l := NewLazySettings()
	l.metrics = telemetry.DefaultMetrics()
	return l
}()

// SetMetrics records lookups and materializations into m.
func (l *LazySettings) SetMetrics(m *telemetry.Metrics) {
	l.metrics = m
}

func (l *LazySettings) setupFor(ctx context.Context, key string) func() (*Settings, error) {
	return func() (*Settings, error) {
		module := os.Getenv(EnvironmentVariable)
		if module == "" {
			desc := "settings"
			if key != "" {
				desc = "setting " + key
			}
			return nil, core.NewConfigurationError(
				"Requested %s, but settings are not configured. You must either define the "+
					"environment variable %s or call settings.Configure() before accessing settings.",
				desc, EnvironmentVariable).WithKey(key)
		}

		s, err := NewSettings(ctx, module, l.opts...)
		if err != nil {
			return nil, err
		}
		l.metrics.RecordSettingsMaterialized()
		return s, nil
	}
}

// Settings returns the wrapped store, loading it if needed.
func (l *LazySettings) Settings() (*Settings, error) {
	return l.SettingsContext(context.Background())
}

// SettingsContext is Settings with a context for module evaluation.
func (l *LazySettings) SettingsContext(ctx context.Context) (*Settings, error) {
	return l.ref.GetWith(l.setupFor(ctx, ""))
}

// Get returns the value of a setting.
func (l *LazySettings) Get(key string) (any, error) {
	return l.GetContext(context.Background(), key)
}

// GetContext returns the value of a setting. MEDIA_URL and STATIC_URL get
// the script prefix carried by ctx; an empty SECRET_KEY is an error. The
// first result for each key is cached.
func (l *LazySettings) GetContext(ctx context.Context, key string) (any, error) {
	l.mu.RLock()
	v, ok := l.cache[key]
	gen := l.gen
	l.mu.RUnlock()
	if ok {
		l.metrics.RecordSettingsLookup(true)
		return v, nil
	}
	l.metrics.RecordSettingsLookup(false)

	s, err := l.ref.GetWith(l.setupFor(ctx, key))
	if err != nil {
		return nil, err
	}

	val, ok := s.Get(key)
	if !ok {
		return nil, core.NewLookupError(key, "Setting '%s' is not defined.", key)
	}

	switch key {
	case "MEDIA_URL", "STATIC_URL":
		if str, ok := val.(string); ok {
			val = AddScriptPrefix(urls.ScriptPrefixFrom(ctx), str)
		}
	case "SECRET_KEY":
		if str, _ := val.(string); str == "" {
			return nil, core.NewConfigurationError("The SECRET_KEY setting must not be empty.").WithKey(key)
		}
	}

	l.mu.Lock()
	if l.gen == gen {
		l.cache[key] = val
	}
	l.mu.Unlock()
	return val, nil
}

// AddScriptPrefix prepends prefix to a URL setting. Values with a scheme,
// protocol-relative values and values already under prefix are returned
// unchanged.
func AddScriptPrefix(prefix, value string) string {
	if strings.HasPrefix(value, "//") {
		return value
	}
	if u, err := url.Parse(value); err == nil && u.Scheme != "" {
		return value
	}
	if prefix == "" {
		prefix = "/"
	}
	if strings.HasPrefix(value, prefix) {
		return value
	}
	return prefix + strings.TrimPrefix(value, "/")
}

// GetString returns a string setting. A nil value is the empty string.
func (l *LazySettings) GetString(key string) (string, error) {
	v, err := l.Get(key)
	if err != nil || v == nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", core.NewConfigurationError("The %s setting must be a string, got %T.", key, v).WithKey(key)
	}
	return s, nil
}

// GetBool returns a boolean setting.
func (l *LazySettings) GetBool(key string) (bool, error) {
	v, err := l.Get(key)
	if err != nil || v == nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, core.NewConfigurationError("The %s setting must be a boolean, got %T.", key, v).WithKey(key)
	}
	return b, nil
}

// GetStrings returns a list-of-strings setting.
func (l *LazySettings) GetStrings(key string) ([]string, error) {
	v, err := l.Get(key)
	if err != nil || v == nil {
		return nil, err
	}

	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, core.NewConfigurationError("The %s setting must contain strings, item %d is %T.", key, i, item).WithKey(key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, core.NewConfigurationError("The %s setting must be a list or a tuple.", key).WithKey(key)
	}
}

// GetMap returns a mapping setting.
func (l *LazySettings) GetMap(key string) (map[string]any, error) {
	v, err := l.Get(key)
	if err != nil || v == nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, core.NewConfigurationError("The %s setting must be a mapping, got %T.", key, v).WithKey(key)
	}
	return m, nil
}

// Configure installs settings from values instead of a settings module.
// It fails once settings have been loaded.
func (l *LazySettings) Configure(values map[string]any, opts ...Option) error {
	if l.ref.Materialized() {
		return core.NewConfigurationError("Settings already configured.")
	}

	s, err := newUserSettings(values, append(append([]Option(nil), l.opts...), opts...)...)
	if err != nil {
		return err
	}

	l.mu.Lock()
	clear(l.cache)
	l.gen++
	l.mu.Unlock()

	l.ref.Set(s)
	l.metrics.RecordSettingsMaterialized()
	return nil
}

// Configured reports whether settings have been loaded or configured.
func (l *LazySettings) Configured() bool {
	return l.ref.Materialized()
}

// IsOverridden reports whether key was set by the user settings.
func (l *LazySettings) IsOverridden(key string) (bool, error) {
	s, err := l.Settings()
	if err != nil {
		return false, err
	}
	return s.IsOverridden(key), nil
}

// Set overrides a setting at runtime and sends SettingChanged.
func (l *LazySettings) Set(key string, value any) error {
	s, err := l.ref.GetWith(l.setupFor(context.Background(), key))
	if err != nil {
		return err
	}

	s.Set(key, value)
	l.forget(key)

	return signals.SettingChanged.Send(context.Background(), "settings", map[string]any{
		"setting": key,
		"value":   value,
		"enter":   true,
	})
}

// Delete removes a setting at runtime and sends SettingChanged.
func (l *LazySettings) Delete(key string) error {
	s, err := l.ref.GetWith(l.setupFor(context.Background(), key))
	if err != nil {
		return err
	}

	if !s.Delete(key) {
		return core.NewLookupError(key, "Setting '%s' is not defined.", key)
	}
	l.forget(key)

	return signals.SettingChanged.Send(context.Background(), "settings", map[string]any{
		"setting": key,
		"value":   nil,
		"enter":   false,
	})
}

func (l *LazySettings) forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, key)
	l.gen++
}

// Reset drops the loaded settings and the value cache. Tests only.
func (l *LazySettings) Reset() {
	l.ref.Reset()

	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.cache)
	l.gen++
}

// Copy returns an independent proxy. An unevaluated proxy copies to an
// unevaluated one; a loaded proxy copies its store.
func (l *LazySettings) Copy() *LazySettings {
	cp := &LazySettings{
		opts:    l.opts,
		metrics: l.metrics,
		cache:   make(map[string]any),
	}
	cp.ref = l.ref.Copy()
	if !cp.ref.Materialized() {
		cp.ref = lazy.New(cp.setupFor(context.Background(), ""))
	}
	return cp
}

// String implements fmt.Stringer.
func (l *LazySettings) String() string {
	if !l.ref.Materialized() {
		return "<LazySettings [Unevaluated]>"
	}
	s, _ := l.ref.Get()
	return fmt.Sprintf("<LazySettings %q>", s.Module())
}
