package conf

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"time"
	"unicode"

	"github.com/gojango/gojango/pkg/core"
	"github.com/gojango/gojango/pkg/modules"
	"github.com/gojango/gojango/pkg/telemetry"
)

//go:embed global_settings.star
var globalSettingsSource []byte

// DefaultZoneInfoRoot is where TIME_ZONE values are checked.
const DefaultZoneInfoRoot = "/usr/share/zoneinfo"

// SequenceSettings must hold a list.
var SequenceSettings = []string{
	"ALLOWED_HOSTS",
	"INSTALLED_APPS",
	"TEMPLATE_DIRS",
	"LOCALE_PATHS",
	"SECRET_KEY_FALLBACKS",
}

// Deprecation messages.
const (
	UseTZDefaultDeprecatedMsg = "The default value of USE_TZ will change from False to True " +
		"in a future release. Set USE_TZ to False in your project settings if you want " +
		"to keep the current default behavior."

	UseDeprecatedPytzDeprecatedMsg = "The USE_DEPRECATED_PYTZ setting, and support for " +
		"legacy timezone databases, is deprecated. Remove the USE_DEPRECATED_PYTZ setting."

	CSRFCookieMaskedDeprecatedMsg = "The CSRF_COOKIE_MASKED transitional setting is " +
		"deprecated. Support for it will be removed in a future release."

	UseL10NDeprecatedMsg = "The USE_L10N setting is deprecated. Localized formatting of " +
		"data will always be enabled in a future release."
)

type options struct {
	defaults     map[string]any
	searchPath   []string
	zoneInfoRoot string
	modules      *modules.Table
	timeout      time.Duration
}

// Option configures how settings are loaded.
type Option func(*options)

// WithDefaults replaces the built-in defaults.
func WithDefaults(defaults map[string]any) Option {
	return func(o *options) {
		o.defaults = defaults
	}
}

// WithSearchPath adds directories searched for settings modules.
func WithSearchPath(dirs ...string) Option {
	return func(o *options) {
		o.searchPath = append(o.searchPath, dirs...)
	}
}

// WithZoneInfoRoot sets the timezone database checked for TIME_ZONE. An
// empty root disables the check.
func WithZoneInfoRoot(root string) Option {
	return func(o *options) {
		o.zoneInfoRoot = root
	}
}

// WithModules resolves Go settings modules against table.
func WithModules(table *modules.Table) Option {
	return func(o *options) {
		o.modules = table
	}
}

// WithTimeout bounds Starlark evaluation of a settings module.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

func newOptions(opts []Option) (*options, error) {
	o := &options{
		zoneInfoRoot: DefaultZoneInfoRoot,
		modules:      modules.Default,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.defaults == nil {
		defaults, err := GlobalDefaults()
		if err != nil {
			return nil, err
		}
		o.defaults = defaults
	}
	return o, nil
}

var (
	globalDefaultsOnce sync.Once
	globalDefaults     map[string]any
	globalDefaultsErr  error
)

// GlobalDefaults returns the built-in default settings.
func GlobalDefaults() (map[string]any, error) {
	globalDefaultsOnce.Do(func() {
		globalDefaults, globalDefaultsErr = NewStarlarkEvaluator(0, "").
			Evaluate(context.Background(), "global_settings.star", globalSettingsSource)
	})
	if globalDefaultsErr != nil {
		return nil, fmt.Errorf("failed to load default settings: %w", globalDefaultsErr)
	}
	return copyValues(globalDefaults), nil
}

// Settings is a resolved settings store: defaults overlaid with a user
// settings module.
type Settings struct {
	mu       sync.RWMutex
	module   string
	source   Source
	values   map[string]any
	explicit map[string]bool
	warnings []string
}

// NewSettings loads the defaults and then the settings module named module,
// validating the result.
func NewSettings(ctx context.Context, module string, opts ...Option) (*Settings, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.DefaultTracer().StartSettingsSpan(ctx, module)
	defer span.End()

	s := &Settings{
		module:   module,
		values:   make(map[string]any),
		explicit: make(map[string]bool),
	}
	for k, v := range o.defaults {
		if isUpper(k) {
			s.values[k] = v
		}
	}

	userValues, src, err := loadModule(ctx, module, o)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.source = src

	for _, key := range sortedKeys(userValues) {
		if !isUpper(key) {
			continue
		}
		value := userValues[key]
		if isSequenceSetting(key) && !isSequence(value) {
			err := core.NewConfigurationError("The %s setting must be a list or a tuple.", key).WithKey(key)
			telemetry.RecordError(span, err)
			return nil, err
		}
		s.values[key] = value
		s.explicit[key] = true
	}
	s.values["SETTINGS_MODULE"] = module

	if v, ok := s.values["USE_TZ"].(bool); ok && !v && !s.IsOverridden("USE_TZ") {
		s.warn(UseTZDefaultDeprecatedMsg)
	}
	if s.IsOverridden("USE_DEPRECATED_PYTZ") {
		s.warn(UseDeprecatedPytzDeprecatedMsg)
	}
	if s.IsOverridden("CSRF_COOKIE_MASKED") {
		s.warn(CSRFCookieMaskedDeprecatedMsg)
	}

	if tz, _ := s.values["TIME_ZONE"].(string); tz != "" {
		if err := applyTimeZone(tz, o.zoneInfoRoot); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	if s.IsOverridden("USE_L10N") {
		s.warn(UseL10NDeprecatedMsg)
	}

	telemetry.Component("settings").Debug().
		Str("module", module).
		Str("source", src.Kind).
		Str("path", src.Path).
		Int("explicit", len(s.explicit)).
		Msg("Settings loaded")
	telemetry.RecordSuccess(span)
	return s, nil
}

// newUserSettings builds a store from explicit values without a settings
// module, as Configure does.
func newUserSettings(values map[string]any, opts ...Option) (*Settings, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	s := &Settings{
		values:   make(map[string]any),
		explicit: make(map[string]bool),
	}
	for k, v := range o.defaults {
		if isUpper(k) {
			s.values[k] = v
		}
	}
	for _, key := range sortedKeys(values) {
		if !isUpper(key) {
			return nil, core.NewConfigurationError("Setting '%s' must be uppercase.", key).WithKey(key)
		}
		s.values[key] = values[key]
		s.explicit[key] = true
	}
	s.values["SETTINGS_MODULE"] = nil
	return s, nil
}

// applyTimeZone checks tz against the zoneinfo root, when it exists, and
// makes it the process time zone.
func applyTimeZone(tz, root string) error {
	if root != "" {
		if _, err := os.Stat(root); err == nil {
			if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(tz))); err != nil {
				return core.NewConfigurationError("Incorrect timezone setting: %s", tz).WithKey("TIME_ZONE")
			}
		}
	}

	if err := os.Setenv("TZ", tz); err != nil {
		return fmt.Errorf("failed to export TZ: %w", err)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		telemetry.Component("settings").Warn().Err(err).Str("time_zone", tz).Msg("Time zone not available to the Go runtime")
		return nil
	}
	time.Local = loc
	return nil
}

func (s *Settings) warn(msg string) {
	s.warnings = append(s.warnings, msg)
	telemetry.Component("settings").Warn().Str("module", s.module).Msg(msg)
}

// Get returns the value of key.
func (s *Settings) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set overrides key.
func (s *Settings) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete removes key. It reports whether the key existed.
func (s *Settings) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	delete(s.values, key)
	delete(s.explicit, key)
	return ok
}

// IsOverridden reports whether key was set by the user settings.
func (s *Settings) IsOverridden(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.explicit[key]
}

// Module returns the settings module name, empty for configured settings.
func (s *Settings) Module() string {
	return s.module
}

// Source returns where the settings module was loaded from.
func (s *Settings) Source() Source {
	return s.source
}

// Warnings returns the deprecation warnings raised while loading.
func (s *Settings) Warnings() []string {
	return append([]string(nil), s.warnings...)
}

// Keys returns every setting name, sorted.
func (s *Settings) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.values)
}

// Values returns a copy of all settings.
func (s *Settings) Values() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyValues(s.values)
}

// Clone returns an independent copy of the store.
func (s *Settings) Clone() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	explicit := make(map[string]bool, len(s.explicit))
	for k, v := range s.explicit {
		explicit[k] = v
	}
	return &Settings{
		module:   s.module,
		source:   s.source,
		values:   copyValues(s.values),
		explicit: explicit,
		warnings: append([]string(nil), s.warnings...),
	}
}

// String implements fmt.Stringer.
func (s *Settings) String() string {
	if s.module == "" {
		return "<UserSettingsHolder>"
	}
	return fmt.Sprintf("<Settings %q>", s.module)
}

func isUpper(key string) bool {
	hasLetter := false
	for _, r := range key {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func isSequenceSetting(key string) bool {
	for _, k := range SequenceSettings {
		if k == key {
			return true
		}
	}
	return false
}

func isSequence(v any) bool {
	if v == nil {
		return false
	}
	kind := reflect.TypeOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyValues(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
