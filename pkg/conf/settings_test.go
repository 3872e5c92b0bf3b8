package conf

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gojango/gojango/pkg/core"
	"github.com/gojango/gojango/pkg/modules"
)

func goModule(t *testing.T, name string, attrs map[string]any) *modules.Table {
	t.Helper()
	table := modules.NewTable()
	require.NoError(t, table.Register(&modules.Module{Name: name, Attrs: attrs}))
	return table
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewSettings_Overlay(t *testing.T) {
	table := goModule(t, "mysite.settings", map[string]any{
		"DEBUG":  true,
		"helper": "ignored",
	})

	s, err := NewSettings(context.Background(), "mysite.settings",
		WithDefaults(map[string]any{"DEBUG": false, "ALLOWED_HOSTS": []any{}}),
		WithModules(table),
		WithZoneInfoRoot(""),
	)
	require.NoError(t, err)

	debug, _ := s.Get("DEBUG")
	assert.Equal(t, true, debug)
	hosts, _ := s.Get("ALLOWED_HOSTS")
	assert.Equal(t, []any{}, hosts)
	module, _ := s.Get("SETTINGS_MODULE")
	assert.Equal(t, "mysite.settings", module)

	assert.True(t, s.IsOverridden("DEBUG"))
	assert.False(t, s.IsOverridden("ALLOWED_HOSTS"))
	_, ok := s.Get("helper")
	assert.False(t, ok)

	var explicit []string
	for _, k := range s.Keys() {
		if s.IsOverridden(k) {
			explicit = append(explicit, k)
		}
	}
	assert.Equal(t, []string{"DEBUG"}, explicit)
	assert.Equal(t, SourceGo, s.Source().Kind)
	assert.Equal(t, `<Settings "mysite.settings">`, s.String())
}

func TestNewSettings_SequenceSettings(t *testing.T) {
	for _, key := range SequenceSettings {
		t.Run(key, func(t *testing.T) {
			table := goModule(t, "bad.settings", map[string]any{key: "example.com"})

			_, err := NewSettings(context.Background(), "bad.settings",
				WithDefaults(map[string]any{}), WithModules(table), WithZoneInfoRoot(""))
			require.Error(t, err)
			assert.True(t, core.IsConfiguration(err))
			assert.EqualError(t, err, "The "+key+" setting must be a list or a tuple.")
		})
	}

	table := goModule(t, "ok.settings", map[string]any{
		"ALLOWED_HOSTS":  []string{"example.com"},
		"INSTALLED_APPS": [2]string{"a", "b"},
	})
	_, err := NewSettings(context.Background(), "ok.settings",
		WithDefaults(map[string]any{}), WithModules(table), WithZoneInfoRoot(""))
	assert.NoError(t, err)
}

func TestNewSettings_Starlark(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GOJANGO_TEST_SECRET", "s3cr3t")

	writeFile(t, filepath.Join(dir, "mysite", "base.star"), `
BASE_APPS = ["contrib.contenttypes"]
`)
	writeFile(t, filepath.Join(dir, "mysite", "settings.star"), `
load("mysite/base.star", "BASE_APPS")

def _apps(extra):
    return BASE_APPS + extra

DEBUG = True
SECRET_KEY = env("GOJANGO_TEST_SECRET")
MISSING = env("GOJANGO_TEST_UNSET", "fallback")
ALLOWED_HOSTS = ("example.com", "www.example.com")
INSTALLED_APPS = _apps(["contrib.staticfiles"])
STATIC_ROOT = BASE_DIR + "/static"
DATABASE = struct(engine = "sqlite", name = "db.sqlite3")

def helper():
    return 1

lowercase = "ignored"
`)

	s, err := NewSettings(context.Background(), "mysite.settings",
		WithDefaults(map[string]any{"DEBUG": false}),
		WithModules(modules.NewTable()),
		WithSearchPath(dir),
		WithZoneInfoRoot(""),
	)
	require.NoError(t, err)

	values := s.Values()
	assert.Equal(t, true, values["DEBUG"])
	assert.Equal(t, "s3cr3t", values["SECRET_KEY"])
	assert.Equal(t, "fallback", values["MISSING"])
	assert.Equal(t, []any{"example.com", "www.example.com"}, values["ALLOWED_HOSTS"])
	assert.Equal(t, []any{"contrib.contenttypes", "contrib.staticfiles"}, values["INSTALLED_APPS"])
	assert.Equal(t, dir+"/static", values["STATIC_ROOT"])
	assert.Equal(t, map[string]any{"engine": "sqlite", "name": "db.sqlite3"}, values["DATABASE"])
	assert.NotContains(t, values, "helper")
	assert.NotContains(t, values, "lowercase")
	assert.NotContains(t, values, "BASE_APPS")

	assert.Equal(t, SourceStarlark, s.Source().Kind)
	assert.Equal(t, filepath.Join(dir, "mysite", "settings.star"), s.Source().Path)
}

func TestNewSettings_YAMLAndSearchOrder(t *testing.T) {
	envDir := t.TempDir()
	optDir := t.TempDir()
	t.Setenv(PathEnvironmentVariable, envDir)

	writeFile(t, filepath.Join(envDir, "site", "prod.yaml"), "DEBUG: false\nALLOWED_HOSTS: [prod.example.com]\n")
	writeFile(t, filepath.Join(optDir, "site", "prod.star"), "DEBUG = True\n")
	writeFile(t, filepath.Join(optDir, "site", "dev.yml"), "DEBUG: true\nLOGGING:\n  level: debug\n")

	s, err := NewSettings(context.Background(), "site.prod",
		WithDefaults(map[string]any{}), WithModules(modules.NewTable()), WithSearchPath(optDir), WithZoneInfoRoot(""))
	require.NoError(t, err)
	debug, _ := s.Get("DEBUG")
	assert.Equal(t, false, debug)
	assert.Equal(t, SourceYAML, s.Source().Kind)

	s, err = NewSettings(context.Background(), "site.dev",
		WithDefaults(map[string]any{}), WithModules(modules.NewTable()), WithSearchPath(optDir), WithZoneInfoRoot(""))
	require.NoError(t, err)
	logging, _ := s.Get("LOGGING")
	assert.Equal(t, map[string]any{"level": "debug"}, logging)
}

func TestNewSettings_ModuleErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken", "settings.star"), "DEBUG = \n")

	_, err := NewSettings(context.Background(), "nowhere.settings",
		WithDefaults(map[string]any{}), WithModules(modules.NewTable()), WithSearchPath(dir))
	require.Error(t, err)
	assert.True(t, core.IsImport(err))
	assert.EqualError(t, err, "No module named 'nowhere.settings'")

	_, err = NewSettings(context.Background(), "broken.settings",
		WithDefaults(map[string]any{}), WithModules(modules.NewTable()), WithSearchPath(dir))
	require.Error(t, err)
	assert.True(t, core.IsImport(err))
	assert.Contains(t, err.Error(), "Error importing settings module 'broken.settings'")
}

func TestNewSettings_Deprecations(t *testing.T) {
	tests := []struct {
		name     string
		defaults map[string]any
		user     map[string]any
		want     []string
	}{
		{
			name:     "implicit USE_TZ default",
			defaults: map[string]any{"USE_TZ": false},
			user:     map[string]any{},
			want:     []string{UseTZDefaultDeprecatedMsg},
		},
		{
			name:     "explicit USE_TZ",
			defaults: map[string]any{"USE_TZ": false},
			user:     map[string]any{"USE_TZ": false},
		},
		{
			name: "explicit transitional settings",
			user: map[string]any{
				"USE_DEPRECATED_PYTZ": false,
				"CSRF_COOKIE_MASKED":  true,
				"USE_L10N":            true,
			},
			want: []string{UseDeprecatedPytzDeprecatedMsg, CSRFCookieMaskedDeprecatedMsg, UseL10NDeprecatedMsg},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defaults := tt.defaults
			if defaults == nil {
				defaults = map[string]any{}
			}
			s, err := NewSettings(context.Background(), "dep.settings",
				WithDefaults(defaults), WithModules(goModule(t, "dep.settings", tt.user)), WithZoneInfoRoot(""))
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Warnings())
		})
	}
}

func TestNewSettings_TimeZone(t *testing.T) {
	t.Setenv("TZ", os.Getenv("TZ"))
	saved := time.Local
	t.Cleanup(func() { time.Local = saved })

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "UTC"), "")
	writeFile(t, filepath.Join(root, "Europe", "Paris"), "")

	_, err := NewSettings(context.Background(), "tz.settings",
		WithDefaults(map[string]any{}),
		WithModules(goModule(t, "tz.settings", map[string]any{"TIME_ZONE": "Mars/Olympus_Mons"})),
		WithZoneInfoRoot(root))
	require.Error(t, err)
	assert.True(t, core.IsConfiguration(err))
	assert.EqualError(t, err, "Incorrect timezone setting: Mars/Olympus_Mons")

	_, err = NewSettings(context.Background(), "tz.settings",
		WithDefaults(map[string]any{}),
		WithModules(goModule(t, "tz.settings", map[string]any{"TIME_ZONE": "UTC"})),
		WithZoneInfoRoot(root))
	require.NoError(t, err)
	assert.Equal(t, "UTC", os.Getenv("TZ"))
	assert.Equal(t, "UTC", time.Local.String())

	// Without a zoneinfo database the name is not checked.
	_, err = NewSettings(context.Background(), "tz.settings",
		WithDefaults(map[string]any{}),
		WithModules(goModule(t, "tz.settings", map[string]any{"TIME_ZONE": "Mars/Olympus_Mons"})),
		WithZoneInfoRoot(filepath.Join(root, "missing")))
	require.NoError(t, err)
	assert.Equal(t, "Mars/Olympus_Mons", os.Getenv("TZ"))
}

func TestGlobalDefaults(t *testing.T) {
	defaults, err := GlobalDefaults()
	require.NoError(t, err)

	assert.Equal(t, false, defaults["DEBUG"])
	assert.Equal(t, []any{}, defaults["INSTALLED_APPS"])
	assert.Equal(t, "telemetry.DictConfig", defaults["LOGGING_CONFIG"])
	assert.Equal(t, map[string]any{}, defaults["TRACING"])
	assert.Nil(t, defaults["STATIC_URL"])
	assert.Equal(t, defaults["ADMINS"], defaults["MANAGERS"])

	// Callers get a copy.
	defaults["DEBUG"] = true
	again, err := GlobalDefaults()
	require.NoError(t, err)
	assert.Equal(t, false, again["DEBUG"])
}

func TestSettings_MutationAndClone(t *testing.T) {
	s, err := newUserSettings(map[string]any{"DEBUG": true}, WithDefaults(map[string]any{"USE_TZ": true}))
	require.NoError(t, err)
	assert.Equal(t, "<UserSettingsHolder>", s.String())

	cp := s.Clone()
	s.Set("DEBUG", false)
	assert.True(t, s.Delete("USE_TZ"))
	assert.False(t, s.Delete("USE_TZ"))

	debug, _ := cp.Get("DEBUG")
	assert.Equal(t, true, debug)
	_, ok := cp.Get("USE_TZ")
	assert.True(t, ok)
	assert.True(t, cp.IsOverridden("DEBUG"))

	_, err = newUserSettings(map[string]any{"debug": true}, WithDefaults(map[string]any{}))
	require.Error(t, err)
	assert.EqualError(t, err, "Setting 'debug' must be uppercase.")
}
