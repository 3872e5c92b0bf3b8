package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gojango/gojango/pkg/core"
)

func restoreLogging(t *testing.T) {
	t.Helper()
	saved := log.Logger
	t.Cleanup(func() {
		log.Logger = saved
		setComponentLevels(nil)
	})
}

func TestConfigureLogging_DefaultOnly(t *testing.T) {
	restoreLogging(t)
	t.Setenv("LOG_LEVEL", "warn")

	require.NoError(t, ConfigureLogging("", nil))
	assert.Equal(t, zerolog.WarnLevel, log.Logger.GetLevel())
}

func TestConfigureLogging_EmptySettingsSkipsHook(t *testing.T) {
	restoreLogging(t)

	called := false
	RegisterConfigurator("test.Recording", func(map[string]any) error {
		called = true
		return nil
	})

	require.NoError(t, ConfigureLogging("test.Recording", map[string]any{}))
	assert.False(t, called)

	require.NoError(t, ConfigureLogging("test.Recording", map[string]any{"level": "debug"}))
	assert.True(t, called)
	assert.Contains(t, Configurators(), "test.Recording")
}

func TestConfigureLogging_UnknownHook(t *testing.T) {
	restoreLogging(t)

	err := ConfigureLogging("nope.Configurator", map[string]any{"level": "debug"})
	require.Error(t, err)
	assert.True(t, core.IsImport(err))
	assert.Contains(t, err.Error(), "nope.Configurator")
}

func TestDictConfig_FileOutput(t *testing.T) {
	restoreLogging(t)

	path := filepath.Join(t.TempDir(), "gojango.log")
	err := ConfigureLogging(DefaultConfigurator, map[string]any{
		"level":  "debug",
		"format": "json",
		"output": path,
	})
	require.NoError(t, err)

	log.Debug().Str("app_label", "auth").Msg("hello from the registry")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello from the registry"`)
	assert.Contains(t, string(data), `"app_label":"auth"`)
}

func TestDictConfig_ComponentLevels(t *testing.T) {
	restoreLogging(t)

	err := DictConfig(map[string]any{
		"loggers": map[string]any{"apps": "error"},
	})
	require.NoError(t, err)

	assert.Equal(t, zerolog.ErrorLevel, Component("apps").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, Component("settings").GetLevel())
}

func TestDictConfig_Invalid(t *testing.T) {
	restoreLogging(t)

	tests := []struct {
		name     string
		settings map[string]any
	}{
		{"bad level", map[string]any{"level": "loud"}},
		{"bad format", map[string]any{"format": "xml"}},
		{"bad component level", map[string]any{"loggers": map[string]any{"apps": "chatty"}}},
		{"wrong type", map[string]any{"max_backups": "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DictConfig(tt.settings)
			require.Error(t, err)
			assert.True(t, core.IsConfiguration(err))
			assert.Contains(t, err.Error(), "LOGGING")
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "zipkin"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Logging.Output = ""
	assert.Error(t, cfg.Validate())
}
