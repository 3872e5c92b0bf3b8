package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gojango/gojango/pkg/core"
)

func TestCheck_Defaults(t *testing.T) {
	defaults, err := GlobalDefaults()
	require.NoError(t, err)

	s, err := newUserSettings(map[string]any{}, WithDefaults(defaults))
	require.NoError(t, err)

	problems, err := Check(s)
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.NoError(t, CheckError(s))
}

func TestCheck_Problems(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		wantKey []string
	}{
		{
			name:    "bool as string",
			values:  map[string]any{"DEBUG": "yes"},
			wantKey: []string{"DEBUG"},
		},
		{
			name:    "list of non-strings",
			values:  map[string]any{"INSTALLED_APPS": []any{"a", 1}},
			wantKey: []string{"INSTALLED_APPS"},
		},
		{
			name:    "bad language code",
			values:  map[string]any{"LANGUAGE_CODE": "English"},
			wantKey: []string{"LANGUAGE_CODE"},
		},
		{
			name: "bad log level",
			values: map[string]any{"LOGGING": map[string]any{
				"level":   "loud",
				"loggers": map[string]any{"apps": "quiet"},
			}},
			wantKey: []string{"LOGGING"},
		},
		{
			name: "nested log level",
			values: map[string]any{"LOGGING": map[string]any{
				"loggers": map[string]any{"apps": "quiet"},
			}},
			wantKey: []string{"LOGGING"},
		},
		{
			name: "tracing exporter and sampling rate",
			values: map[string]any{"TRACING": map[string]any{
				"exporter":      "zipkin",
				"sampling_rate": 1.5,
			}},
			wantKey: []string{"TRACING"},
		},
		{
			name:   "unknown settings are allowed",
			values: map[string]any{"MY_SETTING": map[string]any{"anything": []any{1, "two"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newUserSettings(tt.values, WithDefaults(map[string]any{}))
			require.NoError(t, err)

			problems, err := Check(s)
			require.NoError(t, err)

			var keys []string
			for _, p := range problems {
				if len(keys) == 0 || keys[len(keys)-1] != p.Key {
					keys = append(keys, p.Key)
				}
				assert.NotEmpty(t, p.Message)
			}
			assert.Equal(t, tt.wantKey, keys)
		})
	}
}

func TestCheckError(t *testing.T) {
	s, err := newUserSettings(map[string]any{"DEBUG": "yes", "USE_TZ": 1}, WithDefaults(map[string]any{}))
	require.NoError(t, err)

	err = CheckError(s)
	require.Error(t, err)
	assert.True(t, core.IsConfiguration(err))
	assert.Contains(t, err.Error(), "Settings check found")
	assert.Contains(t, err.Error(), "DEBUG: ")
	assert.Contains(t, err.Error(), "USE_TZ: ")

	var cerr *core.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "DEBUG", cerr.Key)
}
