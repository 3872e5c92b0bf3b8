package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	require.NoError(t, err)
	return eng
}

func ids(vs []Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.ID)
	}
	return out
}

const strongKey = "k3Jx9-pQ2mZ8vL0wR7tY4uN6bH1cF5gD-sA3eW9iO2qX8zV0nM"

func TestNewEngine_Builtins(t *testing.T) {
	eng := newTestEngine(t)

	var names []string
	for _, p := range eng.ListPolicies() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"security", "urls"}, names)

	p, err := eng.GetPolicy("urls")
	require.NoError(t, err)
	assert.Equal(t, SeverityError, p.Severity)

	_, err = eng.GetPolicy("missing")
	assert.Error(t, err)
}

func TestEvaluate_URLs(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name     string
		settings map[string]any
		want     []string
	}{
		{name: "defaults", settings: map[string]any{"MEDIA_URL": "", "STATIC_URL": nil}},
		{name: "slashes", settings: map[string]any{"MEDIA_URL": "/media/", "STATIC_URL": "https://cdn.example/static/"}},
		{name: "static without slash", settings: map[string]any{"STATIC_URL": "/static"}, want: []string{"urls.E006"}},
		{name: "both without slash", settings: map[string]any{"MEDIA_URL": "/media", "STATIC_URL": "/static"}, want: []string{"urls.E006", "urls.E006"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.Evaluate(context.Background(), NewInput(tt.settings, nil, false))
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, result.Violations)
				return
			}
			assert.Equal(t, tt.want, ids(result.Errors()))
		})
	}
}

func TestEvaluate_URLMessage(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Evaluate(context.Background(), NewInput(map[string]any{"STATIC_URL": "/static"}, nil, false))
	require.NoError(t, err)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "The STATIC_URL setting must end with a slash.", result.Violations[0].Message)
	assert.Equal(t, "urls", result.Violations[0].Policy)
	assert.Equal(t, []string{"security", "urls"}, result.EvaluatedPolicies)
}

func TestEvaluate_Deploy(t *testing.T) {
	eng := newTestEngine(t)

	insecure := map[string]any{
		"DEBUG":         true,
		"SECRET_KEY":    "short",
		"ALLOWED_HOSTS": []any{},
	}

	result, err := eng.Evaluate(context.Background(), NewInput(insecure, nil, false))
	require.NoError(t, err)
	assert.Empty(t, result.Violations, "deployment checks only run on request")

	result, err = eng.Evaluate(context.Background(), NewInput(insecure, nil, true))
	require.NoError(t, err)
	assert.Equal(t, []string{"security.W009", "security.W018", "security.W020"}, ids(result.Warnings()))
	assert.Empty(t, result.Errors())

	secure := map[string]any{
		"DEBUG":         false,
		"SECRET_KEY":    strongKey,
		"ALLOWED_HOSTS": []any{"example.com"},
	}
	result, err = eng.Evaluate(context.Background(), NewInput(secure, nil, true))
	require.NoError(t, err)
	assert.Empty(t, result.Violations)
}

func TestEvaluate_WeakSecretKeys(t *testing.T) {
	eng := newTestEngine(t)

	tests := map[string]any{
		"too short":       "abc",
		"few unique":      strings.Repeat("ab", 30),
		"insecure prefix": "gojango-insecure-" + strongKey,
		"not a string":    42,
	}

	for name, key := range tests {
		t.Run(name, func(t *testing.T) {
			result, err := eng.Evaluate(context.Background(), NewInput(map[string]any{
				"SECRET_KEY":    key,
				"ALLOWED_HOSTS": []any{"example.com"},
			}, nil, true))
			require.NoError(t, err)
			assert.Equal(t, []string{"security.W009"}, ids(result.Violations))
			assert.NotEmpty(t, result.Violations[0].Hint)
		})
	}
}

func TestDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.DisablePolicy("urls"))

	result, err := eng.Evaluate(context.Background(), NewInput(map[string]any{"STATIC_URL": "/static"}, nil, false))
	require.NoError(t, err)
	assert.Empty(t, result.Violations)
	assert.Equal(t, []string{"security"}, result.EvaluatedPolicies)

	require.NoError(t, eng.EnablePolicy("urls"))
	assert.Error(t, eng.EnablePolicy("missing"))
}

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "team")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "apps.rego"), []byte(`package site.checks.apps

import rego.v1

deny contains violation if {
	not "contrib.staticfiles" in input.installed_apps
	violation := {"id": "site.E001", "message": "contrib.staticfiles must be installed."}
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a policy"), 0o644))

	eng := newTestEngine(t)
	require.NoError(t, eng.LoadPolicies(context.Background(), []string{dir}))

	p, err := eng.GetPolicy("apps")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(nested, "apps.rego"), p.Source)

	result, err := eng.Evaluate(context.Background(), NewInput(nil, []string{"blog"}, false))
	require.NoError(t, err)
	require.Len(t, result.Errors(), 1)
	assert.Equal(t, "site.E001", result.Errors()[0].ID)

	result, err = eng.Evaluate(context.Background(), NewInput(nil, []string{"contrib.staticfiles"}, false))
	require.NoError(t, err)
	assert.Empty(t, result.Violations)
}

func TestLoadPolicies_Errors(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.LoadPolicies(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.rego")
	require.NoError(t, os.WriteFile(bad, []byte("package broken\n\ndeny contains {"), 0o644))
	err = eng.LoadPolicies(context.Background(), []string{bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile policy bad")
}

func TestNewInput_SkipsValuesWithoutJSON(t *testing.T) {
	in := NewInput(map[string]any{
		"DEBUG": true,
		"HOOK":  func() {},
	}, []string{"a"}, true)

	assert.Equal(t, map[string]any{"DEBUG": true}, in.Settings)
	assert.Equal(t, []string{"a"}, in.InstalledApps)
	assert.True(t, in.Deploy)
}
