package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogging points the process logger at a buffer for one test.
func captureLogging(t *testing.T) *bytes.Buffer {
	t.Helper()
	restoreLogging(t)

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	return &buf
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, l.Zerolog().GetLevel())

	child := l.NewComponentLogger("apps").WithApp("auth", "gojango.contrib.auth").WithError(errors.New("x"))
	assert.Equal(t, zerolog.DebugLevel, child.Zerolog().GetLevel())
}

func TestLogger_Context(t *testing.T) {
	l, err := NewLogger(DefaultLoggingConfig())
	require.NoError(t, err)

	ctx := l.WithContext(context.Background())
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestLogger_Fields(t *testing.T) {
	buf := captureLogging(t)

	logger := FromContext(context.Background()).NewComponentLogger("management").WithField("command", "check")
	logger.WithApp("blog", "mysite.blog").Debugf("Listed %d models", 2)
	logger.WithError(errors.New("boom")).Warn("Setup failed")

	out := buf.String()
	assert.Contains(t, out, `"component":"management"`)
	assert.Contains(t, out, `"command":"check"`)
	assert.Contains(t, out, `"app_label":"blog"`)
	assert.Contains(t, out, `"message":"Listed 2 models"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestComponent(t *testing.T) {
	buf := captureLogging(t)

	Component("apps").Warn().Str("label", "blog").Msg("chained")
	assert.Contains(t, buf.String(), `"component":"apps"`)
	assert.Contains(t, buf.String(), `"label":"blog"`)

	buf.Reset()
	setComponentLevels(map[string]string{"apps": "error", "management": "disabled"})
	Component("apps").Warn().Msg("hidden")
	Component("apps").Error().Msg("shown")
	FromContext(context.Background()).NewComponentLogger("management").Info("hidden too")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.TraceLevel, parseLogLevel("trace"))
	assert.Equal(t, zerolog.Disabled, parseLogLevel("disabled"))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("whatever"))
}
