package autoreload

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gojango/gojango/pkg/core"
	"github.com/gojango/gojango/pkg/modules"
)

type templateError struct {
	file string
}

func (e *templateError) Error() string    { return "bad template " + e.file }
func (e *templateError) Filename() string { return e.file }

func TestCheckErrors(t *testing.T) {
	ResetErrors()
	t.Cleanup(ResetErrors)

	ok := CheckErrors(func() error { return nil })
	require.NoError(t, ok())
	assert.Empty(t, ErrorFiles())
	assert.Nil(t, LastError())

	boom := errors.New("boom")
	failing := CheckErrors(func() error { return boom })
	assert.Same(t, boom, failing())
	assert.Same(t, boom, failing())

	files := ErrorFiles()
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], "errors_test.go"), files[0])
	assert.Same(t, boom, LastError())
}

func TestCheckErrors_Filename(t *testing.T) {
	ResetErrors()
	t.Cleanup(ResetErrors)

	err := CheckErrors(func() error {
		return &templateError{file: "/srv/site/templates/index.html"}
	})()
	require.Error(t, err)

	require.NoError(t, modules.Register(&modules.Module{Name: "autoreload_test.broken", File: "/srv/site/broken.go"}))
	t.Cleanup(func() { modules.Default.Unregister("autoreload_test.broken") })

	err = CheckErrors(func() error {
		return core.NewImportError("autoreload_test.broken", "No module named 'autoreload_test.broken.models'")
	})()
	require.Error(t, err)

	assert.Equal(t, []string{"/srv/site/templates/index.html", "/srv/site/broken.go"}, ErrorFiles())
}
