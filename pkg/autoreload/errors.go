package autoreload

import (
	"errors"
	"reflect"
	"runtime"
	"slices"
	"sync"

	"github.com/gojango/gojango/pkg/core"
	"github.com/gojango/gojango/pkg/modules"
)

// FileError is implemented by errors that know which file caused them.
type FileError interface {
	error
	Filename() string
}

var (
	errorsMu   sync.Mutex
	errorFiles []string
	lastErr    error
)

// CheckErrors wraps fn so that a failure is remembered together with the
// file that caused it. The reloader watches those files, so fixing the file
// restarts the process. The error is returned unchanged.
func CheckErrors(fn func() error) func() error {
	return func() error {
		err := fn()
		if err == nil {
			return nil
		}

		file := errorFilename(err, fn)

		errorsMu.Lock()
		defer errorsMu.Unlock()
		lastErr = err
		if file != "" && !slices.Contains(errorFiles, file) {
			errorFiles = append(errorFiles, file)
		}
		return err
	}
}

// errorFilename returns the file named by err, the file of the module an
// import error refers to, or the file fn is defined in.
func errorFilename(err error, fn func() error) string {
	var fe FileError
	if errors.As(err, &fe) && fe.Filename() != "" {
		return fe.Filename()
	}

	var ce *core.Error
	if errors.As(err, &ce) && ce.Kind == core.KindImport && ce.Key != "" {
		if mod, ok := modules.Lookup(ce.Key); ok && mod.File != "" {
			return mod.File
		}
	}

	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		file, _ := f.FileLine(f.Entry())
		return file
	}
	return ""
}

// ErrorFiles returns the files that caused failures so far, in order.
func ErrorFiles() []string {
	errorsMu.Lock()
	defer errorsMu.Unlock()
	return append([]string(nil), errorFiles...)
}

// LastError returns the most recent failure recorded by CheckErrors.
func LastError() error {
	errorsMu.Lock()
	defer errorsMu.Unlock()
	return lastErr
}

// ResetErrors forgets recorded failures.
func ResetErrors() {
	errorsMu.Lock()
	defer errorsMu.Unlock()
	errorFiles = nil
	lastErr = nil
}
