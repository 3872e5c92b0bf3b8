// Package core holds the error taxonomy shared by the registry, the settings
// layer and the management utility.
package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure of the registry or settings layer.
type ErrorKind string

const (
	// KindConfiguration is a user-facing misconfiguration: invalid app entries,
	// duplicate labels, malformed settings, invalid timezone, empty secret.
	KindConfiguration ErrorKind = "configuration"

	// KindNotReady means the registry was queried before the relevant phase
	// completed. It signals a usage-order bug in the caller.
	KindNotReady ErrorKind = "not_ready"

	// KindReentrancy is raised for recursive or concurrent populate calls.
	KindReentrancy ErrorKind = "reentrancy"

	// KindImport is a module resolution failure surfaced verbatim.
	KindImport ErrorKind = "import"

	// KindLookup means a named app, model or command does not exist.
	KindLookup ErrorKind = "lookup"
)

// Error is a classified error carrying the offending identifier.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable message. It always names the offending
	// app, module or setting.
	Message string `json:"message"`

	// Key is the setting key, app label or module name involved, if any.
	Key string `json:"key,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Key == "" || e.Key == t.Key)
}

// WithKey records the offending identifier.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewNotReadyError creates a not-ready error.
func NewNotReadyError(message string) *Error {
	return &Error{Kind: KindNotReady, Message: message}
}

// NewReentrancyError creates a reentrancy error.
func NewReentrancyError(message string, err error) *Error {
	return &Error{Kind: KindReentrancy, Message: message, Err: err}
}

// NewImportError creates an import resolution error for the named module.
func NewImportError(module string, format string, args ...any) *Error {
	return &Error{Kind: KindImport, Message: fmt.Sprintf(format, args...), Key: module}
}

// NewLookupError creates a lookup error for the named key.
func NewLookupError(key string, format string, args ...any) *Error {
	return &Error{Kind: KindLookup, Message: fmt.Sprintf(format, args...), Key: key}
}

// Sentinels usable with errors.Is.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrNotReady      = &Error{Kind: KindNotReady}
	ErrReentrancy    = &Error{Kind: KindReentrancy}
	ErrImport        = &Error{Kind: KindImport}
	ErrLookup        = &Error{Kind: KindLookup}
)

func isKind(err error, kind ErrorKind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsConfiguration reports whether err is or wraps a configuration error.
func IsConfiguration(err error) bool {
	return isKind(err, KindConfiguration)
}

// IsNotReady reports whether err is or wraps a not-ready error.
func IsNotReady(err error) bool {
	return isKind(err, KindNotReady)
}

// IsReentrancy reports whether err is or wraps a reentrancy error.
func IsReentrancy(err error) bool {
	return isKind(err, KindReentrancy)
}

// IsImport reports whether err is or wraps an import error.
func IsImport(err error) bool {
	return isKind(err, KindImport)
}

// IsLookup reports whether err is or wraps a lookup error.
func IsLookup(err error) bool {
	return isKind(err, KindLookup)
}
