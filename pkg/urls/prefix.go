// Package urls tracks the script prefix, the path under which the
// application is mounted.
package urls

import (
	"context"
	"strings"
	"sync/atomic"
)

var defaultPrefix atomic.Value

type prefixKey struct{}

func normalize(prefix string) string {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// SetScriptPrefix sets the process-wide script prefix. A trailing slash is
// added if missing.
func SetScriptPrefix(prefix string) {
	defaultPrefix.Store(normalize(prefix))
}

// ScriptPrefix returns the process-wide script prefix, "/" when unset.
func ScriptPrefix() string {
	if p, ok := defaultPrefix.Load().(string); ok {
		return p
	}
	return "/"
}

// WithScriptPrefix returns a context carrying a request-scoped prefix.
func WithScriptPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, prefixKey{}, normalize(prefix))
}

// ScriptPrefixFrom returns the prefix carried by ctx, falling back to the
// process-wide prefix.
func ScriptPrefixFrom(ctx context.Context) string {
	if ctx != nil {
		if p, ok := ctx.Value(prefixKey{}).(string); ok {
			return p
		}
	}
	return ScriptPrefix()
}

// ClearScriptPrefix resets the process-wide prefix to "/".
func ClearScriptPrefix() {
	defaultPrefix.Store("/")
}
