package conf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator executes Starlark settings modules.
type StarlarkEvaluator struct {
	timeout time.Duration
	baseDir string

	// loaded caches modules pulled in with load(), per evaluation.
	loaded map[string]*loadEntry
}

type loadEntry struct {
	globals starlark.StringDict
	err     error
}

// NewStarlarkEvaluator creates a new Starlark evaluator. Files passed to
// load() resolve against baseDir.
func NewStarlarkEvaluator(timeout time.Duration, baseDir string) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
		baseDir: baseDir,
	}
}

// EvaluateFile executes the Starlark file at path and returns its globals.
func (se *StarlarkEvaluator) EvaluateFile(ctx context.Context, path string) (map[string]any, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return se.Evaluate(ctx, path, src)
}

// Evaluate executes a Starlark script. Evaluation stops when ctx is done or
// the evaluator timeout expires.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename string, src []byte) (map[string]any, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	se.loaded = make(map[string]*loadEntry)
	thread := se.newThread(filename)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(evalCtx.Err().Error())
		case <-done:
		}
	}()

	globals, err := starlark.ExecFile(thread, filename, src, se.predeclared())
	if err != nil {
		if ctxErr := evalCtx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("starlark execution of %s stopped: %w", filename, ctxErr)
		}
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]any, len(globals))
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if errors.Is(err, errSkipValue) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s: %w", name, err)
		}
		output[name] = goVal
	}
	return output, nil
}

func (se *StarlarkEvaluator) newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			log.Debug().Str("component", "settings").Str("file", name).Msg(msg)
		},
		Load: se.load,
	}
}

// load implements load("other.star", "NAME") relative to the base dir.
func (se *StarlarkEvaluator) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	path := module
	if !filepath.IsAbs(path) {
		path = filepath.Join(se.baseDir, filepath.FromSlash(module))
	}

	if e, ok := se.loaded[path]; ok {
		if e == nil {
			return nil, fmt.Errorf("cycle in load graph at %s", module)
		}
		return e.globals, e.err
	}
	se.loaded[path] = nil

	src, err := os.ReadFile(path)
	if err != nil {
		se.loaded[path] = &loadEntry{err: err}
		return nil, err
	}

	child := se.newThread(path)
	child.SetLocal("parent", thread)
	globals, err := starlark.ExecFile(child, path, src, se.predeclared())
	se.loaded[path] = &loadEntry{globals: globals, err: err}
	return globals, err
}

func (se *StarlarkEvaluator) predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct":   starlark.NewBuiltin("struct", starlarkstruct.Make),
		"env":      starlark.NewBuiltin("env", builtinEnv),
		"BASE_DIR": starlark.String(se.baseDir),
	}
}

// builtinEnv implements env(name, default=None).
func builtinEnv(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var def starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv(name); ok {
		return starlark.String(v), nil
	}
	return def, nil
}

// errSkipValue marks top-level helpers, such as functions, that are not
// settings values.
var errSkipValue = errors.New("not a settings value")

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		return fromStarlarkIterable(val, val.Len())
	case starlark.Tuple:
		return fromStarlarkIterable(val, val.Len())
	case *starlark.Dict:
		dict := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	case *starlark.Function, *starlark.Builtin:
		return nil, errSkipValue
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func fromStarlarkIterable(it starlark.Indexable, n int) (any, error) {
	list := make([]any, n)
	for i := 0; i < n; i++ {
		item, err := fromStarlarkValue(it.Index(i))
		if err != nil {
			return nil, err
		}
		list[i] = item
	}
	return list, nil
}
