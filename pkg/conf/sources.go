package conf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gojango/gojango/pkg/core"
)

// PathEnvironmentVariable lists extra directories searched for settings
// modules, separated like PATH.
const PathEnvironmentVariable = "GOJANGO_PATH"

// Source kinds.
const (
	SourceGo       = "go"
	SourceStarlark = "starlark"
	SourceYAML     = "yaml"
)

// Source records where a settings module was loaded from.
type Source struct {
	// Module is the dotted module name.
	Module string

	// Kind is one of SourceGo, SourceStarlark or SourceYAML.
	Kind string

	// Path is the file the module was read from, if any.
	Path string
}

var moduleExtensions = []struct {
	ext  string
	kind string
}{
	{".star", SourceStarlark},
	{".yaml", SourceYAML},
	{".yml", SourceYAML},
}

// searchDirs returns GOJANGO_PATH entries, then configured directories,
// then the working directory.
func (o *options) searchDirs() []string {
	var dirs []string
	if env := os.Getenv(PathEnvironmentVariable); env != "" {
		for _, d := range filepath.SplitList(env) {
			if d != "" {
				dirs = append(dirs, d)
			}
		}
	}
	dirs = append(dirs, o.searchPath...)
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	return dirs
}

// loadModule resolves a settings module name to its values: a module
// registered in the module table first, then a Starlark or YAML file on the
// search path.
func loadModule(ctx context.Context, name string, o *options) (map[string]any, Source, error) {
	src := Source{Module: name}

	if _, ok := o.modules.Lookup(name); ok {
		mod, err := o.modules.Import(name)
		if err != nil {
			return nil, src, err
		}
		values := mod.Exports()
		src.Kind = SourceGo
		src.Path = mod.File
		return values, src, nil
	}

	rel := filepath.FromSlash(strings.ReplaceAll(name, ".", "/"))
	for _, dir := range o.searchDirs() {
		for _, candidate := range moduleExtensions {
			path := filepath.Join(dir, rel+candidate.ext)
			if _, err := os.Stat(path); err != nil {
				continue
			}

			src.Kind = candidate.kind
			src.Path = path

			var (
				values map[string]any
				err    error
			)
			if candidate.kind == SourceStarlark {
				values, err = NewStarlarkEvaluator(o.timeout, dir).EvaluateFile(ctx, path)
			} else {
				values, err = loadYAML(path)
			}
			if err != nil {
				return nil, src, core.NewImportError(name, "Error importing settings module '%s'", name).Wrap(err)
			}
			return values, src, nil
		}
	}

	return nil, src, core.NewImportError(name, "No module named '%s'", name)
}

func loadYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return values, nil
}
