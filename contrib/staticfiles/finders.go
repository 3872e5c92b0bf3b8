package staticfiles

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gojango/gojango/pkg/apps"
	"github.com/gojango/gojango/pkg/conf"
	"github.com/gojango/gojango/pkg/core"
	"github.com/gojango/gojango/pkg/modules"
)

// DefaultIgnorePatterns are skipped by collectstatic unless disabled.
var DefaultIgnorePatterns = []string{"CVS", ".*", "*~"}

// AppStaticDir is the per-app directory searched by AppDirectoriesFinder.
const AppStaticDir = "static"

// Found is a static file located by a finder.
type Found struct {
	// Path is the slash-separated path relative to the source root.
	Path string `json:"path"`

	// Source is the absolute filesystem path of the file.
	Source string `json:"source"`

	// Root is the directory the file was found under.
	Root string `json:"root"`
}

// Finder locates static files.
type Finder interface {
	// Find returns every match of the relative path, in search order.
	Find(path string) ([]Found, error)

	// List returns every file not matching an ignore pattern.
	List(ignore []string) ([]Found, error)

	// Roots returns the directories searched.
	Roots() []string
}

// FinderFactory builds a finder from settings and the app registry.
type FinderFactory func(settings *conf.LazySettings, registry *apps.Registry) (Finder, error)

// dirFinder searches an ordered list of roots.
type dirFinder struct {
	roots []string
}

// NewFileSystemFinder searches STATICFILES_DIRS.
func NewFileSystemFinder(settings *conf.LazySettings, _ *apps.Registry) (Finder, error) {
	dirs, err := settings.GetStrings("STATICFILES_DIRS")
	if err != nil {
		return nil, err
	}
	staticRoot, err := settings.GetString("STATIC_ROOT")
	if err != nil {
		return nil, err
	}

	roots := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if staticRoot != "" && filepath.Clean(dir) == filepath.Clean(staticRoot) {
			return nil, core.NewConfigurationError(
				"The STATICFILES_DIRS setting should not contain the STATIC_ROOT setting.").WithKey("STATICFILES_DIRS")
		}
		roots = append(roots, dir)
	}
	return &dirFinder{roots: roots}, nil
}

// NewAppDirectoriesFinder searches the static directory of each installed
// app, in INSTALLED_APPS order.
func NewAppDirectoriesFinder(_ *conf.LazySettings, registry *apps.Registry) (Finder, error) {
	configs, err := registry.GetAppConfigs()
	if err != nil {
		return nil, err
	}

	var roots []string
	for _, c := range configs {
		if c.Path == "" {
			continue
		}
		dir := filepath.Join(c.Path, AppStaticDir)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			roots = append(roots, dir)
		}
	}
	return &dirFinder{roots: roots}, nil
}

func (f *dirFinder) Roots() []string {
	return append([]string(nil), f.roots...)
}

func (f *dirFinder) Find(path string) ([]Found, error) {
	rel, err := cleanRelative(path)
	if err != nil {
		return nil, err
	}

	var out []Found
	for _, root := range f.roots {
		full := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			continue
		}
		out = append(out, Found{Path: rel, Source: full, Root: root})
	}
	return out, nil
}

func (f *dirFinder) List(ignore []string) ([]Found, error) {
	var out []Found
	for _, root := range f.roots {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p != root && ignored(d.Name(), ignore) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			out = append(out, Found{Path: filepath.ToSlash(rel), Source: p, Root: root})
			return nil
		})
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", root, err)
		}
	}
	return out, nil
}

func ignored(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// cleanRelative rejects absolute paths and paths escaping the root.
func cleanRelative(path string) (string, error) {
	rel := filepath.ToSlash(filepath.Clean(filepath.FromSlash(path)))
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("static path %q must be relative to a static root", path)
	}
	return rel, nil
}

// Finders resolves STATICFILES_FINDERS through the module table.
func Finders(settings *conf.LazySettings, registry *apps.Registry) ([]Finder, error) {
	names, err := settings.GetStrings("STATICFILES_FINDERS")
	if err != nil {
		return nil, err
	}

	finders := make([]Finder, 0, len(names))
	for _, name := range names {
		v, err := modules.ImportString(name)
		if err != nil {
			return nil, err
		}
		factory, ok := v.(FinderFactory)
		if !ok {
			return nil, core.NewConfigurationError(
				"Finder '%s' is not a subclass of 'BaseFinder'.", name).WithKey("STATICFILES_FINDERS")
		}
		f, err := factory(settings, registry)
		if err != nil {
			return nil, err
		}
		finders = append(finders, f)
	}
	return finders, nil
}

// Find returns the first match of path across finders, or every match when
// all is set.
func Find(finders []Finder, path string, all bool) ([]Found, error) {
	var out []Found
	for _, f := range finders {
		matches, err := f.Find(path)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 && !all {
			return matches[:1], nil
		}
		out = append(out, matches...)
	}
	return out, nil
}
