// Package modules is the process-wide table of named Go modules.
//
// Go cannot import a package from a dotted string at runtime, so packages that
// want to be addressable by name (app packages, their "apps" and "models"
// sub-modules, Go-defined settings modules) register a *Module from init().
// Importing a module runs its Init hook exactly once, after its parents.
package modules

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/gojango/gojango/pkg/core"
)

// Module is a named, importable unit of Go code.
type Module struct {
	// Name is the dotted module name, e.g. "contrib.staticfiles".
	Name string

	// Paths are the filesystem directories backing the module.
	Paths []string

	// File is the source file that registered the module.
	File string

	// Attrs are the values the module exports by name. Set it before
	// registering; use SetAttr afterwards.
	Attrs map[string]any

	// Init runs once, on first import.
	Init func() error

	once    sync.Once
	initErr error

	attrsMu sync.RWMutex
}

// Attr returns an exported attribute.
func (m *Module) Attr(name string) (any, bool) {
	m.attrsMu.RLock()
	defer m.attrsMu.RUnlock()
	v, ok := m.Attrs[name]
	return v, ok
}

// Exports returns a copy of the exported attributes.
func (m *Module) Exports() map[string]any {
	m.attrsMu.RLock()
	defer m.attrsMu.RUnlock()
	out := make(map[string]any, len(m.Attrs))
	for k, v := range m.Attrs {
		out[k] = v
	}
	return out
}

// String implements fmt.Stringer.
func (m *Module) String() string {
	if m.File != "" {
		return fmt.Sprintf("<module '%s' from '%s'>", m.Name, m.File)
	}
	return fmt.Sprintf("<module '%s'>", m.Name)
}

func (m *Module) load() error {
	m.once.Do(func() {
		if m.Init != nil {
			m.initErr = m.Init()
		}
	})
	return m.initErr
}

// Table maps module names to modules.
type Table struct {
	mu      sync.RWMutex
	modules map[string]*Module
}

// NewTable creates an empty module table.
func NewTable() *Table {
	return &Table{modules: make(map[string]*Module)}
}

// Register adds a module. Registering the same name twice is an error.
func (t *Table) Register(m *Module) error {
	if m == nil || m.Name == "" {
		return fmt.Errorf("modules: module name is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.modules[m.Name]; exists {
		return fmt.Errorf("modules: %s already registered", m.Name)
	}
	t.modules[m.Name] = m
	return nil
}

// MustRegister registers a module and panics on error.
func (t *Table) MustRegister(m *Module) *Module {
	if err := t.Register(m); err != nil {
		panic(err)
	}
	return m
}

// Unregister removes a module. Used by tests that install throwaway modules.
func (t *Table) Unregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.modules, name)
}

// Lookup returns a registered module without importing it.
func (t *Table) Lookup(name string) (*Module, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.modules[name]
	return m, ok
}

// Import imports the named module, importing its parent packages first.
func (t *Table) Import(name string) (*Module, error) {
	if name == "" {
		return nil, core.NewImportError(name, "Empty module name")
	}

	parts := strings.Split(name, ".")
	var mod *Module
	for i := range parts {
		prefix := strings.Join(parts[:i+1], ".")
		m, ok := t.Lookup(prefix)
		if !ok {
			// Parents are optional namespaces; only the target must exist.
			if i < len(parts)-1 {
				continue
			}
			return nil, core.NewImportError(name, "No module named '%s'", name)
		}
		if err := m.load(); err != nil {
			return nil, core.NewImportError(prefix, "Error importing module '%s'", prefix).Wrap(err)
		}
		mod = m
	}
	return mod, nil
}

// HasSubmodule reports whether pkg has a registered sub-module named sub.
func (t *Table) HasSubmodule(pkg *Module, sub string) bool {
	if pkg == nil {
		return false
	}
	_, ok := t.Lookup(pkg.Name + "." + sub)
	return ok
}

// ImportString imports a dotted path and returns the attribute designated
// by its last component.
func (t *Table) ImportString(dotted string) (any, error) {
	modPath, attr, ok := cutLast(dotted)
	if !ok {
		return nil, core.NewImportError(dotted, "%s doesn't look like a module path", dotted)
	}

	mod, err := t.Import(modPath)
	if err != nil {
		return nil, err
	}

	v, ok := mod.Attr(attr)
	if !ok {
		return nil, core.NewImportError(modPath, "Module '%s' does not define a '%s' attribute/class", modPath, attr)
	}
	return v, nil
}

// Names returns every registered module name, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.modules))
	for name := range t.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetAttr exports a value from a registered module.
func (t *Table) SetAttr(module, name string, value any) error {
	m, ok := t.Lookup(module)
	if !ok {
		return fmt.Errorf("modules: %s is not registered", module)
	}

	m.attrsMu.Lock()
	defer m.attrsMu.Unlock()
	if m.Attrs == nil {
		m.Attrs = make(map[string]any)
	}
	m.Attrs[name] = value
	return nil
}

// cutLast splits "a.b.C" into "a.b" and "C".
func cutLast(dotted string) (string, string, bool) {
	i := strings.LastIndex(dotted, ".")
	if i <= 0 || i == len(dotted)-1 {
		return "", "", false
	}
	return dotted[:i], dotted[i+1:], true
}

// Here returns the directory and file of the caller, for use as a module's
// filesystem location.
func Here() (dir string, file string) {
	_, file, _, ok := runtime.Caller(1)
	if !ok {
		return "", ""
	}
	return filepath.Dir(file), file
}

// Default is the process-wide module table.
var Default = NewTable()

// Register adds a module to the default table.
func Register(m *Module) error { return Default.Register(m) }

// MustRegister adds a module to the default table and panics on error.
func MustRegister(m *Module) *Module { return Default.MustRegister(m) }

// Import imports a module from the default table.
func Import(name string) (*Module, error) { return Default.Import(name) }

// ImportString resolves a dotted attribute path in the default table.
func ImportString(dotted string) (any, error) { return Default.ImportString(dotted) }

// HasSubmodule reports whether pkg has a sub-module in the default table.
func HasSubmodule(pkg *Module, sub string) bool { return Default.HasSubmodule(pkg, sub) }

// Lookup returns a module from the default table without importing it.
func Lookup(name string) (*Module, bool) { return Default.Lookup(name) }

// SetAttr exports a value from a module in the default table.
func SetAttr(module, name string, value any) error { return Default.SetAttr(module, name, value) }
