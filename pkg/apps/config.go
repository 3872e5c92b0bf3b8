package apps

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/gojango/gojango/pkg/core"
	"github.com/gojango/gojango/pkg/modules"
)

const (
	// AppsModuleName is the sub-module scanned for config classes.
	AppsModuleName = "apps"

	// ModelsModuleName is the sub-module imported in the models phase.
	ModelsModuleName = "models"
)

// DefaultMarker records whether a config class opted in or out of being the
// default config of its app.
type DefaultMarker int

const (
	// DefaultUnset leaves the choice to the number of candidates.
	DefaultUnset DefaultMarker = iota
	// DefaultTrue marks the class as the app's default config.
	DefaultTrue
	// DefaultFalse excludes the class from automatic selection.
	DefaultFalse
)

// ConfigClass customizes how an app unit is configured. Classes register
// themselves with RegisterConfigClass, keyed by their declaring module.
type ConfigClass struct {
	// Name is the class name, e.g. "StaticFilesConfig".
	Name string

	// Module is the dotted name of the declaring module, e.g.
	// "contrib.staticfiles.apps".
	Module string

	// AppName is the canonical name of the app the class configures.
	AppName string

	// Label overrides the label derived from AppName.
	Label string

	// VerboseName overrides the title-cased label.
	VerboseName string

	// Path overrides the filesystem location of the app.
	Path string

	// Default opts in or out of automatic selection.
	Default DefaultMarker

	// Ready runs in the last populate phase.
	Ready func(ctx context.Context, cfg *AppConfig) error
}

// QualifiedName returns "module.Name".
func (c *ConfigClass) QualifiedName() string {
	return c.Module + "." + c.Name
}

// baseClass configures apps that declare no class of their own.
var baseClass = &ConfigClass{Name: "AppConfig", Module: "gojango.apps"}

var classes = struct {
	sync.RWMutex
	byModule map[string][]*ConfigClass
}{byModule: make(map[string][]*ConfigClass)}

// RegisterConfigClass adds a config class to the table of its declaring
// module and exports it as a module attribute when the module is
// registered.
func RegisterConfigClass(c *ConfigClass) error {
	if c == nil || c.Name == "" || c.Module == "" {
		return fmt.Errorf("apps: config class requires a name and a module")
	}

	classes.Lock()
	for _, existing := range classes.byModule[c.Module] {
		if existing.Name == c.Name {
			classes.Unlock()
			return fmt.Errorf("apps: config class %s already registered", c.QualifiedName())
		}
	}
	classes.byModule[c.Module] = append(classes.byModule[c.Module], c)
	classes.Unlock()

	if _, ok := modules.Lookup(c.Module); ok {
		_ = modules.SetAttr(c.Module, c.Name, c)
	}
	return nil
}

// MustRegisterConfigClass registers a config class and panics on error.
func MustRegisterConfigClass(c *ConfigClass) *ConfigClass {
	if err := RegisterConfigClass(c); err != nil {
		panic(err)
	}
	return c
}

// ConfigClasses returns the classes declared by module, in registration
// order.
func ConfigClasses(module string) []*ConfigClass {
	classes.RLock()
	defer classes.RUnlock()

	out := make([]*ConfigClass, len(classes.byModule[module]))
	copy(out, classes.byModule[module])
	return out
}

func lookupClass(dotted string) (*ConfigClass, bool) {
	i := strings.LastIndex(dotted, ".")
	if i <= 0 {
		return nil, false
	}
	for _, c := range ConfigClasses(dotted[:i]) {
		if c.Name == dotted[i+1:] {
			return c, true
		}
	}
	return nil, false
}

// unregisterConfigClasses drops every class of module.
func unregisterConfigClasses(module string) {
	classes.Lock()
	defer classes.Unlock()
	delete(classes.byModule, module)
}

// AppConfig is one configured app unit.
type AppConfig struct {
	// Name is the canonical dotted name, e.g. "contrib.staticfiles".
	Name string

	// Label is the short unique identifier of the app.
	Label string

	// VerboseName is the human-readable name.
	VerboseName string

	// Path is the directory backing the app.
	Path string

	// Module is the app's root module.
	Module *modules.Module

	// ModelsModule is the imported models sub-module, nil if the app has none.
	ModelsModule *modules.Module

	// Apps is the registry holding this config. Set during populate.
	Apps *Registry

	// Class is the config class the app was built from.
	Class *ConfigClass

	models *ModelTable
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewAppConfig builds the config of app name backed by module. A nil class
// uses the base config.
func NewAppConfig(name string, module *modules.Module, class *ConfigClass) (*AppConfig, error) {
	if class == nil {
		class = baseClass
	}

	cfg := &AppConfig{
		Name:   name,
		Module: module,
		Class:  class,
	}

	cfg.Label = class.Label
	if cfg.Label == "" {
		cfg.Label = name[strings.LastIndex(name, ".")+1:]
	}
	if !identifierRe.MatchString(cfg.Label) {
		return nil, core.NewConfigurationError("The app label '%s' is not a valid identifier.", cfg.Label).WithKey(cfg.Label)
	}

	cfg.VerboseName = class.VerboseName
	if cfg.VerboseName == "" {
		cfg.VerboseName = title(cfg.Label)
	}

	cfg.Path = class.Path
	if cfg.Path == "" {
		path, err := pathFromModule(name, module)
		if err != nil {
			return nil, err
		}
		cfg.Path = path
	}

	return cfg, nil
}

// pathFromModule resolves the single directory backing module.
func pathFromModule(name string, module *modules.Module) (string, error) {
	if module == nil {
		return "", core.NewConfigurationError(
			"The app module '%s' has no filesystem location, you must configure this app "+
				"with a ConfigClass that sets Path.", name).WithKey(name)
	}

	paths := module.Paths
	if len(paths) != 1 {
		if module.File != "" {
			paths = []string{filepath.Dir(module.File)}
		} else {
			paths = dedupe(paths)
		}
	}

	switch {
	case len(paths) > 1:
		return "", core.NewConfigurationError(
			"The app module %s has multiple filesystem locations (%s); you must configure "+
				"this app with a ConfigClass that sets Path.", module, strings.Join(paths, ", ")).WithKey(name)
	case len(paths) == 0:
		return "", core.NewConfigurationError(
			"The app module %s has no filesystem location, you must configure this app "+
				"with a ConfigClass that sets Path.", module).WithKey(name)
	}
	return paths[0], nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// title upper-cases the first letter of every run of letters and
// lower-cases the rest.
func title(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToTitle(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

// String returns "<ClassName: label>".
func (c *AppConfig) String() string {
	return fmt.Sprintf("<%s: %s>", c.Class.Name, c.Label)
}

// CreateFromEntry resolves one INSTALLED_APPS entry against the default
// module table.
func CreateFromEntry(entry string) (*AppConfig, error) {
	return createFromEntry(modules.Default, entry)
}

func createFromEntry(table *modules.Table, entry string) (*AppConfig, error) {
	var (
		class     *ConfigClass
		appName   string
		appModule *modules.Module
	)

	mod, importErr := table.Import(entry)
	if importErr == nil {
		appModule = mod
		if table.HasSubmodule(mod, AppsModuleName) {
			modPath := entry + "." + AppsModuleName
			if _, err := table.Import(modPath); err != nil {
				return nil, err
			}

			var candidates []*ConfigClass
			for _, c := range ConfigClasses(modPath) {
				if c.Default != DefaultFalse {
					candidates = append(candidates, c)
				}
			}

			if len(candidates) == 1 {
				class = candidates[0]
			} else {
				var defaults []*ConfigClass
				for _, c := range candidates {
					if c.Default == DefaultTrue {
						defaults = append(defaults, c)
					}
				}
				switch {
				case len(defaults) > 1:
					return nil, core.NewConfigurationError(
						"'%s' declares more than one default AppConfig: %s.", modPath, quotedNames(defaults)).WithKey(modPath)
				case len(defaults) == 1:
					class = defaults[0]
				}
			}
		}

		if class == nil {
			class = baseClass
			appName = entry
		}
	}

	var resolved any
	if class == nil {
		if c, ok := lookupClass(entry); ok {
			resolved = c
		} else if v, err := table.ImportString(entry); err == nil {
			resolved = v
		}
	}

	if appModule == nil && resolved == nil {
		i := strings.LastIndex(entry, ".")
		if i > 0 && i < len(entry)-1 && unicode.IsUpper(rune(entry[i+1])) {
			modPath, clsName := entry[:i], entry[i+1:]
			if _, err := table.Import(modPath); err != nil {
				return nil, err
			}
			msg := fmt.Sprintf("Module '%s' does not contain a '%s' class.", modPath, clsName)
			if candidates := ConfigClasses(modPath); len(candidates) > 0 {
				msg += fmt.Sprintf(" Choices are: %s.", quotedNames(candidates))
			}
			return nil, core.NewImportError(modPath, "%s", msg)
		}
		return nil, importErr
	}

	if class == nil {
		c, ok := resolved.(*ConfigClass)
		if !ok || c == nil {
			return nil, core.NewConfigurationError("'%s' isn't a subclass of AppConfig.", entry).WithKey(entry)
		}
		class = c
	}

	if appName == "" {
		if class.AppName == "" {
			return nil, core.NewConfigurationError("'%s' must supply a name attribute.", entry).WithKey(entry)
		}
		appName = class.AppName
	}

	appModule, err := table.Import(appName)
	if err != nil {
		return nil, core.NewConfigurationError(
			"Cannot import '%s'. Check that '%s.name' is correct.", appName, class.QualifiedName()).WithKey(appName)
	}

	return NewAppConfig(appName, appModule, class)
}

func quotedNames(cs []*ConfigClass) string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, "'"+c.Name+"'")
	}
	return strings.Join(names, ", ")
}

// ImportModels binds the app to its model table in the registry and imports
// the models sub-module, whose Init registers the app's models.
func (c *AppConfig) ImportModels() error {
	if c.Apps == nil {
		return core.NewNotReadyError(fmt.Sprintf("App '%s' is not bound to a registry.", c.Label))
	}

	c.models = c.Apps.modelTable(c.Label)

	table := c.Apps.modules
	if table.HasSubmodule(c.Module, ModelsModuleName) {
		m, err := table.Import(c.Name + "." + ModelsModuleName)
		if err != nil {
			return err
		}
		c.ModelsModule = m
	}
	return nil
}

// Models returns the app's models, skipping auto-created and swapped models
// unless asked for.
func (c *AppConfig) Models(includeAutoCreated, includeSwapped bool) ([]*Model, error) {
	if err := c.checkModelsReady(); err != nil {
		return nil, err
	}
	return filterModels(c.models.All(), includeAutoCreated, includeSwapped), nil
}

// GetModel returns the model with the given case-insensitive name.
func (c *AppConfig) GetModel(name string) (*Model, error) {
	if err := c.checkModelsReady(); err != nil {
		return nil, err
	}
	m, ok := c.models.Get(name)
	if !ok {
		return nil, core.NewLookupError(name, "App '%s' doesn't have a '%s' model.", c.Label, name)
	}
	return m, nil
}

func (c *AppConfig) checkModelsReady() error {
	if c.Apps != nil {
		if err := c.Apps.checkModelsReady(); err != nil {
			return err
		}
	}
	if c.models == nil {
		return core.NewNotReadyError("Models aren't loaded yet.")
	}
	return nil
}

// ready runs the class's ready hook.
func (c *AppConfig) ready(ctx context.Context) error {
	if c.Class == nil || c.Class.Ready == nil {
		return nil
	}
	return c.Class.Ready(ctx, c)
}
