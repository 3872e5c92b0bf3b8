package management

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
)

// CoreApp is the app name under which built-in commands are listed.
const CoreApp = "gojango"

// Factory builds a command bound to the running utility.
type Factory func(u *Utility) *cobra.Command

type commandEntry struct {
	app     string
	factory Factory
}

var (
	commandsMu  sync.RWMutex
	appCommands = make(map[string]map[string]Factory)
)

// RegisterCommand contributes the command name to the app appName. It is
// listed and runnable only while appName is installed. App packages call it
// from init.
func RegisterCommand(appName, name string, factory Factory) error {
	if appName == "" || name == "" || factory == nil {
		return fmt.Errorf("command registration needs an app name, a command name and a factory")
	}
	if appName == CoreApp {
		return fmt.Errorf("app name %q is reserved for built-in commands", CoreApp)
	}

	commandsMu.Lock()
	defer commandsMu.Unlock()

	cmds, ok := appCommands[appName]
	if !ok {
		cmds = make(map[string]Factory)
		appCommands[appName] = cmds
	}
	if _, exists := cmds[name]; exists {
		return fmt.Errorf("command %q is already registered for app %q", name, appName)
	}
	cmds[name] = factory
	return nil
}

// MustRegisterCommand is RegisterCommand that panics on error.
func MustRegisterCommand(appName, name string, factory Factory) {
	if err := RegisterCommand(appName, name, factory); err != nil {
		panic(err)
	}
}

func unregisterCommands(appName string) {
	commandsMu.Lock()
	defer commandsMu.Unlock()
	delete(appCommands, appName)
}

func coreCommands() map[string]Factory {
	return map[string]Factory{
		"check":        newCheckCommand,
		"diffsettings": newDiffSettingsCommand,
		"metrics":      newMetricsCommand,
		"showapps":     newShowAppsCommand,
		"version":      newVersionCommand,
		"watch":        newWatchCommand,
	}
}

// commands returns every available command. Without configured settings
// only built-in commands are returned. Commands of apps listed earlier in
// INSTALLED_APPS win over later ones.
func (u *Utility) commands() map[string]commandEntry {
	out := make(map[string]commandEntry)
	for name, f := range coreCommands() {
		out[name] = commandEntry{app: CoreApp, factory: f}
	}

	if !u.settings.Configured() || !u.registry.AppsReady() {
		return out
	}
	configs, err := u.registry.GetAppConfigs()
	if err != nil {
		return out
	}

	commandsMu.RLock()
	defer commandsMu.RUnlock()
	for i := len(configs) - 1; i >= 0; i-- {
		app := configs[i].Name
		for name, f := range appCommands[app] {
			out[name] = commandEntry{app: app, factory: f}
		}
	}
	return out
}

// Commands returns the available command names mapped to the app that
// provides them.
func (u *Utility) Commands() map[string]string {
	out := make(map[string]string)
	for name, e := range u.commands() {
		out[name] = e.app
	}
	return out
}

// MainHelpText returns the top-level help: the available commands grouped
// by app, or just their names when commandsOnly is set.
func (u *Utility) MainHelpText(commandsOnly bool) string {
	cmds := u.Commands()

	if commandsOnly {
		names := make([]string, 0, len(cmds))
		for name := range cmds {
			names = append(names, name)
		}
		sort.Strings(names)
		return strings.Join(names, "\n")
	}

	usage := []string{
		"",
		fmt.Sprintf("Type '%s help <subcommand>' for help on a specific subcommand.", u.progName),
		"",
		"Available subcommands:",
	}

	groups := make(map[string][]string)
	for name, app := range cmds {
		if app != CoreApp {
			app = app[strings.LastIndex(app, ".")+1:]
		}
		groups[app] = append(groups[app], name)
	}
	appNames := make([]string, 0, len(groups))
	for app := range groups {
		appNames = append(appNames, app)
	}
	sort.Strings(appNames)

	style := newStyle()
	for _, app := range appNames {
		usage = append(usage, "", style.notice("[%s]", app))
		names := groups[app]
		sort.Strings(names)
		for _, name := range names {
			usage = append(usage, "    "+name)
		}
	}

	if u.settingsErr != nil {
		usage = append(usage, style.notice(
			"Note that only %s core commands are listed as settings are not properly configured (error: %s).",
			CoreApp, u.settingsErr))
	}
	return strings.Join(usage, "\n")
}
