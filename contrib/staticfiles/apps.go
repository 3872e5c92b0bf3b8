// Package staticfiles is an installable app that gathers static assets from
// STATICFILES_DIRS and from the "static" directory of every installed app.
//
// The finders named by STATICFILES_FINDERS are resolved through the module
// table, so projects can register their own.
package staticfiles

import (
	"context"

	"github.com/gojango/gojango/pkg/apps"
	"github.com/gojango/gojango/pkg/management"
	"github.com/gojango/gojango/pkg/modules"
	"github.com/gojango/gojango/pkg/telemetry"
)

const (
	// AppName is the INSTALLED_APPS entry of the app.
	AppName = "contrib.staticfiles"

	// FindersModule exports the built-in finder factories.
	FindersModule = AppName + ".finders"
)

// Config is the app's default config class.
var Config = &apps.ConfigClass{
	Name:        "StaticFilesConfig",
	Module:      AppName + "." + apps.AppsModuleName,
	AppName:     AppName,
	VerboseName: "Static Files",
	Ready:       ready,
}

func init() {
	dir, file := modules.Here()
	modules.MustRegister(&modules.Module{Name: AppName, Paths: []string{dir}, File: file})
	modules.MustRegister(&modules.Module{Name: Config.Module, File: file})
	modules.MustRegister(&modules.Module{
		Name: FindersModule,
		File: file,
		Attrs: map[string]any{
			"FileSystemFinder":     FinderFactory(NewFileSystemFinder),
			"AppDirectoriesFinder": FinderFactory(NewAppDirectoriesFinder),
		},
	})
	apps.MustRegisterConfigClass(Config)

	management.MustRegisterCommand(AppName, "collectstatic", newCollectStaticCommand)
	management.MustRegisterCommand(AppName, "findstatic", newFindStaticCommand)
}

func ready(ctx context.Context, cfg *apps.AppConfig) error {
	if _, err := modules.Import(FindersModule); err != nil {
		return err
	}
	telemetry.Component("staticfiles").Debug().
		Strs("ignore_patterns", DefaultIgnorePatterns).
		Msg("static files ready")
	return nil
}
