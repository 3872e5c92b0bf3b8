// Package contenttypes is an installable app that keeps a table of the
// models known to a registry, one content type per model.
//
// Install it with:
//
//	INSTALLED_APPS = ["contrib.contenttypes"]
package contenttypes

import (
	"context"

	"github.com/gojango/gojango/pkg/apps"
	"github.com/gojango/gojango/pkg/management"
	"github.com/gojango/gojango/pkg/modules"
	"github.com/gojango/gojango/pkg/signals"
)

// AppName is the INSTALLED_APPS entry of the app.
const AppName = "contrib.contenttypes"

// Config is the app's default config class.
var Config = &apps.ConfigClass{
	Name:        "ContentTypesConfig",
	Module:      AppName + "." + apps.AppsModuleName,
	AppName:     AppName,
	VerboseName: "Content Types",
	Ready:       ready,
}

func init() {
	dir, file := modules.Here()
	modules.MustRegister(&modules.Module{Name: AppName, Paths: []string{dir}, File: file})
	modules.MustRegister(&modules.Module{Name: Config.Module, File: file})
	modules.MustRegister(&modules.Module{
		Name: AppName + "." + apps.ModelsModuleName,
		File: file,
		Init: registerModels,
	})
	apps.MustRegisterConfigClass(Config)

	management.MustRegisterCommand(AppName, "contenttypes", newContentTypesCommand)
}

func ready(ctx context.Context, cfg *apps.AppConfig) error {
	types := For(cfg.Apps)
	if err := types.Sync(); err != nil {
		return err
	}

	signals.ModelRegistered.Connect("contenttypes.sync", syncRegistered, nil)
	return nil
}

// syncRegistered adds a newly registered model to every table that can see it.
func syncRegistered(ctx context.Context, event signals.Event) error {
	label, _ := event.Data["app_label"].(string)
	name, _ := event.Data["model"].(string)

	tables.Range(func(_, v any) bool {
		t := v.(*Table)
		if m, err := t.registry.GetModel(label, name); err == nil {
			t.add(m)
		}
		return true
	})
	return nil
}
