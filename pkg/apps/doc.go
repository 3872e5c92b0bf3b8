// Package apps implements the application registry.
//
// An app unit is a named Go module registered in the module table. Its
// optional "apps" sub-module declares ConfigClass values that customize the
// label, display name, path and ready hook; its optional "models"
// sub-module registers models when imported.
//
// The registry is populated once, from INSTALLED_APPS:
//
//	err := apps.Default.Populate(ctx, apps.Names(
//	    "contrib.contenttypes",
//	    "contrib.staticfiles",
//	    "mysite.blog",
//	))
//
// Populate runs three phases in order. Phase one builds every AppConfig and
// rejects duplicate labels and names; phase two imports models; phase three
// runs ready hooks. Queries fail with a not-ready error until the phase
// they depend on has completed.
package apps
