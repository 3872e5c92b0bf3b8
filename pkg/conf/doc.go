// Package conf loads and serves settings.
//
// A settings module is named by a dotted path, e.g. "mysite.settings", and
// resolves to a Go module registered in the module table, or to
// mysite/settings.star, .yaml or .yml in a directory on the search path
// (GOJANGO_PATH entries, WithSearchPath directories, the working
// directory). Starlark modules may use env(name, default), struct(...),
// load("other.star", "NAME") and the predeclared BASE_DIR.
//
// Every upper-case name of the module overrides the built-in defaults.
// Default is the process-wide LazySettings; it loads the module named by
// GOJANGO_SETTINGS_MODULE on first access:
//
//	debug, err := conf.Default.GetBool("DEBUG")
package conf
