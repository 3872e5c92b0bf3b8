// Package management implements gojango-admin: early settings handling,
// command discovery across installed apps and the built-in commands.
package management

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gojango/gojango/pkg/apps"
	"github.com/gojango/gojango/pkg/autoreload"
	"github.com/gojango/gojango/pkg/bootstrap"
	"github.com/gojango/gojango/pkg/conf"
	"github.com/gojango/gojango/pkg/core"
	"github.com/gojango/gojango/pkg/telemetry"
	"github.com/gojango/gojango/pkg/version"
)

// Utility runs one gojango-admin invocation.
type Utility struct {
	argv     []string
	progName string

	settings *conf.LazySettings
	registry *apps.Registry
	metrics  *telemetry.Metrics
	setup    func(ctx context.Context) error

	stdout io.Writer
	stderr io.Writer

	settingsErr error
}

// Option configures a Utility.
type Option func(*Utility)

// WithSettings uses s instead of conf.Default.
func WithSettings(s *conf.LazySettings) Option {
	return func(u *Utility) {
		u.settings = s
	}
}

// WithRegistry uses r instead of apps.Default.
func WithRegistry(r *apps.Registry) Option {
	return func(u *Utility) {
		u.registry = r
	}
}

// WithMetrics reports m from the metrics command.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(u *Utility) {
		u.metrics = m
	}
}

// WithOutput redirects standard output and error.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(u *Utility) {
		u.stdout = stdout
		u.stderr = stderr
	}
}

// NewUtility creates a utility for argv. argv[0] is the program name; a nil
// argv means os.Args.
func NewUtility(argv []string, opts ...Option) *Utility {
	if argv == nil {
		argv = os.Args
	}
	u := &Utility{
		argv:     append([]string(nil), argv...),
		settings: conf.Default,
		registry: apps.Default,
		metrics:  telemetry.DefaultMetrics(),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	if len(u.argv) > 0 {
		u.progName = filepath.Base(u.argv[0])
	}
	if u.progName == "" || u.progName == "." {
		u.progName = "gojango-admin"
	}
	for _, opt := range opts {
		opt(u)
	}
	u.setup = func(ctx context.Context) error {
		return bootstrap.Setup(ctx, bootstrap.WithSettings(u.settings), bootstrap.WithRegistry(u.registry))
	}
	return u
}

// ProgName returns the program name shown in help.
func (u *Utility) ProgName() string {
	return u.progName
}

// Settings returns the settings the utility reads.
func (u *Utility) Settings() *conf.LazySettings {
	return u.settings
}

// Registry returns the app registry the utility populates.
func (u *Utility) Registry() *apps.Registry {
	return u.registry
}

// SettingsErr returns the error met while reading INSTALLED_APPS, if any.
// Help output degrades to built-in commands when it is set.
func (u *Utility) SettingsErr() error {
	return u.settingsErr
}

// Execute parses the command line, sets up the framework when settings
// are available and runs the subcommand.
func (u *Utility) Execute(ctx context.Context) error {
	subcommand := "help"
	if len(u.argv) > 1 {
		subcommand = u.argv[1]
	}

	var rest []string
	if len(u.argv) > 2 {
		rest = u.argv[2:]
	}
	args, err := handleDefaultOptions(rest)
	if err != nil {
		return err
	}

	if _, err := u.settings.Get("INSTALLED_APPS"); err != nil {
		if !core.IsConfiguration(err) && !core.IsImport(err) {
			return err
		}
		u.settingsErr = err
	}

	if u.settings.Configured() {
		if subcommand == "watch" && !slices.Contains(u.argv, "--noreload") {
			// The child process reports the failure; the parent still has
			// to start it.
			if err := autoreload.CheckErrors(func() error { return u.setup(ctx) })(); err != nil {
				telemetry.FromContext(ctx).NewComponentLogger("management").WithError(err).Warn("Setup failed, starting the reloader anyway")
			}
		} else if err := u.setup(ctx); err != nil {
			return err
		}
	}

	switch {
	case subcommand == "help":
		switch {
		case slices.Contains(args, "--commands"):
			fmt.Fprintln(u.stdout, u.MainHelpText(true))
		case len(args) == 0:
			fmt.Fprintln(u.stdout, u.MainHelpText(false))
		default:
			cmd, err := u.FetchCommand(args[0])
			if err != nil {
				return err
			}
			cmd.SetOut(u.stdout)
			return cmd.Help()
		}
		return nil

	case subcommand == "version" || slices.Equal(u.argv[1:], []string{"--version"}):
		v, err := version.Get(version.Current)
		if err != nil {
			return err
		}
		fmt.Fprintln(u.stdout, v)
		return nil

	case slices.Equal(u.argv[1:], []string{"--help"}) || slices.Equal(u.argv[1:], []string{"-h"}):
		fmt.Fprintln(u.stdout, u.MainHelpText(false))
		return nil
	}

	cmd, err := u.FetchCommand(subcommand)
	if err != nil {
		return err
	}

	logger := telemetry.FromContext(ctx).NewComponentLogger("management").WithField("command", cmd.Name())
	logger.Debug("Running command")
	return u.run(logger.WithContext(ctx), cmd, rest)
}

// handleDefaultOptions applies --settings and --path ahead of setup and
// returns the positional arguments.
func handleDefaultOptions(argv []string) ([]string, error) {
	fs := pflag.NewFlagSet("defaults", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	settingsModule := fs.String("settings", "", "")
	path := fs.String("path", "", "")
	// Flags of the subcommand itself are not known yet.
	_ = fs.BoolP("help", "h", false, "")

	if err := fs.Parse(argv); err != nil {
		// Malformed defaults are reported by the subcommand parser.
		return argv, nil
	}

	if *settingsModule != "" {
		if err := os.Setenv(conf.EnvironmentVariable, *settingsModule); err != nil {
			return nil, err
		}
	}
	if *path != "" {
		paths := []string{*path}
		if existing := os.Getenv(conf.PathEnvironmentVariable); existing != "" {
			paths = append(paths, existing)
		}
		if err := os.Setenv(conf.PathEnvironmentVariable, strings.Join(paths, string(os.PathListSeparator))); err != nil {
			return nil, err
		}
	}

	args := fs.Args()
	if slices.Contains(argv, "--commands") {
		args = append(args, "--commands")
	}
	return args, nil
}

// UnknownCommandError is returned for a subcommand that does not exist.
type UnknownCommandError struct {
	Name       string
	Suggestion string
	ProgName   string
}

func (e *UnknownCommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Unknown command: '%s'", e.Name)
	if e.Suggestion != "" {
		fmt.Fprintf(&b, ". Did you mean %s?", e.Suggestion)
	}
	fmt.Fprintf(&b, "\nType '%s help' for usage.", e.ProgName)
	return b.String()
}

// FetchCommand builds the named command.
func (u *Utility) FetchCommand(name string) (*cobra.Command, error) {
	cmds := u.commands()
	entry, ok := cmds[name]
	if !ok {
		if os.Getenv(conf.EnvironmentVariable) != "" && u.settingsErr != nil {
			return nil, u.settingsErr
		} else if !u.settings.Configured() {
			fmt.Fprintln(u.stderr, "No gojango settings specified.")
		}
		return nil, &UnknownCommandError{Name: name, Suggestion: suggest(name, cmds), ProgName: u.progName}
	}

	cmd := entry.factory(u)
	addDefaultFlags(cmd)
	return cmd, nil
}

// suggest returns the closest command name, using cobra's suggestion
// rules.
func suggest(name string, cmds map[string]commandEntry) string {
	root := &cobra.Command{Use: "root", SuggestionsMinimumDistance: 2}
	for n := range cmds {
		root.AddCommand(&cobra.Command{Use: n, Run: func(*cobra.Command, []string) {}})
	}
	if matches := root.SuggestionsFor(name); len(matches) > 0 {
		slices.Sort(matches)
		return matches[0]
	}
	return ""
}

// addDefaultFlags declares the options every command accepts, so commands
// do not reject them.
func addDefaultFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Lookup("settings") == nil {
		flags.String("settings", "", "settings module, e.g. \"myproject.settings\"; defaults to "+conf.EnvironmentVariable)
	}
	if flags.Lookup("path") == nil {
		flags.String("path", "", "directory to add to the settings search path, e.g. \"/home/projects/myproject\"")
	}
}

func (u *Utility) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	cmd.SetArgs(args)
	cmd.SetOut(u.stdout)
	cmd.SetErr(u.stderr)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.ExecuteContext(ctx)
}

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecuteFromCommandLine runs a utility for argv and returns the process
// exit status. Errors are written to stderr.
func ExecuteFromCommandLine(ctx context.Context, argv []string, opts ...Option) int {
	u := NewUtility(argv, opts...)
	err := u.Execute(ctx)
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(u.stderr, newStyle().failure("%s", exitErr.Err))
		}
		return exitErr.Code
	}

	var unknown *UnknownCommandError
	if errors.As(err, &unknown) {
		fmt.Fprintln(u.stderr, err)
		return 1
	}

	fmt.Fprintln(u.stderr, newStyle().failure("%s", err))
	return 1
}
