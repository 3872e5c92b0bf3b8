package management

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gojango/gojango/pkg/autoreload"
	"github.com/gojango/gojango/pkg/telemetry"
)

func newWatchCommand(u *Utility) *cobra.Command {
	var (
		noreload bool
		debounce time.Duration
		paths    []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the system check again whenever project files change",
		Long: `Run the system check in a child process and restart it whenever a
settings module, an installed app or one of the given paths changes.`,
		Example: `  gojango-admin watch
  gojango-admin watch --path-watch ./templates --debounce 1s
  gojango-admin watch --noreload`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			check := func(ctx context.Context) error {
				c := newCheckCommand(u)
				c.SetContext(ctx)
				c.SetOut(out)
				return c.RunE(c, nil)
			}

			if noreload {
				return check(cmd.Context())
			}

			watched := u.watchPaths(paths)
			telemetry.FromContext(cmd.Context()).Infof("Watching %d paths for changes", len(watched))

			err := autoreload.Run(cmd.Context(), func(ctx context.Context) error {
				if err := check(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Watching for file changes...")
				<-ctx.Done()
				return nil
			},
				autoreload.WithPaths(watched...),
				autoreload.WithExtensions(".go", ".star", ".yaml", ".yml"),
				autoreload.WithDebounce(debounce),
			)
			if errors.Is(err, autoreload.ErrReloadRequested) {
				return &ExitError{Code: autoreload.ReloadExitCode}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&noreload, "noreload", false, "run the check once without the reloader")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "wait this long for more changes before restarting")
	cmd.Flags().StringSliceVar(&paths, "path-watch", nil, "extra files or directories to watch")

	return cmd
}

// watchPaths returns extra, the settings module file and the directory of
// every installed app.
func (u *Utility) watchPaths(extra []string) []string {
	paths := append([]string(nil), extra...)

	if u.settings.Configured() {
		if s, err := u.settings.Settings(); err == nil && s.Source().Path != "" {
			paths = append(paths, s.Source().Path)
		}
	}
	if configs, err := u.registry.GetAppConfigs(); err == nil {
		for _, c := range configs {
			paths = append(paths, c.Path)
		}
	}
	return paths
}
