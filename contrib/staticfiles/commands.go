package staticfiles

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gojango/gojango/pkg/core"
	"github.com/gojango/gojango/pkg/management"
)

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func newCollectStaticCommand(u *management.Utility) *cobra.Command {
	var (
		dryRun          bool
		ignore          []string
		noDefaultIgnore bool
		workers         int
	)

	cmd := &cobra.Command{
		Use:   "collectstatic",
		Short: "Collect static files into STATIC_ROOT",
		Example: `  gojango-admin collectstatic
  gojango-admin collectstatic --dry-run
  gojango-admin collectstatic -i "*.map" --no-default-ignore`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := u.Settings().GetString("STATIC_ROOT")
			if err != nil {
				return err
			}
			if root == "" {
				return core.NewConfigurationError("You're using the staticfiles app without having set " +
					"the STATIC_ROOT setting to a filesystem path.").WithKey("STATIC_ROOT")
			}

			finders, err := Finders(u.Settings(), u.Registry())
			if err != nil {
				return err
			}

			patterns := append([]string(nil), ignore...)
			if !noDefaultIgnore {
				patterns = append(patterns, DefaultIgnorePatterns...)
			}

			result, err := Collect(cmd.Context(), finders, root, CollectOptions{
				Ignore:  patterns,
				DryRun:  dryRun,
				Workers: workers,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintln(out, color.YellowString("Pretending to copy files (dry run)."))
			}
			summary := fmt.Sprintf("%d static file%s copied to '%s'", len(result.Copied), plural(len(result.Copied)), root)
			if n := len(result.Unmodified); n > 0 {
				summary += fmt.Sprintf(", %d unmodified", n)
			}
			fmt.Fprintln(out, color.GreenString("%s.", summary))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "do everything except modify the filesystem")
	cmd.Flags().StringSliceVarP(&ignore, "ignore", "i", nil, "ignore files matching this glob-style pattern (repeatable)")
	cmd.Flags().BoolVar(&noDefaultIgnore, "no-default-ignore", false, "don't ignore the common patterns 'CVS', '.*' and '*~'")
	cmd.Flags().IntVar(&workers, "workers", 8, "number of files copied concurrently")
	return cmd
}

func newFindStaticCommand(u *management.Utility) *cobra.Command {
	var first bool

	cmd := &cobra.Command{
		Use:   "findstatic <path>...",
		Short: "Find the absolute paths of static files",
		Example: `  gojango-admin findstatic css/base.css
  gojango-admin findstatic --first admin/js/core.js`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			finders, err := Finders(u.Settings(), u.Registry())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, path := range args {
				found, err := Find(finders, path, !first)
				if err != nil {
					return err
				}
				if len(found) == 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), color.RedString("No matching file found for '%s'.", path))
					continue
				}
				fmt.Fprintf(out, "Found '%s' here:\n", path)
				for _, f := range found {
					fmt.Fprintf(out, "  %s\n", f.Source)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&first, "first", false, "only return the first match for each path")
	return cmd
}
