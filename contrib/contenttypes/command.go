package contenttypes

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gojango/gojango/pkg/management"
	"github.com/gojango/gojango/pkg/stores"
)

func newContentTypesCommand(u *management.Utility) *cobra.Command {
	var (
		staleOnly   bool
		removeStale bool
		jsonOutput  bool
		database    string
	)

	cmd := &cobra.Command{
		Use:   "contenttypes",
		Short: "List the content types of installed models",
		Long: `List the content types of installed models.

With --database the content types are also written to the named
DATABASES connection, and --remove-stale deletes stored rows whose
model is no longer installed.`,
		Example: `  gojango-admin contenttypes
  gojango-admin contenttypes --stale
  gojango-admin contenttypes --database default --remove-stale`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			types := For(u.Registry())
			if err := types.Sync(); err != nil {
				return err
			}

			if database != "" {
				databases, err := u.Settings().GetMap("DATABASES")
				if err != nil {
					return err
				}
				store, err := stores.FromSettings(database, databases)
				if err != nil {
					return err
				}
				if err := store.Init(ctx); err != nil {
					return err
				}
				defer store.Close()
				if err := store.Migrate(ctx); err != nil {
					return err
				}

				if removeStale {
					removed, err := types.PruneStale(ctx, store)
					if err != nil {
						return err
					}
					for _, key := range removed {
						fmt.Fprintln(out, color.YellowString("Removed stale content type '%s'.", key))
					}
					return nil
				}

				result, err := types.Persist(ctx, store)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, color.GreenString("Synced content types to '%s': %d created, %d updated.",
					database, result.Created, result.Updated))
			}

			list := types.All()
			if staleOnly || removeStale {
				list = types.Stale()
			}

			if removeStale {
				for _, ct := range list {
					types.Remove(ct.AppLabel, ct.Model)
					fmt.Fprintln(out, color.YellowString("Removed stale content type '%s'.", ct.NaturalKey()))
				}
				return nil
			}

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tAPP_LABEL\tMODEL\tNAME")
			for _, ct := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ct.ID, ct.AppLabel, ct.Model, ct.Name)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&staleOnly, "stale", false, "list only content types whose model is not installed")
	cmd.Flags().BoolVar(&removeStale, "remove-stale", false, "remove content types whose model is not installed")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")
	cmd.Flags().StringVar(&database, "database", "", "DATABASES alias to sync content types to")
	return cmd
}
