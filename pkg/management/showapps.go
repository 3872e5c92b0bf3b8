package management

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gojango/gojango/pkg/telemetry"
)

// appInfo is the showapps view of an app unit.
type appInfo struct {
	Label       string   `json:"label"`
	Name        string   `json:"name"`
	VerboseName string   `json:"verbose_name"`
	Path        string   `json:"path"`
	Class       string   `json:"class"`
	Models      []string `json:"models"`
}

func newShowAppsCommand(u *Utility) *cobra.Command {
	var (
		showModels bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "showapps",
		Short: "List installed apps in INSTALLED_APPS order",
		Example: `  gojango-admin showapps
  gojango-admin showapps --models
  gojango-admin showapps --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configs, err := u.registry.GetAppConfigs()
			if err != nil {
				return err
			}

			logger := telemetry.FromContext(cmd.Context())
			infos := make([]appInfo, 0, len(configs))
			for _, c := range configs {
				info := appInfo{
					Label:       c.Label,
					Name:        c.Name,
					VerboseName: c.VerboseName,
					Path:        c.Path,
					Class:       c.Class.QualifiedName(),
					Models:      []string{},
				}
				models, err := c.Models(true, true)
				if err != nil {
					return err
				}
				for _, m := range models {
					info.Models = append(info.Models, m.Name)
				}
				logger.WithApp(c.Label, c.Name).Debugf("Listed %d models", len(models))
				infos = append(infos, info)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LABEL\tNAME\tMODELS\tPATH")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", info.Label, info.Name, len(info.Models), info.Path)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if showModels {
				for _, info := range infos {
					if len(info.Models) == 0 {
						continue
					}
					fmt.Fprintf(out, "\n%s\n", newStyle().notice("[%s]", info.Label))
					for _, m := range info.Models {
						fmt.Fprintf(out, "    %s.%s\n", info.Label, m)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showModels, "models", false, "list the models of each app")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}
