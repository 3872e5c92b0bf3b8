package management

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gojango/gojango/pkg/version"
)

func newVersionCommand(u *Utility) *cobra.Command {
	var semver bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the gojango version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				v   string
				err error
			)
			if semver {
				v, err = version.SemverTag(version.Current)
			} else {
				v, err = version.Get(version.Current)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	cmd.Flags().BoolVar(&semver, "semver", false, "print the semantic version tag")

	return cmd
}
