package management

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gojango/gojango/pkg/conf"
)

func newDiffSettingsCommand(u *Utility) *cobra.Command {
	var (
		all    bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "diffsettings",
		Short: "Display differences between the current settings and the defaults",
		Long: `Display differences between the current settings and the built-in
defaults.

In hash output, settings that have no default are followed by "###"; with
--all, unchanged defaults are listed prefixed by "###".`,
		Example: `  gojango-admin diffsettings
  gojango-admin diffsettings --all
  gojango-admin diffsettings --output yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := u.settings.SettingsContext(cmd.Context())
			if err != nil {
				return err
			}
			defaults, err := conf.GlobalDefaults()
			if err != nil {
				return err
			}

			switch output {
			case "hash":
				for _, line := range diffSettings(s.Values(), defaults, all) {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			case "yaml":
				changed := make(map[string]any)
				for key, value := range s.Values() {
					if def, ok := defaults[key]; !ok || all || !reflect.DeepEqual(def, value) {
						changed[key] = value
					}
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(changed); err != nil {
					return fmt.Errorf("failed to encode settings: %w", err)
				}
				return enc.Close()
			default:
				return fmt.Errorf("invalid output format %q: must be hash or yaml", output)
			}
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "display all settings, marking unchanged defaults with \"###\"")
	cmd.Flags().StringVar(&output, "output", "hash", "output format: hash or yaml")

	return cmd
}

// diffSettings returns one line per setting that differs from defaults,
// sorted by name.
func diffSettings(user, defaults map[string]any, all bool) []string {
	keys := make([]string, 0, len(user))
	for k := range user {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, key := range keys {
		value := user[key]
		def, ok := defaults[key]
		switch {
		case !ok:
			out = append(out, fmt.Sprintf("%s = %s  ###", key, repr(value)))
		case !reflect.DeepEqual(def, value):
			out = append(out, fmt.Sprintf("%s = %s", key, repr(value)))
		case all:
			out = append(out, fmt.Sprintf("### %s = %s", key, repr(value)))
		}
	}
	return out
}

// repr formats a settings value the way a settings module would spell it.
func repr(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case string:
		return strconv.Quote(val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = repr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []string:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = strconv.Quote(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + repr(val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(val)
	}
}
