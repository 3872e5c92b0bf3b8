package management

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gojango/gojango/pkg/conf"
	"github.com/gojango/gojango/pkg/policy"
	"github.com/gojango/gojango/pkg/telemetry"
)

// Issue is one finding of the check command.
type Issue struct {
	ID      string
	Subject string
	Message string
	Hint    string
}

func (i Issue) String() string {
	s := fmt.Sprintf("?: (%s) %s", i.ID, i.Message)
	if i.Subject != "" {
		s = fmt.Sprintf("?: (%s) %s: %s", i.ID, i.Subject, i.Message)
	}
	if i.Hint != "" {
		s += "\n\tHINT: " + i.Hint
	}
	return s
}

func newCheckCommand(u *Utility) *cobra.Command {
	var warningsAsErrors bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check settings and installed apps for problems",
		Long: `Check the loaded settings against the schema of well-known settings
and inspect the app registry.

This command checks:
  - Types of well-known settings
  - Deprecated settings
  - Model references that were never resolved
  - Rego policies, built-in and from --policy-dir
  - Deployment settings, with --deploy`,
		Example: `  # Check the project named by GOJANGO_SETTINGS_MODULE
  gojango-admin check

  # Check another settings module and fail on deprecations
  gojango-admin check --settings mysite.production --fail-on-warnings

  # Run deployment checks and a project's own policies
  gojango-admin check --deploy --policy-dir ./checks`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			style := newStyle()

			issues, warnings, err := u.Check(cmd)
			if err != nil {
				return err
			}

			for _, w := range warnings {
				fmt.Fprintln(out, style.warning("%s", w))
			}
			for _, issue := range issues {
				fmt.Fprintln(out, style.failure("%s", issue))
			}

			configs, err := u.registry.GetAppConfigs()
			if err != nil {
				return err
			}
			models, err := u.registry.GetModels(false, false)
			if err != nil {
				return err
			}

			failed := len(issues)
			if warningsAsErrors {
				failed += len(warnings)
			}
			if failed > 0 {
				return &ExitError{Code: 1, Err: fmt.Errorf("System check identified %d issue(s).", failed)}
			}

			fmt.Fprintln(out, style.success("System check identified no issues (%d apps, %d models).", len(configs), len(models)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&warningsAsErrors, "fail-on-warnings", false, "treat warnings as issues")
	cmd.Flags().Bool("deploy", false, "also run deployment checks")
	cmd.Flags().StringSlice("policy-dir", nil, "directory or .rego file of extra check policies (repeatable)")

	return cmd
}

// Check validates the settings and the app registry and evaluates the check
// policies. It returns the issues found and the warnings: deprecations
// raised while loading settings and policy warnings.
func (u *Utility) Check(cmd *cobra.Command) ([]Issue, []string, error) {
	s, err := u.settings.SettingsContext(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	problems, err := conf.Check(s)
	if err != nil {
		return nil, nil, err
	}

	var issues []Issue
	for _, p := range problems {
		issues = append(issues, Issue{ID: "settings.E001", Subject: p.Key, Message: p.String()})
	}

	pending := u.registry.PendingOperations()
	sort.Strings(pending)
	for _, key := range pending {
		issues = append(issues, Issue{
			ID:      "models.E022",
			Subject: key,
			Message: fmt.Sprintf("An operation waits for the model '%s', but it was never registered.", key),
		})
	}

	warnings := s.Warnings()

	deploy, _ := cmd.Flags().GetBool("deploy")
	policyDirs, _ := cmd.Flags().GetStringSlice("policy-dir")
	result, err := u.evaluatePolicies(cmd, s, deploy, policyDirs)
	if err != nil {
		return nil, nil, err
	}
	for _, v := range result.Violations {
		issue := Issue{ID: v.ID, Message: v.Message, Hint: v.Hint}
		if v.Severity == policy.SeverityWarning {
			warnings = append(warnings, issue.String())
			continue
		}
		issues = append(issues, issue)
	}

	return issues, warnings, nil
}

func (u *Utility) evaluatePolicies(cmd *cobra.Command, s *conf.Settings, deploy bool, dirs []string) (*policy.Result, error) {
	engine, err := policy.NewEngine(telemetry.FromContext(cmd.Context()).NewComponentLogger("check").Zerolog())
	if err != nil {
		return nil, err
	}
	if len(dirs) > 0 {
		if err := engine.LoadPolicies(cmd.Context(), dirs); err != nil {
			return nil, err
		}
	}

	var installed []string
	if configs, err := u.registry.GetAppConfigs(); err == nil {
		for _, c := range configs {
			installed = append(installed, c.Name)
		}
	}
	return engine.Evaluate(cmd.Context(), policy.NewInput(s.Values(), installed, deploy))
}
