package policy

import (
	"encoding/json"
	"time"
)

// Severity is the level of a violation.
type Severity string

const (
	// SeverityWarning reports a problem that does not fail the check.
	SeverityWarning Severity = "warning"

	// SeverityError fails the check.
	SeverityError Severity = "error"
)

// Policy is a Rego module evaluated as a system check.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// Rego is the module source.
	Rego string `json:"rego"`

	// Severity applies to violations that do not set their own.
	Severity Severity `json:"severity"`

	// Enabled reports whether the policy is evaluated.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is one member of a policy's deny set.
type Violation struct {
	Policy   string   `json:"policy"`
	ID       string   `json:"id"`
	Message  string   `json:"message"`
	Hint     string   `json:"hint,omitempty"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy.
type Result struct {
	Violations        []Violation   `json:"violations,omitempty"`
	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Errors returns the violations of error severity.
func (r *Result) Errors() []Violation {
	return r.filter(SeverityError)
}

// Warnings returns the violations of warning severity.
func (r *Result) Warnings() []Violation {
	return r.filter(SeverityWarning)
}

func (r *Result) filter(sev Severity) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == sev {
			out = append(out, v)
		}
	}
	return out
}

// Input is the document policies evaluate.
type Input struct {
	// Settings holds the loaded settings by name.
	Settings map[string]any `json:"settings"`

	// InstalledApps lists the canonical names of the installed apps.
	InstalledApps []string `json:"installed_apps"`

	// Deploy enables deployment checks.
	Deploy bool `json:"deploy"`
}

// NewInput builds an Input. Settings whose values have no JSON form are
// left out.
func NewInput(settings map[string]any, installedApps []string, deploy bool) *Input {
	in := &Input{
		Settings:      make(map[string]any, len(settings)),
		InstalledApps: append([]string{}, installedApps...),
		Deploy:        deploy,
	}
	for k, v := range settings {
		if _, err := json.Marshal(v); err != nil {
			continue
		}
		in.Settings[k] = v
	}
	return in
}
