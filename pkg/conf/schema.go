package conf

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/gojango/gojango/pkg/core"
)

// settingsSchema constrains the types of well-known settings. Unknown
// settings are allowed.
const settingsSchema = `
DEBUG?:                bool
ALLOWED_HOSTS?:        [...string]
INSTALLED_APPS?:       [...string]
TEMPLATE_DIRS?:        [...string]
LOCALE_PATHS?:         [...string]
SECRET_KEY?:           string
SECRET_KEY_FALLBACKS?: [...string]
TIME_ZONE?:            string | null
USE_TZ?:               bool
USE_I18N?:             bool
USE_L10N?:             bool
USE_DEPRECATED_PYTZ?:  bool
LANGUAGE_CODE?:        string & =~"^[a-z]{2,3}(-[a-zA-Z0-9]+)*$"
DEFAULT_CHARSET?:      string
MEDIA_ROOT?:           string
MEDIA_URL?:            string
STATIC_ROOT?:          string | null
STATIC_URL?:           string | null
STATICFILES_DIRS?:     [...string]
STATICFILES_FINDERS?:  [...string]
FORCE_SCRIPT_NAME?:    string | null
APPEND_SLASH?:         bool
CSRF_COOKIE_MASKED?:   bool
LOGGING_CONFIG?:       string | null
LOGGING?: {
	level?:        "trace" | "debug" | "info" | "warn" | "error" | "fatal"
	format?:       "console" | "json"
	output?:       string
	caller?:       bool
	time_format?:  "unix" | "unixms" | "unixmicro" | "rfc3339"
	max_size_mb?:  int & >=0
	max_backups?:  int & >=0
	max_age_days?: int & >=0
	loggers?: {[string]: "trace" | "debug" | "info" | "warn" | "error" | "fatal" | "disabled"}
	...
}
TRACING?: {
	enabled?:               bool
	exporter?:              "otlp" | "stdout" | "none"
	endpoint?:              string
	service_name?:          string
	environment?:           string
	sampling_rate?:         number & >=0 & <=1
	max_export_batch_size?: int & >=0
	export_timeout?:        string
	headers?: {[string]: string}
	insecure?:              bool
}
DATABASES?: {[string]: {
	ENGINE?: "sqlite"
	NAME?:   string
	...
}}
ADMINS?:   [...]
MANAGERS?: [...]
`

// Problem is one failed check of a setting.
type Problem struct {
	// Key is the setting name.
	Key string

	// Path is the dotted path of the failing value under Key.
	Path string

	// Message describes the failure.
	Message string
}

// String returns "PATH: message".
func (p Problem) String() string {
	path := p.Path
	if path == "" {
		path = p.Key
	}
	return fmt.Sprintf("%s: %s", path, p.Message)
}

var (
	schemaOnce  sync.Once
	schemaCtx   *cue.Context
	schemaValue cue.Value
	schemaErr   error
)

func compiledSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaValue = schemaCtx.CompileString(settingsSchema)
		if err := schemaValue.Err(); err != nil {
			schemaErr = fmt.Errorf("failed to compile settings schema: %w", err)
		}
	})
	return schemaCtx, schemaValue, schemaErr
}

// Check validates the types of well-known settings. It returns the
// problems found, sorted by key; the error reports a failure to run the
// check itself.
func Check(s *Settings) ([]Problem, error) {
	ctx, schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var problems []Problem
	data := make(map[string]any)
	for key, value := range s.Values() {
		v := ctx.Encode(value)
		if err := v.Err(); err != nil {
			problems = append(problems, Problem{Key: key, Message: fmt.Sprintf("unsupported value of type %T", value)})
			continue
		}
		data[key] = value
	}

	dataVal := ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		seen := make(map[string]bool)
		for _, e := range cueerrors.Errors(err) {
			p := Problem{}
			if path := e.Path(); len(path) > 0 {
				p.Key = path[0]
				p.Path = strings.Join(path, ".")
			}
			// Disjunctions report once per alternative.
			if seen[p.Path] {
				continue
			}
			seen[p.Path] = true
			format, args := e.Msg()
			p.Message = fmt.Sprintf(format, args...)
			problems = append(problems, p)
		}
	}

	sort.SliceStable(problems, func(i, j int) bool {
		if problems[i].Key != problems[j].Key {
			return problems[i].Key < problems[j].Key
		}
		return problems[i].Path < problems[j].Path
	})
	return problems, nil
}

// CheckError is Check folded into a single configuration error.
func CheckError(s *Settings) error {
	problems, err := Check(s)
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		return nil
	}

	lines := make([]string, 0, len(problems))
	for _, p := range problems {
		lines = append(lines, p.String())
	}
	return core.NewConfigurationError("Settings check found %d problem(s):\n%s", len(problems), strings.Join(lines, "\n")).WithKey(problems[0].Key)
}
