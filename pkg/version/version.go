// Package version formats framework version tuples as public version
// strings.
package version

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"
)

// Release is the kind of a release.
type Release string

// Release kinds, in order.
const (
	Alpha Release = "alpha"
	Beta  Release = "beta"
	RC    Release = "rc"
	Final Release = "final"
)

var releaseSuffix = map[Release]string{
	Alpha: "a",
	Beta:  "b",
	RC:    "rc",
}

// Version is a (major, minor, micro, release, serial) tuple.
type Version struct {
	Major   int
	Minor   int
	Micro   int
	Release Release
	Serial  int
}

// Current is the framework version.
var Current = Version{Major: 0, Minor: 1, Micro: 0, Release: Alpha, Serial: 0}

// Validate checks the release kind and that no part is negative.
func (v Version) Validate() error {
	switch v.Release {
	case Alpha, Beta, RC, Final:
	default:
		return fmt.Errorf("invalid release %q: must be one of alpha, beta, rc, final", v.Release)
	}
	if v.Major < 0 || v.Minor < 0 || v.Micro < 0 || v.Serial < 0 {
		return fmt.Errorf("invalid version %d.%d.%d serial %d: parts must not be negative",
			v.Major, v.Minor, v.Micro, v.Serial)
	}
	return nil
}

// String returns the public version string without a changeset.
func (v Version) String() string {
	s, err := Format(v, "")
	if err != nil {
		return fmt.Sprintf("invalid(%d.%d.%d-%s%d)", v.Major, v.Minor, v.Micro, v.Release, v.Serial)
	}
	return s
}

// Changeset returns the development changeset of the source tree. It is a
// variable so builds without a git checkout can stub it out.
var Changeset = func() string {
	return GitChangeset(sourceRoot())
}

// Get returns the public version string of v: X.Y[.Z] followed by
// .devN for pre-alpha builds with a known changeset, or {a|b|rc}N for
// pre-releases.
func Get(v Version) (string, error) {
	if v.Release == Alpha && v.Serial == 0 {
		return Format(v, Changeset())
	}
	return Format(v, "")
}

// Format is Get with an explicit changeset. An empty changeset omits the
// .dev suffix.
func Format(v Version, changeset string) (string, error) {
	if err := v.Validate(); err != nil {
		return "", err
	}

	main := MainVersion(v)
	switch {
	case v.Release == Alpha && v.Serial == 0:
		if changeset != "" {
			return main + ".dev" + changeset, nil
		}
		return main, nil
	case v.Release != Final:
		return main + releaseSuffix[v.Release] + strconv.Itoa(v.Serial), nil
	default:
		return main, nil
	}
}

// MainVersion returns X.Y, or X.Y.Z when the micro version is not zero.
func MainVersion(v Version) string {
	if v.Micro == 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}

// SemverTag returns v as a semantic version tag, e.g. v4.1.1-rc.2.
func SemverTag(v Version) (string, error) {
	if err := v.Validate(); err != nil {
		return "", err
	}

	tag := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Micro)
	if v.Release != Final {
		tag += fmt.Sprintf("-%s.%d", v.Release, v.Serial)
	}
	if !semver.IsValid(tag) {
		return "", fmt.Errorf("version %s is not a valid semantic version", tag)
	}
	return semver.Canonical(tag), nil
}

// Compare orders two versions by their semantic version tags.
func Compare(a, b Version) (int, error) {
	ta, err := SemverTag(a)
	if err != nil {
		return 0, err
	}
	tb, err := SemverTag(b)
	if err != nil {
		return 0, err
	}
	return semver.Compare(ta, tb), nil
}

var changesets sync.Map

// GitChangeset returns the UTC timestamp of the latest commit in dir as
// YYYYMMDDHHMMSS, or "" when it cannot be determined. Results are cached
// per directory.
func GitChangeset(dir string) string {
	if dir == "" {
		return ""
	}
	if v, ok := changesets.Load(dir); ok {
		return v.(string)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "log", "--pretty=format:%ct", "--quiet", "-1", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()

	changeset := ""
	if err == nil {
		if ts, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64); err == nil {
			changeset = time.Unix(ts, 0).UTC().Format("20060102150405")
		}
	}
	changesets.Store(dir, changeset)
	return changeset
}

// sourceRoot returns the module root of this source file, when built from
// a checkout.
func sourceRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	return filepath.Dir(filepath.Dir(filepath.Dir(file)))
}
