package version

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubChangeset(t *testing.T, changeset string) {
	t.Helper()
	saved := Changeset
	Changeset = func() string { return changeset }
	t.Cleanup(func() { Changeset = saved })
}

func TestGet(t *testing.T) {
	stubChangeset(t, "")

	tests := []struct {
		version Version
		want    string
	}{
		{Version{4, 1, 0, Final, 0}, "4.1"},
		{Version{4, 1, 1, Final, 0}, "4.1.1"},
		{Version{4, 1, 0, Alpha, 0}, "4.1"},
		{Version{4, 1, 0, Alpha, 1}, "4.1a1"},
		{Version{4, 1, 0, Beta, 3}, "4.1b3"},
		{Version{4, 1, 1, RC, 2}, "4.1.1rc2"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := Get(tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGet_DevChangeset(t *testing.T) {
	stubChangeset(t, "20220330141300")

	got, err := Get(Version{4, 1, 0, Alpha, 0})
	require.NoError(t, err)
	assert.Equal(t, "4.1.dev20220330141300", got)

	// Only pre-alpha builds carry the changeset.
	got, err = Get(Version{4, 1, 0, Alpha, 1})
	require.NoError(t, err)
	assert.Equal(t, "4.1a1", got)
}

func TestGet_InvalidRelease(t *testing.T) {
	_, err := Get(Version{4, 1, 0, "gamma", 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid release "gamma"`)

	_, err = Format(Version{-1, 0, 0, Final, 0}, "")
	assert.Error(t, err)
}

func TestMainVersion(t *testing.T) {
	assert.Equal(t, "4.1", MainVersion(Version{4, 1, 0, Final, 0}))
	assert.Equal(t, "4.1.2", MainVersion(Version{4, 1, 2, RC, 1}))
}

func TestSemverTag(t *testing.T) {
	tag, err := SemverTag(Version{4, 1, 1, RC, 2})
	require.NoError(t, err)
	assert.Equal(t, "v4.1.1-rc.2", tag)

	tag, err = SemverTag(Version{4, 1, 0, Final, 0})
	require.NoError(t, err)
	assert.Equal(t, "v4.1.0", tag)

	cmp, err := Compare(Version{4, 1, 0, Beta, 1}, Version{4, 1, 0, RC, 1})
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = Compare(Version{4, 1, 0, Final, 0}, Version{4, 1, 0, RC, 9})
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)
}

func TestGitChangeset(t *testing.T) {
	assert.Equal(t, "", GitChangeset(""))
	assert.Equal(t, "", GitChangeset(t.TempDir()))

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	git := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
			"GIT_AUTHOR_DATE=2022-03-30T14:13:00Z", "GIT_COMMITTER_DATE=2022-03-30T14:13:00Z",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	git("init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644))
	git("add", "README")
	git("commit", "-q", "-m", "initial")

	assert.Equal(t, "20220330141300", GitChangeset(dir))
}

func TestCurrent(t *testing.T) {
	require.NoError(t, Current.Validate())
	assert.NotEmpty(t, Current.String())
}
