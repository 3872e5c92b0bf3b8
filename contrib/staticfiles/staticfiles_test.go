package staticfiles

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gojango/gojango/pkg/apps"
	"github.com/gojango/gojango/pkg/conf"
	"github.com/gojango/gojango/pkg/core"
	"github.com/gojango/gojango/pkg/management"
	"github.com/gojango/gojango/pkg/modules"
	"github.com/gojango/gojango/pkg/urls"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func settingsWith(t *testing.T, values map[string]any) *conf.LazySettings {
	t.Helper()
	s := conf.NewLazySettings()
	require.NoError(t, s.Configure(values))
	return s
}

func TestFileSystemFinder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")
	writeFile(t, filepath.Join(first, "css", "base.css"), "a")
	writeFile(t, filepath.Join(second, "css", "base.css"), "b")
	writeFile(t, filepath.Join(second, "js", "app.js"), "c")
	writeFile(t, filepath.Join(second, ".hidden", "x.js"), "d")
	writeFile(t, filepath.Join(second, "js", "app.js~"), "e")

	f, err := NewFileSystemFinder(settingsWith(t, map[string]any{
		"STATICFILES_DIRS": []any{first, second},
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, f.Roots())

	found, err := f.Find("css/base.css")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, filepath.Join(first, "css", "base.css"), found[0].Source)

	found, err = f.Find("missing.css")
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = f.Find("../secret")
	assert.Error(t, err)
	_, err = f.Find("/etc/passwd")
	assert.Error(t, err)

	listed, err := f.List(DefaultIgnorePatterns)
	require.NoError(t, err)
	var paths []string
	for _, item := range listed {
		paths = append(paths, item.Path)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"css/base.css", "css/base.css", "js/app.js"}, paths)
}

func TestFileSystemFinder_RejectsStaticRoot(t *testing.T) {
	root := t.TempDir()
	_, err := NewFileSystemFinder(settingsWith(t, map[string]any{
		"STATIC_ROOT":      root,
		"STATICFILES_DIRS": []any{root + "/"},
	}), nil)
	require.Error(t, err)
	assert.True(t, core.IsConfiguration(err))
	assert.Contains(t, err.Error(), "should not contain the STATIC_ROOT setting")
}

func TestAppDirectoriesFinder(t *testing.T) {
	dir := t.TempDir()
	withStatic := filepath.Join(dir, "blog")
	writeFile(t, filepath.Join(withStatic, AppStaticDir, "blog", "post.css"), "p")

	table := modules.NewTable()
	require.NoError(t, table.Register(&modules.Module{Name: "blog", Paths: []string{withStatic}}))
	require.NoError(t, table.Register(&modules.Module{Name: "shop", Paths: []string{filepath.Join(dir, "shop")}}))

	reg := apps.NewRegistry(apps.WithModules(table))
	require.NoError(t, reg.Populate(context.Background(), apps.Names("blog", "shop")))

	f, err := NewAppDirectoriesFinder(nil, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(withStatic, AppStaticDir)}, f.Roots())

	found, err := f.Find("blog/post.css")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "blog/post.css", found[0].Path)
}

func TestFinders_Resolve(t *testing.T) {
	reg := apps.NewRegistry()
	require.NoError(t, reg.Populate(context.Background(), apps.Names(AppName)))

	finders, err := Finders(settingsWith(t, nil), reg)
	require.NoError(t, err)
	assert.Len(t, finders, 2)

	_, err = Finders(settingsWith(t, map[string]any{
		"STATICFILES_FINDERS": []any{AppName + ".finders.NoSuchFinder"},
	}), reg)
	assert.Error(t, err)

	_, err = Finders(settingsWith(t, map[string]any{
		"STATICFILES_FINDERS": []any{AppName + ".finders.Missing.Finder"},
	}), reg)
	assert.Error(t, err)
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	other := filepath.Join(dir, "other")
	root := filepath.Join(dir, "root")
	writeFile(t, filepath.Join(src, "css", "base.css"), "body {}")
	writeFile(t, filepath.Join(src, "img", "logo.svg"), "<svg/>")
	writeFile(t, filepath.Join(other, "css", "base.css"), "ignored")

	finders := []Finder{&dirFinder{roots: []string{src}}, &dirFinder{roots: []string{other}}}

	dry, err := Collect(context.Background(), finders, root, CollectOptions{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, dry.Copied, 2)
	assert.NoDirExists(t, root)

	result, err := Collect(context.Background(), finders, root, CollectOptions{Workers: 2})
	require.NoError(t, err)
	sort.Strings(result.Copied)
	assert.Equal(t, []string{"css/base.css", "img/logo.svg"}, result.Copied)
	assert.Equal(t, []string{"css/base.css"}, result.Skipped)

	data, err := os.ReadFile(filepath.Join(root, "css", "base.css"))
	require.NoError(t, err)
	assert.Equal(t, "body {}", string(data))

	again, err := Collect(context.Background(), finders, root, CollectOptions{})
	require.NoError(t, err)
	assert.Empty(t, again.Copied)
	assert.Len(t, again.Unmodified, 2)

	future := time.Now().Add(time.Hour)
	writeFile(t, filepath.Join(src, "css", "base.css"), "body { margin: 0 }")
	require.NoError(t, os.Chtimes(filepath.Join(src, "css", "base.css"), future, future))

	updated, err := Collect(context.Background(), finders, root, CollectOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"css/base.css"}, updated.Copied)
}

func TestCollect_Canceled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "a.css"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(ctx, []Finder{&dirFinder{roots: []string{filepath.Join(dir, "src")}}}, filepath.Join(dir, "root"), CollectOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func runCommand(t *testing.T, values map[string]any, args ...string) (string, string, error) {
	t.Helper()
	color.NoColor = true
	t.Cleanup(urls.ClearScriptPrefix)

	reg := apps.NewRegistry()
	var stdout, stderr bytes.Buffer
	u := management.NewUtility(append([]string{"gojango-admin"}, args...),
		management.WithSettings(settingsWith(t, values)),
		management.WithRegistry(reg),
		management.WithOutput(&stdout, &stderr),
	)
	err := u.Execute(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	assets := filepath.Join(dir, "assets")
	root := filepath.Join(dir, "public")
	writeFile(t, filepath.Join(assets, "css", "site.css"), "x")

	values := map[string]any{
		"INSTALLED_APPS":   []any{AppName},
		"STATICFILES_DIRS": []any{assets},
		"STATIC_ROOT":      root,
	}

	out, _, err := runCommand(t, values, "findstatic", "css/site.css", "css/none.css")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 'css/site.css' here:")
	assert.Contains(t, out, filepath.Join(assets, "css", "site.css"))

	_, errOut, err := runCommand(t, values, "findstatic", "css/none.css")
	require.NoError(t, err)
	assert.Contains(t, errOut, "No matching file found for 'css/none.css'.")

	out, _, err = runCommand(t, values, "collectstatic")
	require.NoError(t, err)
	assert.Contains(t, out, "1 static file copied to '"+root+"'.")
	assert.FileExists(t, filepath.Join(root, "css", "site.css"))

	out, _, err = runCommand(t, values, "collectstatic")
	require.NoError(t, err)
	assert.Contains(t, out, "0 static files copied to '"+root+"', 1 unmodified.")
}

func TestCollectStatic_RequiresStaticRoot(t *testing.T) {
	_, _, err := runCommand(t, map[string]any{"INSTALLED_APPS": []any{AppName}}, "collectstatic")
	require.Error(t, err)
	assert.True(t, core.IsConfiguration(err))
	assert.Contains(t, err.Error(), "STATIC_ROOT")
}
