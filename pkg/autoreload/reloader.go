// Package autoreload restarts the process when source or settings files
// change.
//
// Run starts a child copy of the current command with GOJANGO_RUN_MAIN set.
// The child runs the main function and watches files; on a change it exits
// with ReloadExitCode and the parent starts it again.
package autoreload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gojango/gojango/pkg/modules"
	"github.com/gojango/gojango/pkg/telemetry"
)

// RunMainEnv marks the child process that runs the main function.
const RunMainEnv = "GOJANGO_RUN_MAIN"

// ReloadExitCode is the exit status a child uses to ask for a restart.
const ReloadExitCode = 3

// ErrReloadRequested is returned by the child when a watched file changed.
var ErrReloadRequested = errors.New("autoreload: file changed")

// Reloader watches files and restarts the child process.
type Reloader struct {
	paths      []string
	extensions []string
	debounce   time.Duration
	command    func(ctx context.Context) *exec.Cmd
	logger     zerolog.Logger

	restarts atomic.Uint32
}

// Option configures a Reloader.
type Option func(*Reloader)

// WithPaths adds files or directories to watch. Directories are watched
// recursively.
func WithPaths(paths ...string) Option {
	return func(r *Reloader) {
		r.paths = append(r.paths, paths...)
	}
}

// WithExtensions restricts directory events to files with these
// extensions, e.g. ".go", ".star".
func WithExtensions(exts ...string) Option {
	return func(r *Reloader) {
		r.extensions = append(r.extensions, exts...)
	}
}

// WithDebounce sets how long to wait for more events before reloading.
func WithDebounce(d time.Duration) Option {
	return func(r *Reloader) {
		r.debounce = d
	}
}

// WithCommand sets how the child process is built.
func WithCommand(fn func(ctx context.Context) *exec.Cmd) Option {
	return func(r *Reloader) {
		r.command = fn
	}
}

// NewReloader creates a reloader. By default the child re-runs the current
// executable with the same arguments.
func NewReloader(opts ...Option) *Reloader {
	r := &Reloader{
		debounce: 500 * time.Millisecond,
		command:  selfCommand,
		logger:   *telemetry.Component("autoreload"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func selfCommand(ctx context.Context) *exec.Cmd {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return exec.CommandContext(ctx, exe, os.Args[1:]...)
}

// IsChild reports whether this process is the reloader child.
func IsChild() bool {
	return os.Getenv(RunMainEnv) == "true"
}

// Restarts returns how many times the child was restarted.
func (r *Reloader) Restarts() uint32 {
	return r.restarts.Load()
}

// Run runs mainFn under the reloader. In the parent it blocks until the
// child exits for a reason other than a reload. In the child it returns
// ErrReloadRequested once a watched file changes.
func Run(ctx context.Context, mainFn func(ctx context.Context) error, opts ...Option) error {
	r := NewReloader(opts...)
	if IsChild() {
		return r.RunChild(ctx, mainFn)
	}
	return r.RestartWithReloader(ctx)
}

// RestartWithReloader starts the child until it exits with a status other
// than ReloadExitCode.
func (r *Reloader) RestartWithReloader(ctx context.Context) error {
	for {
		cmd := r.command(ctx)
		cmd.Env = append(os.Environ(), RunMainEnv+"=true")
		if cmd.Stdin == nil {
			cmd.Stdin = os.Stdin
		}
		if cmd.Stdout == nil {
			cmd.Stdout = os.Stdout
		}
		if cmd.Stderr == nil {
			cmd.Stderr = os.Stderr
		}

		err := cmd.Run()

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == ReloadExitCode {
			n := r.restarts.Add(1)
			r.logger.Info().Uint32("restarts", n).Msg("Restarting after file change")
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return fmt.Errorf("reloader child failed: %w", err)
		}
		return nil
	}
}

// RunChild runs mainFn and watches files until one changes. A failure of
// mainFn is logged and its file watched, so a fix triggers the reload.
func (r *Reloader) RunChild(ctx context.Context, mainFn func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := CheckErrors(func() error { return mainFn(gctx) })()
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error().Err(err).Strs("error_files", ErrorFiles()).Msg("Main function failed, waiting for changes")
		}
		return nil
	})
	g.Go(func() error {
		return r.Watch(gctx)
	})

	return g.Wait()
}

// WatchedFiles returns the configured paths, the files of registered
// modules and the files that caused failures.
func (r *Reloader) WatchedFiles() []string {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		files = append(files, p)
	}

	for _, p := range r.paths {
		add(p)
	}
	for _, name := range modules.Default.Names() {
		if mod, ok := modules.Lookup(name); ok {
			add(mod.File)
		}
	}
	for _, f := range ErrorFiles() {
		add(f)
	}
	return files
}

// Watch blocks until a watched file changes, returning ErrReloadRequested,
// or until ctx is done.
func (r *Reloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, path := range r.WatchedFiles() {
		info, err := os.Stat(path)
		if err != nil {
			r.logger.Debug().Err(err).Str("path", path).Msg("Skipping missing path")
			continue
		}
		if info.IsDir() {
			if err := addDirectory(watcher, path, dirs); err != nil {
				r.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
			continue
		}
		// Editors replace files, so the parent directory is watched.
		files[filepath.Clean(path)] = true
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			r.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
		}
	}

	r.logger.Debug().Int("paths", len(watcher.WatchList())).Msg("Watching for file changes")

	var fire <-chan time.Time
	var changed string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !r.relevant(event, files, dirs) {
				continue
			}
			changed = event.Name
			fire = time.After(r.debounce)

		case <-fire:
			r.logger.Info().Str("file", changed).Msg("File changed, reloading")
			return ErrReloadRequested

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (r *Reloader) relevant(event fsnotify.Event, files, dirs map[string]bool) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	name := filepath.Clean(event.Name)
	if files[name] {
		return true
	}
	return dirs[filepath.Dir(name)] && r.matchesExtension(name)
}

func (r *Reloader) matchesExtension(name string) bool {
	if len(r.extensions) == 0 {
		return true
	}
	for _, ext := range r.extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func addDirectory(watcher *fsnotify.Watcher, root string, dirs map[string]bool) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			dirs[filepath.Clean(path)] = true
			return watcher.Add(path)
		}
		return nil
	})
}
