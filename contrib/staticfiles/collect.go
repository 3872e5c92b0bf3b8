package staticfiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gojango/gojango/pkg/telemetry"
)

// CollectOptions controls Collect.
type CollectOptions struct {
	// Ignore lists base-name glob patterns to skip.
	Ignore []string

	// DryRun reports what would be copied without touching the destination.
	DryRun bool

	// Workers bounds concurrent copies. Zero means 8.
	Workers int
}

// CollectResult summarizes a Collect run.
type CollectResult struct {
	Copied     []string
	Unmodified []string
	Skipped    []string
}

// Collect copies every file listed by finders into root. The first finder
// to provide a path wins; later duplicates are skipped. Destination files
// at least as new as their source are left alone.
func Collect(ctx context.Context, finders []Finder, root string, opts CollectOptions) (*CollectResult, error) {
	logger := telemetry.Component("staticfiles")
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}

	result := &CollectResult{}
	seen := make(map[string]bool)
	var plan []Found
	for _, f := range finders {
		found, err := f.List(opts.Ignore)
		if err != nil {
			return nil, err
		}
		for _, item := range found {
			if seen[item.Path] {
				result.Skipped = append(result.Skipped, item.Path)
				logger.Debug().Str("path", item.Path).Str("source", item.Source).
					Msg("Found another file with the destination path; it will be ignored")
				continue
			}
			seen[item.Path] = true
			plan = append(plan, item)
		}
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, item := range plan {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dest := filepath.Join(root, filepath.FromSlash(item.Path))

			fresh, err := upToDate(item.Source, dest)
			if err != nil {
				return err
			}
			if !fresh && !opts.DryRun {
				if err := copyFile(item.Source, dest); err != nil {
					return fmt.Errorf("failed to copy %s: %w", item.Path, err)
				}
			}

			mu.Lock()
			if fresh {
				result.Unmodified = append(result.Unmodified, item.Path)
			} else {
				result.Copied = append(result.Copied, item.Path)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info().
		Int("copied", len(result.Copied)).
		Int("unmodified", len(result.Unmodified)).
		Bool("dry_run", opts.DryRun).
		Str("static_root", root).
		Msg("static files collected")
	return result, nil
}

func upToDate(src, dest string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	destInfo, err := os.Stat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return destInfo.Size() == srcInfo.Size() && !destInfo.ModTime().Before(srcInfo.ModTime()), nil
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".collect-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
