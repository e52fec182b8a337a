package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"spcpulse/internal/ingest"
	"spcpulse/internal/spc"
)

// AnalyzeFunc analyses one input file
type AnalyzeFunc func(ctx context.Context, path string) (*spc.Result, error)

// Item is the outcome for one input. Err is per-file and never aborts the
// batch.
type Item struct {
	Path     string
	Result   *spc.Result
	Err      error
	Duration time.Duration
}

// Runner fans independent file analyses out over a bounded number of
// goroutines
type Runner struct {
	limit  int
	logger *slog.Logger
}

// NewRunner creates a runner; limit <= 0 uses GOMAXPROCS
func NewRunner(limit int, logger *slog.Logger) *Runner {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{limit: limit, logger: logger}
}

// Run analyses every path and returns the items in input order. The only
// error returned is the context's, when the batch was cancelled.
func (r *Runner) Run(ctx context.Context, paths []string, fn AnalyzeFunc) ([]Item, error) {
	items := make([]Item, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)

	for i, path := range paths {
		i, path := i, path

		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				items[i] = Item{Path: path, Err: err}
				return err
			}

			start := time.Now()
			result, err := fn(gCtx, path)
			items[i] = Item{
				Path:     path,
				Result:   result,
				Err:      err,
				Duration: time.Since(start),
			}

			if err != nil {
				r.logger.WarnContext(gCtx, "batch item failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return items, fmt.Errorf("batch cancelled: %w", err)
	}

	r.logger.InfoContext(ctx, "batch completed",
		slog.Int("files", len(paths)),
		slog.Int("failed", countFailed(items)))
	return items, nil
}

// Failed returns the items that ended with an error
func Failed(items []Item) []Item {
	var failed []Item
	for _, item := range items {
		if item.Err != nil {
			failed = append(failed, item)
		}
	}
	return failed
}

func countFailed(items []Item) int {
	return len(Failed(items))
}

// CollectInputs expands directories into the supported data files they
// contain (non-recursive, sorted) and keeps plain file arguments as given
func CollectInputs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", arg, err)
		}

		var found []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, err := ingest.DetectFormat(e.Name()); err == nil {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}
