package pydefect

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// analyzeFilesParallel analyzes files using a three-phase pipeline:
//
//	Phase A (serial):   Read files and look up cached results.
//	Phase B (parallel): Parse, detect and run rule scripts via a worker pool
//	                    (each file gets its own Detector).
//	Phase C (serial):   Apply the failure policy and write the cache.
func (e *Engine) analyzeFilesParallel(ctx context.Context, paths []string) []FileResult {
	// ---- Phase A: Serial file preparation ----
	items := make([]workItem, len(paths))
	for i, path := range paths {
		items[i] = e.prepareFile(path)
	}

	// ---- Phase B: Parallel analysis ----
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(runtime.NumCPU(), 1))
	for i := range items {
		if items[i].done {
			continue
		}
		item := &items[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				item.result.Err = err
				return nil
			}
			e.runItem(gctx, item)
			return nil
		})
	}
	// Workers record their failures per file, so Wait has nothing to report.
	_ = g.Wait()

	// ---- Phase C: Serial commit ----
	results := make([]FileResult, len(items))
	failed := false
	for i := range items {
		if failed && !e.keepGoing {
			results[i] = FileResult{Path: items[i].result.Path, Skipped: true}
			continue
		}
		e.commitItem(&items[i])
		results[i] = items[i].result
		e.logResult(results[i])
		if results[i].Err != nil {
			failed = true
		}
	}
	return results
}
