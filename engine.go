package pydefect

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/jward/pydefect/internal/detect"
	"github.com/jward/pydefect/internal/parse"
	"github.com/jward/pydefect/internal/runtime"
	"github.com/jward/pydefect/internal/store"
)

// Engine orchestrates analysis: file discovery, parsing, the built-in
// detector, user rule scripts and the result cache.
type Engine struct {
	store     *store.Store
	runtime   *runtime.Runtime // nil when no rules are configured
	cachePath string
	rulesDir  string
	rulesFS   fs.FS
	mode      detect.Mode
	exclude   []excludePattern
	optErr    error
	keepGoing bool
	logger    *slog.Logger

	// useParallel enables the parallel analysis pipeline.
	useParallel bool
}

type excludePattern struct {
	pattern string
	glob    glob.Glob
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache enables the SQLite result cache at dbPath. The parent directory
// is created if needed.
func WithCache(dbPath string) Option {
	return func(e *Engine) {
		e.cachePath = dbPath
	}
}

// WithRulesDir loads Risor rule scripts from dir.
func WithRulesDir(dir string) Option {
	return func(e *Engine) {
		e.rulesDir = dir
	}
}

// WithRulesFS loads Risor rule scripts from fsys instead of from disk. This
// enables embedding rules via go:embed.
func WithRulesFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.rulesFS = fsys
	}
}

// WithParallel controls parallel analysis. When true (default), AnalyzeFiles
// uses a worker pool for parsing, detection and rule scripts, with cache
// writes done serially afterwards. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithScopeMode selects flat (default) or lexical unused-variable tracking.
func WithScopeMode(m ScopeMode) Option {
	return func(e *Engine) {
		e.mode = m
	}
}

// WithExclude drops discovered files matching any of the glob patterns.
// Patterns use '/' as separator and match either the path relative to the
// directory being discovered or the file's base name.
func WithExclude(patterns ...string) Option {
	return func(e *Engine) {
		for _, p := range patterns {
			g, err := glob.Compile(p, '/')
			if err != nil {
				e.optErr = errors.Join(e.optErr, fmt.Errorf("exclude pattern %q: %w", p, err))
				continue
			}
			e.exclude = append(e.exclude, excludePattern{pattern: p, glob: g})
		}
	}
}

// WithKeepGoing makes AnalyzeFiles continue past failed files instead of
// skipping everything after the first one.
func WithKeepGoing(keepGoing bool) Option {
	return func(e *Engine) {
		e.keepGoing = keepGoing
	}
}

// WithLogger sets the logger for progress and rule-script output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine. Without options it runs only the built-in detector,
// in parallel, with no cache.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		useParallel: true, // default to parallel analysis
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.optErr != nil {
		return nil, fmt.Errorf("pydefect: %w", e.optErr)
	}

	var rtOpts []runtime.RuntimeOption
	rtOpts = append(rtOpts, runtime.WithRuntimeLogger(e.logger))

	if e.cachePath != "" {
		if dir := filepath.Dir(e.cachePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("pydefect: creating %s: %w", dir, err)
			}
		}
		s, err := store.NewStore(e.cachePath)
		if err != nil {
			return nil, fmt.Errorf("pydefect: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("pydefect: migrate: %w", err)
		}
		e.store = s
		rtOpts = append(rtOpts, runtime.WithRuntimeStore(s))
	}

	if e.rulesFS != nil || e.rulesDir != "" {
		if e.rulesFS != nil {
			rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.rulesFS))
		}
		e.runtime = runtime.NewRuntime(e.rulesDir, rtOpts...)
	}

	if e.store != nil {
		if err := e.syncFingerprint(); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Fingerprint identifies everything besides file content that determines a
// result: the detector version, the scope mode and the rule scripts.
func (e *Engine) Fingerprint() (string, error) {
	rules := ""
	if e.runtime != nil {
		h, err := e.runtime.Hash()
		if err != nil {
			return "", fmt.Errorf("pydefect: %w", err)
		}
		rules = h
	}
	return store.Fingerprint(Version, e.mode.String(), rules), nil
}

// syncFingerprint purges the cache when it was built with a different
// fingerprint, then records the current one.
func (e *Engine) syncFingerprint() error {
	current, err := e.Fingerprint()
	if err != nil {
		return err
	}
	stored, err := e.store.GetMetadata(rulesHashKey)
	if err != nil {
		return fmt.Errorf("pydefect: %w", err)
	}
	if stored == current {
		return nil
	}
	if stored != "" {
		e.logger.Info("rules changed, clearing result cache", "cache", e.cachePath)
	}
	if err := e.store.Purge(); err != nil {
		return fmt.Errorf("pydefect: %w", err)
	}
	if err := e.store.SetMetadata(rulesHashKey, current); err != nil {
		return fmt.Errorf("pydefect: %w", err)
	}
	return nil
}

// AnalyzeSource analyzes src as the contents of path. It never touches the
// filesystem or the cache. Each call uses its own Detector.
func (e *Engine) AnalyzeSource(ctx context.Context, path string, src []byte) ([]Defect, error) {
	tree, err := parse.Parse(ctx, path, src)
	if err != nil {
		var se *parse.SyntaxError
		if errors.As(err, &se) {
			return nil, &SourceSyntaxError{Path: path, Err: se}
		}
		return nil, fmt.Errorf("pydefect: %s: %w", path, err)
	}
	defer tree.Close()

	defects := detect.New(detect.WithMode(e.mode)).Run(tree.Root(), tree.Source())

	if e.runtime != nil {
		extra, err := e.runtime.RunRules(ctx, tree)
		if err != nil {
			return nil, fmt.Errorf("pydefect: %s: %w", path, err)
		}
		defects = append(defects, extra...)
	}
	return defects, nil
}

// AnalyzeFile reads and analyzes one file, using the cache when configured.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) ([]Defect, error) {
	r := e.analyzeFile(ctx, path)
	return r.Defects, r.Err
}

// analyzeFile runs the three steps of the pipeline for one file in the
// calling goroutine.
func (e *Engine) analyzeFile(ctx context.Context, path string) FileResult {
	item := e.prepareFile(path)
	if item.done {
		return item.result
	}
	e.runItem(ctx, &item)
	e.commitItem(&item)
	return item.result
}

// workItem carries one file through preparation, analysis and commit.
type workItem struct {
	result FileResult
	src    []byte
	hash   string
	// done is set when preparation already produced the final result: a
	// read failure or a cache hit.
	done bool
}

// prepareFile reads path and consults the cache.
func (e *Engine) prepareFile(path string) workItem {
	item := workItem{result: FileResult{Path: path}}

	src, err := readSource(path)
	if err != nil {
		item.result.Err = err
		item.done = true
		e.forgetMissing(err, path)
		return item
	}
	item.src = src

	if e.store == nil {
		return item
	}
	item.hash = store.ContentHash(src)
	defects, hit, err := e.cachedDefects(path, item.hash)
	if err != nil {
		e.logger.Warn("cache lookup failed", "path", path, "error", err)
		return item
	}
	if hit {
		item.result.Defects = defects
		item.result.Cached = true
		item.done = true
	}
	return item
}

// forgetMissing drops the cache entry of a file that no longer exists.
func (e *Engine) forgetMissing(err error, path string) {
	var fe *FileAccessError
	if e.store == nil || !errors.As(err, &fe) || !fe.NotFound() {
		return
	}
	if err := e.store.DeleteFile(path); err != nil {
		e.logger.Warn("dropping cached result failed", "path", path, "error", err)
	}
}

// cachedDefects returns the cached defects for path when the cached hash
// matches.
func (e *Engine) cachedDefects(path, hash string) ([]Defect, bool, error) {
	f, err := e.store.FileByPath(path)
	if err != nil || f == nil || f.Hash != hash {
		return nil, false, err
	}
	defects, err := e.store.DefectsByFile(f.ID)
	if err != nil {
		return nil, false, err
	}
	return defects, true, nil
}

func (e *Engine) runItem(ctx context.Context, item *workItem) {
	defects, err := e.AnalyzeSource(ctx, item.result.Path, item.src)
	item.result.Defects = defects
	item.result.Err = err
}

// commitItem caches a successful analysis.
func (e *Engine) commitItem(item *workItem) {
	r := item.result
	if e.store == nil || r.Err != nil || item.done {
		return
	}
	if err := e.store.SaveResult(&store.File{Path: r.Path, Hash: item.hash}, r.Defects); err != nil {
		e.logger.Warn("caching result failed", "path", r.Path, "error", err)
	}
}

func readSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &FileAccessError{Path: path, Err: fmt.Errorf("is a directory")}
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}
	return src, nil
}

// AnalyzeFiles analyzes paths and returns one result per path in input
// order. When WithParallel is enabled, uses a worker pool; otherwise files
// are processed one at a time. Unless WithKeepGoing is set, every file after
// the first failed one is marked Skipped.
func (e *Engine) AnalyzeFiles(ctx context.Context, paths []string) []FileResult {
	if e.useParallel && len(paths) > 1 {
		return e.analyzeFilesParallel(ctx, paths)
	}
	return e.analyzeFilesSerial(ctx, paths)
}

func (e *Engine) analyzeFilesSerial(ctx context.Context, paths []string) []FileResult {
	results := make([]FileResult, len(paths))
	failed := false
	for i, path := range paths {
		if failed && !e.keepGoing {
			results[i] = FileResult{Path: path, Skipped: true}
			continue
		}
		if err := ctx.Err(); err != nil {
			results[i] = FileResult{Path: path, Err: err}
			failed = true
			continue
		}
		results[i] = e.analyzeFile(ctx, path)
		e.logResult(results[i])
		if results[i].Err != nil {
			failed = true
		}
	}
	return results
}

func (e *Engine) logResult(r FileResult) {
	if r.Err != nil {
		e.logger.Debug("analysis failed", "path", r.Path, "error", r.Err)
		return
	}
	e.logger.Debug("analyzed", "path", r.Path, "defects", len(r.Defects), "cached", r.Cached)
}
