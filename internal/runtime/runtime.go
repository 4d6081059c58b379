// Package runtime runs user rule scripts written in Risor against parsed
// Python files. Scripts see the file's tree-sitter syntax tree through host
// functions and add findings with report().
package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/pydefect/internal/detect"
	"github.com/jward/pydefect/internal/parse"
	"github.com/jward/pydefect/internal/store"
)

// ScriptExt is the extension of rule scripts and importable rule modules.
const ScriptExt = ".risor"

// Runtime loads rule scripts from a directory or an fs.FS. It holds no
// per-file state, so one Runtime may serve concurrent RunRules calls.
type Runtime struct {
	rulesDir string
	fsys     fs.FS
	store    *store.Store
	logger   *slog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeStore exposes the result cache to scripts through db_query.
func WithRuntimeStore(s *store.Store) RuntimeOption {
	return func(r *Runtime) {
		r.store = s
	}
}

// WithRuntimeLogger sets the logger behind the scripts' log global.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime for the scripts in rulesDir.
func NewRuntime(rulesDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		rulesDir: rulesDir,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scripts returns the rule scripts in lexical order. Top-level *.risor files
// are rules; files whose name starts with "_" are modules for import only.
func (r *Runtime) Scripts() ([]string, error) {
	fsys := r.scriptFS()
	if fsys == nil {
		return nil, nil
	}
	matches, err := fs.Glob(fsys, "*"+ScriptExt)
	if err != nil {
		return nil, fmt.Errorf("runtime: listing scripts: %w", err)
	}
	scripts := matches[:0]
	for _, m := range matches {
		if !strings.HasPrefix(path.Base(m), "_") {
			scripts = append(scripts, m)
		}
	}
	sort.Strings(scripts)
	return scripts, nil
}

func (r *Runtime) scriptFS() fs.FS {
	if r.fsys != nil {
		return r.fsys
	}
	if r.rulesDir != "" {
		return os.DirFS(r.rulesDir)
	}
	return nil
}

// RunRules runs every rule script against tree and returns their defects in
// script order. The first failing script aborts the run.
func (r *Runtime) RunRules(ctx context.Context, tree *parse.Tree) ([]detect.Defect, error) {
	scripts, err := r.Scripts()
	if err != nil {
		return nil, err
	}
	var out []detect.Defect
	for _, script := range scripts {
		defects, err := r.RunScript(ctx, script, tree)
		if err != nil {
			return nil, err
		}
		out = append(out, defects...)
	}
	return out, nil
}

// RunScript loads and executes one rule script against tree.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, tree *parse.Tree) ([]detect.Defect, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return r.eval(ctx, src, scriptPath, tree)
}

// RunSource executes Risor source code directly. tree may be nil, in which
// case the tree globals are absent. Useful for testing without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, tree *parse.Tree) ([]detect.Defect, error) {
	return r.eval(ctx, source, "<inline>", tree)
}

func (r *Runtime) eval(ctx context.Context, source, label string, tree *parse.Tree) ([]detect.Defect, error) {
	rep := &reporter{}
	globals := r.buildGlobals(label, tree, rep)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Wire importer so Risor import statements resolve correctly.
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return rep.defects, nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor rulesDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{ScriptExt},
		})
	}
	if r.rulesDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.rulesDir,
			Extensions:  []string{ScriptExt},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code.
// When an fs.FS is configured, uses fs.ReadFile on that filesystem.
// Otherwise, uses os.ReadFile with rulesDir as the base directory.
func (r *Runtime) LoadScript(scriptPath string) (string, error) {
	if r.fsys != nil {
		// fs.FS paths are slash-separated and relative.
		fsPath := strings.TrimPrefix(filepath.ToSlash(scriptPath), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := scriptPath
	if !filepath.IsAbs(scriptPath) {
		fullPath = filepath.Join(r.rulesDir, scriptPath)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// Hash fingerprints the rule set: names and contents of every .risor file
// in the tree, so import-only modules in subdirectories count too. It is ""
// when there are no scripts.
func (r *Runtime) Hash() (string, error) {
	fsys := r.scriptFS()
	if fsys == nil {
		return "", nil
	}
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path.Ext(p) == ScriptExt {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("runtime: listing scripts: %w", err)
	}
	if len(files) == 0 {
		return "", nil
	}

	h := sha256.New()
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return "", fmt.Errorf("runtime: hashing script %s: %w", name, err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00", name, len(data))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// buildGlobals constructs the full set of globals exposed to one script run.
func (r *Runtime) buildGlobals(label string, tree *parse.Tree, rep *reporter) map[string]any {
	globals := map[string]any{
		"node_child": makeNodeChildFn(),
		"node_pos":   makeNodePosFn(),
		"report":     makeReportFn(rep),
		"log":        mustProxy(&logObject{logger: r.logger.With("script", label)}),
	}

	if tree != nil {
		src := tree.Source()
		globals["root"] = mustProxy(tree.Root())
		globals["file_path"] = tree.Path()
		globals["source"] = string(src)
		globals["node_text"] = makeNodeTextFn(src)
		globals["query"] = makeQueryFn(src, parse.Grammar())
	}

	// Expose the cache if available.
	if r.store != nil {
		globals["db_query"] = makeDBQueryFn(r.store)
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
