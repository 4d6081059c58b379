package pydefect

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/jward/pydefect/internal/parse"
)

// skipDirs are never descended into by the filesystem walk.
var skipDirs = map[string]bool{
	"__pycache__":  true,
	"node_modules": true,
	"venv":         true,
}

// Discover expands paths into the files to analyze. Files named explicitly
// are kept as given, whatever their extension, and missing paths are kept
// too so analysis can report them. Directories are expanded to their Python
// files: through git ls-files when inside a git repository, to respect
// .gitignore, or by walking the filesystem, skipping hidden directories,
// __pycache__, node_modules and virtualenvs. Exclude patterns apply to
// expanded files only. Each path appears once.
func (e *Engine) Discover(paths []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			add(p)
			continue
		}

		files, err := e.gitListFiles(p)
		if err != nil {
			// Not a git repo or git not available, fall back to walk.
			e.logger.Debug("git ls-files unavailable, walking", "dir", p, "error", err)
			files, err = e.walkListFiles(p)
			if err != nil {
				return nil, err
			}
		}
		for _, f := range files {
			if !e.excluded(p, f) {
				add(f)
			}
		}
	}
	return out, nil
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) Python files under root.
func (e *Engine) gitListFiles(root string) ([]string, error) {
	// --cached: tracked files, --others: untracked files,
	// --exclude-standard: respect .gitignore, .git/info/exclude, global excludes.
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p := filepath.Join(root, line)
		if _, ok := parse.LanguageForFile(p); !ok {
			continue
		}
		// Tracked files deleted from the working tree are still listed.
		if _, err := os.Stat(p); err != nil {
			continue
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// walkListFiles discovers files by walking the filesystem, used as a fallback
// when git is not available.
func (e *Engine) walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if p != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := parse.LanguageForFile(p); ok {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// excluded matches file against the exclude patterns, both as a path
// relative to root and by base name.
func (e *Engine) excluded(root, file string) bool {
	if len(e.exclude) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, file)
	if err != nil {
		rel = file
	}
	rel = filepath.ToSlash(rel)
	base := path.Base(rel)
	for _, ex := range e.exclude {
		if ex.glob.Match(rel) || ex.glob.Match(base) {
			e.logger.Debug("excluded", "path", file, "pattern", ex.pattern)
			return true
		}
	}
	return false
}
