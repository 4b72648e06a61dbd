package engine

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dejo1307/cxxmodel/internal/grammar"
	"github.com/dejo1307/cxxmodel/internal/project"
)

// walkProject collects the source files of p, relative to its root,
// applying the ignore patterns.
func (e *Engine) walkProject(ctx context.Context, p *project.Project) ([]string, error) {
	var files []string
	err := filepath.WalkDir(p.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if e.isIgnored(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !grammar.IsSource(path, e.cfg.Extensions) {
			return nil
		}

		rel, err := filepath.Rel(p.Root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

// isIgnored checks whether an absolute path matches any ignore pattern.
// Patterns are doublestar globs relative to the repository root.
func (e *Engine) isIgnored(path string, isDir bool) bool {
	rel, err := filepath.Rel(e.repo, path)
	if err != nil || rel == "." {
		return false
	}
	return matchIgnore(e.cfg.Ignore, filepath.ToSlash(rel), isDir)
}

func matchIgnore(patterns []string, relPath string, isDir bool) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
		// "dir/**" also covers dir itself, so the walk can skip it whole.
		if isDir {
			if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
				if m, err := doublestar.Match(prefix, relPath); err == nil && m {
					return true
				}
			}
		}
	}
	return false
}

// projectFor returns the loaded project whose root contains the absolute
// path, preferring the deepest root, and the path relative to it.
func (e *Engine) projectFor(path string) (*project.Project, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var best *project.Project
	var bestRel string
	for _, p := range e.projects {
		rel, err := filepath.Rel(p.Root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(p.Root) > len(best.Root) {
			best, bestRel = p, filepath.ToSlash(rel)
		}
	}
	return best, bestRel, best != nil
}
