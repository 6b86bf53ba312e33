package bulkcopy

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/Veraticus/courier/internal/model"
)

// filter applies include and exclude wildcard patterns. Patterns match either
// the base name or the slash-separated relative path, case-insensitively.
// Literal paths are compared exactly and, when present, replace the include
// patterns.
type filter struct {
	include      []string
	excludeFiles []string
	excludeDirs  []string
	paths        map[string]bool
	parents      map[string]bool
}

func newFilter(cfg model.CopyConfiguration) filter {
	f := filter{
		include:      lowerAll(cfg.IncludeFiles),
		excludeFiles: lowerAll(cfg.ExcludeFiles),
		excludeDirs:  lowerAll(cfg.ExcludeDirs),
	}
	if len(cfg.IncludePaths) > 0 {
		f.paths = make(map[string]bool, len(cfg.IncludePaths))
		f.parents = make(map[string]bool)
		for _, p := range cfg.IncludePaths {
			p = path.Clean(filepath.ToSlash(p))
			f.paths[p] = true
			for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
				f.parents[dir] = true
			}
		}
	}
	return f
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToLower(filepath.ToSlash(s)))
		}
	}
	return out
}

func (f filter) file(rel string) bool {
	if matchAny(f.excludeFiles, rel) {
		return false
	}
	if f.paths != nil {
		return f.paths[rel]
	}
	return len(f.include) == 0 || matchAny(f.include, rel)
}

func (f filter) dir(rel string) bool {
	if matchAny(f.excludeDirs, rel) {
		return false
	}
	return f.parents == nil || f.parents[rel]
}

func matchAny(patterns []string, rel string) bool {
	rel = strings.ToLower(rel)
	base := path.Base(rel)
	for _, p := range patterns {
		if ok, err := path.Match(p, base); err == nil && ok {
			return true
		}
		if ok, err := path.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// sourceEntry is one filtered item under a source root.
type sourceEntry struct {
	info fs.FileInfo
	rel  string
}

// walkSource lists the filtered directories and files under root in lexical order.
func walkSource(ctx context.Context, root string, cfg model.CopyConfiguration) (dirs, files []sourceEntry, err error) {
	f := newFilter(cfg)
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if !cfg.CopySubdirectories || !f.dir(rel) {
				return filepath.SkipDir
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			dirs = append(dirs, sourceEntry{rel: rel, info: info})
			return nil
		}
		if !d.Type().IsRegular() || !f.file(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, sourceEntry{rel: rel, info: info})
		return nil
	})
	return dirs, files, err
}
