package trellis

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/efletch/trellis/internal/memo"
)

// OpenDirectory walks root, reads every file a registered pack claims that
// passes the configured include and exclude globs, and opens them all under
// a single revision. Reads run in parallel; the commit is serial. Document
// ids are slash-separated paths relative to root. Returns the number of
// documents opened.
func (e *Engine) OpenDirectory(ctx context.Context, root string) (int, error) {
	exts := make(map[string]bool)
	for _, ext := range e.packs.Extensions() {
		exts[strings.ToLower(ext)] = true
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && e.excluded(rel+"/x") {
				return filepath.SkipDir
			}
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if !e.included(rel) || e.excluded(rel) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", root, err)
	}
	if len(paths) == 0 {
		return 0, nil
	}

	limit := e.cfg.Engine.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	contents := make([]string, len(paths))
	for i, rel := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return fmt.Errorf("read %s: %w", rel, err)
			}
			contents[i] = string(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.parseMu.Lock()
	for i, rel := range paths {
		e.texts.Open(rel, contents[i])
		e.parses[rel] = &parseState{}
	}
	e.parseMu.Unlock()
	e.rt.Bump()
	for _, rel := range paths {
		snap, err := e.texts.Snapshot(rel)
		if err != nil {
			return 0, err
		}
		e.rt.SetInput(qText, rel, textValue{snap: snap})
	}
	e.rt.SetInput(qDocs, "", memo.Strings(e.texts.IDs()))
	e.log.Info("directory opened", "root", root, "documents", len(paths))
	return len(paths), nil
}

// included applies the configured include globs; an empty list includes
// everything a pack claims.
func (e *Engine) included(rel string) bool {
	if len(e.cfg.Index.Include) == 0 {
		return true
	}
	for _, pat := range e.cfg.Index.Include {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (e *Engine) excluded(rel string) bool {
	for _, pat := range e.cfg.Index.Exclude {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}
