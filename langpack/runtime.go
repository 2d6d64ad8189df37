package langpack

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"

	"github.com/efletch/trellis/internal/ir"
	"github.com/efletch/trellis/internal/syntax"
)

// ScriptLowerer runs a Risor lowering script against each document's syntax
// tree. The script navigates the tree through node host functions and emits
// IR facts through collector host functions; Go-side code owns all struct
// construction, since Risor cannot build Go values directly.
type ScriptLowerer struct {
	fsys fs.FS
	path string

	once sync.Once
	src  string
	err  error
}

// NewScriptLowerer loads path (a .risor file) from fsys on first use.
func NewScriptLowerer(fsys fs.FS, path string) *ScriptLowerer {
	return &ScriptLowerer{fsys: fsys, path: path}
}

func (l *ScriptLowerer) load() (string, error) {
	l.once.Do(func() {
		data, err := fs.ReadFile(l.fsys, l.path)
		if err != nil {
			l.err = fmt.Errorf("langpack: loading script %s: %w", l.path, err)
			return
		}
		l.src = string(data)
	})
	return l.src, l.err
}

// LowerFile executes the script. Each run gets a fresh collector, so script
// executions are isolated and the result depends only on the tree.
func (l *ScriptLowerer) LowerFile(ctx context.Context, docID string, tree *syntax.Tree) (*ir.File, error) {
	src, err := l.load()
	if err != nil {
		return nil, err
	}

	c := newCollector(docID)
	globals := buildGlobals(tree, c)

	opts := make([]risor.Option, 0, len(globals)+1)
	globalNames := make([]string, 0, len(globals))
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
		globalNames = append(globalNames, name)
	}
	opts = append(opts, risor.WithImporter(importer.NewFSImporter(importer.FSImporterOptions{
		GlobalNames: globalNames,
		SourceFS:    l.fsys,
		Extensions:  []string{".risor"},
	})))

	if _, err := risor.Eval(ctx, src, opts...); err != nil {
		return nil, fmt.Errorf("langpack: script %s: %w", l.path, err)
	}
	if c.err != nil {
		return nil, fmt.Errorf("langpack: script %s: %w", l.path, c.err)
	}
	return c.finish(), nil
}

// collector accumulates IR facts emitted by a lowering run. Scripts only
// navigate and emit; validation and visibility policy live here.
type collector struct {
	docID   string
	module  string
	imports []string
	items   []ir.Item
	err     error

	// in-progress item state between begin_item and end_item
	cur    *ir.Item
	locals map[string]bool
}

func newCollector(docID string) *collector {
	return &collector{docID: docID}
}

func (c *collector) fail(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf(format, args...)
	}
}

func (c *collector) beginItem(kind, name string) {
	if c.cur != nil {
		c.fail("begin_item %q before end_item of %q", name, c.cur.Sig.Name)
		return
	}
	var k ir.ItemKind
	switch kind {
	case "function":
		k = ir.KindFunction
	case "type":
		k = ir.KindType
	default:
		c.fail("begin_item: unsupported kind %q", kind)
		return
	}
	c.cur = &ir.Item{Sig: ir.Signature{
		Name:       name,
		Kind:       k,
		Visibility: ir.VisibilityOf(name),
	}}
	c.locals = make(map[string]bool)
}

func (c *collector) endItem() {
	if c.cur == nil {
		c.fail("end_item without begin_item")
		return
	}
	// Drop refs rooted at locals or parameters; they bind inside the item
	// and never reach the graph.
	for _, p := range c.cur.Sig.Params {
		c.locals[p.Name] = true
	}
	kept := c.cur.Body.Refs[:0]
	seen := make(map[ir.Ref]bool)
	for _, r := range c.cur.Body.Refs {
		root, _, _ := strings.Cut(r.Target, ".")
		if c.locals[root] || seen[r] {
			continue
		}
		seen[r] = true
		kept = append(kept, r)
	}

	// Drop name refs subsumed by another ref: the callee of a call and the
	// root segment of a qualified target are re-walked by the script, and
	// those fragments carry no information the fuller ref doesn't.
	subsumed := make(map[string]bool)
	for _, r := range kept {
		if r.Kind == ir.RefCall {
			subsumed[r.Target] = true
		}
		if root, _, qualified := strings.Cut(r.Target, "."); qualified {
			subsumed[root] = true
		}
	}
	final := kept[:0]
	for _, r := range kept {
		if r.Kind == ir.RefName && subsumed[r.Target] {
			continue
		}
		final = append(final, r)
	}
	c.cur.Body.Refs = final
	c.items = append(c.items, *c.cur)
	c.cur = nil
	c.locals = nil
}

func (c *collector) withCur(op string, f func(it *ir.Item)) {
	if c.cur == nil {
		c.fail("%s outside begin_item/end_item", op)
		return
	}
	f(c.cur)
}

// finish stamps the module onto every item and returns the lowered file.
func (c *collector) finish() *ir.File {
	if c.cur != nil {
		// Unterminated item: keep what was emitted so partial scripts still
		// produce partial IR.
		c.endItem()
	}
	items := make([]ir.Item, len(c.items))
	copy(items, c.items)
	for i := range items {
		items[i].Sig.Module = c.module
	}
	return &ir.File{
		DocID:   c.docID,
		Module:  c.module,
		Imports: c.imports,
		Items:   items,
	}
}
