// Package treesitter adapts tree-sitter grammars to the engine's grammar
// contract. Parse output is normalized onto the closed syntax.Kind set:
// mapped node types keep their structure, unmapped composites are flattened
// into their parent (unmapped top-level items become Error items), and the
// bytes between tree-sitter nodes are materialized as whitespace tokens so
// the green tree stays full-fidelity.
package treesitter

import (
	"context"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/efletch/trellis/internal/syntax"
	"github.com/efletch/trellis/internal/text"
)

// Grammar wraps one tree-sitter language. It keeps recent sitter trees by
// source hash so ParseIncremental can reuse tree-sitter's own incremental
// parser via InputEdit. The cache is bounded; an evicted source simply takes
// the full-parse path on its next edit.
type Grammar struct {
	name  string
	lang  *sitter.Language
	kinds map[string]syntax.Kind

	mu    sync.Mutex
	trees map[uint64]*sitter.Tree // source hash -> parsed tree
	order []uint64                // insertion order, oldest first
}

// maxTrees caps the retained sitter trees per grammar, roughly the number of
// documents edited concurrently.
const maxTrees = 8

// NewGrammar builds an adapter. kinds maps tree-sitter node type names onto
// the normalized kind set; anything absent is flattened.
func NewGrammar(name string, lang *sitter.Language, kinds map[string]syntax.Kind) *Grammar {
	return &Grammar{
		name:  name,
		lang:  lang,
		kinds: kinds,
		trees: make(map[uint64]*sitter.Tree),
	}
}

func (g *Grammar) Name() string { return g.name }

// Parse runs a full parse and converts to a green tree.
func (g *Grammar) Parse(src string) *syntax.Tree {
	st := g.parseSitter(src, nil)
	return g.convert(st, src)
}

// ParseItems parses a fragment as a file. Tree-sitter reparses whole
// documents cheaply, so fragments are always treated as complete; the
// incremental path goes through ParseIncremental instead.
func (g *Grammar) ParseItems(fragment string) ([]*syntax.GreenNode, bool) {
	t := g.Parse(fragment)
	return t.GreenRoot().Children(), true
}

// ParseIncremental reuses the prior sitter tree: the edit is replayed as an
// InputEdit so tree-sitter reparses only what the edit invalidated. Changed
// ranges are derived by comparing top-level item fingerprints between the
// prior and new green trees.
func (g *Grammar) ParseIncremental(src string, prior *syntax.Tree, edit text.Edit) (*syntax.Tree, []text.Span) {
	priorKey := xxhash.Sum64String(prior.Source())
	g.mu.Lock()
	old := g.trees[priorKey]
	delete(g.trees, priorKey)
	g.mu.Unlock()

	if old != nil {
		old.Edit(sitter.EditInput{
			StartIndex:  uint32(edit.Range.Start),
			OldEndIndex: uint32(edit.Range.End),
			NewEndIndex: uint32(edit.Range.Start + len(edit.NewText)),
			StartPoint:  pointAt(prior.Source(), edit.Range.Start),
			OldEndPoint: pointAt(prior.Source(), edit.Range.End),
			NewEndPoint: pointAt(src, edit.Range.Start+len(edit.NewText)),
		})
	}

	st := g.parseSitter(src, old)
	tree := g.convert(st, src)
	return tree, changedSpans(prior, tree, edit)
}

func (g *Grammar) parseSitter(src string, old *sitter.Tree) *sitter.Tree {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g.lang)

	st, err := parser.ParseCtx(context.Background(), old, []byte(src))
	if err != nil {
		// ParseCtx fails only on cancellation; treat as a full-error parse.
		return nil
	}
	g.storeTree(xxhash.Sum64String(src), st)
	return st
}

func (g *Grammar) storeTree(key uint64, st *sitter.Tree) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.trees[key]; !ok {
		g.order = append(g.order, key)
	}
	g.trees[key] = st
	// order may hold keys ParseIncremental already consumed; popping those
	// costs nothing.
	for len(g.trees) > maxTrees && len(g.order) > 0 {
		oldest := g.order[0]
		g.order = g.order[1:]
		if oldest == key {
			g.order = append(g.order, oldest)
			continue
		}
		delete(g.trees, oldest)
	}
}

// convert builds the normalized green tree.
func (g *Grammar) convert(st *sitter.Tree, src string) *syntax.Tree {
	if st == nil {
		if src == "" {
			return syntax.NewTree(syntax.NewNode(syntax.KindFile), src)
		}
		errItem := syntax.NewNode(syntax.KindError, syntax.NewToken(syntax.KindPunct, src))
		return syntax.NewTree(syntax.NewNode(syntax.KindFile, errItem), src)
	}

	root := st.RootNode()
	var children []*syntax.GreenNode
	g.convertChildren(root, src, &children, true)
	return syntax.NewTree(syntax.NewNode(syntax.KindFile, children...), src)
}

// convertChildren appends the converted children of n, materializing gap
// bytes as whitespace tokens. topLevel controls the unmapped-composite
// policy: flattened inline below the top, wrapped as Error items at the top.
func (g *Grammar) convertChildren(n *sitter.Node, src string, out *[]*syntax.GreenNode, topLevel bool) {
	pos := int(n.StartByte())
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		start, end := int(c.StartByte()), int(c.EndByte())
		if start > pos {
			*out = append(*out, syntax.NewToken(syntax.KindWhitespace, src[pos:start]))
		}
		pos = end

		if c.ChildCount() == 0 {
			*out = append(*out, g.convertToken(c, src[start:end]))
			continue
		}
		kind, mapped := g.kinds[c.Type()]
		var kids []*syntax.GreenNode
		g.convertChildren(c, src, &kids, false)
		switch {
		case mapped:
			*out = append(*out, syntax.NewNode(kind, kids...))
		case topLevel:
			*out = append(*out, syntax.NewNode(syntax.KindError, kids...))
		default:
			*out = append(*out, kids...)
		}
	}
	if end := int(n.EndByte()); pos < end {
		*out = append(*out, syntax.NewToken(syntax.KindWhitespace, src[pos:end]))
	}
}

func (g *Grammar) convertToken(c *sitter.Node, tokText string) *syntax.GreenNode {
	if kind, ok := g.kinds[c.Type()]; ok {
		return syntax.NewToken(kind, tokText)
	}
	if isWordToken(tokText) {
		return syntax.NewToken(syntax.KindKeyword, tokText)
	}
	return syntax.NewToken(syntax.KindPunct, tokText)
}

func isWordToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '_' && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// pointAt converts a byte offset into a tree-sitter row/column point.
func pointAt(src string, offset int) sitter.Point {
	if offset > len(src) {
		offset = len(src)
	}
	prefix := src[:offset]
	row := strings.Count(prefix, "\n")
	col := offset
	if i := strings.LastIndexByte(prefix, '\n'); i >= 0 {
		col = offset - i - 1
	}
	return sitter.Point{Row: uint32(row), Column: uint32(col)}
}

// changedSpans compares top-level item fingerprints of two trees and returns
// the span of new text covering the items that differ. Shared prefix and
// suffix items are excluded, so an unchanged neighbor never re-enters the
// pipeline.
func changedSpans(prior, next *syntax.Tree, edit text.Edit) []text.Span {
	oldItems := prior.GreenRoot().Children()
	newItems := next.GreenRoot().Children()

	prefix := 0
	for prefix < len(oldItems) && prefix < len(newItems) &&
		oldItems[prefix].Fingerprint() == newItems[prefix].Fingerprint() {
		prefix++
	}
	suffix := 0
	for suffix < len(oldItems)-prefix && suffix < len(newItems)-prefix &&
		oldItems[len(oldItems)-1-suffix].Fingerprint() == newItems[len(newItems)-1-suffix].Fingerprint() {
		suffix++
	}

	if prefix == len(newItems) && prefix == len(oldItems) && suffix == 0 {
		// Structurally identical trees; report the edit site itself.
		end := edit.Range.Start + len(edit.NewText)
		return []text.Span{{Start: edit.Range.Start, End: end}}
	}

	start := 0
	for i := 0; i < prefix; i++ {
		start += newItems[i].Width()
	}
	end := len(next.Source())
	for i := 0; i < suffix; i++ {
		end -= newItems[len(newItems)-1-i].Width()
	}
	if end < start {
		end = start
	}
	return []text.Span{{Start: start, End: end}}
}
