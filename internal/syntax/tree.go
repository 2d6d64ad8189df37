package syntax

import (
	"github.com/efletch/trellis/internal/text"
)

// Tree is one parsed revision of a document: an immutable green root plus the
// source it was parsed from. The root is always KindFile.
type Tree struct {
	root *GreenNode
	src  string
}

// NewTree wraps a green root and its source. The root's width must equal the
// source length; grammars are responsible for full-fidelity trees.
func NewTree(root *GreenNode, src string) *Tree {
	return &Tree{root: root, src: src}
}

// Root returns a red cursor at the file root.
func (t *Tree) Root() *Node {
	return &Node{green: t.root, offset: 0}
}

func (t *Tree) GreenRoot() *GreenNode { return t.root }
func (t *Tree) Source() string        { return t.src }
func (t *Tree) Fingerprint() uint64   { return t.root.fp }

// Items returns red cursors for the top-level items in order, skipping stray
// trivia tokens between them.
func (t *Tree) Items() []*Node {
	var out []*Node
	off := 0
	root := t.Root()
	for _, c := range t.root.children {
		if c.kind.IsItem() {
			out = append(out, &Node{green: c, parent: root, offset: off})
		}
		off += c.width
	}
	return out
}

// Grammar parses source text for one language into a normalized tree.
// Parsing never fails: malformed regions become KindError items so the tree
// always covers the full source.
type Grammar interface {
	// Name identifies the language (e.g. "mini").
	Name() string

	// Parse builds a complete tree for the source.
	Parse(src string) *Tree

	// ParseItems parses a fragment as a top-level item sequence, returning
	// the file-root child sequence for the fragment. complete is false when
	// the fragment ended in the middle of an item (e.g. an unclosed block),
	// meaning the parse could absorb following text.
	ParseItems(fragment string) (items []*GreenNode, complete bool)
}

// IncrementalGrammar is implemented by grammars that keep their own
// incremental state (the tree-sitter bridge). Reparse delegates to it
// directly instead of running the item-splice algorithm.
type IncrementalGrammar interface {
	Grammar
	ParseIncremental(src string, prior *Tree, edit text.Edit) (*Tree, []text.Span)
}

// Reparse applies an edit incrementally: it reparses only the top-level items
// whose spans the edit touches and splices the fresh items into the prior
// tree, reusing every untouched item subtree by reference. The returned spans
// (in new-text coordinates) cover exactly the spliced region and drive
// downstream invalidation.
//
// prior may be nil, in which case the whole source is parsed and the full
// span reported.
func Reparse(g Grammar, prior *Tree, newSrc string, edit text.Edit) (*Tree, []text.Span) {
	if ig, ok := g.(IncrementalGrammar); ok && prior != nil {
		return ig.ParseIncremental(newSrc, prior, edit)
	}
	if prior == nil {
		t := g.Parse(newSrc)
		return t, []text.Span{{Start: 0, End: len(newSrc)}}
	}

	children := prior.root.children
	spans := childSpans(children)

	// Locate the affected window as an index range over root children.
	// Leading trivia attaches to its item, so item spans tile the file and an
	// edit in a gap lands inside the following item. Boundary offsets widen
	// to both neighbors: a deleted or inserted byte at a boundary can change
	// tokenization on either side.
	first := len(children)
	for i, sp := range spans {
		if sp.End >= edit.Range.Start {
			first = i
			break
		}
	}
	last := -1
	for i := len(children) - 1; i >= 0; i-- {
		if spans[i].Start <= edit.Range.End {
			last = i
			break
		}
	}
	if first > last {
		// Degenerate window (empty tree, or edit past every child): reparse
		// everything after the last unaffected child.
		if first > len(children) {
			first = len(children)
		}
		last = len(children) - 1
		if last < first {
			last = first - 1
		}
	}

	// The window may need to grow rightwards: an edit can leave the fragment
	// ending mid-item (unclosed block), in which case the item would absorb
	// the text that follows, so following items must join the reparse.
	for {
		winStart := 0
		if first > 0 {
			winStart = spans[first-1].End
		}
		winEndOld := len(prior.src)
		if last+1 < len(children) {
			winEndOld = spans[last+1].Start
		}
		winEndNew := winEndOld + edit.Delta()

		fragment := newSrc[winStart:winEndNew]
		items, complete := g.ParseItems(fragment)
		if !complete && last+1 < len(children) {
			last++
			continue
		}

		spliced := make([]*GreenNode, 0, first+len(items)+len(children)-last-1)
		spliced = append(spliced, children[:first]...)
		spliced = append(spliced, items...)
		spliced = append(spliced, children[last+1:]...)
		root := NewNode(KindFile, spliced...)
		return NewTree(root, newSrc), []text.Span{{Start: winStart, End: winEndNew}}
	}
}

// childSpans computes the absolute span of each root child by accumulating
// widths.
func childSpans(children []*GreenNode) []text.Span {
	spans := make([]text.Span, len(children))
	off := 0
	for i, c := range children {
		spans[i] = text.Span{Start: off, End: off + c.width}
		off += c.width
	}
	return spans
}
