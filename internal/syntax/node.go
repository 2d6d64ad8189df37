package syntax

import (
	"github.com/efletch/trellis/internal/text"
)

// Node is a red cursor: a green node positioned at an absolute offset with a
// parent link. Cursors are cheap to materialize and are never stored across
// revisions; only green nodes persist.
type Node struct {
	green  *GreenNode
	parent *Node
	offset int
}

func (n *Node) Kind() Kind        { return n.green.kind }
func (n *Node) Green() *GreenNode { return n.green }
func (n *Node) Parent() *Node     { return n.parent }
func (n *Node) Offset() int       { return n.offset }

// Span is the absolute byte range the node covers.
func (n *Node) Span() text.Span {
	return text.Span{Start: n.offset, End: n.offset + n.green.width}
}

// Text reconstructs the source the node covers. For tokens this is the stored
// token text.
func (n *Node) Text() string {
	if n.green.children == nil {
		return n.green.text
	}
	return n.green.Source()
}

// Children materializes cursors for all children, trivia included.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.green.children))
	off := n.offset
	for _, c := range n.green.children {
		out = append(out, &Node{green: c, parent: n, offset: off})
		off += c.width
	}
	return out
}

// ChildAt returns the i-th child cursor, or nil when out of range.
func (n *Node) ChildAt(i int) *Node {
	if i < 0 || i >= len(n.green.children) {
		return nil
	}
	off := n.offset
	for j := 0; j < i; j++ {
		off += n.green.children[j].width
	}
	return &Node{green: n.green.children[i], parent: n, offset: off}
}

// FirstOfKind returns the first direct child of the given kind.
func (n *Node) FirstOfKind(kind Kind) *Node {
	off := n.offset
	for _, c := range n.green.children {
		if c.kind == kind {
			return &Node{green: c, parent: n, offset: off}
		}
		off += c.width
	}
	return nil
}

// OfKind returns all direct children of the given kind in order.
func (n *Node) OfKind(kind Kind) []*Node {
	var out []*Node
	off := n.offset
	for _, c := range n.green.children {
		if c.kind == kind {
			out = append(out, &Node{green: c, parent: n, offset: off})
		}
		off += c.width
	}
	return out
}

// FirstToken returns the first non-trivia token child text of the given kind,
// or "".
func (n *Node) FirstToken(kind Kind) string {
	for _, c := range n.green.children {
		if c.kind == kind {
			return c.text
		}
	}
	return ""
}

// Identifiers returns the texts of all direct KindIdent children.
func (n *Node) Identifiers() []string {
	var out []string
	for _, c := range n.green.children {
		if c.kind == KindIdent {
			out = append(out, c.text)
		}
	}
	return out
}

// Walk visits the node and every descendant in depth-first preorder. The
// visit function returns false to skip a subtree's children.
func (n *Node) Walk(visit func(*Node) bool) {
	if !visit(n) {
		return
	}
	for _, c := range n.Children() {
		c.Walk(visit)
	}
}
