package syntax

import (
	"encoding/binary"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// GreenNode is the immutable, position-independent form of a syntax node.
// Tokens carry their text; composite nodes carry children. Width is the total
// source length covered, so absolute offsets are derived by summing sibling
// widths. Two revisions of a document share unchanged subtrees by pointer.
type GreenNode struct {
	kind     Kind
	width    int
	fp       uint64
	text     string
	children []*GreenNode
}

// NewToken builds a leaf carrying its exact source text.
func NewToken(kind Kind, text string) *GreenNode {
	g := &GreenNode{kind: kind, width: len(text), text: text}
	g.fp = tokenFingerprint(kind, text)
	return g
}

// NewNode builds a composite node over the given children. The caller keeps
// ownership of nothing: children must not be mutated afterwards.
func NewNode(kind Kind, children ...*GreenNode) *GreenNode {
	g := &GreenNode{kind: kind, children: children}
	for _, c := range children {
		g.width += c.width
	}
	g.fp = nodeFingerprint(kind, children)
	return g
}

func (g *GreenNode) Kind() Kind  { return g.kind }
func (g *GreenNode) Width() int  { return g.width }
func (g *GreenNode) IsToken() bool { return g.children == nil && g.kind.IsToken() }

// TokenText returns a leaf's source text, or "" for composite nodes.
func (g *GreenNode) TokenText() string { return g.text }

// Children returns the child slice. Callers must not mutate it.
func (g *GreenNode) Children() []*GreenNode { return g.children }

func (g *GreenNode) NumChildren() int { return len(g.children) }

func (g *GreenNode) Child(i int) *GreenNode {
	if i < 0 || i >= len(g.children) {
		return nil
	}
	return g.children[i]
}

// Fingerprint is a structural hash over kinds and token texts, precomputed at
// construction. Equal fingerprints are treated as structural equality for
// sharing and early-cutoff decisions.
func (g *GreenNode) Fingerprint() uint64 { return g.fp }

// Source reconstructs the exact source text the node covers.
func (g *GreenNode) Source() string {
	var sb strings.Builder
	sb.Grow(g.width)
	g.writeSource(&sb)
	return sb.String()
}

func (g *GreenNode) writeSource(sb *strings.Builder) {
	if g.children == nil {
		sb.WriteString(g.text)
		return
	}
	for _, c := range g.children {
		c.writeSource(sb)
	}
}

func tokenFingerprint(kind Kind, text string) uint64 {
	h := xxhash.New()
	var kb [2]byte
	kb[0] = byte(kind)
	kb[1] = 0x1f
	h.Write(kb[:])
	h.WriteString(text)
	return h.Sum64()
}

func nodeFingerprint(kind Kind, children []*GreenNode) uint64 {
	h := xxhash.New()
	var kb [2]byte
	kb[0] = byte(kind)
	kb[1] = 0x2f
	h.Write(kb[:])
	var buf [8]byte
	for _, c := range children {
		binary.LittleEndian.PutUint64(buf[:], c.fp)
		h.Write(buf[:])
	}
	return h.Sum64()
}
