package mini

import (
	"github.com/efletch/trellis/internal/syntax"
)

type grammar struct{}

// New returns the mini grammar. It is stateless and safe for concurrent use.
func New() syntax.Grammar { return grammar{} }

func (grammar) Name() string { return "mini" }

// Parse builds the full tree. It is defined as ParseItems over the whole
// source so the incremental item-splice path and from-scratch parsing agree
// byte for byte.
func (grammar) Parse(src string) *syntax.Tree {
	items, _ := parseItems(src)
	return syntax.NewTree(syntax.NewNode(syntax.KindFile, items...), src)
}

func (grammar) ParseItems(fragment string) ([]*syntax.GreenNode, bool) {
	return parseItems(fragment)
}
