// Package langpack plugs concrete languages into the engine. A Pack bundles
// a grammar (how to parse) with a lowerer (how to derive IR from the tree).
// Lowering rules can be native Go or Risor scripts executed by the embedded
// runtime, which is how language support ships without recompiling.
package langpack

import (
	"context"
	"fmt"
	"strings"

	"github.com/efletch/trellis/internal/ir"
	"github.com/efletch/trellis/internal/syntax"
)

// Pack is one language: a name, the file extensions it claims, a grammar,
// and lowering rules.
type Pack struct {
	Name       string
	Extensions []string
	Grammar    syntax.Grammar
	Lower      Lowerer
}

// Lowerer derives the IR of one document from its syntax tree. LowerFile
// must be a pure function of the tree's content: position-independent, and
// deterministic so recomputations compare equal. Error items lower to "item
// absent", never to a failure.
type Lowerer interface {
	LowerFile(ctx context.Context, docID string, tree *syntax.Tree) (*ir.File, error)
}

// Registry maps file extensions to packs.
type Registry struct {
	packs []*Pack
	byExt map[string]*Pack
}

// NewRegistry builds a registry. Later packs win extension conflicts.
func NewRegistry(packs ...*Pack) *Registry {
	r := &Registry{byExt: make(map[string]*Pack)}
	for _, p := range packs {
		r.Add(p)
	}
	return r
}

// Add registers a pack.
func (r *Registry) Add(p *Pack) {
	r.packs = append(r.packs, p)
	for _, ext := range p.Extensions {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// ForDocument returns the pack claiming the document's extension.
func (r *Registry) ForDocument(docID string) (*Pack, error) {
	i := strings.LastIndexByte(docID, '.')
	if i < 0 {
		return nil, fmt.Errorf("no language pack for %q: missing extension", docID)
	}
	p, ok := r.byExt[strings.ToLower(docID[i:])]
	if !ok {
		return nil, fmt.Errorf("no language pack for %q", docID)
	}
	return p, nil
}

// Packs returns all registered packs.
func (r *Registry) Packs() []*Pack { return r.packs }

// Extensions returns every claimed extension.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	return out
}
