// Package isg defines the Interface Signature Graph: nodes are public
// interface elements (modules, types, functions, fields), edges are
// structural relations between them. Bodies are deliberately excluded from
// nodes so that implementation edits leave the graph untouched.
package isg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/hbollon/go-edlib"

	"github.com/efletch/trellis/internal/ir"
)

// EdgeKind is the closed set of structural relations.
type EdgeKind uint8

const (
	EdgeCalls EdgeKind = iota
	EdgeImplements
	EdgeInherits
	EdgeReturns
	EdgeReferences
	EdgeContains
	EdgeImports
)

var edgeKindNames = [...]string{
	EdgeCalls:      "calls",
	EdgeImplements: "implements",
	EdgeInherits:   "inherits",
	EdgeReturns:    "returns",
	EdgeReferences: "references",
	EdgeContains:   "contains",
	EdgeImports:    "imports",
}

func (k EdgeKind) String() string {
	if int(k) < len(edgeKindNames) {
		return edgeKindNames[k]
	}
	return "invalid"
}

// ParseEdgeKind maps a relation name back to its tag.
func ParseEdgeKind(s string) (EdgeKind, error) {
	for k, name := range edgeKindNames {
		if name == s {
			return EdgeKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown edge kind %q", s)
}

// Direction selects which edges of a node to return.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// Node is one public interface element. Identity is FQName plus Kind; the
// remaining fields are signature metadata and participate only in change
// detection.
type Node struct {
	FQName     string
	Kind       ir.ItemKind
	Visibility ir.Visibility

	// Signature metadata. Which fields are meaningful depends on Kind:
	// functions carry Params/Returns, types carry Flavor/Base, fields carry
	// Type.
	Params  []ir.Param
	Returns string
	Flavor  ir.TypeFlavor
	Base    string
	Type    string
}

// Identity is the stable node key: body edits and graph-wide changes never
// affect it.
func (n Node) Identity() string { return n.FQName + "#" + n.Kind.String() }

// Fingerprint covers identity and signature metadata.
func (n Node) Fingerprint() uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s\n",
		n.FQName, n.Kind, n.Visibility, n.Returns, n.Flavor, n.Base, n.Type)
	for _, p := range n.Params {
		fmt.Fprintf(h, "param:%s:%s\n", p.Name, p.Type)
	}
	return h.Sum64()
}

// detail renders the kind-dependent signature metadata as a single
// space-free token for the compact encoding.
func (n Node) detail() string {
	switch n.Kind {
	case ir.KindFunction:
		parts := make([]string, len(n.Params))
		for i, p := range n.Params {
			parts[i] = p.Name + ":" + p.Type
		}
		return "(" + strings.Join(parts, ",") + "):" + n.Returns
	case ir.KindType:
		return n.Flavor.String() + ":" + n.Base
	case ir.KindField:
		return ":" + n.Type
	}
	return ""
}

// Edge is a directed structural relation between two nodes, named by their
// fully-qualified names.
type Edge struct {
	Source string
	Kind   EdgeKind
	Target string
}

// Identity is the stable edge key.
func (e Edge) Identity() string {
	return e.Source + " " + e.Kind.String() + " " + e.Target
}

// EdgeSet is an immutable, canonically ordered set of edges, the unit the
// query engine caches per source node. Replacing a node's edges swaps the
// whole set atomically.
type EdgeSet struct {
	Edges []Edge
}

// NewEdgeSet sorts and deduplicates.
func NewEdgeSet(edges []Edge) EdgeSet {
	out := make([]Edge, len(edges))
	copy(out, edges)
	sortEdges(out)
	return EdgeSet{Edges: dedupEdges(out)}
}

func (s EdgeSet) Fingerprint() uint64 {
	h := xxhash.New()
	for _, e := range s.Edges {
		h.WriteString(e.Identity())
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Graph is an immutable snapshot: canonically sorted node and edge sets.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// NewGraph sorts and deduplicates into canonical order so identical graphs
// are identical values.
func NewGraph(nodes []Node, edges []Edge) *Graph {
	ns := make([]Node, len(nodes))
	copy(ns, nodes)
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].FQName != ns[j].FQName {
			return ns[i].FQName < ns[j].FQName
		}
		return ns[i].Kind < ns[j].Kind
	})
	es := make([]Edge, len(edges))
	copy(es, edges)
	sortEdges(es)
	return &Graph{Nodes: dedupNodes(ns), Edges: dedupEdges(es)}
}

func sortEdges(es []Edge) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].Source != es[j].Source {
			return es[i].Source < es[j].Source
		}
		if es[i].Kind != es[j].Kind {
			return es[i].Kind < es[j].Kind
		}
		return es[i].Target < es[j].Target
	})
}

func dedupNodes(ns []Node) []Node {
	out := ns[:0]
	for i, n := range ns {
		if i > 0 && n.Identity() == ns[i-1].Identity() {
			continue
		}
		out = append(out, n)
	}
	return out
}

func dedupEdges(es []Edge) []Edge {
	out := es[:0]
	for i, e := range es {
		if i > 0 && e == es[i-1] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Fingerprint hashes the canonical serialization.
func (g *Graph) Fingerprint() uint64 {
	h := xxhash.New()
	for _, n := range g.Nodes {
		h.WriteString(n.Identity())
		var buf [8]byte
		fp := n.Fingerprint()
		for i := range buf {
			buf[i] = byte(fp >> (8 * i))
		}
		h.Write(buf[:])
	}
	for _, e := range g.Edges {
		h.WriteString(e.Identity())
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Node returns the node with the given fully-qualified name, or nil. When a
// name is shared across kinds the lexically smallest kind wins; callers
// needing a specific kind filter themselves.
func (g *Graph) Node(fqname string) *Node {
	i := sort.Search(len(g.Nodes), func(i int) bool {
		return g.Nodes[i].FQName >= fqname
	})
	if i < len(g.Nodes) && g.Nodes[i].FQName == fqname {
		n := g.Nodes[i]
		return &n
	}
	return nil
}

// EdgesOf returns the edges touching fqname in the requested direction, in
// canonical order.
func (g *Graph) EdgesOf(fqname string, dir Direction) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		switch dir {
		case Outgoing:
			if e.Source == fqname {
				out = append(out, e)
			}
		case Incoming:
			if e.Target == fqname {
				out = append(out, e)
			}
		case Both:
			if e.Source == fqname || e.Target == fqname {
				out = append(out, e)
			}
		}
	}
	return out
}

// NearestNames returns up to max fully-qualified names closest to name by
// Levenshtein distance, for suggestion output on lookup misses. Ties break
// lexicographically.
func (g *Graph) NearestNames(name string, max int) []string {
	if max <= 0 {
		return nil
	}
	type cand struct {
		fq   string
		dist int
	}
	seen := make(map[string]bool, len(g.Nodes))
	var cands []cand
	for _, n := range g.Nodes {
		if seen[n.FQName] {
			continue
		}
		seen[n.FQName] = true
		d := edlib.LevenshteinDistance(name, n.FQName)
		cands = append(cands, cand{fq: n.FQName, dist: d})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].fq < cands[j].fq
	})
	if len(cands) > max {
		cands = cands[:max]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.fq
	}
	return out
}
