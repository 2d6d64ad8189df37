package isg

import (
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Subgraph is the neighborhood of a set of roots, plus which requested roots
// were not found. Callers always receive a best-effort graph reflecting
// current, possibly partially-resolved knowledge.
type Subgraph struct {
	Nodes        []Node
	Edges        []Edge
	MissingRoots []string
}

func (s *Subgraph) Fingerprint() uint64 {
	h := xxhash.New()
	g := Graph{Nodes: s.Nodes, Edges: s.Edges}
	var buf [8]byte
	fp := g.Fingerprint()
	for i := range buf {
		buf[i] = byte(fp >> (8 * i))
	}
	h.Write(buf[:])
	for _, r := range s.MissingRoots {
		h.WriteString(r)
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Serialize encodes the subgraph with the same encodings as a full graph.
// Missing roots are not part of the encoding.
func (s *Subgraph) Serialize(f Format) (string, error) {
	return Serialize(&Graph{Nodes: s.Nodes, Edges: s.Edges}, f)
}

// adjacency is the bulk-built neighbor index for one traversal. Building it
// once up front avoids rescanning the edge list per frontier node.
type adjacency struct {
	neighbors map[string][]string
	byNode    map[string][]Edge
}

func buildAdjacency(g *Graph) *adjacency {
	a := &adjacency{
		neighbors: make(map[string][]string),
		byNode:    make(map[string][]Edge),
	}
	for _, e := range g.Edges {
		a.neighbors[e.Source] = append(a.neighbors[e.Source], e.Target)
		a.neighbors[e.Target] = append(a.neighbors[e.Target], e.Source)
		a.byNode[e.Source] = append(a.byNode[e.Source], e)
		a.byNode[e.Target] = append(a.byNode[e.Target], e)
	}
	return a
}

// Neighborhood returns all nodes within maxHops of any root, traversing
// edges in both directions, with every edge whose endpoints both lie in the
// visited set. The traversal is an explicit frontier/visited BFS with a work
// queue, so stack depth stays bounded for deep call chains. Roots naming no
// known node are reported in MissingRoots rather than failing the request.
func Neighborhood(g *Graph, roots []string, maxHops int) *Subgraph {
	byName := make(map[string][]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byName[n.FQName] = append(byName[n.FQName], n)
	}

	visited := make(map[string]bool)
	var frontier []string
	var missing []string
	for _, r := range sortedUnique(roots) {
		if _, ok := byName[r]; !ok {
			missing = append(missing, r)
			continue
		}
		visited[r] = true
		frontier = append(frontier, r)
	}

	adj := buildAdjacency(g)
	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, name := range frontier {
			for _, nb := range adj.neighbors[name] {
				if !visited[nb] {
					visited[nb] = true
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}

	var nodes []Node
	for name := range visited {
		nodes = append(nodes, byName[name]...)
	}
	var edges []Edge
	seen := make(map[string]bool)
	for name := range visited {
		for _, e := range adj.byNode[name] {
			if visited[e.Source] && visited[e.Target] && !seen[e.Identity()] {
				seen[e.Identity()] = true
				edges = append(edges, e)
			}
		}
	}

	sub := NewGraph(nodes, edges)
	return &Subgraph{Nodes: sub.Nodes, Edges: sub.Edges, MissingRoots: missing}
}

func sortedUnique(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	dst := out[:0]
	for i, s := range out {
		if i > 0 && s == out[i-1] {
			continue
		}
		dst = append(dst, s)
	}
	return dst
}
