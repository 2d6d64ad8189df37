package isg

import "sort"

// GraphDiff is the structural difference between two graph snapshots,
// computed by set comparison on node and edge identity. A node counts as
// changed only when its own signature metadata differs; unrelated changes
// elsewhere in the graph never mark it.
type GraphDiff struct {
	AddedNodes   []Node
	RemovedNodes []Node
	ChangedNodes []Node // the B-side value of every node present in both with differing metadata
	AddedEdges   []Edge
	RemovedEdges []Edge
}

// Empty reports whether the two graphs were structurally identical.
func (d *GraphDiff) Empty() bool {
	return len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 &&
		len(d.ChangedNodes) == 0 && len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// Diff compares two snapshots. Swapping the arguments swaps added and
// removed and reports the same changed-node identity set.
func Diff(a, b *Graph) *GraphDiff {
	d := &GraphDiff{}

	aNodes := make(map[string]Node, len(a.Nodes))
	for _, n := range a.Nodes {
		aNodes[n.Identity()] = n
	}
	bNodes := make(map[string]Node, len(b.Nodes))
	for _, n := range b.Nodes {
		bNodes[n.Identity()] = n
	}
	for id, bn := range bNodes {
		an, ok := aNodes[id]
		switch {
		case !ok:
			d.AddedNodes = append(d.AddedNodes, bn)
		case an.Fingerprint() != bn.Fingerprint():
			d.ChangedNodes = append(d.ChangedNodes, bn)
		}
	}
	for id, an := range aNodes {
		if _, ok := bNodes[id]; !ok {
			d.RemovedNodes = append(d.RemovedNodes, an)
		}
	}

	aEdges := make(map[string]Edge, len(a.Edges))
	for _, e := range a.Edges {
		aEdges[e.Identity()] = e
	}
	bEdges := make(map[string]Edge, len(b.Edges))
	for _, e := range b.Edges {
		bEdges[e.Identity()] = e
	}
	for id, e := range bEdges {
		if _, ok := aEdges[id]; !ok {
			d.AddedEdges = append(d.AddedEdges, e)
		}
	}
	for id, e := range aEdges {
		if _, ok := bEdges[id]; !ok {
			d.RemovedEdges = append(d.RemovedEdges, e)
		}
	}

	sortNodesCanonical(d.AddedNodes)
	sortNodesCanonical(d.RemovedNodes)
	sortNodesCanonical(d.ChangedNodes)
	sortEdges(d.AddedEdges)
	sortEdges(d.RemovedEdges)
	return d
}

func sortNodesCanonical(ns []Node) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].FQName != ns[j].FQName {
			return ns[i].FQName < ns[j].FQName
		}
		return ns[i].Kind < ns[j].Kind
	})
}
