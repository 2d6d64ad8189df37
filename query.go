package trellis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/efletch/trellis/internal/archive"
	"github.com/efletch/trellis/internal/isg"
	"github.com/efletch/trellis/internal/memo"
)

// get runs one query to completion, retrying when a revision bump supersedes
// the in-flight computation. Callers always observe a result consistent with
// some complete revision.
func (e *Engine) get(ctx context.Context, kind, arg string) (memo.Value, error) {
	for {
		v, err := e.rt.Get(ctx, kind, arg)
		if errors.Is(err, memo.ErrSuperseded) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			continue
		}
		return v, err
	}
}

func (e *Engine) liveGraph(ctx context.Context) (*isg.Graph, error) {
	v, err := e.get(ctx, qGraph, "")
	if err != nil {
		return nil, err
	}
	return v.(graphValue).g, nil
}

// NodeByName looks up a node by fully-qualified name. A miss is not an
// error: the node is nil and suggestions carries the closest known names.
func (e *Engine) NodeByName(ctx context.Context, fqname string) (node *Node, suggestions []string, err error) {
	g, err := e.liveGraph(ctx)
	if err != nil {
		return nil, nil, err
	}
	if n := g.Node(fqname); n != nil {
		return n, nil, nil
	}
	return nil, g.NearestNames(fqname, 5), nil
}

// EdgesByName returns the edges touching a node in the requested direction.
// Fails with ErrUnknownNode when the graph has no node of that name.
func (e *Engine) EdgesByName(ctx context.Context, fqname string, dir Direction) ([]Edge, error) {
	g, err := e.liveGraph(ctx)
	if err != nil {
		return nil, err
	}
	if g.Node(fqname) == nil {
		return nil, fmt.Errorf("edges of %q: %w", fqname, ErrUnknownNode)
	}
	return g.EdgesOf(fqname, dir), nil
}

// QuerySubgraph returns every node within maxHops of any root, edges
// traversed in both directions, plus the edges among them. Roots naming no
// known node are reported in the result, not failed. Identical concurrent
// requests share one computation.
func (e *Engine) QuerySubgraph(ctx context.Context, roots []string, maxHops int) (*Subgraph, error) {
	if maxHops < 0 {
		return nil, fmt.Errorf("subgraph: negative hop count %d", maxHops)
	}
	arg := subgraphArg(roots, maxHops)
	v, err, _ := e.sf.Do(arg, func() (any, error) {
		return e.get(ctx, qSubgraph, arg)
	})
	if err != nil {
		return nil, err
	}
	return v.(subgraphValue).sub, nil
}

// SerializeGraph encodes the current graph. Compact output is byte-stable:
// the same graph serializes identically regardless of how it was reached.
func (e *Engine) SerializeGraph(ctx context.Context, f Format) (string, error) {
	g, err := e.liveGraph(ctx)
	if err != nil {
		return "", err
	}
	return isg.Serialize(g, f)
}

// SerializeGraphAt encodes the graph as of a revision: live for the current
// revision, archived otherwise.
func (e *Engine) SerializeGraphAt(ctx context.Context, rev uint64, f Format) (string, error) {
	g, err := e.graphAt(ctx, rev)
	if err != nil {
		return "", err
	}
	return isg.Serialize(g, f)
}

// Snapshot archives the current graph under the current revision and
// returns that revision. Fails with ErrNoArchive when the engine has none.
func (e *Engine) Snapshot(ctx context.Context) (uint64, error) {
	if e.arch == nil {
		return 0, fmt.Errorf("snapshot: %w", ErrNoArchive)
	}
	g, err := e.liveGraph(ctx)
	if err != nil {
		return 0, err
	}
	rev := e.Revision()
	compact, err := isg.Serialize(g, isg.FormatCompact)
	if err != nil {
		return 0, err
	}
	err = e.arch.Save(archive.Snapshot{
		Revision:  rev,
		EngineID:  e.id,
		CreatedAt: time.Now(),
		Graph:     compact,
	})
	if err != nil {
		return 0, err
	}
	e.log.Debug("snapshot archived", "revision", rev, "nodes", len(g.Nodes), "edges", len(g.Edges))
	return rev, nil
}

// Revisions lists the archived revisions in ascending order.
func (e *Engine) Revisions() ([]uint64, error) {
	if e.arch == nil {
		return nil, fmt.Errorf("revisions: %w", ErrNoArchive)
	}
	return e.arch.Revisions()
}

// DiffGraph compares the graphs at two revisions. The current revision is
// served live; any other revision must have been archived. Fails with
// ErrUnknownRevision for a revision that never was.
func (e *Engine) DiffGraph(ctx context.Context, revA, revB uint64) (*GraphDiff, error) {
	a, err := e.graphAt(ctx, revA)
	if err != nil {
		return nil, err
	}
	b, err := e.graphAt(ctx, revB)
	if err != nil {
		return nil, err
	}
	return isg.Diff(a, b), nil
}

func (e *Engine) graphAt(ctx context.Context, rev uint64) (*isg.Graph, error) {
	if rev == e.Revision() {
		return e.liveGraph(ctx)
	}
	if e.arch == nil {
		return nil, fmt.Errorf("graph at revision %d: %w", rev, ErrNoArchive)
	}
	snap, err := e.arch.Load(rev)
	if err != nil {
		return nil, err
	}
	return isg.ParseCompact(snap.Graph)
}
