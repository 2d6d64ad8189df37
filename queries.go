package trellis

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/efletch/trellis/internal/ir"
	"github.com/efletch/trellis/internal/isg"
	"github.com/efletch/trellis/internal/memo"
	"github.com/efletch/trellis/internal/syntax"
	"github.com/efletch/trellis/internal/text"
)

// Query kinds. text and docs are inputs; the rest are derived. Arguments are
// document ids, item ids, module names, or encoded composites.
const (
	qText = "text" // arg: doc id
	qDocs = "docs" // arg: ""

	qParse       = "parse"          // arg: doc id
	qLower       = "lower"          // arg: doc id
	qIndex       = "index"          // arg: ""
	qScope       = "scope"          // arg: module
	qResolve     = "resolve"        // arg: module|raw
	qItemSig     = "item_sig"       // arg: item id
	qItemBody    = "item_body"      // arg: item id
	qSigNode     = "signature_node" // arg: item id
	qMemberNodes = "member_nodes"   // arg: item id
	qDeclEdges   = "decl_edges"     // arg: item id
	qBodyEdges   = "body_edges"     // arg: item id
	qModuleGraph = "module_graph"   // arg: module
	qGraph       = "graph"          // arg: ""
	qSubgraph    = "subgraph"       // arg: roots|hops
)

// textValue fingerprints by content hash, not version, so a no-op edit stops
// propagation at the input itself.
type textValue struct{ snap text.Snapshot }

func (v textValue) Fingerprint() uint64 { return v.snap.Hash }

type treeValue struct{ tree *syntax.Tree }

func (v treeValue) Fingerprint() uint64 { return v.tree.Fingerprint() }

type fileValue struct{ file *ir.File }

func (v fileValue) Fingerprint() uint64 { return v.file.Fingerprint() }

// docIndex maps every known item to its owning document and groups documents
// by module.
type docIndex struct {
	items   []ir.ItemID         // sorted by String
	owner   map[ir.ItemID]string
	modules []string            // sorted module names
	docs    map[string][]string // module -> sorted doc ids
}

type indexValue struct{ idx *docIndex }

func (v indexValue) Fingerprint() uint64 {
	h := xxhash.New()
	for _, id := range v.idx.items {
		fmt.Fprintf(h, "i:%s=%s\n", id, v.idx.owner[id])
	}
	for _, m := range v.idx.modules {
		fmt.Fprintf(h, "m:%s=%s\n", m, strings.Join(v.idx.docs[m], ","))
	}
	return h.Sum64()
}

// scopeEntry is one name binding in a module scope.
type scopeEntry struct {
	id  ir.ItemID
	vis ir.Visibility
}

// moduleScope is the name environment of one module: its top-level bindings
// and the modules it imports.
type moduleScope struct {
	names   map[string]scopeEntry
	imports []string // sorted, unique
}

type scopeValue struct{ s *moduleScope }

func (v scopeValue) Fingerprint() uint64 {
	names := make([]string, 0, len(v.s.names))
	for n := range v.s.names {
		names = append(names, n)
	}
	sort.Strings(names)
	h := xxhash.New()
	for _, n := range names {
		e := v.s.names[n]
		fmt.Fprintf(h, "n:%s=%s:%s\n", n, e.id, e.vis)
	}
	for _, imp := range v.s.imports {
		fmt.Fprintf(h, "i:%s\n", imp)
	}
	return h.Sum64()
}

// sigValue is a signature lookup result. ok is false when the item no longer
// exists; absence is a value, not an error.
type sigValue struct {
	ok  bool
	sig ir.Signature
}

func (v sigValue) Fingerprint() uint64 {
	if !v.ok {
		return xxhash.Sum64String("absent")
	}
	return v.sig.Fingerprint()
}

type bodyValue struct {
	ok   bool
	body ir.Body
}

func (v bodyValue) Fingerprint() uint64 {
	if !v.ok {
		return xxhash.Sum64String("absent")
	}
	return v.body.Fingerprint()
}

type nodeValue struct {
	ok   bool
	node isg.Node
}

func (v nodeValue) Fingerprint() uint64 {
	if !v.ok {
		return xxhash.Sum64String("absent")
	}
	return v.node.Fingerprint()
}

type nodesValue struct{ nodes []isg.Node }

func (v nodesValue) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [8]byte
	for _, n := range v.nodes {
		fp := n.Fingerprint()
		for i := range buf {
			buf[i] = byte(fp >> (8 * i))
		}
		h.Write(buf[:])
	}
	return h.Sum64()
}

// fragValue is a graph fragment contributed by one module.
type fragValue struct {
	nodes []isg.Node
	edges []isg.Edge
}

func (v fragValue) Fingerprint() uint64 {
	g := isg.Graph{Nodes: v.nodes, Edges: v.edges}
	return g.Fingerprint()
}

type graphValue struct{ g *isg.Graph }

func (v graphValue) Fingerprint() uint64 { return v.g.Fingerprint() }

type subgraphValue struct{ sub *isg.Subgraph }

func (v subgraphValue) Fingerprint() uint64 { return v.sub.Fingerprint() }

func resolveArg(module, raw string) string { return module + "|" + raw }

func subgraphArg(roots []string, hops int) string {
	rs := make([]string, len(roots))
	copy(rs, roots)
	sort.Strings(rs)
	return strings.Join(rs, ",") + "|" + strconv.Itoa(hops)
}

// registerQueries wires the derived query graph. Each function is pure in
// its argument and its recorded reads, which is what makes caching and
// early cutoff sound.
func (e *Engine) registerQueries() {
	e.rt.Register(qParse, e.queryParse)
	e.rt.Register(qLower, e.queryLower)
	e.rt.Register(qIndex, e.queryIndex)
	e.rt.Register(qScope, e.queryScope)
	e.rt.Register(qResolve, e.queryResolve)
	e.rt.Register(qItemSig, e.queryItemSig)
	e.rt.Register(qItemBody, e.queryItemBody)
	e.rt.Register(qSigNode, e.querySignatureNode)
	e.rt.Register(qMemberNodes, e.queryMemberNodes)
	e.rt.Register(qDeclEdges, e.queryDeclEdges)
	e.rt.Register(qBodyEdges, e.queryBodyEdges)
	e.rt.Register(qModuleGraph, e.queryModuleGraph)
	e.rt.Register(qGraph, e.queryGraph)
	e.rt.Register(qSubgraph, e.querySubgraph)
}

// queryParse produces the syntax tree for one document, reusing the prior
// tree incrementally when exactly one edit separates them. The prior-tree
// bookkeeping is a cache, not an input: the result is a function of the
// current text alone.
func (e *Engine) queryParse(ctx context.Context, rt *memo.Runtime, doc string) (memo.Value, error) {
	v, err := rt.Get(ctx, qText, doc)
	if err != nil {
		return nil, err
	}
	snap := v.(textValue).snap
	pack, err := e.packs.ForDocument(doc)
	if err != nil {
		return nil, err
	}

	e.parseMu.Lock()
	st := e.parses[doc]
	var prior *syntax.Tree
	var edit text.Edit
	if st != nil && st.tree != nil && st.hasEdit && !st.stale && st.tree.Source() != snap.Text {
		prior, edit = st.tree, st.edit
	}
	e.parseMu.Unlock()

	var tree *syntax.Tree
	var spans []text.Span
	if prior != nil {
		tree, spans = syntax.Reparse(pack.Grammar, prior, snap.Text, edit)
	} else {
		tree = pack.Grammar.Parse(snap.Text)
		spans = []text.Span{{Start: 0, End: len(snap.Text)}}
	}

	e.parseMu.Lock()
	if st = e.parses[doc]; st == nil {
		st = &parseState{}
		e.parses[doc] = st
	}
	st.tree = tree
	st.hasEdit = false
	st.stale = false
	e.parseMu.Unlock()

	e.log.Debug("parsed", "doc", doc, "incremental", prior != nil, "changed", len(spans))
	return treeValue{tree: tree}, nil
}

// queryLower derives the semantic IR of one document from its tree.
func (e *Engine) queryLower(ctx context.Context, rt *memo.Runtime, doc string) (memo.Value, error) {
	v, err := rt.Get(ctx, qParse, doc)
	if err != nil {
		return nil, err
	}
	pack, err := e.packs.ForDocument(doc)
	if err != nil {
		return nil, err
	}
	f, err := pack.Lower.LowerFile(ctx, doc, v.(treeValue).tree)
	if err != nil {
		return nil, fmt.Errorf("lower %s: %w", doc, err)
	}
	return fileValue{file: f}, nil
}

// queryIndex maps every item to its owning document across all open
// documents. When two documents declare the same item id the lexically
// smallest document wins; the duplicate is logged and ignored.
func (e *Engine) queryIndex(ctx context.Context, rt *memo.Runtime, _ string) (memo.Value, error) {
	dv, err := rt.Get(ctx, qDocs, "")
	if err != nil {
		return nil, err
	}
	idx := &docIndex{
		owner: make(map[ir.ItemID]string),
		docs:  make(map[string][]string),
	}
	for _, doc := range dv.(memo.Strings) {
		fv, err := rt.Get(ctx, qLower, doc)
		if err != nil {
			return nil, err
		}
		f := fv.(fileValue).file
		if f.Module != "" {
			idx.docs[f.Module] = append(idx.docs[f.Module], doc)
		}
		for _, it := range f.Items {
			id := it.Sig.ID()
			if prev, dup := idx.owner[id]; dup {
				e.log.Warn("duplicate item", "item", id.String(), "kept", prev, "ignored", doc)
				continue
			}
			idx.owner[id] = doc
			idx.items = append(idx.items, id)
		}
	}
	sort.Slice(idx.items, func(i, j int) bool {
		return idx.items[i].String() < idx.items[j].String()
	})
	idx.modules = make([]string, 0, len(idx.docs))
	for m := range idx.docs {
		idx.modules = append(idx.modules, m)
	}
	sort.Strings(idx.modules)
	return indexValue{idx: idx}, nil
}

// queryScope builds the name environment of one module. A name declared
// twice binds to the lexically smallest item id; resolution stays
// deterministic under any evaluation order.
func (e *Engine) queryScope(ctx context.Context, rt *memo.Runtime, module string) (memo.Value, error) {
	iv, err := rt.Get(ctx, qIndex, "")
	if err != nil {
		return nil, err
	}
	sc := &moduleScope{names: make(map[string]scopeEntry)}
	seen := make(map[string]bool)
	for _, doc := range iv.(indexValue).idx.docs[module] {
		fv, err := rt.Get(ctx, qLower, doc)
		if err != nil {
			return nil, err
		}
		f := fv.(fileValue).file
		for _, imp := range f.Imports {
			if !seen[imp] {
				seen[imp] = true
				sc.imports = append(sc.imports, imp)
			}
		}
		for _, it := range f.Items {
			entry := scopeEntry{id: it.Sig.ID(), vis: it.Sig.Visibility}
			cur, ok := sc.names[it.Sig.Name]
			if !ok || entry.id.String() < cur.id.String() {
				sc.names[it.Sig.Name] = entry
			}
		}
	}
	sort.Strings(sc.imports)
	return scopeValue{s: sc}, nil
}

// queryResolve binds one raw reference seen from inside a module. Bare names
// resolve in the module's own scope regardless of visibility; qualified
// names resolve through an import to the target module's public bindings.
// Failure to bind is the Unresolved value, never an error.
func (e *Engine) queryResolve(ctx context.Context, rt *memo.Runtime, arg string) (memo.Value, error) {
	module, raw, ok := strings.Cut(arg, "|")
	if !ok {
		return nil, fmt.Errorf("malformed resolve argument %q", arg)
	}
	sv, err := rt.Get(ctx, qScope, module)
	if err != nil {
		return nil, err
	}
	sc := sv.(scopeValue).s

	if qual, rest, qualified := strings.Cut(raw, "."); qualified {
		if !slices.Contains(sc.imports, qual) {
			return ir.Resolution{Unresolved: true}, nil
		}
		tv, err := rt.Get(ctx, qScope, qual)
		if err != nil {
			return nil, err
		}
		if entry, ok := tv.(scopeValue).s.names[rest]; ok && entry.vis == ir.Public {
			return ir.Resolution{Target: entry.id}, nil
		}
		return ir.Resolution{Unresolved: true}, nil
	}

	if entry, ok := sc.names[raw]; ok {
		return ir.Resolution{Target: entry.id}, nil
	}
	return ir.Resolution{Unresolved: true}, nil
}

// lookupItem finds the current lowering of one item through the index.
func lookupItem(ctx context.Context, rt *memo.Runtime, arg string) (ir.Item, bool, error) {
	id, err := ir.ParseItemID(arg)
	if err != nil {
		return ir.Item{}, false, err
	}
	iv, err := rt.Get(ctx, qIndex, "")
	if err != nil {
		return ir.Item{}, false, err
	}
	doc, ok := iv.(indexValue).idx.owner[id]
	if !ok {
		return ir.Item{}, false, nil
	}
	fv, err := rt.Get(ctx, qLower, doc)
	if err != nil {
		return ir.Item{}, false, err
	}
	for _, it := range fv.(fileValue).file.Items {
		if it.Sig.ID() == id {
			return it, true, nil
		}
	}
	return ir.Item{}, false, nil
}

func (e *Engine) queryItemSig(ctx context.Context, rt *memo.Runtime, arg string) (memo.Value, error) {
	it, ok, err := lookupItem(ctx, rt, arg)
	if err != nil {
		return nil, err
	}
	return sigValue{ok: ok, sig: it.Sig}, nil
}

func (e *Engine) queryItemBody(ctx context.Context, rt *memo.Runtime, arg string) (memo.Value, error) {
	it, ok, err := lookupItem(ctx, rt, arg)
	if err != nil {
		return nil, err
	}
	return bodyValue{ok: ok, body: it.Body}, nil
}

// querySignatureNode derives the graph node of one item from its signature
// alone. Body edits stop at item_sig's early cutoff and never reach here.
func (e *Engine) querySignatureNode(ctx context.Context, rt *memo.Runtime, arg string) (memo.Value, error) {
	sv, err := rt.Get(ctx, qItemSig, arg)
	if err != nil {
		return nil, err
	}
	s := sv.(sigValue)
	if !s.ok {
		return nodeValue{}, nil
	}
	return nodeValue{ok: true, node: nodeFromSig(s.sig)}, nil
}

func nodeFromSig(sig ir.Signature) isg.Node {
	n := isg.Node{
		FQName:     sig.FQName(),
		Kind:       sig.Kind,
		Visibility: sig.Visibility,
		Returns:    sig.Returns,
		Flavor:     sig.Flavor,
		Base:       sig.Base,
	}
	n.Params = make([]ir.Param, len(sig.Params))
	copy(n.Params, sig.Params)
	return n
}

// queryMemberNodes derives the nodes of an item's contained members: fields
// as field nodes, method signatures as function nodes under the type's name.
func (e *Engine) queryMemberNodes(ctx context.Context, rt *memo.Runtime, arg string) (memo.Value, error) {
	sv, err := rt.Get(ctx, qItemSig, arg)
	if err != nil {
		return nil, err
	}
	s := sv.(sigValue)
	if !s.ok || s.sig.Kind != ir.KindType {
		return nodesValue{}, nil
	}
	fq := s.sig.FQName()
	var nodes []isg.Node
	for _, m := range s.sig.Members {
		n := isg.Node{
			FQName:     fq + "." + m.Name,
			Visibility: m.Visibility,
		}
		switch m.Kind {
		case ir.MemberField:
			n.Kind = ir.KindField
			n.Type = m.Type
		case ir.MemberMethod:
			n.Kind = ir.KindFunction
			n.Params = make([]ir.Param, len(m.Params))
			copy(n.Params, m.Params)
			n.Returns = m.Returns
		}
		nodes = append(nodes, n)
	}
	return nodesValue{nodes: nodes}, nil
}

// queryDeclEdges derives the edges implied by one item's declared surface:
// contains for members, implements or inherits for base clauses, returns and
// references for resolvable type mentions. Unresolvable mentions contribute
// nothing.
func (e *Engine) queryDeclEdges(ctx context.Context, rt *memo.Runtime, arg string) (memo.Value, error) {
	sv, err := rt.Get(ctx, qItemSig, arg)
	if err != nil {
		return nil, err
	}
	s := sv.(sigValue)
	if !s.ok {
		return isg.NewEdgeSet(nil), nil
	}
	sig := s.sig
	fq := sig.FQName()

	resolve := func(raw string) (string, bool, error) {
		if raw == "" {
			return "", false, nil
		}
		rv, err := rt.Get(ctx, qResolve, resolveArg(sig.Module, raw))
		if err != nil {
			return "", false, err
		}
		res := rv.(ir.Resolution)
		if res.Unresolved {
			return "", false, nil
		}
		return res.Target.FQName, true, nil
	}

	var edges []isg.Edge
	addRef := func(src, raw string, kind isg.EdgeKind) error {
		target, ok, err := resolve(raw)
		if err != nil {
			return err
		}
		if ok {
			edges = append(edges, isg.Edge{Source: src, Kind: kind, Target: target})
		}
		return nil
	}

	switch sig.Kind {
	case ir.KindFunction:
		if err := addRef(fq, sig.Returns, isg.EdgeReturns); err != nil {
			return nil, err
		}
		for _, p := range sig.Params {
			if err := addRef(fq, p.Type, isg.EdgeReferences); err != nil {
				return nil, err
			}
		}
	case ir.KindType:
		if sig.Base != "" {
			kind := isg.EdgeImplements
			if sig.Flavor == ir.FlavorIface {
				kind = isg.EdgeInherits
			}
			if err := addRef(fq, sig.Base, kind); err != nil {
				return nil, err
			}
		}
		for _, m := range sig.Members {
			mfq := fq + "." + m.Name
			edges = append(edges, isg.Edge{Source: fq, Kind: isg.EdgeContains, Target: mfq})
			switch m.Kind {
			case ir.MemberField:
				if err := addRef(mfq, m.Type, isg.EdgeReferences); err != nil {
					return nil, err
				}
			case ir.MemberMethod:
				if err := addRef(mfq, m.Returns, isg.EdgeReturns); err != nil {
					return nil, err
				}
				for _, p := range m.Params {
					if err := addRef(mfq, p.Type, isg.EdgeReferences); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return isg.NewEdgeSet(edges), nil
}

// queryBodyEdges derives call and reference edges from one item's body.
// Unresolved references are dropped: the graph reflects what is currently
// known, not what might exist.
func (e *Engine) queryBodyEdges(ctx context.Context, rt *memo.Runtime, arg string) (memo.Value, error) {
	bv, err := rt.Get(ctx, qItemBody, arg)
	if err != nil {
		return nil, err
	}
	b := bv.(bodyValue)
	if !b.ok || len(b.body.Refs) == 0 {
		return isg.NewEdgeSet(nil), nil
	}
	sv, err := rt.Get(ctx, qItemSig, arg)
	if err != nil {
		return nil, err
	}
	s := sv.(sigValue)
	if !s.ok {
		return isg.NewEdgeSet(nil), nil
	}
	fq := s.sig.FQName()

	var edges []isg.Edge
	for _, r := range b.body.Refs {
		rv, err := rt.Get(ctx, qResolve, resolveArg(s.sig.Module, r.Target))
		if err != nil {
			return nil, err
		}
		res := rv.(ir.Resolution)
		if res.Unresolved {
			continue
		}
		kind := isg.EdgeReferences
		if r.Kind == ir.RefCall {
			kind = isg.EdgeCalls
		}
		edges = append(edges, isg.Edge{Source: fq, Kind: kind, Target: res.Target.FQName})
	}
	return isg.NewEdgeSet(edges), nil
}

// queryModuleGraph contributes the module node, its contains edges to
// top-level items, and imports edges to modules known to the index.
func (e *Engine) queryModuleGraph(ctx context.Context, rt *memo.Runtime, module string) (memo.Value, error) {
	iv, err := rt.Get(ctx, qIndex, "")
	if err != nil {
		return nil, err
	}
	idx := iv.(indexValue).idx

	frag := fragValue{nodes: []isg.Node{{
		FQName:     module,
		Kind:       ir.KindModule,
		Visibility: ir.Public,
	}}}
	known := make(map[string]bool, len(idx.modules))
	for _, m := range idx.modules {
		known[m] = true
	}
	for _, doc := range idx.docs[module] {
		fv, err := rt.Get(ctx, qLower, doc)
		if err != nil {
			return nil, err
		}
		f := fv.(fileValue).file
		for _, imp := range f.Imports {
			if known[imp] && imp != module {
				frag.edges = append(frag.edges, isg.Edge{Source: module, Kind: isg.EdgeImports, Target: imp})
			}
		}
		for _, it := range f.Items {
			frag.edges = append(frag.edges, isg.Edge{Source: module, Kind: isg.EdgeContains, Target: it.Sig.FQName()})
		}
	}
	return frag, nil
}

// queryGraph assembles the full graph from per-module and per-item
// fragments. Assembly itself is cheap; the fragments carry the caching.
func (e *Engine) queryGraph(ctx context.Context, rt *memo.Runtime, _ string) (memo.Value, error) {
	iv, err := rt.Get(ctx, qIndex, "")
	if err != nil {
		return nil, err
	}
	idx := iv.(indexValue).idx

	var nodes []isg.Node
	var edges []isg.Edge
	for _, m := range idx.modules {
		fv, err := rt.Get(ctx, qModuleGraph, m)
		if err != nil {
			return nil, err
		}
		frag := fv.(fragValue)
		nodes = append(nodes, frag.nodes...)
		edges = append(edges, frag.edges...)
	}
	for _, id := range idx.items {
		arg := id.String()
		nv, err := rt.Get(ctx, qSigNode, arg)
		if err != nil {
			return nil, err
		}
		if n := nv.(nodeValue); n.ok {
			nodes = append(nodes, n.node)
		}
		mv, err := rt.Get(ctx, qMemberNodes, arg)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, mv.(nodesValue).nodes...)
		dv, err := rt.Get(ctx, qDeclEdges, arg)
		if err != nil {
			return nil, err
		}
		edges = append(edges, dv.(isg.EdgeSet).Edges...)
		bv, err := rt.Get(ctx, qBodyEdges, arg)
		if err != nil {
			return nil, err
		}
		edges = append(edges, bv.(isg.EdgeSet).Edges...)
	}
	return graphValue{g: isg.NewGraph(nodes, edges)}, nil
}

// querySubgraph extracts the neighborhood of a root set from the full graph.
func (e *Engine) querySubgraph(ctx context.Context, rt *memo.Runtime, arg string) (memo.Value, error) {
	rootsPart, hopsPart, ok := strings.Cut(arg, "|")
	if !ok {
		return nil, fmt.Errorf("malformed subgraph argument %q", arg)
	}
	hops, err := strconv.Atoi(hopsPart)
	if err != nil || hops < 0 {
		return nil, fmt.Errorf("malformed subgraph hops %q", hopsPart)
	}
	gv, err := rt.Get(ctx, qGraph, "")
	if err != nil {
		return nil, err
	}
	var roots []string
	if rootsPart != "" {
		roots = strings.Split(rootsPart, ",")
	}
	return subgraphValue{sub: isg.Neighborhood(gv.(graphValue).g, roots, hops)}, nil
}
