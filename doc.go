// Package trellis maintains an incremental Interface Signature Graph over a
// set of open source documents.
//
// The pipeline has four stages. Document text lives in a versioned buffer
// store. Each document is parsed into an error-tolerant syntax tree, reparsed
// incrementally around edits. Trees are lowered to a stable semantic IR whose
// item identities derive from qualified names, not positions. The IR is
// assembled into the graph: nodes are interface elements (modules, types,
// functions, fields), edges are structural relations (calls, implements,
// inherits, returns, references, contains, imports).
//
// Every derived stage is a memoized query with recorded dependencies. After
// an edit only the queries whose transitive inputs actually changed
// re-execute, and recomputation stops as soon as a stage produces a
// structurally identical result. Editing a function body therefore never
// re-derives that function's signature node, and a whitespace-only edit
// stops at the parse.
//
// # Usage
//
//	eng, err := trellis.New(trellis.WithPacks(langpack.Mini()))
//	if err != nil { ... }
//	defer eng.Close()
//
//	eng.OpenDocument("geometry.mini", src)
//	node, _, err := eng.NodeByName(ctx, "geometry.Circle")
//	out, err := eng.SerializeGraph(ctx, trellis.FormatCompact)
//
// Languages plug in through langpack: a grammar plus lowering rules, either
// native Go or Risor scripts. Graph snapshots can be archived to SQLite per
// revision and diffed against the live graph later.
package trellis
