package trellis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efletch/trellis/internal/ir"
	"github.com/efletch/trellis/internal/isg"
)

const geometrySrc = `module geometry

import math

type Point struct {
  X: Float
  Y: Float
}

type Shape iface {
  Area(): Float
}

type Circle struct : Shape {
  Center: Point
  Radius: Float
}

fn Dist(a: Point, b: Point): Float {
  let dx = a.X - b.X
  let dy = a.Y - b.Y
  return math.Sqrt(dx * dx + dy * dy)
}

fn Scale(f: Float): Float {
  return f * f
}

fn Perimeter(c: Circle): Float {
  return Dist(c.Center, c.Center)
}
`

const mainSrc = `module main

import geometry

fn Run(s: geometry.Shape): Float {
  return geometry.Perimeter(s)
}
`

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func openFixture(t *testing.T, e *Engine) {
	t.Helper()
	_, err := e.OpenDocument("geometry.mini", geometrySrc)
	require.NoError(t, err)
	_, err = e.OpenDocument("main.mini", mainSrc)
	require.NoError(t, err)
}

// editReplace applies a single-range edit replacing the first occurrence of
// old in src and returns the resulting source.
func editReplace(t *testing.T, e *Engine, doc, src, old, new string) string {
	t.Helper()
	i := strings.Index(src, old)
	require.GreaterOrEqual(t, i, 0, "edit target %q not found", old)
	_, err := e.EditDocument(doc, Edit{
		Range:   Span{Start: i, End: i + len(old)},
		NewText: new,
	})
	require.NoError(t, err)
	return src[:i] + new + src[i+len(old):]
}

func TestOpenDocumentUnknownExtension(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.OpenDocument("style.css", "body {}")
	assert.Error(t, err)
}

func TestFreshEngineAnswersGraphQueries(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// No documents yet: graph requests answer with an empty graph rather
	// than failing.
	out, err := e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)
	g, err := isg.ParseCompact(out)
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Edges)

	sub, err := e.QuerySubgraph(ctx, []string{"geometry.Point"}, 2)
	require.NoError(t, err)
	assert.Empty(t, sub.Nodes)
	assert.Equal(t, []string{"geometry.Point"}, sub.MissingRoots)

	n, sugg, err := e.NodeByName(ctx, "geometry.Point")
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Empty(t, sugg)
}

func TestNodeLookupAndSuggestions(t *testing.T) {
	e := newTestEngine(t)
	openFixture(t, e)
	ctx := context.Background()

	n, sugg, err := e.NodeByName(ctx, "geometry.Circle")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Nil(t, sugg)
	assert.Equal(t, ir.KindType, n.Kind)
	assert.Equal(t, ir.FlavorStruct, n.Flavor)
	assert.Equal(t, "Shape", n.Base)

	dist, _, err := e.NodeByName(ctx, "geometry.Dist")
	require.NoError(t, err)
	require.NotNil(t, dist)
	assert.Equal(t, []Param{{Name: "a", Type: "Point"}, {Name: "b", Type: "Point"}}, dist.Params)
	assert.Equal(t, "Float", dist.Returns)

	// A member of a type is a node of its own.
	radius, _, err := e.NodeByName(ctx, "geometry.Circle.Radius")
	require.NoError(t, err)
	require.NotNil(t, radius)
	assert.Equal(t, ir.KindField, radius.Kind)
	assert.Equal(t, "Float", radius.Type)

	// A miss is not an error; it carries the closest known names.
	n, sugg, err = e.NodeByName(ctx, "geometry.Circel")
	require.NoError(t, err)
	assert.Nil(t, n)
	require.NotEmpty(t, sugg)
	assert.Equal(t, "geometry.Circle", sugg[0])
}

func TestEdgesResolveAcrossModules(t *testing.T) {
	e := newTestEngine(t)
	openFixture(t, e)
	ctx := context.Background()

	out, err := e.EdgesByName(ctx, "main.Run", Outgoing)
	require.NoError(t, err)
	assert.Contains(t, out, Edge{Source: "main.Run", Kind: EdgeCalls, Target: "geometry.Perimeter"})
	assert.Contains(t, out, Edge{Source: "main.Run", Kind: EdgeReferences, Target: "geometry.Shape"})

	in, err := e.EdgesByName(ctx, "geometry.Dist", Incoming)
	require.NoError(t, err)
	assert.Contains(t, in, Edge{Source: "geometry.Perimeter", Kind: EdgeCalls, Target: "geometry.Dist"})
	assert.Contains(t, in, Edge{Source: "geometry", Kind: EdgeContains, Target: "geometry.Dist"})

	circ, err := e.EdgesByName(ctx, "geometry.Circle", Outgoing)
	require.NoError(t, err)
	assert.Contains(t, circ, Edge{Source: "geometry.Circle", Kind: EdgeImplements, Target: "geometry.Shape"})
	assert.Contains(t, circ, Edge{Source: "geometry.Circle", Kind: EdgeContains, Target: "geometry.Circle.Center"})

	mods, err := e.EdgesByName(ctx, "main", Outgoing)
	require.NoError(t, err)
	assert.Contains(t, mods, Edge{Source: "main", Kind: EdgeImports, Target: "geometry"})

	_, err = e.EdgesByName(ctx, "no.Such", Outgoing)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestImportGateBlocksUnimportedModules(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.OpenDocument("geometry.mini", geometrySrc)
	require.NoError(t, err)
	_, err = e.OpenDocument("lone.mini", "module lone\n\nfn Go(): Float {\n  return geometry.Dist(geometry.Dist, geometry.Dist)\n}\n")
	require.NoError(t, err)

	// lone never imports geometry, so the qualified call cannot bind.
	out, err := e.EdgesByName(context.Background(), "lone.Go", Outgoing)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestNoopEditStopsAtInput(t *testing.T) {
	e := newTestEngine(t)
	openFixture(t, e)
	ctx := context.Background()

	before, err := e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)
	parses := e.rt.ComputeCount(qParse)
	rev := e.Revision()

	// Replace a token with itself: the revision advances, the content hash
	// does not, and nothing recomputes.
	editReplace(t, e, "geometry.mini", geometrySrc, "Radius", "Radius")
	after, err := e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)

	assert.Greater(t, e.Revision(), rev)
	assert.Equal(t, before, after)
	assert.Equal(t, parses, e.rt.ComputeCount(qParse))
}

func TestBodyEditKeepsSignatureNodes(t *testing.T) {
	e := newTestEngine(t)
	openFixture(t, e)
	ctx := context.Background()

	before, err := e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)
	sigNodes := e.rt.ComputeCount(qSigNode)
	indexes := e.rt.ComputeCount(qIndex)
	parses := e.rt.ComputeCount(qParse)
	cutoffs := e.Stats().EarlyCutoffs

	// Reorder an expression inside Dist: the document reparses and relowers,
	// but the lowering is structurally identical, so propagation stops there.
	editReplace(t, e, "geometry.mini", geometrySrc, "dx * dx + dy * dy", "dy * dy + dx * dx")
	after, err := e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Greater(t, e.rt.ComputeCount(qParse), parses)
	assert.Equal(t, indexes, e.rt.ComputeCount(qIndex))
	assert.Equal(t, sigNodes, e.rt.ComputeCount(qSigNode))
	assert.Greater(t, e.Stats().EarlyCutoffs, cutoffs)
}

func TestCallTargetEditRederivesBodyEdgesOnly(t *testing.T) {
	e := newTestEngine(t)
	openFixture(t, e)
	ctx := context.Background()

	_, err := e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)
	sigNodes := e.rt.ComputeCount(qSigNode)

	editReplace(t, e, "geometry.mini", geometrySrc,
		"return Dist(c.Center, c.Center)", "return Scale(c.Radius)")
	out, err := e.EdgesByName(ctx, "geometry.Perimeter", Outgoing)
	require.NoError(t, err)

	assert.Contains(t, out, Edge{Source: "geometry.Perimeter", Kind: EdgeCalls, Target: "geometry.Scale"})
	assert.NotContains(t, out, Edge{Source: "geometry.Perimeter", Kind: EdgeCalls, Target: "geometry.Dist"})
	assert.Equal(t, sigNodes, e.rt.ComputeCount(qSigNode),
		"a body edit must not rebuild signature nodes")
}

func TestIncrementalMatchesFromScratch(t *testing.T) {
	e := newTestEngine(t)
	openFixture(t, e)
	ctx := context.Background()

	// Interleave queries and edits, including two edits with no query in
	// between, which forces the full-reparse fallback.
	src := geometrySrc
	_, err := e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)
	src = editReplace(t, e, "geometry.mini", src, "Radius: Float", "Radius: Float\n  Label: Float")
	src = editReplace(t, e, "geometry.mini", src, "fn Scale(f: Float)", "fn Scale(f: Float, n: Float)")
	incremental, err := e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)

	fresh := newTestEngine(t)
	_, err = fresh.OpenDocument("geometry.mini", src)
	require.NoError(t, err)
	_, err = fresh.OpenDocument("main.mini", mainSrc)
	require.NoError(t, err)
	scratch, err := fresh.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)

	assert.Equal(t, scratch, incremental)
}

func TestItemMovePreservesIdentity(t *testing.T) {
	e := newTestEngine(t)
	openFixture(t, e)
	ctx := context.Background()

	before, err := e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)

	// Swap the last two functions. Same items, different file positions.
	moved := "fn Perimeter(c: Circle): Float {\n  return Dist(c.Center, c.Center)\n}\n\n" +
		"fn Scale(f: Float): Float {\n  return f * f\n}\n"
	orig := "fn Scale(f: Float): Float {\n  return f * f\n}\n\n" +
		"fn Perimeter(c: Circle): Float {\n  return Dist(c.Center, c.Center)\n}\n"
	editReplace(t, e, "geometry.mini", geometrySrc, orig, moved)

	after, err := e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCloseDocumentRemovesItsItems(t *testing.T) {
	e := newTestEngine(t)
	openFixture(t, e)
	ctx := context.Background()

	n, _, err := e.NodeByName(ctx, "main.Run")
	require.NoError(t, err)
	require.NotNil(t, n)

	require.NoError(t, e.CloseDocument("main.mini"))

	n, _, err = e.NodeByName(ctx, "main.Run")
	require.NoError(t, err)
	assert.Nil(t, n)
	n, _, err = e.NodeByName(ctx, "main")
	require.NoError(t, err)
	assert.Nil(t, n)

	assert.ErrorIs(t, e.CloseDocument("main.mini"), ErrUnknownDocument)
}

func TestDuplicateItemLexicallySmallestDocWins(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.OpenDocument("b.mini", "module m\n\nfn Dup(x: Float): Float {\n  return x\n}\n")
	require.NoError(t, err)
	_, err = e.OpenDocument("a.mini", "module m\n\nfn Dup(): Float {\n  return f\n}\n")
	require.NoError(t, err)

	n, _, err := e.NodeByName(context.Background(), "m.Dup")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Empty(t, n.Params, "a.mini sorts first and owns the item")
}

func TestQuerySubgraph(t *testing.T) {
	e := newTestEngine(t)
	openFixture(t, e)
	ctx := context.Background()

	sub, err := e.QuerySubgraph(ctx, []string{"geometry.Circle", "no.Such"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"no.Such"}, sub.MissingRoots)

	names := make(map[string]bool)
	for _, n := range sub.Nodes {
		names[n.FQName] = true
	}
	assert.True(t, names["geometry.Circle"])
	assert.True(t, names["geometry.Shape"], "one hop out through implements")
	assert.True(t, names["geometry.Circle.Radius"], "one hop out through contains")
	assert.True(t, names["geometry.Perimeter"], "one hop in through references")
	assert.False(t, names["main.Run"], "two hops away")

	enc, err := sub.Serialize(FormatCompact)
	require.NoError(t, err)
	assert.Contains(t, enc, "n type geometry.Circle public struct:Shape\n")

	self, err := e.QuerySubgraph(ctx, []string{"geometry.Dist"}, 0)
	require.NoError(t, err)
	require.Len(t, self.Nodes, 1)
	assert.Equal(t, "geometry.Dist", self.Nodes[0].FQName)

	_, err = e.QuerySubgraph(ctx, []string{"geometry.Dist"}, -1)
	assert.Error(t, err)
}

func TestSerializeRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	openFixture(t, e)
	ctx := context.Background()

	compact, err := e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)
	g, err := isg.ParseCompact(compact)
	require.NoError(t, err)
	live, err := e.liveGraph(ctx)
	require.NoError(t, err)
	assert.True(t, isg.Diff(live, g).Empty())

	verbose, err := e.SerializeGraph(ctx, FormatVerbose)
	require.NoError(t, err)
	assert.Contains(t, verbose, "geometry.Circle")
}

func TestSnapshotAndHistoricalDiff(t *testing.T) {
	e := newTestEngine(t, WithArchivePath(filepath.Join(t.TempDir(), "arch.db")))
	openFixture(t, e)
	ctx := context.Background()

	rev1, err := e.Snapshot(ctx)
	require.NoError(t, err)

	editReplace(t, e, "geometry.mini", geometrySrc,
		"fn Dist(a: Point, b: Point)", "fn Dist(a: Point, b: Point, w: Float)")

	d, err := e.DiffGraph(ctx, rev1, e.Revision())
	require.NoError(t, err)
	require.Len(t, d.ChangedNodes, 1)
	assert.Equal(t, "geometry.Dist", d.ChangedNodes[0].FQName)
	assert.Len(t, d.ChangedNodes[0].Params, 3, "diff carries the newer side")
	assert.Empty(t, d.AddedNodes)
	assert.Empty(t, d.RemovedNodes)

	rev2, err := e.Snapshot(ctx)
	require.NoError(t, err)
	require.Greater(t, rev2, rev1)

	revs, err := e.Revisions()
	require.NoError(t, err)
	assert.Equal(t, []uint64{rev1, rev2}, revs)

	same, err := e.DiffGraph(ctx, rev1, rev1)
	require.NoError(t, err)
	assert.True(t, same.Empty())

	_, err = e.DiffGraph(ctx, rev1, e.Revision()+100)
	assert.ErrorIs(t, err, ErrUnknownRevision)
}

func TestSnapshotWithoutArchive(t *testing.T) {
	e := newTestEngine(t)
	openFixture(t, e)

	_, err := e.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoArchive)
	_, err = e.Revisions()
	assert.ErrorIs(t, err, ErrNoArchive)
}

func TestOpenDirectory(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("geometry.mini", geometrySrc)
	write("app/main.mini", mainSrc)
	write("notes.txt", "not source")
	write("vendor/dep.mini", "module dep\n")

	cfg := DefaultConfig()
	cfg.Index.Exclude = append(cfg.Index.Exclude, "vendor/**")
	e := newTestEngine(t, WithConfig(cfg))

	n, err := e.OpenDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	run, _, err := e.NodeByName(context.Background(), "main.Run")
	require.NoError(t, err)
	assert.NotNil(t, run)
	dep, _, err := e.NodeByName(context.Background(), "dep")
	require.NoError(t, err)
	assert.Nil(t, dep, "excluded directories stay out of the index")
}

func BenchmarkBodyEditRequery(b *testing.B) {
	e, err := New()
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	if _, err := e.OpenDocument("geometry.mini", geometrySrc); err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	if _, err := e.SerializeGraph(ctx, FormatCompact); err != nil {
		b.Fatal(err)
	}

	variants := [2]string{"dx * dx + dy * dy", "dy * dy + dx * dx"}
	src := geometrySrc
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		old, next := variants[i%2], variants[(i+1)%2]
		at := strings.Index(src, old)
		if at < 0 {
			b.Fatalf("edit target %q not found", old)
		}
		if _, err := e.EditDocument("geometry.mini", Edit{
			Range:   Span{Start: at, End: at + len(old)},
			NewText: next,
		}); err != nil {
			b.Fatal(err)
		}
		src = src[:at] + next + src[at+len(old):]
		if _, err := e.SerializeGraph(ctx, FormatCompact); err != nil {
			b.Fatal(err)
		}
	}
}

func TestStatsAccumulate(t *testing.T) {
	e := newTestEngine(t)
	openFixture(t, e)
	ctx := context.Background()

	_, err := e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)
	first := e.Stats()
	assert.NotZero(t, first.Computations)

	_, err = e.SerializeGraph(ctx, FormatCompact)
	require.NoError(t, err)
	second := e.Stats()
	assert.Equal(t, first.Computations, second.Computations,
		"a same-revision repeat is served entirely from cache")
	assert.Greater(t, second.Hits, first.Hits)
}
