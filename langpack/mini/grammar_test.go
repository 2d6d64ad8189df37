package mini

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efletch/trellis/internal/syntax"
	"github.com/efletch/trellis/internal/text"
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
`

func TestLexIsLossless(t *testing.T) {
	srcs := []string{
		geometrySrc,
		"",
		"// just a comment",
		"fn X() { let s = \"he\\\"llo\" }",
		"module a.b.c\n\x00\x01 weird ~~ bytes",
		"let unterminated = \"abc\nfn Next() {}",
	}
	for _, src := range srcs {
		var sb strings.Builder
		for _, tok := range lex(src) {
			sb.WriteString(tok.text)
		}
		assert.Equal(t, src, sb.String())
	}
}

func TestParseFullFidelity(t *testing.T) {
	g := New()
	tree := g.Parse(geometrySrc)

	assert.Equal(t, len(geometrySrc), tree.GreenRoot().Width())
	assert.Equal(t, geometrySrc, tree.GreenRoot().Source())
}

func TestParseItemKinds(t *testing.T) {
	g := New()
	tree := g.Parse(geometrySrc)

	var kinds []syntax.Kind
	for _, item := range tree.Items() {
		kinds = append(kinds, item.Kind())
	}
	assert.Equal(t, []syntax.Kind{
		syntax.KindModuleDecl,
		syntax.KindImportDecl,
		syntax.KindTypeDecl,
		syntax.KindTypeDecl,
		syntax.KindTypeDecl,
		syntax.KindFnDecl,
	}, kinds)
}

func TestParseTypeStructure(t *testing.T) {
	g := New()
	tree := g.Parse(geometrySrc)
	items := tree.Items()

	// type Circle struct : Shape { ... }
	circle := items[4]
	require.Equal(t, syntax.KindTypeDecl, circle.Kind())
	assert.Equal(t, "Circle", circle.FirstToken(syntax.KindIdent))

	impl := circle.FirstOfKind(syntax.KindImplementsClause)
	require.NotNil(t, impl)
	ref := impl.FirstOfKind(syntax.KindTypeRef)
	require.NotNil(t, ref)
	assert.Equal(t, "Shape", ref.Text())

	block := circle.FirstOfKind(syntax.KindBlock)
	require.NotNil(t, block)
	fields := block.OfKind(syntax.KindFieldDecl)
	require.Len(t, fields, 2)
	assert.Equal(t, "Center", fields[0].FirstToken(syntax.KindIdent))
	assert.Equal(t, "Point", fields[0].FirstOfKind(syntax.KindTypeRef).Text())
}

func TestParseIfaceMethodSig(t *testing.T) {
	g := New()
	tree := g.Parse(geometrySrc)

	shape := tree.Items()[3]
	require.Equal(t, syntax.KindTypeDecl, shape.Kind())
	block := shape.FirstOfKind(syntax.KindBlock)
	require.NotNil(t, block)

	sigs := block.OfKind(syntax.KindMethodSig)
	require.Len(t, sigs, 1)
	assert.Equal(t, "Area", sigs[0].FirstToken(syntax.KindIdent))
	assert.Equal(t, "Float", sigs[0].FirstOfKind(syntax.KindTypeRef).Text())
}

func TestParseFnStructure(t *testing.T) {
	g := New()
	tree := g.Parse(geometrySrc)

	dist := tree.Items()[5]
	require.Equal(t, syntax.KindFnDecl, dist.Kind())
	assert.Equal(t, "Dist", dist.FirstToken(syntax.KindIdent))

	params := dist.OfKind(syntax.KindParam)
	require.Len(t, params, 2)
	assert.Equal(t, "a", params[0].FirstToken(syntax.KindIdent))
	assert.Equal(t, "Point", params[0].FirstOfKind(syntax.KindTypeRef).Text())

	// Return type is a direct TypeRef child of the fn.
	ret := dist.FirstOfKind(syntax.KindTypeRef)
	require.NotNil(t, ret)
	assert.Equal(t, "Float", ret.Text())

	block := dist.FirstOfKind(syntax.KindBlock)
	require.NotNil(t, block)
	assert.Len(t, block.OfKind(syntax.KindLetStmt), 2)
	assert.Len(t, block.OfKind(syntax.KindReturnStmt), 1)
}

func TestParseCallChain(t *testing.T) {
	g := New()
	tree := g.Parse("fn F(): Int {\n  return util.Max(a + b, 2)\n}\n")

	fn := tree.Items()[0]
	ret := fn.FirstOfKind(syntax.KindBlock).OfKind(syntax.KindReturnStmt)[0]
	call := ret.FirstOfKind(syntax.KindCallExpr)
	require.NotNil(t, call)

	callee := call.ChildAt(0)
	require.Equal(t, syntax.KindFieldExpr, callee.Kind())
	assert.Equal(t, "util.Max", callee.Text())

	var binaries int
	call.Walk(func(n *syntax.Node) bool {
		if n.Kind() == syntax.KindBinaryExpr {
			binaries++
		}
		return true
	})
	assert.Equal(t, 1, binaries)
}

func TestErrorRecoveryKeepsLaterItems(t *testing.T) {
	src := "module a\n\n@@ %% garbage here\n\nfn Good() {}\n"
	g := New()
	tree := g.Parse(src)

	var kinds []syntax.Kind
	for _, item := range tree.Items() {
		kinds = append(kinds, item.Kind())
	}
	assert.Equal(t, []syntax.Kind{
		syntax.KindModuleDecl,
		syntax.KindError,
		syntax.KindFnDecl,
	}, kinds)
	assert.Equal(t, src, tree.GreenRoot().Source(), "error recovery must not drop bytes")
}

func TestParseItemsIncomplete(t *testing.T) {
	cases := map[string]bool{
		"fn A() {}\n":           true,  // sealed by }
		"fn A() {\n  let x = 1": false, // unclosed block
		"fn A(":                 false, // unclosed params
		"module a":              false, // header can absorb .b
		"import a.b":            false,
		"type T struct {}":      true,
		"":                      true, // nothing to absorb
		"  \n// trivia only\n":  true,
	}
	for src, wantComplete := range cases {
		_, complete := parseItems(src)
		assert.Equal(t, wantComplete, complete, "src %q", src)
	}
}

func TestReparseMatchesFromScratch(t *testing.T) {
	g := New()
	prior := g.Parse(geometrySrc)

	// Rename the local "dx" binding inside Dist's body.
	old := "let dx = a.X - b.X"
	idx := strings.Index(geometrySrc, old)
	require.True(t, idx >= 0)
	edit := text.Edit{
		Range:   text.Span{Start: idx + 4, End: idx + 6},
		NewText: "deltaX",
	}
	newSrc := geometrySrc[:edit.Range.Start] + edit.NewText + geometrySrc[edit.Range.End:]

	incTree, changed := syntax.Reparse(g, prior, newSrc, edit)
	fullTree := g.Parse(newSrc)

	assert.Equal(t, newSrc, incTree.GreenRoot().Source())
	assert.Equal(t, fullTree.Fingerprint(), incTree.Fingerprint(),
		"incremental parse must equal from-scratch parse")

	require.Len(t, changed, 1)
	assert.True(t, changed[0].Contains(idx+4), "changed range must cover the edit")
}

func TestReparseSharesUntouchedItems(t *testing.T) {
	g := New()
	prior := g.Parse(geometrySrc)
	priorItems := prior.Items()

	// Edit inside the final fn; every earlier item must be reused by pointer.
	idx := strings.Index(geometrySrc, "dy + dy")
	require.True(t, idx >= 0)
	edit := text.Edit{Range: text.Span{Start: idx, End: idx + 7}, NewText: "dy * dy"}
	newSrc := geometrySrc[:idx] + "dy * dy" + geometrySrc[idx+7:]

	incTree, _ := syntax.Reparse(g, prior, newSrc, edit)
	newItems := incTree.Items()
	require.Len(t, newItems, len(priorItems))

	for i := 0; i < 5; i++ {
		assert.Same(t, priorItems[i].Green(), newItems[i].Green(),
			"item %d must be structurally shared", i)
	}
	assert.NotSame(t, priorItems[5].Green(), newItems[5].Green())
}

func TestReparseExtendsWindowForUnclosedBlock(t *testing.T) {
	src := "fn A() {\n  let x = 1\n}\n\nfn B() {\n  let y = 2\n}\n"
	g := New()
	prior := g.Parse(src)
	require.Len(t, prior.Items(), 2)

	// Delete A's closing brace: A must absorb B, exactly as a from-scratch
	// parse would.
	idx := strings.Index(src, "}")
	edit := text.Edit{Range: text.Span{Start: idx, End: idx + 1}, NewText: ""}
	newSrc := src[:idx] + src[idx+1:]

	incTree, _ := syntax.Reparse(g, prior, newSrc, edit)
	fullTree := g.Parse(newSrc)

	assert.Equal(t, newSrc, incTree.GreenRoot().Source())
	assert.Equal(t, fullTree.Fingerprint(), incTree.Fingerprint())
	assert.Len(t, incTree.Items(), 1)
}

func TestReparseAtDocumentEdges(t *testing.T) {
	g := New()

	// Append at EOF.
	src := "fn A() {}\n"
	prior := g.Parse(src)
	newSrc := src + "\nfn B() {}\n"
	edit := text.Edit{Range: text.Span{Start: len(src), End: len(src)}, NewText: "\nfn B() {}\n"}
	incTree, _ := syntax.Reparse(g, prior, newSrc, edit)
	assert.Equal(t, g.Parse(newSrc).Fingerprint(), incTree.Fingerprint())

	// Prepend at offset zero.
	prior = g.Parse(src)
	newSrc = "module m\n\n" + src
	edit = text.Edit{Range: text.Span{Start: 0, End: 0}, NewText: "module m\n\n"}
	incTree, _ = syntax.Reparse(g, prior, newSrc, edit)
	assert.Equal(t, newSrc, incTree.GreenRoot().Source())
	assert.Len(t, incTree.Items(), 2)

	// Empty document growing its first item.
	prior = g.Parse("")
	edit = text.Edit{Range: text.Span{Start: 0, End: 0}, NewText: "fn A() {}"}
	incTree, _ = syntax.Reparse(g, prior, "fn A() {}", edit)
	assert.Equal(t, g.Parse("fn A() {}").Fingerprint(), incTree.Fingerprint())
}
