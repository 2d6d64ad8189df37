package langpack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efletch/trellis/internal/ir"
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

func lowerMini(t *testing.T, src string) *ir.File {
	t.Helper()
	pack := Mini()
	tree := pack.Grammar.Parse(src)
	f, err := pack.Lower.LowerFile(context.Background(), "test.mini", tree)
	require.NoError(t, err)
	return f
}

func itemByName(t *testing.T, f *ir.File, name string) ir.Item {
	t.Helper()
	for _, it := range f.Items {
		if it.Sig.Name == name {
			return it
		}
	}
	t.Fatalf("no item named %q", name)
	return ir.Item{}
}

func TestMiniLowerModuleAndImports(t *testing.T) {
	f := lowerMini(t, geometrySrc)

	assert.Equal(t, "geometry", f.Module)
	assert.Equal(t, []string{"math"}, f.Imports)
	assert.Len(t, f.Items, 4)
	for _, it := range f.Items {
		assert.Equal(t, "geometry", it.Sig.Module)
	}
}

func TestMiniLowerStruct(t *testing.T) {
	f := lowerMini(t, geometrySrc)

	point := itemByName(t, f, "Point")
	assert.Equal(t, ir.KindType, point.Sig.Kind)
	assert.Equal(t, ir.FlavorStruct, point.Sig.Flavor)
	assert.Equal(t, ir.Public, point.Sig.Visibility)
	assert.Empty(t, point.Sig.Base)
	require.Len(t, point.Sig.Members, 2)
	assert.Equal(t, ir.Member{Name: "X", Kind: ir.MemberField, Visibility: ir.Public, Type: "Float"},
		point.Sig.Members[0])
}

func TestMiniLowerIfaceAndBase(t *testing.T) {
	f := lowerMini(t, geometrySrc)

	shape := itemByName(t, f, "Shape")
	assert.Equal(t, ir.FlavorIface, shape.Sig.Flavor)
	require.Len(t, shape.Sig.Members, 1)
	area := shape.Sig.Members[0]
	assert.Equal(t, ir.MemberMethod, area.Kind)
	assert.Equal(t, "Area", area.Name)
	assert.Equal(t, "Float", area.Returns)

	circle := itemByName(t, f, "Circle")
	assert.Equal(t, ir.FlavorStruct, circle.Sig.Flavor)
	assert.Equal(t, "Shape", circle.Sig.Base)
}

func TestMiniLowerFnSignatureAndBody(t *testing.T) {
	f := lowerMini(t, geometrySrc)

	dist := itemByName(t, f, "Dist")
	assert.Equal(t, ir.KindFunction, dist.Sig.Kind)
	assert.Equal(t, []ir.Param{{Name: "a", Type: "Point"}, {Name: "b", Type: "Point"}}, dist.Sig.Params)
	assert.Equal(t, "Float", dist.Sig.Returns)

	// Locals (dx, dy) and parameter-rooted references (a.X, b.Y) are
	// stripped; only the qualified call survives.
	assert.Equal(t, []ir.Ref{{Target: "math.Sqrt", Kind: ir.RefCall}}, dist.Body.Refs)
}

func TestMiniLowerPrivateVisibility(t *testing.T) {
	f := lowerMini(t, "module m\n\nfn helper() {}\n\ntype inner struct {}\n")

	assert.Equal(t, ir.Private, itemByName(t, f, "helper").Sig.Visibility)
	assert.Equal(t, ir.Private, itemByName(t, f, "inner").Sig.Visibility)
}

func TestMiniLowerErrorItemsAbsent(t *testing.T) {
	f := lowerMini(t, "module m\n\n@@ garbage @@\n\nfn Good() {}\n")

	assert.Equal(t, "m", f.Module)
	require.Len(t, f.Items, 1)
	assert.Equal(t, "Good", f.Items[0].Sig.Name)
}

func TestMiniLowerDeterministic(t *testing.T) {
	a := lowerMini(t, geometrySrc)
	b := lowerMini(t, geometrySrc)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestMiniLowerBodyRefDedup(t *testing.T) {
	src := "module m\n\nfn F() {\n  Helper()\n  Helper()\n  Other()\n}\n"
	f := lowerMini(t, src)

	refs := itemByName(t, f, "F").Body.Refs
	assert.Equal(t, []ir.Ref{
		{Target: "Helper", Kind: ir.RefCall},
		{Target: "Other", Kind: ir.RefCall},
	}, refs)
}

func TestRegistryForDocument(t *testing.T) {
	r := NewRegistry(Mini())

	p, err := r.ForDocument("geometry.mini")
	require.NoError(t, err)
	assert.Equal(t, "mini", p.Name)

	_, err = r.ForDocument("noext")
	assert.Error(t, err)
	_, err = r.ForDocument("style.css")
	assert.Error(t, err)
}
