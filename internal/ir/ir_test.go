package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func distSig() Signature {
	return Signature{
		Module:     "geometry",
		Name:       "Dist",
		Kind:       KindFunction,
		Visibility: Public,
		Params:     []Param{{Name: "a", Type: "Point"}, {Name: "b", Type: "Point"}},
		Returns:    "Float",
	}
}

func TestFQNameAndID(t *testing.T) {
	sig := distSig()
	assert.Equal(t, "geometry.Dist", sig.FQName())
	assert.Equal(t, ItemID{FQName: "geometry.Dist", Kind: KindFunction}, sig.ID())

	bare := Signature{Name: "Orphan", Kind: KindFunction}
	assert.Equal(t, "Orphan", bare.FQName())
}

func TestItemIDStringRoundTrip(t *testing.T) {
	ids := []ItemID{
		{FQName: "geometry.Dist", Kind: KindFunction},
		{FQName: "geometry.Circle", Kind: KindType},
		{FQName: "geometry.Circle.Radius", Kind: KindField},
		{FQName: "geometry", Kind: KindModule},
	}
	for _, id := range ids {
		back, err := ParseItemID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, back)
	}

	_, err := ParseItemID("nokind")
	assert.Error(t, err)
	_, err = ParseItemID("name#bogus")
	assert.Error(t, err)
}

func TestVisibilityOf(t *testing.T) {
	assert.Equal(t, Public, VisibilityOf("Dist"))
	assert.Equal(t, Private, VisibilityOf("dist"))
	assert.Equal(t, Private, VisibilityOf("_x"))
	assert.Equal(t, Private, VisibilityOf(""))
}

func TestSignatureFingerprintIgnoresMemberOrder(t *testing.T) {
	a := Signature{
		Module: "m", Name: "T", Kind: KindType, Flavor: FlavorStruct,
		Members: []Member{
			{Name: "X", Kind: MemberField, Visibility: Public, Type: "Int"},
			{Name: "Y", Kind: MemberField, Visibility: Public, Type: "Int"},
		},
	}
	b := a
	b.Members = []Member{a.Members[1], a.Members[0]}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(),
		"member declaration order is not part of the signature")
}

func TestSignatureFingerprintSensitivity(t *testing.T) {
	base := distSig()

	cases := map[string]func(*Signature){
		"param rename": func(s *Signature) { s.Params[0].Name = "p" },
		"param type":   func(s *Signature) { s.Params[1].Type = "Vec" },
		"return type":  func(s *Signature) { s.Returns = "Int" },
		"visibility":   func(s *Signature) { s.Visibility = Private },
		"base clause":  func(s *Signature) { s.Base = "Shape" },
		"module":       func(s *Signature) { s.Module = "geo" },
	}
	for name, mutate := range cases {
		sig := distSig()
		mutate(&sig)
		assert.NotEqual(t, base.Fingerprint(), sig.Fingerprint(), name)
	}
}

func TestBodyFingerprintOrderMatters(t *testing.T) {
	a := Body{Refs: []Ref{{Target: "f", Kind: RefCall}, {Target: "g", Kind: RefCall}}}
	b := Body{Refs: []Ref{{Target: "g", Kind: RefCall}, {Target: "f", Kind: RefCall}}}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := Body{Refs: []Ref{{Target: "f", Kind: RefCall}, {Target: "g", Kind: RefCall}}}
	assert.Equal(t, a.Fingerprint(), c.Fingerprint())
}

func TestItemFingerprintSplitsSigAndBody(t *testing.T) {
	item := Item{Sig: distSig(), Body: Body{Refs: []Ref{{Target: "math.Sqrt", Kind: RefCall}}}}

	bodyEdit := item
	bodyEdit.Body = Body{Refs: []Ref{{Target: "math.Abs", Kind: RefCall}}}
	assert.NotEqual(t, item.Fingerprint(), bodyEdit.Fingerprint())
	assert.Equal(t, item.Sig.Fingerprint(), bodyEdit.Sig.Fingerprint(),
		"a body change must leave the signature fingerprint untouched")
}

func TestFileFingerprintExcludesDocID(t *testing.T) {
	mk := func(doc string) *File {
		return &File{
			DocID:   doc,
			Module:  "geometry",
			Imports: []string{"math"},
			Items:   []Item{{Sig: distSig()}},
		}
	}
	assert.Equal(t, mk("a.mini").Fingerprint(), mk("b.mini").Fingerprint(),
		"identical content in a renamed document lowers identically")

	other := mk("a.mini")
	other.Imports = nil
	assert.NotEqual(t, mk("a.mini").Fingerprint(), other.Fingerprint())
}

func TestResolutionFingerprint(t *testing.T) {
	r1 := Resolution{Target: ItemID{FQName: "m.F", Kind: KindFunction}}
	r2 := Resolution{Target: ItemID{FQName: "m.G", Kind: KindFunction}}
	u := Resolution{Unresolved: true}

	assert.NotEqual(t, r1.Fingerprint(), r2.Fingerprint())
	assert.NotEqual(t, r1.Fingerprint(), u.Fingerprint())
	assert.Equal(t, u.Fingerprint(), Resolution{Unresolved: true}.Fingerprint())
}

func TestParseItemKind(t *testing.T) {
	for _, k := range []ItemKind{KindModule, KindType, KindFunction, KindField} {
		back, err := ParseItemKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, back)
	}
	_, err := ParseItemKind("invalid")
	assert.Error(t, err)
	_, err = ParseItemKind("widget")
	assert.Error(t, err)
}
