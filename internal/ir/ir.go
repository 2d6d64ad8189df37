// Package ir defines the stable intermediate representation lowered from
// syntax trees. IR values are immutable; identity derives from qualified
// names, never from tree position, so moving an item without changing its
// signature leaves its identity intact. Structural equality is decided by
// precomputed fingerprints, which is what gives downstream queries their
// early-cutoff boundary.
package ir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ItemKind is the closed set of top-level semantic units.
type ItemKind uint8

const (
	KindInvalid ItemKind = iota
	KindModule
	KindType
	KindFunction
	KindField
)

var itemKindNames = [...]string{
	KindInvalid:  "invalid",
	KindModule:   "module",
	KindType:     "type",
	KindFunction: "function",
	KindField:    "field",
}

func (k ItemKind) String() string {
	if int(k) < len(itemKindNames) && itemKindNames[k] != "" {
		return itemKindNames[k]
	}
	return "invalid"
}

// ParseItemKind maps a kind name back to its tag.
func ParseItemKind(s string) (ItemKind, error) {
	for k, name := range itemKindNames {
		if name == s && ItemKind(k) != KindInvalid {
			return ItemKind(k), nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown item kind %q", s)
}

// Visibility of an item or member.
type Visibility uint8

const (
	Private Visibility = iota
	Public
)

func (v Visibility) String() string {
	if v == Public {
		return "public"
	}
	return "private"
}

// VisibilityOf applies the leading-uppercase rule.
func VisibilityOf(name string) Visibility {
	if name == "" {
		return Private
	}
	if c := name[0]; c >= 'A' && c <= 'Z' {
		return Public
	}
	return Private
}

// Param is one parameter of a function or method signature. Type is the raw
// textual type reference, resolved lazily by resolution queries.
type Param struct {
	Name string
	Type string
}

// MemberKind distinguishes contained members of a type.
type MemberKind uint8

const (
	MemberField MemberKind = iota
	MemberMethod
)

func (k MemberKind) String() string {
	if k == MemberMethod {
		return "method"
	}
	return "field"
}

// Member is a field or method signature contained in a type declaration.
type Member struct {
	Name       string
	Kind       MemberKind
	Visibility Visibility
	Type       string // field type, empty for methods
	Params     []Param
	Returns    string
}

// TypeFlavor distinguishes struct-like from interface-like type declarations.
type TypeFlavor uint8

const (
	FlavorNone TypeFlavor = iota
	FlavorStruct
	FlavorIface
)

func (f TypeFlavor) String() string {
	switch f {
	case FlavorStruct:
		return "struct"
	case FlavorIface:
		return "iface"
	}
	return ""
}

// Signature is everything about an item visible to its consumers: the
// declared surface, excluding the body. Two signatures with equal
// fingerprints are the same interface element.
type Signature struct {
	Module     string
	Name       string
	Kind       ItemKind
	Visibility Visibility
	Flavor     TypeFlavor
	Base       string // raw base reference from ": Base" clauses
	Params     []Param
	Returns    string
	Members    []Member
}

// FQName is the fully-qualified name: module.Name.
func (s Signature) FQName() string {
	if s.Module == "" {
		return s.Name
	}
	return s.Module + "." + s.Name
}

// ID is the stable item identity: fqname plus kind. Body edits, file moves,
// and reordering never change it.
func (s Signature) ID() ItemID {
	return ItemID{FQName: s.FQName(), Kind: s.Kind}
}

// Fingerprint hashes the declared surface. Members are sorted by (name, kind)
// so declaration order inside a block is not part of the signature.
func (s Signature) Fingerprint() uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "module:%s\n", s.Module)
	fmt.Fprintf(h, "name:%s\n", s.Name)
	fmt.Fprintf(h, "kind:%s\n", s.Kind)
	fmt.Fprintf(h, "visibility:%s\n", s.Visibility)
	fmt.Fprintf(h, "flavor:%s\n", s.Flavor)
	fmt.Fprintf(h, "base:%s\n", s.Base)
	for _, p := range s.Params {
		fmt.Fprintf(h, "param:%s:%s\n", p.Name, p.Type)
	}
	fmt.Fprintf(h, "returns:%s\n", s.Returns)

	members := make([]Member, len(s.Members))
	copy(members, s.Members)
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].Kind < members[j].Kind
	})
	for _, m := range members {
		fmt.Fprintf(h, "member:%s:%s:%s:%s\n", m.Name, m.Kind, m.Visibility, m.Type)
		for _, p := range m.Params {
			fmt.Fprintf(h, "mparam:%s:%s\n", p.Name, p.Type)
		}
		fmt.Fprintf(h, "mreturns:%s\n", m.Returns)
	}
	return h.Sum64()
}

// ItemID names one item: fully-qualified name plus kind.
type ItemID struct {
	FQName string
	Kind   ItemKind
}

func (id ItemID) String() string { return id.FQName + "#" + id.Kind.String() }

// ParseItemID is the inverse of String.
func ParseItemID(s string) (ItemID, error) {
	i := strings.LastIndexByte(s, '#')
	if i < 0 {
		return ItemID{}, fmt.Errorf("malformed item id %q", s)
	}
	kind, err := ParseItemKind(s[i+1:])
	if err != nil {
		return ItemID{}, fmt.Errorf("malformed item id %q: %w", s, err)
	}
	return ItemID{FQName: s[:i], Kind: kind}, nil
}

// RefKind classifies a body reference.
type RefKind uint8

const (
	RefCall RefKind = iota
	RefName
	RefType
)

func (k RefKind) String() string {
	switch k {
	case RefCall:
		return "call"
	case RefType:
		return "type"
	}
	return "name"
}

// Ref is one raw reference found in an item's body: a possibly-qualified
// textual target. Resolution happens later, as its own query.
type Ref struct {
	Target string
	Kind   RefKind
}

// Body is the lowered body of an item: the references it makes, in lexical
// order. Local bindings are already stripped; a body mentioning only locals
// lowers to an empty ref list.
type Body struct {
	Refs []Ref
}

// Fingerprint hashes the reference list. Order matters: reordering calls is a
// body change even when the set is equal.
func (b Body) Fingerprint() uint64 {
	h := xxhash.New()
	for _, r := range b.Refs {
		fmt.Fprintf(h, "%s:%s\n", r.Kind, r.Target)
	}
	return h.Sum64()
}

// Item pairs a signature with its lowered body.
type Item struct {
	Sig  Signature
	Body Body
}

func (it Item) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [16]byte
	putUint64(buf[:8], it.Sig.Fingerprint())
	putUint64(buf[8:], it.Body.Fingerprint())
	h.Write(buf[:])
	return h.Sum64()
}

// File is the lowering of one document: its module, imports, and items in
// source order.
type File struct {
	DocID   string
	Module  string
	Imports []string
	Items   []Item
}

// Fingerprint covers module, imports, and all items. DocID is excluded:
// identical content in a renamed document lowers to an identical File.
func (f *File) Fingerprint() uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "module:%s\n", f.Module)
	for _, imp := range f.Imports {
		fmt.Fprintf(h, "import:%s\n", imp)
	}
	var buf [8]byte
	for _, it := range f.Items {
		putUint64(buf[:], it.Fingerprint())
		h.Write(buf[:])
	}
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Resolution is the outcome of resolving one raw reference. Unresolved is a
// valid, queryable state meaning the reference could not be bound; it is
// data, never an error.
type Resolution struct {
	Target     ItemID
	Unresolved bool
}

func (r Resolution) Fingerprint() uint64 {
	if r.Unresolved {
		return xxhash.Sum64String("unresolved")
	}
	return xxhash.Sum64String("resolved:" + r.Target.String())
}
