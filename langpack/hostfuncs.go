package langpack

import (
	"context"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/efletch/trellis/internal/ir"
	"github.com/efletch/trellis/internal/syntax"
)

// buildGlobals constructs the host functions a lowering script sees: node
// navigation over the syntax tree plus fact emission into the collector.
func buildGlobals(tree *syntax.Tree, c *collector) map[string]any {
	return map[string]any{
		// navigation
		"items":            makeItemsFn(tree),
		"node_kind":        makeNodeKindFn(),
		"node_text":        makeNodeTextFn(),
		"dotted_name":      makeDottedNameFn(),
		"token_text":       makeTokenTextFn(),
		"has_keyword":      makeHasKeywordFn(),
		"child_of_kind":    makeChildOfKindFn(),
		"children_of_kind": makeChildrenOfKindFn(),
		"child_at":         makeChildAtFn(),
		"descendants":      makeDescendantsFn(),

		// emission
		"set_module":       makeEmit1(c, "set_module", func(c *collector, s string) { c.module = s }),
		"add_import":       makeEmit1(c, "add_import", func(c *collector, s string) { c.imports = append(c.imports, s) }),
		"begin_item":       makeEmit2(c, "begin_item", (*collector).beginItem),
		"end_item":         makeEndItemFn(c),
		"set_flavor":       makeEmit1(c, "set_flavor", setFlavor),
		"set_base":         makeEmit1(c, "set_base", setBase),
		"add_param":        makeEmit2(c, "add_param", addParam),
		"set_returns":      makeEmit1(c, "set_returns", setReturns),
		"add_field":        makeEmit2(c, "add_field", addField),
		"add_method":       makeEmit2(c, "add_method", addMethod),
		"add_method_param": makeEmit2(c, "add_method_param", addMethodParam),
		"add_ref":          makeEmit2(c, "add_ref", addRef),
		"add_local":        makeEmit1(c, "add_local", addLocal),
	}
}

// asNode unwraps a proxied *syntax.Node argument.
func asNode(fn string, arg object.Object) (*syntax.Node, *object.Error) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", fn, arg.Type())
	}
	node, ok := proxy.Interface().(*syntax.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *syntax.Node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

func asString(fn, name string, arg object.Object) (string, *object.Error) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, name, arg.Type())
	}
	return s.Value(), nil
}

func proxyNode(n *syntax.Node) object.Object {
	p, err := object.NewProxy(n)
	if err != nil {
		return object.Errorf("langpack: proxy error: %v", err)
	}
	return p
}

func nodeList(nodes []*syntax.Node) object.Object {
	out := make([]object.Object, len(nodes))
	for i, n := range nodes {
		out[i] = proxyNode(n)
	}
	return object.NewList(out)
}

// items() → list of top-level item nodes, in source order.
func makeItemsFn(tree *syntax.Tree) *object.Builtin {
	return object.NewBuiltin("items", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("items", 0, len(args))
		}
		return nodeList(tree.Items())
	})
}

// node_kind(node) → kind name string.
func makeNodeKindFn() *object.Builtin {
	return object.NewBuiltin("node_kind", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_kind", 1, len(args))
		}
		n, errObj := asNode("node_kind", args[0])
		if errObj != nil {
			return errObj
		}
		return object.NewString(n.Kind().String())
	})
}

// node_text(node) → exact source text the node covers.
func makeNodeTextFn() *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		n, errObj := asNode("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		return object.NewString(n.Text())
	})
}

// dotted_name(node) → the node's identifier tokens joined with dots, for
// "module a.b" style headers.
func makeDottedNameFn() *object.Builtin {
	return object.NewBuiltin("dotted_name", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("dotted_name", 1, len(args))
		}
		n, errObj := asNode("dotted_name", args[0])
		if errObj != nil {
			return errObj
		}
		return object.NewString(strings.Join(n.Identifiers(), "."))
	})
}

// token_text(node, kind) → text of the first direct token child of kind, "".
func makeTokenTextFn() *object.Builtin {
	return object.NewBuiltin("token_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("token_text", 2, len(args))
		}
		n, errObj := asNode("token_text", args[0])
		if errObj != nil {
			return errObj
		}
		kindName, errObj := asString("token_text", "kind", args[1])
		if errObj != nil {
			return errObj
		}
		kind, ok := kindByName(kindName)
		if !ok {
			return object.Errorf("token_text: unknown kind %q", kindName)
		}
		return object.NewString(n.FirstToken(kind))
	})
}

// has_keyword(node, word) → whether a direct keyword token equals word.
func makeHasKeywordFn() *object.Builtin {
	return object.NewBuiltin("has_keyword", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("has_keyword", 2, len(args))
		}
		n, errObj := asNode("has_keyword", args[0])
		if errObj != nil {
			return errObj
		}
		word, errObj := asString("has_keyword", "word", args[1])
		if errObj != nil {
			return errObj
		}
		for _, c := range n.Children() {
			if c.Kind() == syntax.KindKeyword && c.Text() == word {
				return object.True
			}
		}
		return object.False
	})
}

// child_of_kind(node, kind) → first direct child of kind, or nil.
func makeChildOfKindFn() *object.Builtin {
	return object.NewBuiltin("child_of_kind", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("child_of_kind", 2, len(args))
		}
		n, errObj := asNode("child_of_kind", args[0])
		if errObj != nil {
			return errObj
		}
		kindName, errObj := asString("child_of_kind", "kind", args[1])
		if errObj != nil {
			return errObj
		}
		kind, ok := kindByName(kindName)
		if !ok {
			return object.Errorf("child_of_kind: unknown kind %q", kindName)
		}
		child := n.FirstOfKind(kind)
		if child == nil {
			return object.Nil
		}
		return proxyNode(child)
	})
}

// children_of_kind(node, kind) → list of direct children of kind, in order.
func makeChildrenOfKindFn() *object.Builtin {
	return object.NewBuiltin("children_of_kind", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("children_of_kind", 2, len(args))
		}
		n, errObj := asNode("children_of_kind", args[0])
		if errObj != nil {
			return errObj
		}
		kindName, errObj := asString("children_of_kind", "kind", args[1])
		if errObj != nil {
			return errObj
		}
		kind, ok := kindByName(kindName)
		if !ok {
			return object.Errorf("children_of_kind: unknown kind %q", kindName)
		}
		return nodeList(n.OfKind(kind))
	})
}

// child_at(node, i) → i-th child (trivia included), or nil.
func makeChildAtFn() *object.Builtin {
	return object.NewBuiltin("child_at", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("child_at", 2, len(args))
		}
		n, errObj := asNode("child_at", args[0])
		if errObj != nil {
			return errObj
		}
		idx, ok := args[1].(*object.Int)
		if !ok {
			return object.Errorf("child_at: index must be an int, got %s", args[1].Type())
		}
		child := n.ChildAt(int(idx.Value()))
		if child == nil {
			return object.Nil
		}
		return proxyNode(child)
	})
}

// descendants(node) → all composite descendants in depth-first preorder,
// the node itself excluded.
func makeDescendantsFn() *object.Builtin {
	return object.NewBuiltin("descendants", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("descendants", 1, len(args))
		}
		n, errObj := asNode("descendants", args[0])
		if errObj != nil {
			return errObj
		}
		var out []*syntax.Node
		n.Walk(func(d *syntax.Node) bool {
			if d != n && !d.Kind().IsToken() {
				out = append(out, d)
			}
			return true
		})
		return nodeList(out)
	})
}

func kindByName(name string) (syntax.Kind, bool) {
	for k := syntax.Kind(0); ; k++ {
		s := k.String()
		if s == name {
			return k, true
		}
		if s == "invalid" && k != 0 {
			return 0, false
		}
	}
}

// makeEmit1 wraps a one-string-argument collector operation as a builtin.
func makeEmit1(c *collector, name string, f func(*collector, string)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		s, errObj := asString(name, "value", args[0])
		if errObj != nil {
			return errObj
		}
		f(c, s)
		return object.Nil
	})
}

// makeEmit2 wraps a two-string-argument collector operation as a builtin.
func makeEmit2(c *collector, name string, f func(*collector, string, string)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError(name, 2, len(args))
		}
		a, errObj := asString(name, "first argument", args[0])
		if errObj != nil {
			return errObj
		}
		b, errObj := asString(name, "second argument", args[1])
		if errObj != nil {
			return errObj
		}
		f(c, a, b)
		return object.Nil
	})
}

func makeEndItemFn(c *collector) *object.Builtin {
	return object.NewBuiltin("end_item", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("end_item", 0, len(args))
		}
		c.endItem()
		return object.Nil
	})
}

func setFlavor(c *collector, flavor string) {
	c.withCur("set_flavor", func(it *ir.Item) {
		switch flavor {
		case "struct":
			it.Sig.Flavor = ir.FlavorStruct
		case "iface":
			it.Sig.Flavor = ir.FlavorIface
		default:
			c.fail("set_flavor: unknown flavor %q", flavor)
		}
	})
}

func setBase(c *collector, base string) {
	c.withCur("set_base", func(it *ir.Item) { it.Sig.Base = base })
}

func addParam(c *collector, name, typ string) {
	c.withCur("add_param", func(it *ir.Item) {
		it.Sig.Params = append(it.Sig.Params, ir.Param{Name: name, Type: typ})
	})
}

func setReturns(c *collector, typ string) {
	c.withCur("set_returns", func(it *ir.Item) { it.Sig.Returns = typ })
}

func addField(c *collector, name, typ string) {
	c.withCur("add_field", func(it *ir.Item) {
		it.Sig.Members = append(it.Sig.Members, ir.Member{
			Name:       name,
			Kind:       ir.MemberField,
			Visibility: ir.VisibilityOf(name),
			Type:       typ,
		})
	})
}

func addMethod(c *collector, name, returns string) {
	c.withCur("add_method", func(it *ir.Item) {
		it.Sig.Members = append(it.Sig.Members, ir.Member{
			Name:       name,
			Kind:       ir.MemberMethod,
			Visibility: ir.VisibilityOf(name),
			Returns:    returns,
		})
	})
}

func addMethodParam(c *collector, name, typ string) {
	c.withCur("add_method_param", func(it *ir.Item) {
		if len(it.Sig.Members) == 0 {
			c.fail("add_method_param before add_method")
			return
		}
		m := &it.Sig.Members[len(it.Sig.Members)-1]
		if m.Kind != ir.MemberMethod {
			c.fail("add_method_param: last member %q is not a method", m.Name)
			return
		}
		m.Params = append(m.Params, ir.Param{Name: name, Type: typ})
	})
}

func addRef(c *collector, target, kind string) {
	c.withCur("add_ref", func(it *ir.Item) {
		var k ir.RefKind
		switch kind {
		case "call":
			k = ir.RefCall
		case "name":
			k = ir.RefName
		case "type":
			k = ir.RefType
		default:
			c.fail("add_ref: unknown ref kind %q", kind)
			return
		}
		if target == "" {
			return
		}
		it.Body.Refs = append(it.Body.Refs, ir.Ref{Target: target, Kind: k})
	})
}

func addLocal(c *collector, name string) {
	if c.cur == nil {
		c.fail("add_local outside begin_item/end_item")
		return
	}
	if name != "" {
		c.locals[name] = true
	}
}
