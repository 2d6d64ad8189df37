package treesitter

import (
	"context"
	"strings"

	"github.com/smacker/go-tree-sitter/golang"

	"github.com/efletch/trellis/internal/ir"
	"github.com/efletch/trellis/internal/syntax"
	"github.com/efletch/trellis/langpack"
)

// goKinds normalizes the tree-sitter Go grammar onto the engine's kind set.
// Composites absent here (type_spec, parameter_list, struct_type, ...) are
// flattened, which is what lets one lowerer read field and parameter
// declarations as direct descendants.
var goKinds = map[string]syntax.Kind{
	"package_clause":       syntax.KindModuleDecl,
	"import_declaration":   syntax.KindImportDecl,
	"function_declaration": syntax.KindFnDecl,
	"method_declaration":   syntax.KindFnDecl,
	"type_declaration":     syntax.KindTypeDecl,

	"parameter_declaration": syntax.KindParam,
	"field_declaration":     syntax.KindFieldDecl,
	"method_spec":           syntax.KindMethodSig,
	"method_elem":           syntax.KindMethodSig,

	"block":                  syntax.KindBlock,
	"call_expression":        syntax.KindCallExpr,
	"selector_expression":    syntax.KindFieldExpr,
	"binary_expression":      syntax.KindBinaryExpr,
	"return_statement":       syntax.KindReturnStmt,
	"short_var_declaration":  syntax.KindLetStmt,

	"identifier":         syntax.KindIdent,
	"field_identifier":   syntax.KindIdent,
	"type_identifier":    syntax.KindIdent,
	"package_identifier": syntax.KindIdent,
	"comment":            syntax.KindComment,

	"interpreted_string_literal": syntax.KindString,
	"raw_string_literal":         syntax.KindString,
	"int_literal":                syntax.KindNumber,
	"float_literal":              syntax.KindNumber,
}

// Go returns a language pack for Go source backed by the tree-sitter
// grammar. The lowering is signature-oriented: it extracts package, imports,
// top-level functions and methods, and type declarations with their fields
// and interface methods. Type expressions are captured textually, the same
// policy the builtin pack uses.
func Go() *langpack.Pack {
	return &langpack.Pack{
		Name:       "go",
		Extensions: []string{".go"},
		Grammar:    NewGrammar("go", golang.GetLanguage(), goKinds),
		Lower:      goLowerer{},
	}
}

type goLowerer struct{}

func (goLowerer) LowerFile(_ context.Context, docID string, tree *syntax.Tree) (*ir.File, error) {
	f := &ir.File{DocID: docID}
	for _, item := range tree.Items() {
		switch item.Kind() {
		case syntax.KindModuleDecl:
			if name := item.FirstToken(syntax.KindIdent); name != "" {
				f.Module = name
			}
		case syntax.KindImportDecl:
			f.Imports = append(f.Imports, importNames(item)...)
		case syntax.KindFnDecl:
			f.Items = append(f.Items, lowerGoFn(item))
		case syntax.KindTypeDecl:
			f.Items = append(f.Items, lowerGoType(item))
		}
	}
	for i := range f.Items {
		f.Items[i].Sig.Module = f.Module
	}
	return f, nil
}

// importNames extracts the package names of an import declaration: the base
// segment of each quoted path.
func importNames(item *syntax.Node) []string {
	var out []string
	item.Walk(func(n *syntax.Node) bool {
		if n.Kind() == syntax.KindString {
			path := strings.Trim(n.Text(), "\"`")
			if i := strings.LastIndexByte(path, '/'); i >= 0 {
				path = path[i+1:]
			}
			if path != "" {
				out = append(out, path)
			}
		}
		return true
	})
	return out
}

func lowerGoFn(item *syntax.Node) ir.Item {
	name := item.FirstToken(syntax.KindIdent)
	nameOff := identOffset(item, name)
	closeOff := paramClose(item, nameOff)

	// A method's receiver parameter precedes the name token; fold its type
	// into the item name so methods on different types never collide. Params
	// past the parameter list's closing paren belong to a parenthesized
	// result and feed Returns instead.
	var sigParams []ir.Param
	for _, p := range item.OfKind(syntax.KindParam) {
		switch {
		case p.Offset() < nameOff:
			if _, typ := splitParam(p); typ != "" {
				name = strings.TrimLeft(typ, "*") + "." + name
			}
		case closeOff < 0 || p.Offset() < closeOff:
			pname, typ := splitParam(p)
			sigParams = append(sigParams, ir.Param{Name: pname, Type: typ})
		}
	}

	it := ir.Item{Sig: ir.Signature{
		Name:       name,
		Kind:       ir.KindFunction,
		Visibility: ir.VisibilityOf(lastSegment(name)),
		Params:     sigParams,
		Returns:    goReturns(item, closeOff),
	}}

	if block := item.FirstOfKind(syntax.KindBlock); block != nil {
		it.Body = lowerGoBody(block, sigParams)
	}
	return it
}

func lowerGoType(item *syntax.Node) ir.Item {
	sig := ir.Signature{
		Name:   item.FirstToken(syntax.KindIdent),
		Kind:   ir.KindType,
		Flavor: ir.FlavorStruct,
	}
	sig.Visibility = ir.VisibilityOf(sig.Name)

	item.Walk(func(n *syntax.Node) bool {
		switch n.Kind() {
		case syntax.KindKeyword:
			if n.Text() == "interface" {
				sig.Flavor = ir.FlavorIface
			}
		case syntax.KindFieldDecl:
			fname, typ := splitParam(n)
			sig.Members = append(sig.Members, ir.Member{
				Name:       fname,
				Kind:       ir.MemberField,
				Visibility: ir.VisibilityOf(fname),
				Type:       typ,
			})
			return false
		case syntax.KindMethodSig:
			mname := n.FirstToken(syntax.KindIdent)
			closeOff := paramClose(n, identOffset(n, mname))
			m := ir.Member{
				Name:       mname,
				Kind:       ir.MemberMethod,
				Visibility: ir.VisibilityOf(mname),
				Returns:    goReturns(n, closeOff),
			}
			for _, p := range n.OfKind(syntax.KindParam) {
				if closeOff >= 0 && p.Offset() >= closeOff {
					continue
				}
				pname, typ := splitParam(p)
				m.Params = append(m.Params, ir.Param{Name: pname, Type: typ})
			}
			sig.Members = append(sig.Members, m)
			return false
		}
		return true
	})
	return ir.Item{Sig: sig}
}

// splitParam splits "name Type" style declarations: the leading identifier
// run is the name, the remaining text is the type. Anonymous parameters
// yield an empty name.
func splitParam(n *syntax.Node) (name, typ string) {
	children := n.Children()
	cut := 0
	for cut < len(children) {
		k := children[cut].Kind()
		if k != syntax.KindIdent && !k.IsTrivia() && children[cut].Text() != "," {
			break
		}
		cut++
	}
	var names, types []string
	for i, c := range children {
		if c.Kind().IsTrivia() {
			continue
		}
		if i < cut {
			if c.Kind() == syntax.KindIdent {
				names = append(names, c.Text())
			}
		} else {
			types = append(types, c.Text())
		}
	}
	typ = strings.TrimSpace(strings.Join(types, ""))
	if typ == "" && len(names) > 0 {
		// No type tokens after the identifier run: the trailing identifier
		// is the type. "a Point" and the anonymous "Point" both land here.
		typ = names[len(names)-1]
		names = names[:len(names)-1]
	}
	return strings.Join(names, ","), typ
}

// paramClose locates the closing paren of the parameter list that follows
// the name token. Returns -1 when the node has no parameter list.
func paramClose(n *syntax.Node, nameOff int) int {
	for _, c := range n.Children() {
		if c.Kind() == syntax.KindPunct && c.Text() == ")" && c.Offset() > nameOff {
			return c.Offset()
		}
	}
	return -1
}

// goReturns joins the tokens between the parameter list's closing paren and
// the body into the textual return type, whitespace collapsed.
func goReturns(n *syntax.Node, closeOff int) string {
	if closeOff < 0 {
		return ""
	}
	var parts []string
	collecting := false
	for _, c := range n.Children() {
		if c.Kind() == syntax.KindBlock {
			break
		}
		if !collecting {
			collecting = c.Offset() == closeOff
			continue
		}
		if c.Kind().IsTrivia() {
			continue
		}
		parts = append(parts, strings.Join(strings.Fields(c.Text()), ""))
	}
	return strings.Join(parts, "")
}

// lowerGoBody collects call and name references from a function body,
// dropping references rooted at parameters or short-var bindings.
func lowerGoBody(block *syntax.Node, params []ir.Param) ir.Body {
	locals := make(map[string]bool, len(params))
	for _, p := range params {
		for _, name := range strings.Split(p.Name, ",") {
			locals[name] = true
		}
	}
	var refs []ir.Ref
	block.Walk(func(n *syntax.Node) bool {
		switch n.Kind() {
		case syntax.KindLetStmt:
			for _, name := range n.Identifiers() {
				locals[name] = true
			}
		case syntax.KindCallExpr:
			if callee := n.ChildAt(0); callee != nil {
				refs = append(refs, ir.Ref{Target: compactText(callee), Kind: ir.RefCall})
			}
		}
		return true
	})

	body := ir.Body{}
	seen := make(map[ir.Ref]bool)
	for _, r := range refs {
		root, _, _ := strings.Cut(r.Target, ".")
		if r.Target == "" || locals[root] || seen[r] {
			continue
		}
		seen[r] = true
		body.Refs = append(body.Refs, r)
	}
	return body
}

// compactText is node text with interior whitespace removed, so a wrapped
// selector serializes the same as an unwrapped one.
func compactText(n *syntax.Node) string {
	return strings.Join(strings.Fields(n.Text()), "")
}

func identOffset(item *syntax.Node, name string) int {
	for _, c := range item.Children() {
		if c.Kind() == syntax.KindIdent && c.Text() == name {
			return c.Offset()
		}
	}
	return 0
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
