package mini

import (
	"github.com/efletch/trellis/internal/syntax"
)

// parser consumes the lossless token stream and builds green nodes. Every
// consumed token is appended to some node's children, so widths always sum
// to the input length. Unparseable stretches become KindError items or stray
// tokens inside blocks; the parser itself never fails.
type parser struct {
	toks       []token
	pos        int
	incomplete bool
}

func (p *parser) eof() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.eof() {
		return token{}
	}
	return p.toks[p.pos]
}

func (p *parser) tokAt(i int) token {
	if i < 0 || i >= len(p.toks) {
		return token{}
	}
	return p.toks[i]
}

func (p *parser) atKeyword(word string) bool {
	t := p.peek()
	return t.kind == syntax.KindKeyword && t.text == word
}

func (p *parser) atItemKeyword() bool {
	t := p.peek()
	return t.kind == syntax.KindKeyword && itemKeywords[t.text]
}

func (p *parser) atPunct(s string) bool {
	t := p.peek()
	return t.kind == syntax.KindPunct && t.text == s
}

func (p *parser) atKind(k syntax.Kind) bool { return p.peek().kind == k }

// bump consumes the current token into children.
func (p *parser) bump(children *[]*syntax.GreenNode) {
	t := p.toks[p.pos]
	*children = append(*children, syntax.NewToken(t.kind, t.text))
	p.pos++
}

// bumpTrivia consumes a whitespace/comment run into children.
func (p *parser) bumpTrivia(children *[]*syntax.GreenNode) {
	for !p.eof() && p.peek().kind.IsTrivia() {
		p.bump(children)
	}
}

// parseItems parses a fragment as a file-root child sequence.
func parseItems(fragment string) ([]*syntax.GreenNode, bool) {
	p := &parser{toks: lex(fragment)}
	var out []*syntax.GreenNode
	for {
		var lead []*syntax.GreenNode
		p.bumpTrivia(&lead)
		if p.eof() {
			// Trailing trivia stays as stray file-root tokens.
			out = append(out, lead...)
			break
		}
		switch {
		case p.atKeyword("module"):
			out = append(out, p.parseHeader(syntax.KindModuleDecl, lead))
		case p.atKeyword("import"):
			out = append(out, p.parseHeader(syntax.KindImportDecl, lead))
		case p.atKeyword("type"):
			out = append(out, p.parseType(lead))
		case p.atKeyword("fn"):
			out = append(out, p.parseFn(lead))
		default:
			out = append(out, p.parseErrorItem(lead))
		}
	}

	// A fragment whose final item is open-ended (headers, error runs, or a
	// decl without its closing brace) could absorb text that follows the
	// fragment, so the incremental reparse must widen its window. Items
	// ending in "}" are sealed: no production continues past a block.
	for i := len(out) - 1; i >= 0; i-- {
		if !out[i].Kind().IsItem() {
			continue
		}
		if tk := lastToken(out[i]); tk == nil || tk.Kind() != syntax.KindPunct || tk.TokenText() != "}" {
			p.incomplete = true
		}
		break
	}
	return out, !p.incomplete
}

// lastToken descends to the rightmost token of a subtree.
func lastToken(g *syntax.GreenNode) *syntax.GreenNode {
	for g != nil && g.NumChildren() > 0 {
		g = g.Child(g.NumChildren() - 1)
	}
	if g == nil || !g.Kind().IsToken() {
		return nil
	}
	return g
}

// parseHeader handles "module a.b" and "import a.b".
func (p *parser) parseHeader(kind syntax.Kind, children []*syntax.GreenNode) *syntax.GreenNode {
	p.bump(&children)
	p.bumpTrivia(&children)
	if p.atKind(syntax.KindIdent) {
		p.bumpDottedName(&children)
	} else if p.eof() {
		p.incomplete = true
	}
	return syntax.NewNode(kind, children...)
}

// bumpDottedName consumes ident(.ident)* with no trivia around the dots.
func (p *parser) bumpDottedName(children *[]*syntax.GreenNode) {
	p.bump(children)
	for p.atPunct(".") && p.tokAt(p.pos+1).kind == syntax.KindIdent {
		p.bump(children)
		p.bump(children)
	}
}

// parseTypeRef parses a possibly qualified type name.
func (p *parser) parseTypeRef() *syntax.GreenNode {
	var tr []*syntax.GreenNode
	if !p.atKind(syntax.KindIdent) {
		if p.eof() {
			p.incomplete = true
		}
		return nil
	}
	p.bumpDottedName(&tr)
	return syntax.NewNode(syntax.KindTypeRef, tr...)
}

// parseErrorItem consumes everything up to the next item keyword into a
// KindError node, so one malformed region never poisons later items.
func (p *parser) parseErrorItem(children []*syntax.GreenNode) *syntax.GreenNode {
	for !p.eof() && !p.atItemKeyword() {
		p.bump(&children)
	}
	return syntax.NewNode(syntax.KindError, children...)
}

// parseType handles "type Name struct|iface (: Base)? { members }".
func (p *parser) parseType(children []*syntax.GreenNode) *syntax.GreenNode {
	p.bump(&children) // type
	p.bumpTrivia(&children)

	if p.atKind(syntax.KindIdent) {
		p.bump(&children) // name
	}
	p.bumpTrivia(&children)

	iface := false
	if p.atKeyword("struct") || p.atKeyword("iface") {
		iface = p.peek().text == "iface"
		p.bump(&children)
	}
	p.bumpTrivia(&children)

	if p.atPunct(":") {
		var cl []*syntax.GreenNode
		p.bump(&cl)
		p.bumpTrivia(&cl)
		if ref := p.parseTypeRef(); ref != nil {
			cl = append(cl, ref)
		}
		children = append(children, syntax.NewNode(syntax.KindImplementsClause, cl...))
		p.bumpTrivia(&children)
	}

	if p.atPunct("{") {
		children = append(children, p.parseTypeBlock(iface))
	} else if p.eof() {
		p.incomplete = true
	}
	return syntax.NewNode(syntax.KindTypeDecl, children...)
}

// parseTypeBlock parses member declarations until the closing brace.
func (p *parser) parseTypeBlock(iface bool) *syntax.GreenNode {
	var b []*syntax.GreenNode
	p.bump(&b) // {
	for {
		p.bumpTrivia(&b)
		if p.eof() {
			p.incomplete = true
			break
		}
		if p.atPunct("}") {
			p.bump(&b)
			break
		}
		if p.atKind(syntax.KindIdent) {
			if iface {
				b = append(b, p.parseMethodSig())
			} else {
				b = append(b, p.parseFieldDecl())
			}
			continue
		}
		p.bump(&b) // stray token, keep and move on
	}
	return syntax.NewNode(syntax.KindBlock, b...)
}

// parseFieldDecl handles "Name: Type".
func (p *parser) parseFieldDecl() *syntax.GreenNode {
	var f []*syntax.GreenNode
	p.bump(&f) // name
	p.bumpTrivia(&f)
	if p.atPunct(":") {
		p.bump(&f)
		p.bumpTrivia(&f)
		if ref := p.parseTypeRef(); ref != nil {
			f = append(f, ref)
		}
	}
	return syntax.NewNode(syntax.KindFieldDecl, f...)
}

// parseMethodSig handles "Name(params): Type" inside iface blocks.
func (p *parser) parseMethodSig() *syntax.GreenNode {
	var m []*syntax.GreenNode
	p.bump(&m) // name
	p.bumpTrivia(&m)
	if p.atPunct("(") {
		p.parseParamsInto(&m)
	}
	p.bumpTrivia(&m)
	if p.atPunct(":") {
		p.bump(&m)
		p.bumpTrivia(&m)
		if ref := p.parseTypeRef(); ref != nil {
			m = append(m, ref)
		}
	}
	return syntax.NewNode(syntax.KindMethodSig, m...)
}

// parseFn handles "fn Name(params)(: Ret)? { body }".
func (p *parser) parseFn(children []*syntax.GreenNode) *syntax.GreenNode {
	p.bump(&children) // fn
	p.bumpTrivia(&children)

	if p.atKind(syntax.KindIdent) {
		p.bump(&children) // name
	}
	p.bumpTrivia(&children)

	if p.atPunct("(") {
		p.parseParamsInto(&children)
	} else if p.eof() {
		p.incomplete = true
	}
	p.bumpTrivia(&children)

	if p.atPunct(":") {
		p.bump(&children)
		p.bumpTrivia(&children)
		if ref := p.parseTypeRef(); ref != nil {
			children = append(children, ref)
		}
		p.bumpTrivia(&children)
	}

	if p.atPunct("{") {
		children = append(children, p.parseBlock())
	} else if p.eof() {
		p.incomplete = true
	}
	return syntax.NewNode(syntax.KindFnDecl, children...)
}

// parseParamsInto consumes "(" params ")" appending the parens and separators
// to the enclosing node and each "name: Type" as a KindParam child.
func (p *parser) parseParamsInto(children *[]*syntax.GreenNode) {
	p.bump(children) // (
	for {
		p.bumpTrivia(children)
		if p.eof() {
			p.incomplete = true
			return
		}
		if p.atPunct(")") {
			p.bump(children)
			return
		}
		if p.atKind(syntax.KindIdent) {
			var param []*syntax.GreenNode
			p.bump(&param)
			p.bumpTrivia(&param)
			if p.atPunct(":") {
				p.bump(&param)
				p.bumpTrivia(&param)
				if ref := p.parseTypeRef(); ref != nil {
					param = append(param, ref)
				}
			}
			*children = append(*children, syntax.NewNode(syntax.KindParam, param...))
			continue
		}
		p.bump(children) // comma or stray token
	}
}

// parseBlock parses a function body until the closing brace.
func (p *parser) parseBlock() *syntax.GreenNode {
	var b []*syntax.GreenNode
	p.bump(&b) // {
	for {
		p.bumpTrivia(&b)
		if p.eof() {
			p.incomplete = true
			break
		}
		if p.atPunct("}") {
			p.bump(&b)
			break
		}
		switch {
		case p.atKeyword("let"):
			b = append(b, p.parseLet())
		case p.atKeyword("return"):
			b = append(b, p.parseReturn())
		case p.canStartExpr():
			var s []*syntax.GreenNode
			if e := p.parseExpr(); e != nil {
				s = append(s, e)
			}
			b = append(b, syntax.NewNode(syntax.KindExprStmt, s...))
		default:
			p.bump(&b) // stray token, keep and move on
		}
	}
	return syntax.NewNode(syntax.KindBlock, b...)
}

func (p *parser) parseLet() *syntax.GreenNode {
	var s []*syntax.GreenNode
	p.bump(&s) // let
	p.bumpTrivia(&s)
	if p.atKind(syntax.KindIdent) {
		p.bump(&s) // binding name
	}
	p.bumpTrivia(&s)
	if p.atPunct("=") {
		p.bump(&s)
		p.bumpTrivia(&s)
		if e := p.parseExpr(); e != nil {
			s = append(s, e)
		}
	}
	return syntax.NewNode(syntax.KindLetStmt, s...)
}

func (p *parser) parseReturn() *syntax.GreenNode {
	var s []*syntax.GreenNode
	p.bump(&s) // return
	p.bumpTrivia(&s)
	if p.canStartExpr() {
		if e := p.parseExpr(); e != nil {
			s = append(s, e)
		}
	}
	return syntax.NewNode(syntax.KindReturnStmt, s...)
}

func (p *parser) canStartExpr() bool {
	switch p.peek().kind {
	case syntax.KindIdent, syntax.KindNumber, syntax.KindString:
		return true
	}
	return false
}

var binaryPrec = map[string]int{
	"+": 1, "-": 1,
	"*": 2, "/": 2,
}

func (p *parser) parseExpr() *syntax.GreenNode {
	return p.parseBinary(1)
}

// parseBinary builds left-associative binary chains by precedence climbing.
// Trivia before an operator is consumed into the binary node only when the
// operator actually follows; otherwise the position is restored so trailing
// trivia stays with the enclosing block.
func (p *parser) parseBinary(minPrec int) *syntax.GreenNode {
	lhs := p.parsePostfix()
	if lhs == nil {
		return nil
	}
	for {
		save := p.pos
		var gap []*syntax.GreenNode
		p.bumpTrivia(&gap)

		t := p.peek()
		prec, isOp := 0, false
		if t.kind == syntax.KindPunct {
			prec, isOp = binaryPrec[t.text], binaryPrec[t.text] > 0
		}
		if !isOp || prec < minPrec {
			p.pos = save
			return lhs
		}

		children := append([]*syntax.GreenNode{lhs}, gap...)
		p.bump(&children) // operator
		p.bumpTrivia(&children)
		if p.eof() {
			p.incomplete = true
			return syntax.NewNode(syntax.KindBinaryExpr, children...)
		}
		rhs := p.parseBinary(prec + 1)
		if rhs != nil {
			children = append(children, rhs)
		}
		lhs = syntax.NewNode(syntax.KindBinaryExpr, children...)
	}
}

// parsePostfix parses a primary followed by call and field-access suffixes.
func (p *parser) parsePostfix() *syntax.GreenNode {
	prim := p.parsePrimary()
	if prim == nil {
		return nil
	}
	for {
		save := p.pos
		var gap []*syntax.GreenNode
		p.bumpTrivia(&gap)

		switch {
		case p.atPunct(".") && p.tokAt(p.pos+1).kind == syntax.KindIdent:
			children := append([]*syntax.GreenNode{prim}, gap...)
			p.bump(&children) // .
			p.bump(&children) // ident
			prim = syntax.NewNode(syntax.KindFieldExpr, children...)

		case p.atPunct("("):
			children := append([]*syntax.GreenNode{prim}, gap...)
			p.parseCallArgsInto(&children)
			prim = syntax.NewNode(syntax.KindCallExpr, children...)

		default:
			p.pos = save
			return prim
		}
	}
}

func (p *parser) parseCallArgsInto(children *[]*syntax.GreenNode) {
	p.bump(children) // (
	for {
		p.bumpTrivia(children)
		if p.eof() {
			p.incomplete = true
			return
		}
		if p.atPunct(")") {
			p.bump(children)
			return
		}
		if p.canStartExpr() {
			if e := p.parseExpr(); e != nil {
				*children = append(*children, e)
			}
			continue
		}
		p.bump(children) // comma or stray token
	}
}

func (p *parser) parsePrimary() *syntax.GreenNode {
	t := p.peek()
	switch t.kind {
	case syntax.KindIdent:
		var n []*syntax.GreenNode
		p.bump(&n)
		return syntax.NewNode(syntax.KindNameRef, n...)
	case syntax.KindNumber, syntax.KindString:
		var n []*syntax.GreenNode
		p.bump(&n)
		return syntax.NewNode(syntax.KindLiteral, n...)
	}
	return nil
}
