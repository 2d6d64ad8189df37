// Package syntax defines the concrete syntax tree shared by all language
// packs: immutable "green" nodes holding kind, width, and children, and
// positioned "red" cursors deriving absolute offsets on demand. Subtrees
// untouched by an edit are reused by reference across revisions.
package syntax

// Kind tags every node and token in a tree. Grammars normalize their output
// to this closed set so lowering can match exhaustively.
type Kind uint8

const (
	KindInvalid Kind = iota

	// File is the root: a sequence of top-level items with occasional stray
	// trivia tokens between them.
	KindFile

	// Top-level items.
	KindModuleDecl
	KindImportDecl
	KindTypeDecl
	KindFnDecl
	KindError

	// Members and clauses.
	KindFieldDecl
	KindMethodSig
	KindParam
	KindImplementsClause

	// Statements and expressions.
	KindBlock
	KindLetStmt
	KindReturnStmt
	KindExprStmt
	KindCallExpr
	KindBinaryExpr
	KindFieldExpr
	KindNameRef
	KindTypeRef
	KindLiteral

	// Tokens.
	KindIdent
	KindKeyword
	KindNumber
	KindString
	KindPunct
	KindComment
	KindWhitespace
)

var kindNames = [...]string{
	KindInvalid:          "invalid",
	KindFile:             "file",
	KindModuleDecl:       "module_decl",
	KindImportDecl:       "import_decl",
	KindTypeDecl:         "type_decl",
	KindFnDecl:           "fn_decl",
	KindError:            "error",
	KindFieldDecl:        "field_decl",
	KindMethodSig:        "method_sig",
	KindParam:            "param",
	KindImplementsClause: "implements_clause",
	KindBlock:            "block",
	KindLetStmt:          "let_stmt",
	KindReturnStmt:       "return_stmt",
	KindExprStmt:         "expr_stmt",
	KindCallExpr:         "call_expr",
	KindBinaryExpr:       "binary_expr",
	KindFieldExpr:        "field_expr",
	KindNameRef:          "name_ref",
	KindTypeRef:          "type_ref",
	KindLiteral:          "literal",
	KindIdent:            "ident",
	KindKeyword:          "keyword",
	KindNumber:           "number",
	KindString:           "string",
	KindPunct:            "punct",
	KindComment:          "comment",
	KindWhitespace:       "whitespace",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "invalid"
}

// IsItem reports whether the kind is a top-level item (a direct child of
// KindFile that lowering considers).
func (k Kind) IsItem() bool {
	switch k {
	case KindModuleDecl, KindImportDecl, KindTypeDecl, KindFnDecl, KindError:
		return true
	}
	return false
}

// IsToken reports whether the kind tags a leaf token rather than a composite
// node.
func (k Kind) IsToken() bool {
	switch k {
	case KindIdent, KindKeyword, KindNumber, KindString, KindPunct, KindComment, KindWhitespace:
		return true
	}
	return false
}

// IsTrivia reports whether the kind carries no semantic content.
func (k Kind) IsTrivia() bool {
	return k == KindWhitespace || k == KindComment
}
