// Package mini implements the builtin reference language: a small block
// language with modules, imports, struct/iface types, and functions. The
// grammar is hand-written, error-tolerant, and produces full-fidelity trees
// (every source byte lands in a token), which the incremental item-splice
// reparse relies on.
package mini

import (
	"strings"

	"github.com/efletch/trellis/internal/syntax"
)

// Item-starting keywords double as error-recovery anchors.
var itemKeywords = map[string]bool{
	"module": true,
	"import": true,
	"type":   true,
	"fn":     true,
}

var keywords = map[string]bool{
	"module": true,
	"import": true,
	"type":   true,
	"fn":     true,
	"let":    true,
	"return": true,
	"struct": true,
	"iface":  true,
}

type token struct {
	kind syntax.Kind
	text string
}

// lex splits source into a lossless token stream. It never fails: bytes that
// fit no token class become one-byte punct tokens.
func lex(src string) []token {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			j := i + 1
			for j < len(src) && isSpace(src[j]) {
				j++
			}
			toks = append(toks, token{syntax.KindWhitespace, src[i:j]})
			i = j

		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			j := strings.IndexByte(src[i:], '\n')
			if j < 0 {
				j = len(src) - i
			}
			toks = append(toks, token{syntax.KindComment, src[i : i+j]})
			i += j

		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			word := src[i:j]
			kind := syntax.KindIdent
			if keywords[word] {
				kind = syntax.KindKeyword
			}
			toks = append(toks, token{kind, word})
			i = j

		case c >= '0' && c <= '9':
			j := i + 1
			for j < len(src) && (src[j] >= '0' && src[j] <= '9') {
				j++
			}
			if j < len(src) && src[j] == '.' && j+1 < len(src) && src[j+1] >= '0' && src[j+1] <= '9' {
				j += 2
				for j < len(src) && (src[j] >= '0' && src[j] <= '9') {
					j++
				}
			}
			toks = append(toks, token{syntax.KindNumber, src[i:j]})
			i = j

		case c == '"':
			j := i + 1
			for j < len(src) && src[j] != '"' && src[j] != '\n' {
				if src[j] == '\\' && j+1 < len(src) {
					j++
				}
				j++
			}
			if j < len(src) && src[j] == '"' {
				j++
			}
			// Unterminated strings stop at the newline; the token still
			// covers the opening quote through the last consumed byte.
			toks = append(toks, token{syntax.KindString, src[i:j]})
			i = j

		default:
			toks = append(toks, token{syntax.KindPunct, src[i : i+1]})
			i++
		}
	}
	return toks
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
