package treesitter

import (
	"fmt"
	"testing"

	sitterGo "github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efletch/trellis/internal/text"
)

func testGrammar() *Grammar {
	return NewGrammar("go", sitterGo.GetLanguage(), goKinds)
}

func TestTreeCacheBounded(t *testing.T) {
	g := testGrammar()

	for i := 0; i < maxTrees*3; i++ {
		src := fmt.Sprintf("package p\n\nfunc F%d() {}\n", i)
		require.NotNil(t, g.Parse(src))
	}

	g.mu.Lock()
	n := len(g.trees)
	g.mu.Unlock()
	assert.LessOrEqual(t, n, maxTrees)
}

func TestTreeCacheReparseDoesNotGrow(t *testing.T) {
	g := testGrammar()
	src := "package p\n\nfunc F() {}\n"

	for i := 0; i < maxTrees*2; i++ {
		require.NotNil(t, g.Parse(src))
	}

	g.mu.Lock()
	n := len(g.trees)
	g.mu.Unlock()
	assert.Equal(t, 1, n)
}

func TestTreeCacheKeepsLatestForIncremental(t *testing.T) {
	g := testGrammar()

	for i := 0; i < maxTrees*2; i++ {
		g.Parse(fmt.Sprintf("package p\n\nfunc F%d() {}\n", i))
	}
	src := "package p\n\nfunc Latest() {}\n"
	prior := g.Parse(src)

	add := "\nfunc More() {}\n"
	next, spans := g.ParseIncremental(src+add, prior, text.Edit{
		Range:   text.Span{Start: len(src), End: len(src)},
		NewText: add,
	})
	require.NotNil(t, next)
	require.Len(t, spans, 1)
	assert.Equal(t, src+add, next.Source())
}
