package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efletch/trellis"
)

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.Error(t, validateFormat("yaml"))
	assert.Error(t, validateFormat(""))
}

func TestParseDirection(t *testing.T) {
	d, err := parseDirection("outgoing")
	require.NoError(t, err)
	assert.Equal(t, trellis.Outgoing, d)
	d, err = parseDirection("incoming")
	require.NoError(t, err)
	assert.Equal(t, trellis.Incoming, d)
	d, err = parseDirection("both")
	require.NoError(t, err)
	assert.Equal(t, trellis.Both, d)

	_, err = parseDirection("sideways")
	assert.Error(t, err)
}

func TestUnifiedGraphDiff(t *testing.T) {
	a := "trellis-graph v1\n" +
		"n module geometry public -\n" +
		"n type geometry.Point public struct:\n" +
		"e geometry contains geometry.Point\n"
	b := "trellis-graph v1\n" +
		"n module geometry public -\n" +
		"n type geometry.Point public struct:Shape\n" +
		"e geometry contains geometry.Point\n" +
		"e geometry.Point implements geometry.Shape\n"

	out, err := unifiedGraphDiff(a, b, 3, 7)
	require.NoError(t, err)

	assert.Contains(t, out, "--- graph@3")
	assert.Contains(t, out, "+++ graph@7")
	assert.Contains(t, out, "-n type geometry.Point public struct:\n")
	assert.Contains(t, out, "+n type geometry.Point public struct:Shape\n")
	assert.Contains(t, out, "+e geometry.Point implements geometry.Shape\n")
	assert.Contains(t, out, " n module geometry public -\n")
}

func TestUnifiedGraphDiffIdentical(t *testing.T) {
	g := "trellis-graph v1\nn module m public -\n"

	out, err := unifiedGraphDiff(g, g, 1, 1)
	require.NoError(t, err)
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
			assert.True(t, strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"),
				"unexpected change line %q", line)
		}
	}
}

func TestNodeDetailText(t *testing.T) {
	fn := cliNode{Kind: "function", Params: []cliParam{{Name: "a", Type: "Point"}}, Returns: "Float"}
	assert.Equal(t, "(a Point) -> Float", nodeDetailText(fn))

	ty := cliNode{Kind: "type", Flavor: "struct", Base: "Shape"}
	assert.Equal(t, "struct: Shape", nodeDetailText(ty))

	fd := cliNode{Kind: "field", Type: "Float"}
	assert.Equal(t, "Float", nodeDetailText(fd))

	mod := cliNode{Kind: "module"}
	assert.Equal(t, "", nodeDetailText(mod))
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 2, countLines("a\nb\n"))
}
