package isg

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/efletch/trellis/internal/ir"
)

// Format selects a serialization encoding.
type Format uint8

const (
	// FormatCompact is the token-efficient line encoding. Deterministic and
	// order-stable: identical graphs serialize identically, byte for byte.
	FormatCompact Format = iota
	// FormatVerbose is a YAML document with one entry per node and edge.
	FormatVerbose
)

// ParseFormat maps a format name to its tag.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "compact":
		return FormatCompact, nil
	case "verbose":
		return FormatVerbose, nil
	}
	return 0, fmt.Errorf("unknown serialization format %q", s)
}

func (f Format) String() string {
	if f == FormatVerbose {
		return "verbose"
	}
	return "compact"
}

const compactHeader = "trellis-graph v1"

// Serialize encodes a graph. The graph's canonical ordering (sorted by
// fully-qualified name) is what makes the output reproducible across runs and
// evaluation orders.
func Serialize(g *Graph, f Format) (string, error) {
	switch f {
	case FormatCompact:
		return serializeCompact(g), nil
	case FormatVerbose:
		return serializeVerbose(g)
	}
	return "", fmt.Errorf("serialize: unknown format %d", f)
}

// serializeCompact emits one line per node and per edge:
//
//	n <kind> <fqname> <visibility> <detail>
//	e <kind> <source> <target>
//
// detail is a kind-dependent space-free token, "-" when absent.
func serializeCompact(g *Graph) string {
	var sb strings.Builder
	sb.WriteString(compactHeader)
	sb.WriteByte('\n')
	for _, n := range g.Nodes {
		detail := n.detail()
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(&sb, "n %s %s %s %s\n", n.Kind, n.FQName, n.Visibility, detail)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(&sb, "e %s %s %s\n", e.Kind, e.Source, e.Target)
	}
	return sb.String()
}

// yamlGraph is the verbose document shape.
type yamlGraph struct {
	Nodes []yamlNode `yaml:"nodes"`
	Edges []yamlEdge `yaml:"edges"`
}

type yamlNode struct {
	Name       string      `yaml:"name"`
	Kind       string      `yaml:"kind"`
	Visibility string      `yaml:"visibility"`
	Params     []yamlParam `yaml:"params,omitempty"`
	Returns    string      `yaml:"returns,omitempty"`
	Flavor     string      `yaml:"flavor,omitempty"`
	Base       string      `yaml:"base,omitempty"`
	Type       string      `yaml:"type,omitempty"`
}

type yamlParam struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type yamlEdge struct {
	Source   string `yaml:"source"`
	Relation string `yaml:"relation"`
	Target   string `yaml:"target"`
}

func serializeVerbose(g *Graph) (string, error) {
	doc := yamlGraph{}
	for _, n := range g.Nodes {
		yn := yamlNode{
			Name:       n.FQName,
			Kind:       n.Kind.String(),
			Visibility: n.Visibility.String(),
			Returns:    n.Returns,
			Flavor:     n.Flavor.String(),
			Base:       n.Base,
			Type:       n.Type,
		}
		for _, p := range n.Params {
			yn.Params = append(yn.Params, yamlParam{Name: p.Name, Type: p.Type})
		}
		doc.Nodes = append(doc.Nodes, yn)
	}
	for _, e := range g.Edges {
		doc.Edges = append(doc.Edges, yamlEdge{Source: e.Source, Relation: e.Kind.String(), Target: e.Target})
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("serialize verbose: %w", err)
	}
	return string(out), nil
}

// ParseCompact is the inverse of the compact encoding, used to rehydrate
// archived graph snapshots for diffing.
func ParseCompact(text string) (*Graph, error) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) == 0 || lines[0] != compactHeader {
		return nil, fmt.Errorf("parse graph: missing %q header", compactHeader)
	}
	var nodes []Node
	var edges []Edge
	for i, line := range lines[1:] {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch {
		case fields[0] == "n" && len(fields) == 5:
			n, err := parseCompactNode(fields)
			if err != nil {
				return nil, fmt.Errorf("parse graph line %d: %w", i+2, err)
			}
			nodes = append(nodes, n)
		case fields[0] == "e" && len(fields) == 4:
			kind, err := ParseEdgeKind(fields[1])
			if err != nil {
				return nil, fmt.Errorf("parse graph line %d: %w", i+2, err)
			}
			edges = append(edges, Edge{Source: fields[2], Kind: kind, Target: fields[3]})
		default:
			return nil, fmt.Errorf("parse graph line %d: malformed record %q", i+2, line)
		}
	}
	return NewGraph(nodes, edges), nil
}

func parseCompactNode(fields []string) (Node, error) {
	kind, err := ir.ParseItemKind(fields[1])
	if err != nil {
		return Node{}, err
	}
	n := Node{FQName: fields[2], Kind: kind}
	switch fields[3] {
	case "public":
		n.Visibility = ir.Public
	case "private":
		n.Visibility = ir.Private
	default:
		return Node{}, fmt.Errorf("unknown visibility %q", fields[3])
	}
	if err := parseDetail(&n, fields[4]); err != nil {
		return Node{}, err
	}
	return n, nil
}

func parseDetail(n *Node, detail string) error {
	if detail == "-" {
		return nil
	}
	switch n.Kind {
	case ir.KindFunction:
		close := strings.LastIndexByte(detail, ')')
		if !strings.HasPrefix(detail, "(") || close < 0 || !strings.HasPrefix(detail[close:], "):") {
			return fmt.Errorf("malformed function detail %q", detail)
		}
		n.Returns = detail[close+2:]
		params := detail[1:close]
		if params == "" {
			return nil
		}
		for _, part := range strings.Split(params, ",") {
			name, typ, ok := strings.Cut(part, ":")
			if !ok {
				return fmt.Errorf("malformed param %q", part)
			}
			n.Params = append(n.Params, ir.Param{Name: name, Type: typ})
		}
	case ir.KindType:
		flavor, base, ok := strings.Cut(detail, ":")
		if !ok {
			return fmt.Errorf("malformed type detail %q", detail)
		}
		switch flavor {
		case "struct":
			n.Flavor = ir.FlavorStruct
		case "iface":
			n.Flavor = ir.FlavorIface
		case "":
			n.Flavor = ir.FlavorNone
		default:
			return fmt.Errorf("unknown type flavor %q", flavor)
		}
		n.Base = base
	case ir.KindField:
		typ, ok := strings.CutPrefix(detail, ":")
		if !ok {
			return fmt.Errorf("malformed field detail %q", detail)
		}
		n.Type = typ
	default:
		return fmt.Errorf("unexpected detail %q for %s node", detail, n.Kind)
	}
	return nil
}
