package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/efletch/trellis"
)

// cliResult is the JSON output envelope every command emits.
type cliResult struct {
	Command string `json:"command"`
	Error   string `json:"error,omitempty"`
	Result  any    `json:"result,omitempty"`
}

type cliIndexSummary struct {
	Revision     uint64 `json:"revision"`
	GraphLines   int    `json:"graph_lines"`
	Computations uint64 `json:"computations"`
	Hits         uint64 `json:"hits"`
	EarlyCutoffs uint64 `json:"early_cutoffs"`
}

type cliNode struct {
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	Visibility  string     `json:"visibility"`
	Params      []cliParam `json:"params,omitempty"`
	Returns     string     `json:"returns,omitempty"`
	Flavor      string     `json:"flavor,omitempty"`
	Base        string     `json:"base,omitempty"`
	Type        string     `json:"type,omitempty"`
	Suggestions []string   `json:"suggestions,omitempty"`
}

type cliParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type cliEdge struct {
	Source   string `json:"source"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

type cliSubgraph struct {
	Nodes        []cliNode `json:"nodes"`
	Edges        []cliEdge `json:"edges"`
	MissingRoots []string  `json:"missing_roots,omitempty"`
}

type cliDiff struct {
	RevisionA    uint64    `json:"revision_a"`
	RevisionB    uint64    `json:"revision_b"`
	Empty        bool      `json:"empty"`
	AddedNodes   []cliNode `json:"added_nodes,omitempty"`
	RemovedNodes []cliNode `json:"removed_nodes,omitempty"`
	ChangedNodes []cliNode `json:"changed_nodes,omitempty"`
	AddedEdges   []cliEdge `json:"added_edges,omitempty"`
	RemovedEdges []cliEdge `json:"removed_edges,omitempty"`
}

func toCLINode(n trellis.Node) cliNode {
	out := cliNode{
		Name:       n.FQName,
		Kind:       n.Kind.String(),
		Visibility: n.Visibility.String(),
		Returns:    n.Returns,
		Flavor:     n.Flavor.String(),
		Base:       n.Base,
		Type:       n.Type,
	}
	for _, p := range n.Params {
		out.Params = append(out.Params, cliParam{Name: p.Name, Type: p.Type})
	}
	return out
}

func toCLINodes(ns []trellis.Node) []cliNode {
	out := make([]cliNode, 0, len(ns))
	for _, n := range ns {
		out = append(out, toCLINode(n))
	}
	return out
}

func toCLIEdges(es []trellis.Edge) []cliEdge {
	out := make([]cliEdge, 0, len(es))
	for _, e := range es {
		out = append(out, cliEdge{Source: e.Source, Relation: e.Kind.String(), Target: e.Target})
	}
	return out
}

// outputResult marshals a cliResult to stdout in the selected format.
func outputResult(result cliResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error goes to stdout as an
// envelope; in text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(cliResult{Command: command, Error: err.Error()})
	return err
}

func outputResultText(result cliResult) error {
	w := io.Writer(os.Stdout)
	switch v := result.Result.(type) {
	case cliIndexSummary:
		fmt.Fprintf(w, "revision: %d\ngraph lines: %d\ncomputations: %d\nhits: %d\nearly cutoffs: %d\n",
			v.Revision, v.GraphLines, v.Computations, v.Hits, v.EarlyCutoffs)
	case cliNode:
		formatNodesText(w, []cliNode{v})
		if len(v.Suggestions) > 0 {
			fmt.Fprintf(w, "did you mean: %s\n", strings.Join(v.Suggestions, ", "))
		}
	case []cliEdge:
		formatEdgesText(w, v)
	case cliSubgraph:
		formatNodesText(w, v.Nodes)
		formatEdgesText(w, v.Edges)
		if len(v.MissingRoots) > 0 {
			fmt.Fprintf(w, "missing roots: %s\n", strings.Join(v.MissingRoots, ", "))
		}
	case cliDiff:
		formatDiffText(w, v)
	case string:
		fmt.Fprint(w, v)
		if !strings.HasSuffix(v, "\n") {
			fmt.Fprintln(w)
		}
	case []uint64:
		for _, rev := range v {
			fmt.Fprintf(w, "%d\n", rev)
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

func formatNodesText(w io.Writer, nodes []cliNode) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tVISIBILITY\tDETAIL")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Name, n.Kind, n.Visibility, nodeDetailText(n))
	}
	tw.Flush()
}

func nodeDetailText(n cliNode) string {
	switch n.Kind {
	case "function":
		parts := make([]string, len(n.Params))
		for i, p := range n.Params {
			parts[i] = p.Name + " " + p.Type
		}
		s := "(" + strings.Join(parts, ", ") + ")"
		if n.Returns != "" {
			s += " -> " + n.Returns
		}
		return s
	case "type":
		s := n.Flavor
		if n.Base != "" {
			s += ": " + n.Base
		}
		return s
	case "field":
		return n.Type
	}
	return ""
}

func formatEdgesText(w io.Writer, edges []cliEdge) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tRELATION\tTARGET")
	for _, e := range edges {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Source, e.Relation, e.Target)
	}
	tw.Flush()
}

func formatDiffText(w io.Writer, d cliDiff) {
	fmt.Fprintf(w, "diff %d -> %d\n", d.RevisionA, d.RevisionB)
	if d.Empty {
		fmt.Fprintln(w, "no structural changes")
		return
	}
	for _, n := range d.AddedNodes {
		fmt.Fprintf(w, "+ node %s (%s)\n", n.Name, n.Kind)
	}
	for _, n := range d.RemovedNodes {
		fmt.Fprintf(w, "- node %s (%s)\n", n.Name, n.Kind)
	}
	for _, n := range d.ChangedNodes {
		fmt.Fprintf(w, "~ node %s (%s)\n", n.Name, n.Kind)
	}
	for _, e := range d.AddedEdges {
		fmt.Fprintf(w, "+ edge %s %s %s\n", e.Source, e.Relation, e.Target)
	}
	for _, e := range d.RemovedEdges {
		fmt.Fprintf(w, "- edge %s %s %s\n", e.Source, e.Relation, e.Target)
	}
}

func countLines(s string) int {
	return strings.Count(s, "\n")
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
