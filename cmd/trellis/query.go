package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/efletch/trellis"
)

var (
	flagDirection string
	flagHops      int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the signature graph",
	Long:  "Index the target directory and answer graph queries: node lookup, edge listing, neighborhood extraction.",
}

func init() {
	queryCmd.AddCommand(nodeCmd)
	queryCmd.AddCommand(edgesCmd)
	queryCmd.AddCommand(subgraphCmd)

	edgesCmd.Flags().StringVar(&flagDirection, "direction", "outgoing", "edge direction: outgoing|incoming|both")
	subgraphCmd.Flags().IntVar(&flagHops, "hops", 1, "maximum traversal distance from any root")
}

var nodeCmd = &cobra.Command{
	Use:   "node <fqname> [path]",
	Short: "Look up one node by fully-qualified name",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runNode,
}

func runNode(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, _, err := openIndexed(ctx, args[1:])
	if err != nil {
		return outputError("query node", err)
	}
	defer eng.Close()

	node, suggestions, err := eng.NodeByName(ctx, args[0])
	if err != nil {
		return outputError("query node", err)
	}
	if node == nil {
		err := fmt.Errorf("no node named %q; closest: %s", args[0], strings.Join(suggestions, ", "))
		return outputError("query node", err)
	}
	return outputResult(cliResult{Command: "query node", Result: toCLINode(*node)})
}

var edgesCmd = &cobra.Command{
	Use:   "edges <fqname> [path]",
	Short: "List the edges touching one node",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runEdges,
}

func parseDirection(s string) (trellis.Direction, error) {
	switch s {
	case "outgoing":
		return trellis.Outgoing, nil
	case "incoming":
		return trellis.Incoming, nil
	case "both":
		return trellis.Both, nil
	}
	return 0, fmt.Errorf("invalid direction %q: must be outgoing, incoming or both", s)
}

func runEdges(cmd *cobra.Command, args []string) error {
	dir, err := parseDirection(flagDirection)
	if err != nil {
		return outputError("query edges", err)
	}
	ctx := cmd.Context()
	eng, _, err := openIndexed(ctx, args[1:])
	if err != nil {
		return outputError("query edges", err)
	}
	defer eng.Close()

	edges, err := eng.EdgesByName(ctx, args[0], dir)
	if err != nil {
		return outputError("query edges", err)
	}
	return outputResult(cliResult{Command: "query edges", Result: toCLIEdges(edges)})
}

var subgraphCmd = &cobra.Command{
	Use:   "subgraph <fqname>[,<fqname>...] [path]",
	Short: "Extract the neighborhood of a set of root nodes",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSubgraph,
}

func runSubgraph(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, _, err := openIndexed(ctx, args[1:])
	if err != nil {
		return outputError("query subgraph", err)
	}
	defer eng.Close()

	roots := strings.Split(args[0], ",")
	sub, err := eng.QuerySubgraph(ctx, roots, flagHops)
	if err != nil {
		return outputError("query subgraph", err)
	}
	return outputResult(cliResult{Command: "query subgraph", Result: cliSubgraph{
		Nodes:        toCLINodes(sub.Nodes),
		Edges:        toCLIEdges(sub.Edges),
		MissingRoots: sub.MissingRoots,
	}})
}
