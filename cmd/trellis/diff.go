package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
	"github.com/spf13/cobra"

	"github.com/efletch/trellis"
)

var (
	flagGraphFormat string
	flagUnified     bool
)

var serializeCmd = &cobra.Command{
	Use:   "serialize [path]",
	Short: "Serialize the signature graph to stdout",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSerialize,
}

func init() {
	serializeCmd.Flags().StringVar(&flagGraphFormat, "graph-format", "compact", "graph encoding: compact|verbose")
	diffCmd.Flags().BoolVar(&flagUnified, "unified", false, "render as a unified diff of the compact encodings")
}

func runSerialize(cmd *cobra.Command, args []string) error {
	f, err := trellis.ParseFormat(flagGraphFormat)
	if err != nil {
		return outputError("serialize", err)
	}
	ctx := cmd.Context()
	eng, _, err := openIndexed(ctx, args)
	if err != nil {
		return outputError("serialize", err)
	}
	defer eng.Close()

	out, err := eng.SerializeGraph(ctx, f)
	if err != nil {
		return outputError("serialize", err)
	}
	// Graph encodings are already a wire format; emit them raw.
	fmt.Print(out)
	return nil
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [path]",
	Short: "Index a directory and archive the graph under the current revision",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSnapshot,
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	eng, _, err := openIndexed(ctx, args)
	if err != nil {
		return outputError("snapshot", err)
	}
	defer eng.Close()

	rev, err := eng.Snapshot(ctx)
	if err != nil {
		return outputError("snapshot", err)
	}
	return outputResult(cliResult{Command: "snapshot", Result: map[string]uint64{"revision": rev}})
}

var revisionsCmd = &cobra.Command{
	Use:   "revisions [path]",
	Short: "List archived revisions",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRevisions,
}

func runRevisions(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return outputError("revisions", err)
	}
	eng, err := newEngine(root)
	if err != nil {
		return outputError("revisions", err)
	}
	defer eng.Close()

	revs, err := eng.Revisions()
	if err != nil {
		return outputError("revisions", err)
	}
	return outputResult(cliResult{Command: "revisions", Result: revs})
}

var diffCmd = &cobra.Command{
	Use:   "diff <revA> <revB> [path]",
	Short: "Diff the graphs at two revisions",
	Long:  "Compares two graph snapshots structurally. The current revision is served live; other revisions must have been archived with 'trellis snapshot'.",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	revA, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return outputError("diff", fmt.Errorf("invalid revision %q", args[0]))
	}
	revB, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return outputError("diff", fmt.Errorf("invalid revision %q", args[1]))
	}

	ctx := cmd.Context()
	eng, _, err := openIndexed(ctx, args[2:])
	if err != nil {
		return outputError("diff", err)
	}
	defer eng.Close()

	if flagUnified {
		return runDiffUnified(cmd, eng, revA, revB)
	}

	d, err := eng.DiffGraph(ctx, revA, revB)
	if err != nil {
		return outputError("diff", err)
	}
	return outputResult(cliResult{Command: "diff", Result: cliDiff{
		RevisionA:    revA,
		RevisionB:    revB,
		Empty:        d.Empty(),
		AddedNodes:   toCLINodes(d.AddedNodes),
		RemovedNodes: toCLINodes(d.RemovedNodes),
		ChangedNodes: toCLINodes(d.ChangedNodes),
		AddedEdges:   toCLIEdges(d.AddedEdges),
		RemovedEdges: toCLIEdges(d.RemovedEdges),
	}})
}

// runDiffUnified renders the difference between the two compact encodings as
// a unified diff.
func runDiffUnified(cmd *cobra.Command, eng *trellis.Engine, revA, revB uint64) error {
	ctx := cmd.Context()
	a, err := eng.SerializeGraphAt(ctx, revA, trellis.FormatCompact)
	if err != nil {
		return outputError("diff", err)
	}
	b, err := eng.SerializeGraphAt(ctx, revB, trellis.FormatCompact)
	if err != nil {
		return outputError("diff", err)
	}
	out, err := unifiedGraphDiff(a, b, revA, revB)
	if err != nil {
		return outputError("diff", err)
	}
	fmt.Fprint(os.Stdout, out)
	return nil
}

// unifiedGraphDiff merges two compact encodings line by line. The encoding
// is section-ordered (header, nodes, edges) with each section sorted, so a
// two-pointer merge under that same ordering yields a minimal line diff.
func unifiedGraphDiff(a, b string, revA, revB uint64) (string, error) {
	aLines := splitGraphLines(a)
	bLines := splitGraphLines(b)

	var body []string
	var origLines, newLines int
	i, j := 0, 0
	for i < len(aLines) || j < len(bLines) {
		switch {
		case j >= len(bLines) || (i < len(aLines) && graphLineLess(aLines[i], bLines[j])):
			body = append(body, "-"+aLines[i])
			origLines++
			i++
		case i >= len(aLines) || graphLineLess(bLines[j], aLines[i]):
			body = append(body, "+"+bLines[j])
			newLines++
			j++
		default:
			body = append(body, " "+aLines[i])
			origLines++
			newLines++
			i++
			j++
		}
	}

	fd := &godiff.FileDiff{
		OrigName: fmt.Sprintf("graph@%d", revA),
		NewName:  fmt.Sprintf("graph@%d", revB),
		Hunks: []*godiff.Hunk{{
			OrigStartLine: 1,
			OrigLines:     int32(origLines),
			NewStartLine:  1,
			NewLines:      int32(newLines),
			Body:          []byte(strings.Join(body, "\n") + "\n"),
		}},
	}
	out, err := godiff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("render unified diff: %w", err)
	}
	return string(out), nil
}

func splitGraphLines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

// graphLineLess orders lines the way the compact encoding does: header
// first, then node records, then edge records, each sorted textually.
func graphLineLess(a, b string) bool {
	ra, rb := graphLineRank(a), graphLineRank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}

func graphLineRank(line string) int {
	switch {
	case strings.HasPrefix(line, "n "):
		return 1
	case strings.HasPrefix(line, "e "):
		return 2
	}
	return 0
}
