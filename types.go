package trellis

import (
	"github.com/efletch/trellis/internal/config"
	"github.com/efletch/trellis/internal/ir"
	"github.com/efletch/trellis/internal/isg"
	"github.com/efletch/trellis/internal/memo"
	"github.com/efletch/trellis/internal/text"
)

// Aliases re-export the internal types that cross the public API, so
// embedders never import internal packages.
type (
	// Version numbers one state of one document.
	Version = text.Version
	// Edit replaces a byte range with new text.
	Edit = text.Edit
	// Span is a half-open byte range.
	Span = text.Span

	// Node is one interface element of the graph.
	Node = isg.Node
	// Edge is a directed structural relation.
	Edge = isg.Edge
	// EdgeKind names the relation an edge carries.
	EdgeKind = isg.EdgeKind
	// Direction selects edges by orientation relative to a node.
	Direction = isg.Direction
	// Subgraph is a root neighborhood extraction.
	Subgraph = isg.Subgraph
	// GraphDiff is the structural difference between two revisions.
	GraphDiff = isg.GraphDiff
	// Format selects a graph serialization encoding.
	Format = isg.Format

	// Param is one parameter of a function signature.
	Param = ir.Param
	// ItemKind classifies interface elements.
	ItemKind = ir.ItemKind

	// Stats is a snapshot of query runtime counters.
	Stats = memo.Stats
	// Config is the engine configuration tree.
	Config = config.Config
)

const (
	FormatCompact = isg.FormatCompact
	FormatVerbose = isg.FormatVerbose

	Outgoing = isg.Outgoing
	Incoming = isg.Incoming
	Both     = isg.Both

	EdgeCalls      = isg.EdgeCalls
	EdgeImplements = isg.EdgeImplements
	EdgeInherits   = isg.EdgeInherits
	EdgeReturns    = isg.EdgeReturns
	EdgeReferences = isg.EdgeReferences
	EdgeContains   = isg.EdgeContains
	EdgeImports    = isg.EdgeImports
)

// Parse helpers for CLI flag values.
var (
	ParseFormat   = isg.ParseFormat
	ParseEdgeKind = isg.ParseEdgeKind

	// DefaultConfig returns the built-in configuration.
	DefaultConfig = config.Default
	// LoadConfig reads a TOML configuration file over the defaults.
	LoadConfig = config.Load
)
