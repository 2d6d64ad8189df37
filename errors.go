package trellis

import (
	"errors"

	"github.com/efletch/trellis/internal/archive"
	"github.com/efletch/trellis/internal/memo"
	"github.com/efletch/trellis/internal/text"
)

// Sentinel errors surfaced by the engine. Check with errors.Is; returned
// values carry wrapped context.
var (
	// ErrUnknownDocument reports an operation against a document id that was
	// never opened or has been closed.
	ErrUnknownDocument = text.ErrUnknownDocument

	// ErrOutOfRange reports an edit whose range does not fit the document.
	ErrOutOfRange = text.ErrOutOfRange

	// ErrCyclicDependency reports a query definition bug: a derived query
	// transitively re-entered itself.
	ErrCyclicDependency = memo.ErrCyclicDependency

	// ErrUnknownRevision reports a graph lookup for a revision that was never
	// archived.
	ErrUnknownRevision = archive.ErrUnknownRevision

	// ErrUnknownNode reports an edge query for a name the graph does not
	// contain. Node lookups do not fail on a miss; they return suggestions.
	ErrUnknownNode = errors.New("unknown node")

	// ErrNoArchive reports a snapshot or historical-diff request on an engine
	// built without an archive path.
	ErrNoArchive = errors.New("no archive configured")
)
