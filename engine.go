package trellis

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/efletch/trellis/internal/archive"
	"github.com/efletch/trellis/internal/config"
	"github.com/efletch/trellis/internal/memo"
	"github.com/efletch/trellis/internal/syntax"
	"github.com/efletch/trellis/internal/text"
	"github.com/efletch/trellis/langpack"
)

// Engine owns one incremental indexing session: the document store, the
// query runtime, the registered language packs, and optionally a snapshot
// archive. Document mutations are serialized; queries run concurrently.
type Engine struct {
	id    string
	log   *slog.Logger
	cfg   config.Config
	packs *langpack.Registry
	texts *text.Store
	rt    *memo.Runtime
	arch  *archive.Store

	// mu serializes document mutations so each revision bump pairs with a
	// consistent set of input updates.
	mu sync.Mutex

	// parseMu guards the prior-tree bookkeeping the parse query reads.
	parseMu sync.Mutex
	parses  map[string]*parseState

	sf singleflight.Group
}

// parseState carries what the parse query needs to reparse incrementally:
// the last produced tree and the single edit applied since. A second edit
// before the next parse marks the state stale, forcing a full parse.
type parseState struct {
	tree    *syntax.Tree
	edit    text.Edit
	hasEdit bool
	stale   bool
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	log         *slog.Logger
	cfg         config.Config
	packs       []*langpack.Pack
	archivePath string
}

// WithLogger attaches a structured logger. Default: discard.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithConfig supplies a full configuration. Default: config defaults.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithPacks selects the language packs. Default: the builtin mini pack.
func WithPacks(packs ...*langpack.Pack) Option {
	return func(o *options) { o.packs = packs }
}

// WithArchivePath opens (or creates) a snapshot archive at path, enabling
// Snapshot and historical DiffGraph.
func WithArchivePath(path string) Option {
	return func(o *options) { o.archivePath = path }
}

// New builds an engine and registers its query graph.
func New(opts ...Option) (*Engine, error) {
	o := options{
		log: slog.New(slog.DiscardHandler),
		cfg: config.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	if len(o.packs) == 0 {
		o.packs = []*langpack.Pack{langpack.Mini()}
	}

	e := &Engine{
		id:     uuid.NewString(),
		log:    o.log,
		cfg:    o.cfg,
		packs:  langpack.NewRegistry(o.packs...),
		texts:  text.NewStore(),
		parses: make(map[string]*parseState),
	}
	e.rt = memo.NewRuntime(
		memo.WithMaxEntries(o.cfg.Engine.CacheMaxEntries),
		memo.WithLogger(o.log),
	)
	if o.archivePath != "" {
		arch, err := archive.Open(o.archivePath)
		if err != nil {
			return nil, fmt.Errorf("new engine: %w", err)
		}
		e.arch = arch
	}
	e.registerQueries()
	// The document list starts empty rather than absent, so graph queries on
	// an engine with no documents answer with an empty graph.
	e.rt.SetInput(qDocs, "", memo.Strings(nil))
	e.log.Debug("engine created", "id", e.id, "packs", len(o.packs))
	return e, nil
}

// Close releases the archive. The engine owns no goroutines.
func (e *Engine) Close() error {
	if e.arch != nil {
		return e.arch.Close()
	}
	return nil
}

// ID returns the engine instance id stamped on archived snapshots.
func (e *Engine) ID() string { return e.id }

// Revision returns the current revision. It advances on every document
// mutation and never reverses.
func (e *Engine) Revision() uint64 {
	return uint64(e.rt.Revision())
}

// Stats returns cumulative query runtime counters.
func (e *Engine) Stats() Stats {
	return e.rt.Stats()
}

// OpenDocument registers a document and returns its initial version.
// Opening an already-open id replaces its content. Fails when no registered
// pack claims the document's extension.
func (e *Engine) OpenDocument(id, content string) (Version, error) {
	if _, err := e.packs.ForDocument(id); err != nil {
		return 0, fmt.Errorf("open document: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.texts.Open(id, content)
	e.parseMu.Lock()
	e.parses[id] = &parseState{}
	e.parseMu.Unlock()

	e.commitInputs(id)
	e.log.Debug("document opened", "doc", id, "version", uint64(v), "bytes", len(content))
	return v, nil
}

// EditDocument applies one edit and returns the resulting version. The edit
// range addresses the document state before the edit.
func (e *Engine) EditDocument(id string, edit Edit) (Version, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.texts.Apply(id, edit)
	if err != nil {
		return 0, err
	}

	e.parseMu.Lock()
	st := e.parses[id]
	switch {
	case st == nil:
		e.parses[id] = &parseState{}
	case st.hasEdit || st.stale:
		// More than one edit since the last parse; the recorded edit no
		// longer describes the delta from the last parsed tree.
		st.stale = true
		st.hasEdit = false
	default:
		st.edit = edit
		st.hasEdit = true
	}
	e.parseMu.Unlock()

	e.commitInputs(id)
	e.log.Debug("document edited", "doc", id, "version", uint64(v),
		"range", edit.Range.String(), "delta", edit.Delta())
	return v, nil
}

// CloseDocument forgets a document. Its items leave the graph on the next
// query.
func (e *Engine) CloseDocument(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.texts.Close(id); err != nil {
		return err
	}
	e.parseMu.Lock()
	delete(e.parses, id)
	e.parseMu.Unlock()

	e.rt.Bump()
	e.rt.DropInput(qText, id)
	e.rt.SetInput(qDocs, "", memo.Strings(e.texts.IDs()))
	e.log.Debug("document closed", "doc", id)
	return nil
}

// commitInputs bumps the revision and refreshes the inputs for one mutated
// document. Caller holds e.mu.
func (e *Engine) commitInputs(id string) {
	e.rt.Bump()
	snap, err := e.texts.Snapshot(id)
	if err != nil {
		// The document was just written under e.mu; absence is impossible.
		panic(fmt.Sprintf("trellis: snapshot after mutation: %v", err))
	}
	e.rt.SetInput(qText, id, textValue{snap: snap})
	e.rt.SetInput(qDocs, "", memo.Strings(e.texts.IDs()))
}
