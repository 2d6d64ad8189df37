// Package memo is the incremental query engine: a dependency-tracked
// memoization runtime. Every derived value is the result of a named,
// argument-keyed query. The runtime records which queries a computation reads,
// and after a revision bump re-executes only queries whose transitive inputs
// actually changed, cutting propagation off early when a recomputed value is
// structurally identical to the cached one.
package memo

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Sentinel errors. CycleError and supersession are detected inside the
// runtime; callers check with errors.Is.
var (
	// ErrCyclicDependency reports a query that transitively re-entered
	// itself within one revision. This is a bug in query definitions, not a
	// recoverable runtime condition.
	ErrCyclicDependency = errors.New("cyclic query dependency")

	// ErrSuperseded reports that a revision bump arrived while a computation
	// was in flight. The partial result is discarded; callers retry against
	// the new revision.
	ErrSuperseded = errors.New("revision superseded")

	// ErrUnknownQuery reports a Get for a kind with no registered function
	// and no input value.
	ErrUnknownQuery = errors.New("unknown query kind")
)

// CycleError carries the participants of a dependency cycle in invocation
// order, starting and ending at the re-entered query.
type CycleError struct {
	Participants []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic query dependency: %s", strings.Join(e.Participants, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCyclicDependency }

// Revision marks a consistent point-in-time view of all inputs. Revisions
// only grow.
type Revision uint64

// Key identifies a query instance: a registered kind plus an argument key.
type Key struct {
	Kind string
	Arg  string
}

func (k Key) String() string { return k.Kind + "(" + k.Arg + ")" }

// Value is any query result. Fingerprints stand in for structural equality:
// equal fingerprints mean the value is unchanged, which halts invalidation
// propagation to dependents.
type Value interface {
	Fingerprint() uint64
}

// Fn computes one query. It must be a pure function of its argument and of
// the queries it reads through rt.Get; the runtime records those reads as
// dependency edges.
type Fn func(ctx context.Context, rt *Runtime, arg string) (Value, error)

// entry is the cached state of one query key.
type entry struct {
	key        Key
	value      Value
	fp         uint64
	changedAt  Revision // revision at which the value last actually changed
	verifiedAt Revision // revision at which the value was last confirmed current
	deps       []Key    // queries read during the last computation, in order
	input      bool
	computing  *call         // non-nil while a computation is in flight
	lruElem    *list.Element // position in the least-recently-verified list
}

// call coalesces concurrent requests for one key: the first requester
// computes, the rest wait on done.
type call struct {
	done chan struct{}
}

// Runtime owns the dependency graph and result cache. A single writer bumps
// revisions and sets inputs; any number of readers verify queries against the
// current revision. One Runtime per engine instance; no ambient globals.
type Runtime struct {
	mu         sync.Mutex
	rev        Revision
	fns        map[string]Fn
	entries    map[Key]*entry
	lru        *list.List
	maxEntries int
	log        *slog.Logger

	stats statCounters
	inst  instruments
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithMaxEntries bounds the cache. When the bound is exceeded the
// least-recently-verified derived entries are evicted; inputs are never
// evicted. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(rt *Runtime) { rt.maxEntries = n }
}

// WithLogger attaches a logger for debug-level tracing of recomputations and
// evictions.
func WithLogger(log *slog.Logger) Option {
	return func(rt *Runtime) { rt.log = log }
}

// NewRuntime returns an empty runtime at revision zero.
func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{
		fns:     make(map[string]Fn),
		entries: make(map[Key]*entry),
		lru:     list.New(),
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.inst = newInstruments()
	return rt
}

// Register binds a query kind to its compute function. Must be called before
// the first Get for that kind; re-registering a kind panics, since cached
// results would silently mix functions.
func (rt *Runtime) Register(kind string, fn Fn) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.fns[kind]; ok {
		panic(fmt.Sprintf("memo: query kind %q registered twice", kind))
	}
	rt.fns[kind] = fn
}

// Revision returns the current revision.
func (rt *Runtime) Revision() Revision {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.rev
}

// Bump advances the revision. All cached queries are conceptually stale until
// lazily re-verified. In-flight computations observe the bump and abort with
// ErrSuperseded.
func (rt *Runtime) Bump() Revision {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.rev++
	return rt.rev
}

// SetInput stores an input value under a key. Inputs are the leaves of the
// dependency graph; the caller bumps the revision first, then sets the inputs
// that changed. Setting a structurally identical value keeps the old
// changedAt so dependents early-cutoff without recomputation.
func (rt *Runtime) SetInput(kind, arg string, v Value) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	key := Key{Kind: kind, Arg: arg}
	e, ok := rt.entries[key]
	if !ok {
		e = &entry{key: key, input: true}
		rt.entries[key] = e
	}
	e.input = true
	fp := v.Fingerprint()
	if e.verifiedAt == 0 || e.fp != fp {
		e.changedAt = rt.rev
	}
	e.value = v
	e.fp = fp
	e.verifiedAt = rt.rev
}

// DropInput removes an input (a closed document). Dependents recompute on
// their next verification and observe the absence.
func (rt *Runtime) DropInput(kind, arg string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	key := Key{Kind: kind, Arg: arg}
	if e, ok := rt.entries[key]; ok && e.input {
		if e.lruElem != nil {
			rt.lru.Remove(e.lruElem)
		}
		delete(rt.entries, key)
	}
}

// frame is one active computation on the current goroutine's logical stack.
// The parent chain detects cycles; deps collects the reads of the executing
// query body.
type frame struct {
	key    Key
	parent *frame

	mu      sync.Mutex
	deps    []Key
	depSeen map[Key]bool
}

func (f *frame) record(key Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.depSeen == nil {
		f.depSeen = make(map[Key]bool)
	}
	if !f.depSeen[key] {
		f.depSeen[key] = true
		f.deps = append(f.deps, key)
	}
}

type frameCtxKey struct{}

func activeFrame(ctx context.Context) *frame {
	f, _ := ctx.Value(frameCtxKey{}).(*frame)
	return f
}

// Get returns the up-to-date value of a query at the current revision,
// computing or re-verifying it as needed. Called both by external readers and
// by query bodies (which is how dependencies are recorded). Fails with
// ErrSuperseded when a revision bump invalidates the in-progress work; the
// top-level caller retries.
func (rt *Runtime) Get(ctx context.Context, kind, arg string) (Value, error) {
	rt.mu.Lock()
	rev := rt.rev
	rt.mu.Unlock()

	v, _, err := rt.verify(ctx, Key{Kind: kind, Arg: arg}, rev)
	if err != nil {
		return nil, err
	}
	if parent := activeFrame(ctx); parent != nil {
		parent.record(Key{Kind: kind, Arg: arg})
	}
	return v, nil
}

// verify brings a key up to date at rev and returns its value and changedAt.
//
// The algorithm: a hit at this revision returns immediately. Otherwise the
// recorded dependencies are verified first; if none changed since this entry
// was last computed, the entry is re-verified without executing its body. If
// any did change, the body runs again and the fresh fingerprint decides
// between early cutoff (keep the old value and changedAt) and propagation
// (store, stamp changedAt = rev).
func (rt *Runtime) verify(ctx context.Context, key Key, rev Revision) (Value, Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	// Cycle check against the goroutine's active computation chain.
	for f := activeFrame(ctx); f != nil; f = f.parent {
		if f.key == key {
			return nil, 0, cycleError(ctx, key)
		}
	}

	for {
		rt.mu.Lock()
		if rt.rev != rev {
			rt.mu.Unlock()
			rt.stats.cancellations.Add(1)
			rt.inst.cancellation(ctx)
			return nil, 0, fmt.Errorf("verify %s: %w", key, ErrSuperseded)
		}
		e, ok := rt.entries[key]
		if !ok {
			e = &entry{key: key}
			rt.entries[key] = e
		}
		if e.verifiedAt == rev && e.verifiedAt != 0 {
			rt.touch(e)
			v, changed := e.value, e.changedAt
			rt.mu.Unlock()
			rt.stats.hits.Add(1)
			rt.inst.hit(ctx)
			return v, changed, nil
		}
		if e.input {
			// Inputs are always current: SetInput stamps them at the bump.
			rt.touch(e)
			v, changed := e.value, e.changedAt
			rt.mu.Unlock()
			return v, changed, nil
		}
		if e.computing != nil {
			// Another requester is computing this key; await the single
			// execution rather than duplicating work, then re-check.
			done := e.computing.done
			rt.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
			continue
		}
		c := &call{done: make(chan struct{})}
		e.computing = c
		fn := rt.fns[key.Kind]
		prevVerified := e.verifiedAt
		prevDeps := e.deps
		rt.mu.Unlock()

		v, changed, err := rt.compute(ctx, e, fn, rev, prevVerified, prevDeps)

		rt.mu.Lock()
		e.computing = nil
		rt.mu.Unlock()
		close(c.done)
		return v, changed, err
	}
}

// compute runs dependency re-validation and, when required, the query body.
// Called with no locks held; exactly one goroutine computes a given key at a
// time.
func (rt *Runtime) compute(ctx context.Context, e *entry, fn Fn, rev Revision, prevVerified Revision, prevDeps []Key) (Value, Revision, error) {
	if fn == nil {
		return nil, 0, fmt.Errorf("get %s: %w", e.key, ErrUnknownQuery)
	}

	// Shallow re-validation: if every recorded dependency still has the value
	// it had when this entry was computed, the cached result is current and
	// the body never runs. Re-validation can execute dependency bodies, so it
	// carries a frame for this key: a dependency whose recomputation re-enters
	// this entry is a cycle, the same as on the body path.
	if prevVerified != 0 {
		vctx := context.WithValue(ctx, frameCtxKey{},
			&frame{key: e.key, parent: activeFrame(ctx)})
		unchanged := true
		for _, dep := range prevDeps {
			_, depChanged, err := rt.verify(vctx, dep, rev)
			if err != nil {
				return nil, 0, err
			}
			if depChanged > prevVerified {
				unchanged = false
				break
			}
		}
		if unchanged {
			return rt.commit(ctx, e, rev, nil, 0, prevDeps, reuseCached)
		}
	}

	// Execute the body with a fresh frame so nested Gets are recorded as this
	// entry's dependencies.
	f := &frame{key: e.key, parent: activeFrame(ctx)}
	stop := rt.inst.startCompute(ctx)
	v, err := fn(context.WithValue(ctx, frameCtxKey{}, f), rt, e.key.Arg)
	stop(e.key.Kind)
	if err != nil {
		return nil, 0, fmt.Errorf("compute %s: %w", e.key, err)
	}
	rt.stats.computations.Add(1)
	rt.stats.computedByKind(e.key.Kind)
	return rt.commit(ctx, e, rev, v, v.Fingerprint(), f.deps, storeFresh)
}

type commitMode int

const (
	reuseCached commitMode = iota
	storeFresh
)

// commit publishes a verification outcome, unless the revision moved while
// the computation ran, in which case nothing is published and the caller
// retries: partial results for an abandoned revision are never surfaced.
func (rt *Runtime) commit(ctx context.Context, e *entry, rev Revision, v Value, fp uint64, deps []Key, mode commitMode) (Value, Revision, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.rev != rev {
		rt.stats.cancellations.Add(1)
		rt.inst.cancellation(ctx)
		return nil, 0, fmt.Errorf("commit %s: %w", e.key, ErrSuperseded)
	}

	switch mode {
	case reuseCached:
		rt.stats.hits.Add(1)
		rt.inst.hit(ctx)
	case storeFresh:
		if e.verifiedAt != 0 && e.fp == fp {
			// Early cutoff: structurally identical result. Keep the old value
			// and its changedAt so dependents see no change.
			rt.stats.earlyCutoffs.Add(1)
			rt.inst.earlyCutoff(ctx)
			rt.log.Debug("early cutoff", "query", e.key.String(), "rev", uint64(rev))
		} else {
			e.value = v
			e.fp = fp
			e.changedAt = rev
			rt.log.Debug("recomputed", "query", e.key.String(), "rev", uint64(rev))
		}
		e.deps = deps
	}
	e.verifiedAt = rev
	rt.touch(e)
	rt.evictLocked(ctx)
	return e.value, e.changedAt, nil
}

// cycleError reconstructs the participant list from the active frame chain.
func cycleError(ctx context.Context, key Key) error {
	names := []string{key.String()}
	for f := activeFrame(ctx); f != nil; f = f.parent {
		names = append([]string{f.key.String()}, names...)
		if f.key == key {
			break
		}
	}
	return &CycleError{Participants: names}
}

// touch moves an entry to the recently-verified end of the LRU list. Caller
// holds rt.mu.
func (rt *Runtime) touch(e *entry) {
	if e.lruElem == nil {
		e.lruElem = rt.lru.PushBack(e)
		return
	}
	rt.lru.MoveToBack(e.lruElem)
}

// evictLocked drops least-recently-verified derived entries over the cache
// bound. Inputs and in-flight computations stay. Caller holds rt.mu.
func (rt *Runtime) evictLocked(ctx context.Context) {
	if rt.maxEntries <= 0 {
		return
	}
	for len(rt.entries) > rt.maxEntries {
		elem := rt.lru.Front()
		evicted := false
		for elem != nil {
			next := elem.Next()
			e := elem.Value.(*entry)
			if !e.input && e.computing == nil {
				rt.lru.Remove(elem)
				delete(rt.entries, e.key)
				e.lruElem = nil
				rt.stats.evictions.Add(1)
				rt.inst.eviction(ctx)
				rt.log.Debug("evicted", "query", e.key.String())
				evicted = true
				break
			}
			elem = next
		}
		if !evicted {
			return
		}
	}
}

// Len returns the number of cached entries, inputs included.
func (rt *Runtime) Len() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.entries)
}
