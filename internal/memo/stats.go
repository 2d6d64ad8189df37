package memo

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Stats is a point-in-time snapshot of runtime activity. The counters are
// cumulative since the runtime was created.
type Stats struct {
	// Computations counts query-body executions.
	Computations uint64
	// Hits counts verifications satisfied without executing a body: same-
	// revision cache hits plus dependency re-validations.
	Hits uint64
	// EarlyCutoffs counts recomputations whose result was structurally
	// identical to the cached value.
	EarlyCutoffs uint64
	// Evictions counts cache entries dropped under the size bound.
	Evictions uint64
	// Cancellations counts verifications abandoned because a revision bump
	// superseded them.
	Cancellations uint64
}

type statCounters struct {
	computations  atomic.Uint64
	hits          atomic.Uint64
	earlyCutoffs  atomic.Uint64
	evictions     atomic.Uint64
	cancellations atomic.Uint64

	mu     sync.Mutex
	byKind map[string]uint64
}

func (s *statCounters) computedByKind(kind string) {
	s.mu.Lock()
	if s.byKind == nil {
		s.byKind = make(map[string]uint64)
	}
	s.byKind[kind]++
	s.mu.Unlock()
}

// Stats returns a snapshot of the activity counters.
func (rt *Runtime) Stats() Stats {
	return Stats{
		Computations:  rt.stats.computations.Load(),
		Hits:          rt.stats.hits.Load(),
		EarlyCutoffs:  rt.stats.earlyCutoffs.Load(),
		Evictions:     rt.stats.evictions.Load(),
		Cancellations: rt.stats.cancellations.Load(),
	}
}

// ComputeCount returns how many times bodies of the given query kind have
// executed. Tests use this to assert that body-only edits never recompute
// signature-level queries.
func (rt *Runtime) ComputeCount(kind string) uint64 {
	rt.stats.mu.Lock()
	defer rt.stats.mu.Unlock()
	return rt.stats.byKind[kind]
}

// instruments holds the OpenTelemetry metric instruments. They are created
// against the global meter provider, so they are noop unless the embedder
// installs an SDK.
type instruments struct {
	computations metric.Int64Counter
	hits         metric.Int64Counter
	cutoffs      metric.Int64Counter
	evictions    metric.Int64Counter
	cancels      metric.Int64Counter
	duration     metric.Float64Histogram
}

func newInstruments() instruments {
	m := otel.Meter("github.com/efletch/trellis/internal/memo")
	var in instruments
	in.computations, _ = m.Int64Counter("trellis.query.computations",
		metric.WithDescription("query body executions"))
	in.hits, _ = m.Int64Counter("trellis.query.hits",
		metric.WithDescription("verifications satisfied from cache"))
	in.cutoffs, _ = m.Int64Counter("trellis.query.early_cutoffs",
		metric.WithDescription("recomputations with structurally identical results"))
	in.evictions, _ = m.Int64Counter("trellis.query.evictions",
		metric.WithDescription("cache entries evicted"))
	in.cancels, _ = m.Int64Counter("trellis.query.cancellations",
		metric.WithDescription("verifications superseded by a newer revision"))
	in.duration, _ = m.Float64Histogram("trellis.query.compute_seconds",
		metric.WithDescription("query body execution time"),
		metric.WithUnit("s"))
	return in
}

func (in instruments) hit(ctx context.Context)         { in.hits.Add(ctx, 1) }
func (in instruments) earlyCutoff(ctx context.Context) { in.cutoffs.Add(ctx, 1) }
func (in instruments) eviction(ctx context.Context)    { in.evictions.Add(ctx, 1) }
func (in instruments) cancellation(ctx context.Context) {
	in.cancels.Add(ctx, 1)
}

// startCompute returns a stop function that records the elapsed time and
// increments the computation counter, labeled by query kind.
func (in instruments) startCompute(ctx context.Context) func(kind string) {
	start := time.Now()
	return func(kind string) {
		attrs := metric.WithAttributes(attribute.String("kind", kind))
		in.computations.Add(ctx, 1, attrs)
		in.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
