// Package registry is the imperative evaluation backend. Rules bind to a
// small set of generic evaluator shapes (pattern, presence, cardinality,
// duplicates, cycle, threshold, and the evidence shapes) parameterized
// entirely by contract data, so new rules are catalog entries rather
// than new code.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/attestix/attestix/pkg/contract"
	"github.com/attestix/attestix/pkg/document"
	"github.com/attestix/attestix/pkg/result"
)

// ShapeFunc evaluates one rule of a given shape against a document.
// Shape functions must be pure: no I/O, no shared state, deterministic
// for a given document.
type ShapeFunc func(rule *contract.Rule, doc *document.Document) result.RuleResult

// Registry maps evaluator shapes to their implementations and fans rule
// evaluation out across a bounded worker pool.
type Registry struct {
	shapes  map[string]ShapeFunc
	workers int
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithWorkers bounds the evaluation pool. Values below 1 fall back to
// the number of CPUs.
func WithWorkers(n int) Option {
	return func(r *Registry) { r.workers = n }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a registry with all builtin shapes registered.
func New(opts ...Option) *Registry {
	r := &Registry{
		shapes:  make(map[string]ShapeFunc),
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = runtime.NumCPU()
	}

	r.Register(ShapePattern, evalPattern)
	r.Register(ShapePresence, evalPresence)
	r.Register(ShapeCardinality, evalCardinality)
	r.Register(ShapeDuplicates, evalDuplicates)
	r.Register(ShapeCycle, evalCycle)
	r.Register(ShapeThreshold, evalThreshold)
	r.Register(ShapeChain, evalChain)
	r.Register(ShapeWorm, evalWorm)
	r.Register(ShapeMerkleAnchor, evalMerkleAnchor)
	return r
}

// Builtin shape names. The contract references these in evaluator.shape.
const (
	ShapePattern      = "pattern"
	ShapePresence     = "presence"
	ShapeCardinality  = "cardinality"
	ShapeDuplicates   = "duplicates"
	ShapeCycle        = "cycle"
	ShapeThreshold    = "threshold"
	ShapeChain        = "chain"
	ShapeWorm         = "worm"
	ShapeMerkleAnchor = "merkle_anchor"
)

// Register binds a shape name to its implementation.
func (r *Registry) Register(shape string, fn ShapeFunc) {
	r.shapes[shape] = fn
}

// ShapeNames returns the registered shape names, sorted. The contract
// loader uses this set to reject rules bound to unknown shapes.
func (r *Registry) ShapeNames() []string {
	names := make([]string, 0, len(r.shapes))
	for name := range r.shapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs a single rule. A panic inside a shape function is caught
// here and converted into a failing result; one bad rule must never
// abort the run.
func (r *Registry) Evaluate(rule *contract.Rule, doc *document.Document) (res result.RuleResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("evaluator panic", "rule", rule.ID, "panic", rec)
			res = result.Fail(rule.ID, fmt.Sprintf("evaluator error: %v", rec))
		}
	}()

	fn, ok := r.shapes[rule.Evaluator.Shape]
	if !ok {
		return result.Fail(rule.ID, fmt.Sprintf("evaluator error: shape %q not registered", rule.Evaluator.Shape))
	}
	return fn(rule, doc)
}

// EvaluateAll evaluates every active rule of the set against the
// document, in parallel, and returns results ordered by rule id. The
// ordering is for deterministic downstream reporting. Cancellation of
// ctx aborts the run and returns the context error with no partial
// results.
func (r *Registry) EvaluateAll(ctx context.Context, rs *contract.RuleSet, doc *document.Document) ([]result.RuleResult, error) {
	rules := rs.Active()
	results := make([]result.RuleResult, len(rules))

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := r.workers
	if workers > len(rules) {
		workers = len(rules)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = r.Evaluate(&rules[idx], doc)
			}
		}()
	}

	var ctxErr error
dispatch:
	for i := range rules {
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if ctxErr != nil {
		return nil, fmt.Errorf("evaluation aborted: %w", ctxErr)
	}
	// rules come pre-sorted from Active(), so results are already in
	// rule-id order; each worker wrote to its own slot.
	return results, nil
}
