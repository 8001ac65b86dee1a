// Package engine orchestrates a validation run: load the contract and
// the target document, fan both evaluation backends out over the same
// immutable inputs, check the backends for divergence, score the agreed
// results, and hand the gate everything it needs to decide the exit
// code.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/attestix/attestix/pkg/consistency"
	"github.com/attestix/attestix/pkg/contract"
	"github.com/attestix/attestix/pkg/document"
	"github.com/attestix/attestix/pkg/gate"
	"github.com/attestix/attestix/pkg/observability"
	"github.com/attestix/attestix/pkg/policy"
	"github.com/attestix/attestix/pkg/registry"
	"github.com/attestix/attestix/pkg/result"
	"github.com/attestix/attestix/pkg/scoring"
)

// Options configures a single run.
type Options struct {
	// Workers bounds each backend's evaluation pool. Zero means one
	// worker per CPU.
	Workers int

	// Timeout aborts outstanding rule evaluations cooperatively. Zero
	// means no deadline.
	Timeout time.Duration

	// RuleFilter restricts the run to the given rule ids. Empty runs
	// the full contract.
	RuleFilter []string

	// GateMode selects the exit-code scheme.
	GateMode gate.Mode
}

// Artifacts is everything a run produces.
type Artifacts struct {
	Score       *scoring.ScoreReport
	Consistency *consistency.Report
	ExitCode    int
	Duration    time.Duration
}

// Engine is the run orchestrator. Safe for sequential reuse; each run
// owns its own state.
type Engine struct {
	registry *registry.Registry
	logger   *slog.Logger
	obs      *observability.Provider
	clock    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObservability attaches a telemetry provider.
func WithObservability(p *observability.Provider) Option {
	return func(e *Engine) { e.obs = p }
}

// New creates an engine with the builtin imperative registry.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registry = registry.New(registry.WithLogger(e.logger))
	return e
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Run executes one validation run over raw contract and document bytes.
// Load-time problems (contract parse/integrity, document parse) abort
// with an error before any evaluation; after that point every per-rule
// problem is data in the reports, never an error.
func (e *Engine) Run(ctx context.Context, contractRaw, docRaw []byte, opts Options) (*Artifacts, error) {
	start := e.clock()
	runID := uuid.NewString()

	if e.obs != nil {
		var span trace.Span
		ctx, span = e.obs.Tracer().Start(ctx, "attestix.run",
			trace.WithAttributes(attribute.String("run.id", runID)))
		defer span.End()
	}

	rs, err := contract.Load(contractRaw, e.registry.ShapeNames())
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}
	doc, err := document.Parse(docRaw)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if len(opts.RuleFilter) > 0 {
		rs, err = rs.Filter(opts.RuleFilter)
		if err != nil {
			return nil, fmt.Errorf("apply rule filter: %w", err)
		}
	}

	// Predicates compile before anything is evaluated; a rule carried
	// by only one backend or a predicate that will not compile is a
	// contract defect, not a runtime condition.
	polOpts := []policy.Option{}
	if opts.Workers > 0 {
		polOpts = append(polOpts, policy.WithWorkers(opts.Workers))
	}
	pol, err := policy.NewEvaluator(rs, polOpts...)
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	e.logger.Info("validation run started",
		"run_id", runID,
		"contract_version", rs.Version,
		"rules", len(rs.Rules))

	// The backends share only the read-only document, so they run
	// concurrently with each other as well as internally.
	type backendOutcome struct {
		results []result.RuleResult
		err     error
	}
	reg := e.registry
	if opts.Workers > 0 {
		reg = registry.New(registry.WithLogger(e.logger), registry.WithWorkers(opts.Workers))
	}
	impCh := make(chan backendOutcome, 1)
	decCh := make(chan backendOutcome, 1)
	go func() {
		res, err := reg.EvaluateAll(ctx, rs, doc)
		impCh <- backendOutcome{results: res, err: err}
	}()
	go func() {
		res, err := pol.EvaluateAll(ctx, rs, doc)
		decCh <- backendOutcome{results: res, err: err}
	}()
	imp := <-impCh
	dec := <-decCh
	if imp.err != nil {
		return nil, fmt.Errorf("imperative backend: %w", imp.err)
	}
	if dec.err != nil {
		return nil, fmt.Errorf("declarative backend: %w", dec.err)
	}

	cons := consistency.Check(imp.results, dec.results)
	score, err := scoring.Score(imp.results, rs)
	if err != nil {
		return nil, fmt.Errorf("score results: %w", err)
	}
	score.RunID = runID
	score.ExitCode = gate.Decide(score, cons, gate.Config{Mode: opts.GateMode})

	duration := e.clock().Sub(start)
	failed := 0
	for _, r := range imp.results {
		if !r.Passed {
			failed++
		}
	}
	if e.obs != nil {
		e.obs.RecordRun(ctx, len(imp.results)*2, failed, duration)
	}
	e.logger.Info("validation run finished",
		"run_id", runID,
		"verdict", score.Verdict,
		"score", score.WeightedScore,
		"divergences", len(cons.Divergences),
		"exit_code", score.ExitCode,
		"duration", duration)

	return &Artifacts{
		Score:       score,
		Consistency: cons,
		ExitCode:    score.ExitCode,
		Duration:    duration,
	}, nil
}
