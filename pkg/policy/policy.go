// Package policy is the declarative evaluation backend. Every rule
// carries a CEL predicate in the contract, written and maintained
// separately from the imperative shapes, so a bug in one backend does
// not silently propagate to the other. The consistency checker holds
// the two to the same boolean verdict.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/attestix/attestix/pkg/contract"
	"github.com/attestix/attestix/pkg/document"
	"github.com/attestix/attestix/pkg/result"
)

// Evaluator compiles and runs the contract's CEL predicates. Programs
// are compiled once at construction with cost limits; a predicate that
// does not compile is a contract defect, reported before any document
// is evaluated.
type Evaluator struct {
	env      *cel.Env
	programs map[string]cel.Program
	workers  int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithWorkers bounds the evaluation pool.
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEvaluator builds the CEL environment and compiles every predicate
// of the rule set, including skipped rules: a skipped rule still has to
// be a valid rule. Compile failures are returned as
// *contract.IntegrityError.
func NewEvaluator(rs *contract.RuleSet, opts ...Option) (*Evaluator, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	e := &Evaluator{
		env:      env,
		programs: make(map[string]cel.Program, len(rs.Rules)),
		workers:  4,
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, rule := range rs.Rules {
		ast, issues := env.Compile(rule.Evaluator.Predicate)
		if issues != nil && issues.Err() != nil {
			return nil, &contract.IntegrityError{
				RuleID: rule.ID,
				Reason: fmt.Sprintf("predicate does not compile: %v", issues.Err()),
			}
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(1_000_000),
		)
		if err != nil {
			return nil, &contract.IntegrityError{
				RuleID: rule.ID,
				Reason: fmt.Sprintf("predicate does not plan: %v", err),
			}
		}
		e.programs[rule.ID] = prg
	}
	return e, nil
}

// Evaluate runs one rule's predicate against the document.
func (e *Evaluator) Evaluate(rule *contract.Rule, doc *document.Document) result.RuleResult {
	prg, ok := e.programs[rule.ID]
	if !ok {
		return result.Fail(rule.ID, "evaluator error: no compiled predicate for rule")
	}

	input := map[string]any{"doc": doc.Root.ToInterface()}
	ev := []result.KV{{Key: "predicate", Value: rule.Evaluator.Predicate}}

	out, _, err := prg.Eval(input)
	if err != nil {
		// A runtime error in a predicate (bad index, type mismatch on a
		// malformed document) is a failing verdict, not an abort.
		ev = append(ev, result.KV{Key: "eval_error", Value: err.Error()})
		return result.Fail(rule.ID, fmt.Sprintf("predicate evaluation failed: %v", err), ev...)
	}
	verdict, ok := out.Value().(bool)
	if !ok {
		return result.Fail(rule.ID, "evaluator error: predicate did not produce a boolean", ev...)
	}
	if !verdict {
		return result.Fail(rule.ID, "predicate not satisfied", ev...)
	}
	return result.Pass(rule.ID, "predicate satisfied", ev...)
}

// EvaluateAll evaluates every active rule in parallel and returns
// results in rule-id order. Cancellation returns the context error with
// no partial results.
func (e *Evaluator) EvaluateAll(ctx context.Context, rs *contract.RuleSet, doc *document.Document) ([]result.RuleResult, error) {
	rules := rs.Active()
	results := make([]result.RuleResult, len(rules))

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := e.workers
	if workers > len(rules) {
		workers = len(rules)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = e.Evaluate(&rules[idx], doc)
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
	return results, nil
}
