package registry

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attestix/attestix/pkg/contract"
	"github.com/attestix/attestix/pkg/document"
	"github.com/attestix/attestix/pkg/result"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestShapeNames(t *testing.T) {
	names := New().ShapeNames()
	assert.Equal(t, []string{
		"cardinality", "chain", "cycle", "duplicates", "merkle_anchor",
		"pattern", "presence", "threshold", "worm",
	}, names)
}

func TestEvaluateUnknownShape(t *testing.T) {
	r := New(WithLogger(discardLogger()))
	res := r.Evaluate(shapeRule("astrology", nil), mustDoc(t, "a: b"))
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "not registered")
}

func TestEvaluateRecoversPanic(t *testing.T) {
	r := New(WithLogger(discardLogger()))
	r.Register("boom", func(rule *contract.Rule, doc *document.Document) result.RuleResult {
		panic("shape exploded")
	})

	res := r.Evaluate(shapeRule("boom", nil), mustDoc(t, "a: b"))
	assert.False(t, res.Passed, "a panicking evaluator fails its rule, never the run")
	assert.Contains(t, res.Message, "evaluator error")
	assert.Contains(t, res.Message, "shape exploded")
}

func poolRuleSet(t *testing.T, n int) *contract.RuleSet {
	t.Helper()
	var rules []string
	for i := 0; i < n; i++ {
		rules = append(rules, fmt.Sprintf(`
  - id: R%03d
    priority: MUST
    description: field must be present
    evaluator:
      shape: presence
      params:
        path: name
      predicate: 'has(doc.name)'`, i))
	}
	raw := "version: \"1.0.0\"\nrules:"
	for _, r := range rules {
		raw += r
	}
	rs, err := contract.Load([]byte(raw), New().ShapeNames())
	require.NoError(t, err)
	return rs
}

func TestEvaluateAllOrderedByRuleID(t *testing.T) {
	r := New(WithWorkers(4), WithLogger(discardLogger()))
	rs := poolRuleSet(t, 20)

	results, err := r.EvaluateAll(context.Background(), rs, mustDoc(t, "name: core"))
	require.NoError(t, err)
	require.Len(t, results, 20)
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("R%03d", i), res.RuleID, "results keep rule-id order regardless of worker scheduling")
		assert.True(t, res.Passed)
	}
}

func TestEvaluateAllSingleWorkerMatchesParallel(t *testing.T) {
	rs := poolRuleSet(t, 9)
	doc := mustDoc(t, "other: x")

	serial, err := New(WithWorkers(1), WithLogger(discardLogger())).EvaluateAll(context.Background(), rs, doc)
	require.NoError(t, err)
	parallel, err := New(WithWorkers(8), WithLogger(discardLogger())).EvaluateAll(context.Background(), rs, doc)
	require.NoError(t, err)
	assert.Equal(t, serial, parallel)
}

func TestEvaluateAllCancellation(t *testing.T) {
	r := New(WithWorkers(1), WithLogger(discardLogger()))
	r.Register("slow", func(rule *contract.Rule, doc *document.Document) result.RuleResult {
		time.Sleep(50 * time.Millisecond)
		return result.Pass(rule.ID, "slow pass")
	})

	rules := make([]contract.Rule, 40)
	for i := range rules {
		rules[i] = contract.Rule{
			ID:        fmt.Sprintf("S%03d", i),
			Priority:  contract.PriorityMust,
			Evaluator: contract.EvaluatorRef{Shape: "slow", Predicate: "true"},
		}
	}
	rs := ruleSetOf(t, rules)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results, err := r.EvaluateAll(ctx, rs, mustDoc(t, "a: b"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, results, "no partial results on abort")
}

// ruleSetOf builds a rule set directly, bypassing the loader, for pool
// tests that use synthetic shapes.
func ruleSetOf(t *testing.T, rules []contract.Rule) *contract.RuleSet {
	t.Helper()
	raw := "version: \"1.0.0\"\nrules:"
	for _, r := range rules {
		raw += fmt.Sprintf(`
  - id: %s
    priority: %s
    description: synthetic
    evaluator:
      shape: %s
      predicate: 'true'`, r.ID, r.Priority, r.Evaluator.Shape)
	}
	rs, err := contract.Load([]byte(raw), []string{"slow", "boom", "presence"})
	require.NoError(t, err)
	return rs
}
