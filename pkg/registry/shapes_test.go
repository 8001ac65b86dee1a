package registry

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attestix/attestix/pkg/contract"
	"github.com/attestix/attestix/pkg/document"
)

func mustDoc(t *testing.T, raw string) *document.Document {
	t.Helper()
	doc, err := document.Parse([]byte(raw))
	require.NoError(t, err)
	return doc
}

func shapeRule(shape string, params map[string]any) *contract.Rule {
	return &contract.Rule{
		ID:       "T001",
		Priority: contract.PriorityMust,
		Evaluator: contract.EvaluatorRef{
			Shape:     shape,
			Params:    params,
			Predicate: "true",
		},
	}
}

func TestPatternShape(t *testing.T) {
	doc := mustDoc(t, `
module:
  version: "2.1.0"
  loose: "2.1"
  number: 42
  empty: ""
`)
	cases := []struct {
		name   string
		params map[string]any
		pass   bool
		msg    string
	}{
		{"match", map[string]any{"path": "module.version", "pattern": `^\d+\.\d+\.\d+$`}, true, ""},
		{"semver strict", map[string]any{"path": "module.version", "pattern": `^\d+`, "semver": true}, true, ""},
		{"semver rejects loose", map[string]any{"path": "module.loose", "pattern": `^\d+`, "semver": true}, false, "strict semver"},
		{"no match", map[string]any{"path": "module.loose", "pattern": `^\d+\.\d+\.\d+$`}, false, "does not match"},
		{"absent fails", map[string]any{"path": "module.missing", "pattern": ".*"}, false, "absent"},
		{"empty fails even against permissive pattern", map[string]any{"path": "module.empty", "pattern": ".*"}, false, "empty"},
		{"wrong type", map[string]any{"path": "module.number", "pattern": ".*"}, false, "expected string"},
		{"invalid regexp", map[string]any{"path": "module.version", "pattern": "("}, false, "invalid pattern"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := evalPattern(shapeRule(ShapePattern, tc.params), doc)
			assert.Equal(t, tc.pass, res.Passed, res.Message)
			if tc.msg != "" {
				assert.Contains(t, res.Message, tc.msg)
			}
		})
	}
}

func TestPresenceShape(t *testing.T) {
	doc := mustDoc(t, `
name: core
owner: ~
tags: []
count: 3
`)
	cases := []struct {
		name   string
		params map[string]any
		pass   bool
		msg    string
	}{
		{"present string", map[string]any{"path": "name", "type": "string"}, true, ""},
		{"type mismatch", map[string]any{"path": "count", "type": "string"}, false, "expected string"},
		{"any type", map[string]any{"path": "count"}, true, ""},
		{"absent", map[string]any{"path": "ghost"}, false, "is absent"},
		{"explicit null reported distinctly", map[string]any{"path": "owner"}, false, "explicitly null"},
		{"empty fails by default", map[string]any{"path": "tags", "type": "list"}, false, "present but empty"},
		{"empty allowed when opted in", map[string]any{"path": "tags", "type": "list", "allow_empty": true}, true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := evalPresence(shapeRule(ShapePresence, tc.params), doc)
			assert.Equal(t, tc.pass, res.Passed, res.Message)
			if tc.msg != "" {
				assert.Contains(t, res.Message, tc.msg)
			}
		})
	}
}

// buildGroupsDoc renders a mapping of n groups with m scalar children each,
// optionally shrinking one group by one child.
func buildGroupsDoc(n, m int, deviant string) string {
	var b strings.Builder
	b.WriteString("groups:\n")
	for g := 0; g < n; g++ {
		name := fmt.Sprintf("g%02d", g)
		fmt.Fprintf(&b, "  %s:\n", name)
		children := m
		if name == deviant {
			children = m - 1
		}
		for c := 0; c < children; c++ {
			fmt.Fprintf(&b, "    - c%02d\n", c)
		}
	}
	return b.String()
}

func TestCardinalityShape(t *testing.T) {
	params := map[string]any{"path": "groups", "groups": 24, "children": 16}

	res := evalCardinality(shapeRule(ShapeCardinality, params), mustDoc(t, buildGroupsDoc(24, 16, "")))
	assert.True(t, res.Passed, res.Message)

	res = evalCardinality(shapeRule(ShapeCardinality, params), mustDoc(t, buildGroupsDoc(23, 16, "")))
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "23 groups, expected exactly 24")

	res = evalCardinality(shapeRule(ShapeCardinality, params), mustDoc(t, buildGroupsDoc(25, 16, "")))
	assert.False(t, res.Passed, "overflow is as fatal as shortfall")

	res = evalCardinality(shapeRule(ShapeCardinality, params), mustDoc(t, buildGroupsDoc(24, 16, "g07")))
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "group g07 has 15 children, expected exactly 16")
}

func TestCardinalityShapeEdgeCases(t *testing.T) {
	doc := mustDoc(t, "groups: [x, y]\nscalar: 1")

	res := evalCardinality(shapeRule(ShapeCardinality, map[string]any{"path": "groups", "groups": 2}), doc)
	assert.True(t, res.Passed, "children check is optional")

	res = evalCardinality(shapeRule(ShapeCardinality, map[string]any{"path": "scalar", "groups": 1}), doc)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "expected list or mapping")

	res = evalCardinality(shapeRule(ShapeCardinality, map[string]any{"path": "absent", "groups": 1}), doc)
	assert.False(t, res.Passed)
}

func TestDuplicatesShape(t *testing.T) {
	doc := mustDoc(t, "xs: [a, b, a, c, b]\nclean: [a, b, c]\nmixed: [a, {k: v}]")

	res := evalDuplicates(shapeRule(ShapeDuplicates, map[string]any{"path": "xs"}), doc)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "a, b", "duplicated values in first-seen order")

	res = evalDuplicates(shapeRule(ShapeDuplicates, map[string]any{"path": "clean"}), doc)
	assert.True(t, res.Passed)

	res = evalDuplicates(shapeRule(ShapeDuplicates, map[string]any{"path": "mixed"}), doc)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "not a list of scalar values")
}

func TestThresholdShape(t *testing.T) {
	params := map[string]any{
		"gap_path": "perf.gap", "value_path": "perf.value",
		"gap_above": 10, "value_above": 100,
	}
	cases := []struct {
		name string
		doc  string
		pass bool
		msg  string
	}{
		{"both exceeded triggers", "perf: {gap: 11, value: 101}", false, "exceeds"},
		{"only gap exceeded", "perf: {gap: 11, value: 100}", true, ""},
		{"only value exceeded", "perf: {gap: 10, value: 500}", true, ""},
		{"boundary is not above", "perf: {gap: 10, value: 100}", true, ""},
		{"missing input is inconclusive", "perf: {gap: 11}", true, "inconclusive"},
		{"no input at all", "other: 1", true, "inconclusive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := evalThreshold(shapeRule(ShapeThreshold, params), mustDoc(t, tc.doc))
			assert.Equal(t, tc.pass, res.Passed, res.Message)
			if tc.msg != "" {
				assert.Contains(t, res.Message, tc.msg)
			}
		})
	}
}

func TestShapesRequireParams(t *testing.T) {
	doc := mustDoc(t, "a: b")
	for shape, fn := range map[string]ShapeFunc{
		ShapePattern:     evalPattern,
		ShapePresence:    evalPresence,
		ShapeCardinality: evalCardinality,
		ShapeDuplicates:  evalDuplicates,
		ShapeThreshold:   evalThreshold,
	} {
		res := fn(shapeRule(shape, nil), doc)
		assert.False(t, res.Passed, shape)
		assert.Contains(t, res.Message, "evaluator error", shape)
	}
}
