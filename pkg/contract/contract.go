// Package contract loads and validates the versioned rule catalog.
// The store is pure data: it parses, checks structural integrity, and
// hands the catalog to the evaluation backends. It never evaluates.
package contract

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Priority is the MoSCoW tier driving score weighting and verdicts.
type Priority string

const (
	PriorityMust   Priority = "MUST"
	PriorityShould Priority = "SHOULD"
	PriorityHave   Priority = "HAVE"
)

// Weight returns the scoring weight of the tier.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityMust:
		return 1.0
	case PriorityShould:
		return 0.5
	case PriorityHave:
		return 0.1
	default:
		return 0
	}
}

// Known reports whether the tier is one of the three defined values.
func (p Priority) Known() bool {
	return p == PriorityMust || p == PriorityShould || p == PriorityHave
}

// EvaluatorRef binds a rule to its two independent implementations: the
// imperative shape (plus its parameters) and the declarative predicate.
// Both sides are mandatory; a rule carried by only one backend is a
// load-time integrity failure.
type EvaluatorRef struct {
	Shape     string         `yaml:"shape" json:"shape"`
	Params    map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Predicate string         `yaml:"predicate" json:"predicate"`
}

// Rule is one immutable compliance check of the active contract version.
type Rule struct {
	ID             string       `yaml:"id" json:"id"`
	Priority       Priority     `yaml:"priority" json:"priority"`
	Category       string       `yaml:"category" json:"category"`
	Description    string       `yaml:"description" json:"description"`
	RegulatoryRefs []string     `yaml:"regulatory_refs,omitempty" json:"regulatory_refs,omitempty"`
	Evaluator      EvaluatorRef `yaml:"evaluator" json:"evaluator"`
	Skip           bool         `yaml:"skip,omitempty" json:"skip,omitempty"`
	SkipReason     string       `yaml:"skip_reason,omitempty" json:"skip_reason,omitempty"`
}

// StringParam returns a string parameter of the evaluator ref.
func (r *Rule) StringParam(key string) (string, bool) {
	v, ok := r.Evaluator.Params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// BoolParam returns a bool parameter, defaulting to false when absent.
func (r *Rule) BoolParam(key string) bool {
	v, ok := r.Evaluator.Params[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IntParam returns an integer parameter of the evaluator ref.
func (r *Rule) IntParam(key string) (int, bool) {
	switch v := r.Evaluator.Params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// FloatParam returns a numeric parameter of the evaluator ref.
func (r *Rule) FloatParam(key string) (float64, bool) {
	switch v := r.Evaluator.Params[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// RuleSet is a loaded, integrity-checked contract version.
type RuleSet struct {
	Version string `yaml:"version" json:"version"`
	Rules   []Rule `yaml:"rules" json:"rules"`

	byID map[string]*Rule
}

// Rule returns the rule with the given id, if present.
func (rs *RuleSet) Rule(id string) (*Rule, bool) {
	r, ok := rs.byID[id]
	return r, ok
}

// Active returns the rules that are not skipped, sorted by id.
func (rs *RuleSet) Active() []Rule {
	out := make([]Rule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if !r.Skip {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Skipped returns the skipped rules, sorted by id.
func (rs *RuleSet) Skipped() []Rule {
	out := make([]Rule, 0)
	for _, r := range rs.Rules {
		if r.Skip {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Filter returns a copy of the rule set restricted to the given ids.
// Unknown ids are an error; silently narrowing a run would hide rules.
func (rs *RuleSet) Filter(ids []string) (*RuleSet, error) {
	filtered := &RuleSet{Version: rs.Version, byID: make(map[string]*Rule, len(ids))}
	for _, id := range ids {
		r, ok := rs.byID[id]
		if !ok {
			return nil, fmt.Errorf("rule %q not present in contract version %s", id, rs.Version)
		}
		filtered.Rules = append(filtered.Rules, *r)
	}
	for i := range filtered.Rules {
		filtered.byID[filtered.Rules[i].ID] = &filtered.Rules[i]
	}
	return filtered, nil
}

func (rs *RuleSet) index() {
	rs.byID = make(map[string]*Rule, len(rs.Rules))
	for i := range rs.Rules {
		rs.byID[rs.Rules[i].ID] = &rs.Rules[i]
	}
}

// ParseError reports malformed contract input (syntax or schema shape).
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("contract parse error at line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("contract parse error: %s", e.Msg)
}

// IntegrityError reports a structurally valid contract that violates a
// catalog invariant: duplicate ids, unknown tiers, unpaired evaluators,
// or skip markers without a reason. Integrity failures abort the run
// before any evaluation happens.
type IntegrityError struct {
	RuleID string
	Reason string
}

func (e *IntegrityError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("contract integrity error: rule %s: %s", e.RuleID, e.Reason)
	}
	return fmt.Sprintf("contract integrity error: %s", e.Reason)
}

// checkIntegrity enforces the catalog invariants after decode.
func (rs *RuleSet) checkIntegrity(knownShapes map[string]bool) error {
	if rs.Version == "" {
		return &IntegrityError{Reason: "missing contract version"}
	}
	if _, err := semver.StrictNewVersion(rs.Version); err != nil {
		return &IntegrityError{Reason: fmt.Sprintf("contract version %q is not strict semver: %v", rs.Version, err)}
	}
	if len(rs.Rules) == 0 {
		return &IntegrityError{Reason: "contract contains no rules"}
	}

	seen := make(map[string]bool, len(rs.Rules))
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.ID == "" {
			return &IntegrityError{Reason: "rule with empty id"}
		}
		if seen[r.ID] {
			return &IntegrityError{RuleID: r.ID, Reason: "duplicate rule id"}
		}
		seen[r.ID] = true

		if !r.Priority.Known() {
			return &IntegrityError{RuleID: r.ID, Reason: fmt.Sprintf("unknown priority tier %q", r.Priority)}
		}
		if r.Evaluator.Shape == "" {
			return &IntegrityError{RuleID: r.ID, Reason: "no imperative evaluator shape bound"}
		}
		if r.Evaluator.Predicate == "" {
			return &IntegrityError{RuleID: r.ID, Reason: "no declarative predicate bound"}
		}
		if knownShapes != nil && !knownShapes[r.Evaluator.Shape] {
			return &IntegrityError{RuleID: r.ID, Reason: fmt.Sprintf("evaluator shape %q is not registered", r.Evaluator.Shape)}
		}
		if r.Skip && r.SkipReason == "" {
			return &IntegrityError{RuleID: r.ID, Reason: "skipped without a skip_reason"}
		}
	}
	return nil
}
