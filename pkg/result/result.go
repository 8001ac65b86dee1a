// Package result defines the shared verdict shape produced by both
// evaluation backends. It is a leaf package so that neither backend
// needs to import the other.
package result

// KV is a single ordered evidence entry recorded during evaluation.
// Evidence preserves the inputs and intermediate values a decision was
// based on, so a run can be replayed and audited.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RuleResult is the outcome of evaluating one rule against one document.
// Immutable once created; evaluators build it and hand it off.
type RuleResult struct {
	RuleID   string `json:"rule_id"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message"`
	Evidence []KV   `json:"evidence,omitempty"`
}

// Pass builds a passing result.
func Pass(ruleID, message string, evidence ...KV) RuleResult {
	return RuleResult{RuleID: ruleID, Passed: true, Message: message, Evidence: evidence}
}

// Fail builds a failing result.
func Fail(ruleID, message string, evidence ...KV) RuleResult {
	return RuleResult{RuleID: ruleID, Passed: false, Message: message, Evidence: evidence}
}
