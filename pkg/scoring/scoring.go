// Package scoring aggregates rule results into a priority-weighted
// compliance score. Score is a pure function: the same results always
// produce the same report.
package scoring

import (
	"fmt"
	"sort"

	"github.com/attestix/attestix/pkg/contract"
	"github.com/attestix/attestix/pkg/result"
)

// Verdict is the aggregate outcome of a run.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictWarn Verdict = "WARN"
	VerdictFail Verdict = "FAIL"
)

// SkippedRule records a rule that was intentionally not evaluated.
// Skipped rules are excluded from the weighted denominator but are
// always visible in the report; silent omission is not allowed.
type SkippedRule struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

// ScoreReport is the aggregate result of one validation run.
type ScoreReport struct {
	ContractVersion string              `json:"contract_version"`
	RunID           string              `json:"run_id,omitempty"`
	TotalRules      int                 `json:"total_rules"`
	Evaluated       int                 `json:"evaluated"`
	PassedByTier    map[string]int      `json:"passed_by_tier"`
	FailedByTier    map[string]int      `json:"failed_by_tier"`
	WeightedScore   float64             `json:"weighted_score"`
	Verdict         Verdict             `json:"verdict"`
	ExitCode        int                 `json:"exit_code"`
	Skipped         []SkippedRule       `json:"skipped,omitempty"`
	Results         []result.RuleResult `json:"results"`
}

// Score aggregates the agreed results against the rule set they were
// evaluated from. Weighting: passed MUST count 1.0, SHOULD 0.5, HAVE
// 0.1, normalized over the rules actually evaluated. Verdict: any MUST
// failure is FAIL; otherwise any SHOULD failure is WARN; otherwise
// PASS.
func Score(results []result.RuleResult, rs *contract.RuleSet) (*ScoreReport, error) {
	report := &ScoreReport{
		ContractVersion: rs.Version,
		TotalRules:      len(rs.Rules),
		Evaluated:       len(results),
		PassedByTier:    map[string]int{},
		FailedByTier:    map[string]int{},
		Results:         append([]result.RuleResult(nil), results...),
	}
	for _, tier := range []contract.Priority{contract.PriorityMust, contract.PriorityShould, contract.PriorityHave} {
		report.PassedByTier[string(tier)] = 0
		report.FailedByTier[string(tier)] = 0
	}

	var weighted float64
	for _, r := range results {
		rule, ok := rs.Rule(r.RuleID)
		if !ok {
			return nil, fmt.Errorf("result for rule %q not present in contract version %s", r.RuleID, rs.Version)
		}
		tier := string(rule.Priority)
		if r.Passed {
			report.PassedByTier[tier]++
			weighted += rule.Priority.Weight()
		} else {
			report.FailedByTier[tier]++
		}
	}

	if report.Evaluated > 0 {
		report.WeightedScore = weighted / float64(report.Evaluated) * 100
	}

	switch {
	case report.FailedByTier[string(contract.PriorityMust)] > 0:
		report.Verdict = VerdictFail
	case report.FailedByTier[string(contract.PriorityShould)] > 0:
		report.Verdict = VerdictWarn
	default:
		report.Verdict = VerdictPass
	}

	for _, r := range rs.Skipped() {
		report.Skipped = append(report.Skipped, SkippedRule{RuleID: r.ID, Reason: r.SkipReason})
	}
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].RuleID < report.Results[j].RuleID
	})
	return report, nil
}
