// Package consistency diffs the verdicts of the two evaluation
// backends. A divergence is not a policy violation; it means the two
// implementations disagree about what a rule means, which is a
// specification bug and must block release regardless of the score.
package consistency

import (
	"fmt"
	"sort"

	"github.com/attestix/attestix/pkg/result"
)

// Verdict is one backend's view of a rule in a divergence record.
type Verdict string

const (
	VerdictPass   Verdict = "pass"
	VerdictFail   Verdict = "fail"
	VerdictAbsent Verdict = "absent"
)

func verdictOf(r result.RuleResult) Verdict {
	if r.Passed {
		return VerdictPass
	}
	return VerdictFail
}

// Divergence records a backend disagreement on a single rule.
type Divergence struct {
	RuleID      string  `json:"rule_id"`
	Imperative  Verdict `json:"imperative"`
	Declarative Verdict `json:"declarative"`
}

func (d Divergence) String() string {
	return fmt.Sprintf("%s: imperative=%s declarative=%s", d.RuleID, d.Imperative, d.Declarative)
}

// Report is the outcome of a consistency check.
type Report struct {
	Divergences []Divergence `json:"divergences"`
}

// Clean reports whether the backends agreed on every rule.
func (r *Report) Clean() bool {
	return len(r.Divergences) == 0
}

// Check compares the two backends' results rule by rule. Rules present
// in only one result set are divergences with the missing side marked
// absent. Divergences come back sorted by rule id.
func Check(imperative, declarative []result.RuleResult) *Report {
	imp := make(map[string]result.RuleResult, len(imperative))
	for _, r := range imperative {
		imp[r.RuleID] = r
	}
	dec := make(map[string]result.RuleResult, len(declarative))
	for _, r := range declarative {
		dec[r.RuleID] = r
	}

	report := &Report{}
	for id, ir := range imp {
		dr, ok := dec[id]
		if !ok {
			report.Divergences = append(report.Divergences, Divergence{
				RuleID: id, Imperative: verdictOf(ir), Declarative: VerdictAbsent,
			})
			continue
		}
		if ir.Passed != dr.Passed {
			report.Divergences = append(report.Divergences, Divergence{
				RuleID: id, Imperative: verdictOf(ir), Declarative: verdictOf(dr),
			})
		}
	}
	for id, dr := range dec {
		if _, ok := imp[id]; !ok {
			report.Divergences = append(report.Divergences, Divergence{
				RuleID: id, Imperative: VerdictAbsent, Declarative: verdictOf(dr),
			})
		}
	}

	sort.Slice(report.Divergences, func(i, j int) bool {
		return report.Divergences[i].RuleID < report.Divergences[j].RuleID
	})
	return report
}
