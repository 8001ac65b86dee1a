package gate

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/attestix/attestix/pkg/canonicalize"
	"github.com/attestix/attestix/pkg/consistency"
	"github.com/attestix/attestix/pkg/scoring"
)

// RunReport is the combined machine-parseable output of a run.
type RunReport struct {
	Score       *scoring.ScoreReport `json:"score"`
	Consistency *consistency.Report  `json:"consistency"`
}

// WriteJSON emits the structured report.
func WriteJSON(w io.Writer, score *scoring.ScoreReport, cons *consistency.Report) error {
	data, err := json.MarshalIndent(RunReport{Score: score, Consistency: cons}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// WriteHuman emits the human-readable rendering of the run.
func WriteHuman(w io.Writer, score *scoring.ScoreReport, cons *consistency.Report) error {
	fmt.Fprintf(w, "Contract version: %s\n", score.ContractVersion)
	if score.RunID != "" {
		fmt.Fprintf(w, "Run:              %s\n", score.RunID)
	}
	fmt.Fprintf(w, "Rules evaluated:  %d of %d", score.Evaluated, score.TotalRules)
	if n := len(score.Skipped); n > 0 {
		fmt.Fprintf(w, " (%d skipped)", n)
	}
	fmt.Fprintln(w)

	for _, tier := range []string{"MUST", "SHOULD", "HAVE"} {
		fmt.Fprintf(w, "  %-7s passed %d, failed %d\n", tier, score.PassedByTier[tier], score.FailedByTier[tier])
	}
	fmt.Fprintf(w, "Weighted score:   %.1f\n", score.WeightedScore)
	fmt.Fprintf(w, "Verdict:          %s\n", score.Verdict)

	for _, r := range score.Results {
		if r.Passed {
			continue
		}
		fmt.Fprintf(w, "  FAIL %s: %s\n", r.RuleID, r.Message)
	}
	for _, s := range score.Skipped {
		fmt.Fprintf(w, "  SKIP %s: %s\n", s.RuleID, s.Reason)
	}

	if cons != nil && !cons.Clean() {
		fmt.Fprintf(w, "Backend divergence (%d), blocking:\n", len(cons.Divergences))
		for _, d := range cons.Divergences {
			fmt.Fprintf(w, "  DIVERGE %s\n", d)
		}
	}
	return nil
}

// ReportDigest returns the SHA-256 digest of the canonical JSON form of
// the report, for downstream signing or anchoring. Signing itself is an
// external concern.
func ReportDigest(score *scoring.ScoreReport, cons *consistency.Report) (string, error) {
	return canonicalize.CanonicalHash(RunReport{Score: score, Consistency: cons})
}
