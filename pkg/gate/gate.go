// Package gate is the single place that maps a run's aggregate results
// to a process exit code. Everything upstream only produces data.
package gate

import (
	"fmt"

	"github.com/attestix/attestix/pkg/consistency"
	"github.com/attestix/attestix/pkg/scoring"
)

// Mode selects the exit-code scheme. Callers configure it explicitly;
// the gate never guesses which scheme a call site expects.
type Mode int

const (
	// ModeStandard is the 0/1/2 scheme: 0 pass, 1 warn, 2 fail or
	// backend divergence.
	ModeStandard Mode = iota

	// ModeLegacy is the single-code scheme older call sites expect: 24
	// on any MUST failure or divergence, 0 otherwise.
	ModeLegacy
)

// Exit codes of the standard scheme, plus the legacy sentinel.
const (
	ExitPass       = 0
	ExitWarn       = 1
	ExitFail       = 2
	ExitLegacyFail = 24
)

// Config configures the enforcement gate.
type Config struct {
	Mode Mode
}

// Decide maps the score report and consistency report to an exit code.
// A backend divergence forces the failure code in either mode,
// regardless of the nominal score: the backends disagreeing about a
// rule's meaning must block release.
func Decide(score *scoring.ScoreReport, cons *consistency.Report, cfg Config) int {
	diverged := cons != nil && !cons.Clean()

	switch cfg.Mode {
	case ModeLegacy:
		if diverged || score.Verdict == scoring.VerdictFail {
			return ExitLegacyFail
		}
		return ExitPass
	default:
		switch {
		case diverged:
			return ExitFail
		case score.Verdict == scoring.VerdictFail:
			return ExitFail
		case score.Verdict == scoring.VerdictWarn:
			return ExitWarn
		default:
			return ExitPass
		}
	}
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "standard":
		return ModeStandard, nil
	case "legacy":
		return ModeLegacy, nil
	default:
		return ModeStandard, fmt.Errorf("unknown exit-code mode %q (valid: standard, legacy)", s)
	}
}
