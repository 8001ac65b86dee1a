package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/attestix/attestix/pkg/config"
	"github.com/attestix/attestix/pkg/contract"
	"github.com/attestix/attestix/pkg/document"
	"github.com/attestix/attestix/pkg/engine"
	"github.com/attestix/attestix/pkg/gate"
	"github.com/attestix/attestix/pkg/observability"
)

// runValidate implements `attestix validate`.
//
// Exit codes (standard mode):
//
//	0 = verdict PASS
//	1 = verdict WARN
//	2 = verdict FAIL, backend divergence, or a load/runtime error
//
// Legacy mode replaces the scheme with 24 on any MUST failure or
// divergence and 0 otherwise.
func runValidate(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	defaults := config.Load()

	var (
		contractPath string
		docPath      string
		jsonOutput   bool
		exitMode     string
		ruleFilter   multiFlag
		timeout      time.Duration
		workers      int
		logLevel     string
		digest       bool
	)
	cmd.StringVar(&contractPath, "contract", "", "Rule contract file (REQUIRED)")
	cmd.StringVar(&docPath, "doc", "", "Target document file (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Emit the structured report on stdout")
	cmd.StringVar(&exitMode, "exit-codes", defaults.ExitCodes, "Exit-code scheme: standard (0/1/2) or legacy (0/24)")
	cmd.Var(&ruleFilter, "rule", "Run only specific rule id(s) (repeatable)")
	cmd.DurationVar(&timeout, "timeout", 0, "Abort evaluation after this duration")
	cmd.IntVar(&workers, "workers", defaults.Workers, "Evaluation workers per backend (default: one per CPU)")
	cmd.StringVar(&logLevel, "log-level", defaults.LogLevel, "Log level: DEBUG, INFO, WARN, ERROR")
	cmd.BoolVar(&digest, "digest", false, "Also print the canonical report digest")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if contractPath == "" || docPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -contract and -doc are required")
		return 2
	}

	mode, err := gate.ParseMode(exitMode)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	contractRaw, err := os.ReadFile(contractPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read contract: %v\n", err)
		return 2
	}
	docRaw, err := os.ReadFile(docPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read document: %v\n", err)
		return 2
	}

	logger := observability.NewLogger(logLevel)
	engOpts := []engine.Option{engine.WithLogger(logger)}
	if defaults.Telemetry {
		obsCfg := observability.DefaultConfig()
		obsCfg.Enabled = true
		obsCfg.OTLPEndpoint = defaults.OTLPEndpoint
		obs, err := observability.New(context.Background(), obsCfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: init telemetry: %v\n", err)
			return 2
		}
		defer func() { _ = obs.Shutdown(context.Background()) }()
		engOpts = append(engOpts, engine.WithObservability(obs))
	}
	eng := engine.New(engOpts...)

	artifacts, err := eng.Run(context.Background(), contractRaw, docRaw, engine.Options{
		Workers:    workers,
		Timeout:    timeout,
		RuleFilter: ruleFilter,
		GateMode:   mode,
	})
	if err != nil {
		reportLoadError(stderr, err)
		return 2
	}

	if jsonOutput {
		if err := gate.WriteJSON(stdout, artifacts.Score, artifacts.Consistency); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: write report: %v\n", err)
			return 2
		}
	} else {
		_ = gate.WriteHuman(stdout, artifacts.Score, artifacts.Consistency)
	}
	if digest {
		d, err := gate.ReportDigest(artifacts.Score, artifacts.Consistency)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: compute digest: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stdout, "Report digest: sha256:%s\n", d)
	}
	return artifacts.ExitCode
}

// reportLoadError renders load-time failures with their taxonomy so CI
// logs distinguish a malformed input from an inconsistent catalog.
func reportLoadError(stderr io.Writer, err error) {
	var (
		cpe *contract.ParseError
		cie *contract.IntegrityError
		dpe *document.ParseError
	)
	switch {
	case errors.As(err, &cpe):
		_, _ = fmt.Fprintf(stderr, "Contract parse error: %v\n", err)
	case errors.As(err, &cie):
		_, _ = fmt.Fprintf(stderr, "Contract integrity error: %v\n", err)
	case errors.As(err, &dpe):
		_, _ = fmt.Fprintf(stderr, "Document parse error: %v\n", err)
	default:
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	}
}
