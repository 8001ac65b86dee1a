// Package config resolves process-level defaults from the environment.
// Flags always win; the environment only fills the gaps, so CI systems
// can pin a scheme or endpoint once instead of per invocation.
package config

import (
	"os"
	"strconv"
)

// Config holds environment-derived defaults for the CLI.
type Config struct {
	LogLevel     string // ATTESTIX_LOG_LEVEL
	ExitCodes    string // ATTESTIX_EXIT_CODES: standard or legacy
	Workers      int    // ATTESTIX_WORKERS
	Telemetry    bool   // ATTESTIX_TELEMETRY
	OTLPEndpoint string // ATTESTIX_OTLP_ENDPOINT
}

// Load reads configuration from environment variables, falling back to
// the tool defaults.
func Load() *Config {
	logLevel := os.Getenv("ATTESTIX_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "WARN"
	}

	exitCodes := os.Getenv("ATTESTIX_EXIT_CODES")
	if exitCodes == "" {
		exitCodes = "standard"
	}

	workers := 0
	if v := os.Getenv("ATTESTIX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workers = n
		}
	}

	endpoint := os.Getenv("ATTESTIX_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	return &Config{
		LogLevel:     logLevel,
		ExitCodes:    exitCodes,
		Workers:      workers,
		Telemetry:    os.Getenv("ATTESTIX_TELEMETRY") == "true",
		OTLPEndpoint: endpoint,
	}
}
