// Command attestix validates structured manifests against a versioned
// rule contract and emits a machine-checkable verdict usable as a CI
// gate.
package main

import (
	"fmt"
	"io"
	"os"
)

const version = "1.0.0"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "validate":
		return runValidate(args[2:], stdout, stderr)
	case "evidence":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: attestix evidence <verify|merkle>")
			return 2
		}
		return runEvidence(args[2:], stdout, stderr)
	case "version":
		_, _ = fmt.Fprintln(stdout, "attestix "+version)
		return 0
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command %q\n", args[1])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `Usage: attestix <command> [flags]

Commands:
  validate   Validate a document against a rule contract
  evidence   Verify evidence chains and compute merkle roots
  version    Print the tool version`)
}

// multiFlag allows repeatable flag values (e.g. --rule AR001 --rule AR002).
type multiFlag []string

func (f *multiFlag) String() string { return fmt.Sprintf("%v", *f) }
func (f *multiFlag) Set(value string) error {
	*f = append(*f, value)
	return nil
}
