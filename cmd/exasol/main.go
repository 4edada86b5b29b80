// Command exasol provisions, operates, and tears down Exasol database
// clusters across AWS, Azure, GCP, Hetzner, DigitalOcean, Exoscale, OCI,
// and libvirt/KVM.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a returned error to a process exit code, per spec.md
// §7's propagation policy: every orchestrator engine returns an
// *orcherrors.OrchestratorError carrying the right code; anything else
// (a cobra usage error, a flag-parse failure) falls back to a generic
// failure code.
func exitCodeFor(err error) int {
	var oerr *orcherrors.OrchestratorError
	if errors.As(err, &oerr) {
		return oerr.ExitCode()
	}
	return 1
}
