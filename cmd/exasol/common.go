package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/exasol-infra/exasol-orchestrator/internal/catalog"
	"github.com/exasol-infra/exasol-orchestrator/internal/exec"
	"github.com/exasol-infra/exasol-orchestrator/internal/lifecycle"
	"github.com/exasol-infra/exasol-orchestrator/internal/lock"
	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
)

func createTruncate(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadVersionsCatalog resolves and parses versions.conf using the same
// flag/env/default precedence as every other configuration value.
func loadVersionsCatalog() (*catalog.Document, error) {
	return catalog.Load(appConfig.VersionsConfigPath)
}

func loadInstanceTypesCatalog() (*catalog.Document, error) {
	return catalog.Load(appConfig.InstanceTypesConfigPath)
}

// resolveDeployment opens the deployment directory, failing fast with a
// validation error if it has never been initialized.
func resolveDeployment(dir string) (*paths.Deployment, error) {
	d, err := paths.New(dir)
	if err != nil {
		return nil, orcherrors.Internal("failed to resolve deployment directory", err)
	}
	if !d.IsInitialized() {
		return nil, orcherrors.Validationf("%q is not an initialized deployment directory", dir)
	}
	return d, nil
}

// newGuard builds the shared operation guard used by deploy/destroy/stop/
// start, per spec.md §4.6/§4.7's single shared lock-and-signal mechanism.
func newGuard(operation string, d *paths.Deployment, store *state.Store, runner lifecycle.ToolRunner, failureStatus state.Status) *lifecycle.Guard {
	return &lifecycle.Guard{
		Operation:     operation,
		Lock:          lock.NewManager(d, appLogger),
		Store:         store,
		Runner:        runner,
		FailureStatus: failureStatus,
		Logger:        appLogger,
	}
}

func newRunner() *exec.Runner {
	return exec.New()
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return orcherrors.Internal("failed to marshal JSON output", err)
	}
	fmt.Println(string(data))
	return nil
}
