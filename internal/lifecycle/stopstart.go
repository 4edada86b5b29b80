package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
	"github.com/exasol-infra/exasol-orchestrator/internal/progress"
	"github.com/exasol-infra/exasol-orchestrator/internal/provider"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
)

// StartTimeout is the default bound on waiting for database_ready after a
// start, per spec.md §5's "start uses a 15-minute default".
const StartTimeout = 15 * time.Minute

// StopOptions configures one stop run.
type StopOptions struct {
	Deployment    *paths.Deployment
	Store         *state.Store
	Lock          *Guard // caller constructs with FailureStatus = StatusStopFailed
	Runner        ToolRunner
	Reporter      *progress.Reporter
	CloudProvider string
}

// Stop halts database services and, for API-power providers, powers the
// nodes off, per spec.md §4.7's Stop algorithm.
func Stop(ctx context.Context, opts StopOptions) error {
	doc, err := opts.Store.Read()
	if err != nil {
		return err
	}
	switch doc.Status {
	case state.StatusDatabaseReady, state.StatusDatabaseConnectionFailed, state.StatusStopFailed:
	default:
		return orcherrors.Preconditionf("stop requires status in {database_ready, database_connection_failed, stop_failed}, got %q", doc.Status)
	}

	apiPower, err := provider.IsAPIPower(opts.CloudProvider)
	if err != nil {
		return err
	}

	return opts.Lock.Run(ctx, func(ctx context.Context) error {
		if err := opts.Store.SetStatus(state.StatusStopInProgress); err != nil {
			return err
		}

		if err := opts.Reporter.Step("ansible", "stop_services", "stopping database services", func() error {
			args := []string{"-i", opts.Deployment.InventoryFile(), "stop.yml"}
			if !apiPower {
				args = append(args, "-e", "power_off_fallback=true")
			}
			_, err := opts.Runner.Run(ctx, opts.Deployment.Dir(), "ansible-playbook", args...)
			return err
		}); err != nil {
			return err
		}

		if apiPower {
			if err := opts.Reporter.Step("terraform", "power_off", "powering off instances", func() error {
				_, err := opts.Runner.Run(ctx, opts.Deployment.Dir(), "tofu", "apply", "-auto-approve",
					"-var", "infra_desired_state=stopped")
				return err
			}); err != nil {
				return err
			}
		}

		if err := opts.Store.SetStatus(state.StatusStopped); err != nil {
			return err
		}
		opts.Lock.MarkSucceeded()
		return nil
	})
}

// StartOptions configures one start run.
type StartOptions struct {
	Deployment    *paths.Deployment
	Store         *state.Store
	Lock          *Guard // caller constructs with FailureStatus = StatusStartFailed
	Runner        ToolRunner
	Reporter      *progress.Reporter
	CloudProvider string

	// WaitSSHReachable blocks until instances answer SSH (API-power path).
	WaitSSHReachable func(ctx context.Context) error
	// PrintManualInstructions prints console/CLI guidance for manual-power
	// providers.
	PrintManualInstructions func(providerName string)
	// WaitForDatabaseReady polls the health engine until database_ready or
	// StartTimeout elapses.
	WaitForDatabaseReady func(ctx context.Context, timeout time.Duration) error
}

// Start powers nodes back on (API-power) or waits for the operator to do
// so (manual-power), then polls health until database_ready, per
// spec.md §4.7's Start algorithm.
func Start(ctx context.Context, opts StartOptions) error {
	doc, err := opts.Store.Read()
	if err != nil {
		return err
	}
	switch doc.Status {
	case state.StatusStopped, state.StatusStartFailed:
	default:
		return orcherrors.Preconditionf("start requires status in {stopped, start_failed}, got %q", doc.Status)
	}

	apiPower, err := provider.IsAPIPower(opts.CloudProvider)
	if err != nil {
		return err
	}

	// The lock is held only for the part of start that touches the
	// deployment's infrastructure and state document: powering on (or
	// prompting the operator) and the transition to started. The subsequent
	// health poll can run for up to StartTimeout and is not "the external
	// operation plus bookkeeping", so it runs after the lock is released.
	err = opts.Lock.Run(ctx, func(ctx context.Context) error {
		if err := opts.Store.SetStatus(state.StatusStartInProgress); err != nil {
			return err
		}

		if apiPower {
			if err := opts.Reporter.Step("terraform", "power_on", "powering on instances", func() error {
				_, err := opts.Runner.Run(ctx, opts.Deployment.Dir(), "tofu", "apply", "-auto-approve",
					"-var", "infra_desired_state=running")
				return err
			}); err != nil {
				return err
			}
			if opts.WaitSSHReachable != nil {
				if err := opts.Reporter.Step("ssh", "wait_reachable", "waiting for SSH reachability", func() error {
					return opts.WaitSSHReachable(ctx)
				}); err != nil {
					return err
				}
			}
		} else {
			if opts.PrintManualInstructions != nil {
				opts.PrintManualInstructions(opts.CloudProvider)
			}
			opts.Reporter.Emit("start", "manual_power", "ok",
				fmt.Sprintf("power on the %s instances through the provider console or CLI; health polling will detect readiness", opts.CloudProvider))
		}

		if err := opts.Store.SetStatus(state.StatusStarted); err != nil {
			return err
		}

		opts.Lock.MarkSucceeded()
		return nil
	})
	if err != nil {
		return err
	}

	if opts.WaitForDatabaseReady != nil {
		if err := opts.Reporter.Step("health", "wait_for_database_ready", "waiting for database_ready", func() error {
			return opts.WaitForDatabaseReady(ctx, StartTimeout)
		}); err != nil {
			if setErr := opts.Store.SetStatus(state.StatusStartFailed); setErr != nil {
				return setErr
			}
			return orcherrors.Preconditionf("start did not reach database_ready: %v", err)
		}
	}

	return nil
}
