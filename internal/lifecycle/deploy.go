package lifecycle

import (
	"context"
	"time"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
	"github.com/exasol-infra/exasol-orchestrator/internal/progress"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
)

// reachabilityDelay is the fixed delay before the first SSH reachability
// probe during deploy, per spec.md §4.6 step 4.
const reachabilityDelay = 30 * time.Second

// DeployOptions configures one deploy run.
type DeployOptions struct {
	Deployment   *paths.Deployment
	Store        *state.Store
	Lock         *Guard // caller constructs with FailureStatus = StatusDeploymentFailed
	Runner       ToolRunner
	Reporter     *progress.Reporter
	ProbeSSH     func(ctx context.Context) error // waits for instances to accept SSH
}

// Deploy drives the infra-as-code tool and the configuration-management
// tool to bring a freshly-initialized deployment up to database_ready, per
// spec.md §4.6's Deploy algorithm.
func Deploy(ctx context.Context, opts DeployOptions) error {
	doc, err := opts.Store.Read()
	if err != nil {
		return err
	}
	if doc.Status != state.StatusInitialized {
		return orcherrors.Preconditionf("deploy requires status=initialized, got %q", doc.Status)
	}

	return opts.Lock.Run(ctx, func(ctx context.Context) error {
		if err := opts.Store.SetStatus(state.StatusDeployInProgress); err != nil {
			return err
		}

		if err := opts.Reporter.Step("terraform", "init", "initializing infra-as-code working directory", func() error {
			_, err := opts.Runner.Run(ctx, opts.Deployment.Dir(), "tofu", "init")
			return err
		}); err != nil {
			return err
		}

		if err := opts.Reporter.Step("terraform", "plan", "planning infrastructure changes", func() error {
			_, err := opts.Runner.Run(ctx, opts.Deployment.Dir(), "tofu", "plan", "-out="+opts.Deployment.TerraformPlanFile())
			return err
		}); err != nil {
			return err
		}

		if err := opts.Reporter.Step("terraform", "apply", "applying infrastructure plan", func() error {
			_, err := opts.Runner.Run(ctx, opts.Deployment.Dir(), "tofu", "apply", "-auto-approve", opts.Deployment.TerraformPlanFile())
			return err
		}); err != nil {
			return err
		}

		if err := opts.Reporter.Step("ssh", "wait_reachable", "waiting for instances to become reachable", func() error {
			return waitThenProbe(ctx, opts.ProbeSSH)
		}); err != nil {
			return err
		}

		if err := opts.Reporter.Step("ansible", "configure", "installing and configuring Exasol", func() error {
			_, err := opts.Runner.Run(ctx, opts.Deployment.Dir(), "ansible-playbook",
				"-i", opts.Deployment.InventoryFile(), "site.yml")
			return err
		}); err != nil {
			return err
		}

		if err := opts.Store.SetStatus(state.StatusDatabaseReady); err != nil {
			return err
		}
		opts.Lock.MarkSucceeded()
		return nil
	})
}

func waitThenProbe(ctx context.Context, probe func(ctx context.Context) error) error {
	if probe == nil {
		return nil
	}
	select {
	case <-time.After(reachabilityDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return probe(ctx)
}

// azureNICReservationWindow is how long Azure holds a NIC reservation
// against the subscription's per-region quota after creation, per spec.md
// §4.6 step 4 / §6: destroying before this window elapses can race the
// reservation and leave the subscription over quota.
const azureNICReservationWindow = 240 * time.Second

// AzureDestroySafetyWait returns a DestroyOptions.SafetyWait that blocks
// until azureNICReservationWindow has elapsed since createdAt, or ctx is
// cancelled.
func AzureDestroySafetyWait(createdAt time.Time) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		remaining := azureNICReservationWindow - time.Since(createdAt)
		if remaining <= 0 {
			return nil
		}
		select {
		case <-time.After(remaining):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// DestroyOptions configures one destroy run.
type DestroyOptions struct {
	Deployment   *paths.Deployment
	Store        *state.Store
	Lock         *Guard // caller constructs with FailureStatus = StatusDestroyFailed
	Runner       ToolRunner
	Reporter     *progress.Reporter
	AutoApprove  bool
	Confirm      func() bool // prompts the operator; ignored if AutoApprove
	SafetyWait   func(ctx context.Context) error // provider-specific safety wait, e.g. Azure's 240s NIC wait
}

// Destroy tears down infrastructure and removes generated artifacts, per
// spec.md §4.6's Destroy algorithm.
func Destroy(ctx context.Context, opts DestroyOptions) error {
	if !opts.Deployment.Exists() || !opts.Deployment.IsInitialized() {
		return orcherrors.Fatal("deployment directory is not a valid deployment")
	}

	if !statExists(opts.Deployment.TerraformStateFile()) {
		return opts.Store.SetStatus(state.StatusDestroyed)
	}

	if !opts.AutoApprove {
		if opts.Confirm == nil || !opts.Confirm() {
			return orcherrors.Precondition("destroy was not confirmed")
		}
	}

	return opts.Lock.Run(ctx, func(ctx context.Context) error {
		if err := opts.Store.SetStatus(state.StatusDestroyInProgress); err != nil {
			return err
		}

		if opts.SafetyWait != nil {
			if err := opts.Reporter.Step("destroy", "safety_wait", "waiting out provider-specific safety window", func() error {
				return opts.SafetyWait(ctx)
			}); err != nil {
				return err
			}
		}

		if err := opts.Reporter.Step("terraform", "destroy", "destroying infrastructure", func() error {
			_, err := opts.Runner.Run(ctx, opts.Deployment.Dir(), "tofu", "destroy", "-auto-approve")
			return err
		}); err != nil {
			return err
		}

		opts.Reporter.Emit("destroy", "cleanup", "ok", "removing generated artifacts")
		for _, f := range []string{
			opts.Deployment.InventoryFile(),
			opts.Deployment.SSHConfigFile(),
			opts.Deployment.TerraformPlanFile(),
			opts.Deployment.SSHKeyFile(),
			opts.Deployment.TerraformStateFile(),
		} {
			removeIfExists(f)
		}

		if err := opts.Store.SetStatus(state.StatusDestroyed); err != nil {
			return err
		}
		opts.Lock.MarkSucceeded()
		return nil
	})
}

func removeIfExists(path string) {
	_ = osRemove(path)
}
