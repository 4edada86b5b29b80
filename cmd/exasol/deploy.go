package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exasol-infra/exasol-orchestrator/internal/health"
	"github.com/exasol-infra/exasol-orchestrator/internal/inventory"
	"github.com/exasol-infra/exasol-orchestrator/internal/lifecycle"
	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
)

var deployFlags struct {
	deploymentDir string
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Apply infrastructure and configure the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := resolveDeployment(deployFlags.deploymentDir)
		if err != nil {
			return err
		}
		store := state.NewStore(d)
		runner := newRunner()
		reporter, closeReporter := newReporter("deploy", d.ProgressLogFile())
		defer closeReporter()

		probeSSH, err := sshReachabilityProbe(d)
		if err != nil {
			appLogger.Warn("SSH reachability probe unavailable, deploy will not wait for SSH", "error", err)
		}

		err = lifecycle.Deploy(cmd.Context(), lifecycle.DeployOptions{
			Deployment: d,
			Store:      store,
			Lock:       newGuard("deploy", d, store, runner, state.StatusDeploymentFailed),
			Runner:     runner,
			Reporter:   reporter,
			ProbeSSH:   probeSSH,
		})
		if err != nil {
			appMetrics.RecordOperation("deploy", "failure", 0)
			return err
		}
		appMetrics.RecordOperation("deploy", "success", 0)
		fmt.Printf("deploy complete: %s is database_ready\n", d.Dir())
		return nil
	},
}

// sshReachabilityProbe fans a single SSH dial out across every inventory
// node, used by deploy to wait for instances to accept connections before
// handing off to configuration management (spec.md §4.6 step 4).
func sshReachabilityProbe(d *paths.Deployment) (func(ctx context.Context) error, error) {
	deps, err := health.NewDependencies(health.ProbeConfig{
		SSHUser:    appConfig.SSH.User,
		SSHKeyPath: appConfig.SSH.KeyPath,
	})
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		inv, err := inventory.Load(d.InventoryFile())
		if err != nil {
			return err
		}
		for _, n := range inv.Nodes() {
			host := n.Vars["ansible_host"]
			if host == "" {
				continue
			}
			if err := deps.ProbeSSH(ctx, host); err != nil {
				return fmt.Errorf("node %s not reachable over SSH: %w", n.Name, err)
			}
		}
		return nil
	}, nil
}

func init() {
	f := deployCmd.Flags()
	f.StringVar(&deployFlags.deploymentDir, "deployment-dir", ".", "deployment directory")
}
