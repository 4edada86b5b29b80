package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/exasol-infra/exasol-orchestrator/internal/health"
	"github.com/exasol-infra/exasol-orchestrator/internal/lifecycle"
	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
)

var startFlags struct {
	deploymentDir string
	noWait        bool
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Restart a stopped deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := resolveDeployment(startFlags.deploymentDir)
		if err != nil {
			return err
		}
		store := state.NewStore(d)
		doc, err := store.Read()
		if err != nil {
			return err
		}
		runner := newRunner()
		reporter, closeReporter := newReporter("start", d.ProgressLogFile())
		defer closeReporter()

		waitSSH, err := sshReachabilityProbe(d)
		if err != nil {
			appLogger.Warn("SSH reachability probe unavailable, start will not wait for SSH", "error", err)
		}

		opts := lifecycle.StartOptions{
			Deployment:    d,
			Store:         store,
			Lock:          newGuard("start", d, store, runner, state.StatusStartFailed),
			Runner:        runner,
			Reporter:      reporter,
			CloudProvider: doc.CloudProvider,
			WaitSSHReachable: waitSSH,
			PrintManualInstructions: func(providerName string) {
				fmt.Printf("power on the %s instances through the provider console or CLI, then re-run `exasol health --deployment-dir %s --wait-for database_ready`\n", providerName, d.Dir())
			},
		}
		if !startFlags.noWait {
			opts.WaitForDatabaseReady = func(ctx context.Context, timeout time.Duration) error {
				return waitForDatabaseReady(ctx, d, store, timeout)
			}
		}

		if err := lifecycle.Start(cmd.Context(), opts); err != nil {
			appMetrics.RecordOperation("start", "failure", 0)
			return err
		}
		appMetrics.RecordOperation("start", "success", 0)
		fmt.Printf("start complete: %s is database_ready\n", d.Dir())
		return nil
	},
}

func waitForDatabaseReady(ctx context.Context, d *paths.Deployment, store *state.Store, timeout time.Duration) error {
	deps, err := health.NewDependencies(health.ProbeConfig{
		SSHUser:            appConfig.SSH.User,
		SSHKeyPath:         appConfig.SSH.KeyPath,
		RateLimitHz:        appConfig.SSH.RateLimitHz,
		RateLimitBurst:     appConfig.SSH.RateLimitBurst,
		TerraformStateFile: d.TerraformStateFile(),
	})
	if err != nil {
		return err
	}
	_, err = health.WaitFor(ctx, health.Options{
		Deployment: d,
		Store:      store,
		Deps:       deps,
		Update:     true,
	}, state.StatusDatabaseReady, timeout, 10*time.Second)
	return err
}

func init() {
	f := startCmd.Flags()
	f.StringVar(&startFlags.deploymentDir, "deployment-dir", ".", "deployment directory")
	f.BoolVar(&startFlags.noWait, "no-wait", false, "return immediately after power-on instead of polling for database_ready")
}
