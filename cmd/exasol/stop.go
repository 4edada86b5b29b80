package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exasol-infra/exasol-orchestrator/internal/lifecycle"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
)

var stopFlags struct {
	deploymentDir string
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Gracefully stop database services and power off the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := resolveDeployment(stopFlags.deploymentDir)
		if err != nil {
			return err
		}
		store := state.NewStore(d)
		doc, err := store.Read()
		if err != nil {
			return err
		}
		runner := newRunner()
		reporter, closeReporter := newReporter("stop", d.ProgressLogFile())
		defer closeReporter()

		err = lifecycle.Stop(cmd.Context(), lifecycle.StopOptions{
			Deployment:    d,
			Store:         store,
			Lock:          newGuard("stop", d, store, runner, state.StatusStopFailed),
			Runner:        runner,
			Reporter:      reporter,
			CloudProvider: doc.CloudProvider,
		})
		if err != nil {
			appMetrics.RecordOperation("stop", "failure", 0)
			return err
		}
		appMetrics.RecordOperation("stop", "success", 0)
		fmt.Printf("stop complete: %s is stopped\n", d.Dir())
		return nil
	},
}

func init() {
	f := stopCmd.Flags()
	f.StringVar(&stopFlags.deploymentDir, "deployment-dir", ".", "deployment directory")
}
