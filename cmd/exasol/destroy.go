package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exasol-infra/exasol-orchestrator/internal/lifecycle"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
)

var destroyFlags struct {
	deploymentDir string
	autoApprove   bool
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Tear down infrastructure",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := resolveDeployment(destroyFlags.deploymentDir)
		if err != nil {
			return err
		}
		store := state.NewStore(d)
		runner := newRunner()
		reporter, closeReporter := newReporter("destroy", d.ProgressLogFile())
		defer closeReporter()

		var safetyWait func(ctx context.Context) error
		if doc, err := store.Read(); err == nil && doc.CloudProvider == "azure" {
			safetyWait = lifecycle.AzureDestroySafetyWait(doc.CreatedAt)
		}

		err = lifecycle.Destroy(cmd.Context(), lifecycle.DestroyOptions{
			Deployment:  d,
			Store:       store,
			Lock:        newGuard("destroy", d, store, runner, state.StatusDestroyFailed),
			Runner:      runner,
			Reporter:    reporter,
			AutoApprove: destroyFlags.autoApprove,
			Confirm:     confirmDestroy(d.Dir()),
			SafetyWait:  safetyWait,
		})
		if err != nil {
			appMetrics.RecordOperation("destroy", "failure", 0)
			return err
		}
		appMetrics.RecordOperation("destroy", "success", 0)
		fmt.Printf("destroy complete: infrastructure for %s has been removed (directory preserved for audit)\n", d.Dir())
		return nil
	},
}

// confirmDestroy prompts the operator on stdin, per spec.md §7's note that
// destroy requires confirmation unless --auto-approve is given.
func confirmDestroy(dir string) func() bool {
	return func() bool {
		fmt.Printf("destroy infrastructure for %s? [y/N] ", dir)
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		return strings.ToLower(strings.TrimSpace(line)) == "y"
	}
}

func init() {
	f := destroyCmd.Flags()
	f.StringVar(&destroyFlags.deploymentDir, "deployment-dir", ".", "deployment directory")
	f.BoolVar(&destroyFlags.autoApprove, "auto-approve", false, "skip the interactive confirmation prompt")
}
