package main

import (
	"github.com/spf13/cobra"

	"github.com/exasol-infra/exasol-orchestrator/internal/lock"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
)

var statusFlags struct {
	deploymentDir string
}

type statusOutput struct {
	*state.Document
	Lock *lock.Document `json:"lock,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current deployment status as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := resolveDeployment(statusFlags.deploymentDir)
		if err != nil {
			return err
		}
		doc, err := state.NewStore(d).Read()
		if err != nil {
			return err
		}

		out := statusOutput{Document: doc}
		if lk := lock.NewManager(d, appLogger); lk.Exists() {
			if info, err := lk.Info(); err == nil {
				out.Lock = info
			}
		}
		return printJSON(out)
	},
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusFlags.deploymentDir, "deployment-dir", ".", "deployment directory")
}
