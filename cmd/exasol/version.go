package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build identifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("exasol version %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return nil
	},
}
