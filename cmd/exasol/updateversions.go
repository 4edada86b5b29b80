package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/exasol-infra/exasol-orchestrator/internal/catalog"
)

var updateVersionsFlags struct {
	stagingDir   string
	listVersions bool
}

var updateVersionsCmd = &cobra.Command{
	Use:   "update-versions",
	Short: "Discover and append new Exasol releases to versions.conf",
	RunE: func(cmd *cobra.Command, args []string) error {
		if updateVersionsFlags.listVersions {
			versions, err := loadVersionsCatalog()
			if err != nil {
				return err
			}
			for _, name := range versions.NonLocalVersionSections() {
				fmt.Println(name)
			}
			return nil
		}

		stagingDir := updateVersionsFlags.stagingDir
		if stagingDir == "" {
			stagingDir = filepath.Join(os.TempDir(), "exasol-orchestrator-staging")
		}

		result, err := catalog.Update(cmd.Context(), catalog.UpdateOptions{
			CatalogPath: appConfig.VersionsConfigPath,
			StagingDir:  stagingDir,
		})
		if err != nil {
			appMetrics.RecordOperation("update-versions", "failure", 0)
			return err
		}
		appMetrics.RecordOperation("update-versions", "success", 0)

		if len(result.Found) == 0 {
			fmt.Println("no new versions found")
			return nil
		}
		for _, c := range result.Found {
			fmt.Printf("added %s (%s bump: db=%s c4=%s)\n", c.SectionName, c.Kind, c.DBVersion, c.C4Version)
		}
		return nil
	},
}

func init() {
	f := updateVersionsCmd.Flags()
	f.StringVar(&updateVersionsFlags.stagingDir, "staging-dir", "", "directory to stage downloaded archives in (default: a temp directory)")
	f.BoolVar(&updateVersionsFlags.listVersions, "list-versions", false, "print versions.conf sections and exit, without probing upstream")
}
