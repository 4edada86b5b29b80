package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	healthpkg "github.com/exasol-infra/exasol-orchestrator/internal/health"
	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
)

var healthFlags struct {
	deploymentDir string
	update        bool
	waitFor       string
	timeout       time.Duration
	interval      time.Duration
	format        string
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run health probes across the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := resolveDeployment(healthFlags.deploymentDir)
		if err != nil {
			return err
		}
		store := state.NewStore(d)

		deps, err := healthpkg.NewDependencies(healthpkg.ProbeConfig{
			SSHUser:            appConfig.SSH.User,
			SSHKeyPath:         appConfig.SSH.KeyPath,
			RateLimitHz:        appConfig.SSH.RateLimitHz,
			RateLimitBurst:     appConfig.SSH.RateLimitBurst,
			TerraformStateFile: d.TerraformStateFile(),
		})
		if err != nil {
			return err
		}

		opts := healthpkg.Options{
			Deployment: d,
			Store:      store,
			Deps:       deps,
			Update:     healthFlags.update,
		}

		var report *healthpkg.Report
		if healthFlags.waitFor != "" {
			target := state.Status(healthFlags.waitFor)
			if !target.Valid() {
				return orcherrors.Validationf("invalid --wait-for status %q", healthFlags.waitFor)
			}
			report, err = healthpkg.WaitFor(cmd.Context(), opts, target, healthFlags.timeout, healthFlags.interval)
		} else {
			report, err = healthpkg.Run(cmd.Context(), opts)
		}
		if err != nil {
			appMetrics.RecordOperation("health", "failure", 0)
			return err
		}

		if healthFlags.format == "json" {
			if jsonErr := printJSON(report); jsonErr != nil {
				return jsonErr
			}
		} else {
			printHealthSummary(report)
		}

		if report.AnyIssue {
			appMetrics.RecordOperation("health", "issues_detected", 0)
			for _, n := range report.Nodes {
				for range n.Issues {
					appMetrics.RecordProbeFailure(n.Name)
				}
			}
			return orcherrors.New(orcherrors.CodeReconciliation, "health probes detected one or more issues")
		}
		appMetrics.RecordOperation("health", "success", 0)
		return nil
	},
}

func printHealthSummary(report *healthpkg.Report) {
	for _, n := range report.Nodes {
		status := "ok"
		if len(n.Issues) > 0 {
			status = "issues"
		}
		fmt.Printf("%-12s %-8s stage=%s\n", n.Name, status, n.ClusterStage)
		for _, issue := range n.Issues {
			fmt.Printf("  - %s\n", issue)
		}
	}
	if report.StatusChanged {
		fmt.Printf("status corrected to %s\n", report.NewStatus)
	}
}

func init() {
	f := healthCmd.Flags()
	f.StringVar(&healthFlags.deploymentDir, "deployment-dir", ".", "deployment directory")
	f.BoolVar(&healthFlags.update, "update", false, "reconcile inventory.ini/ssh_config/INFO.txt and auto-correct status")
	f.StringVar(&healthFlags.waitFor, "wait-for", "", "poll until the deployment reaches this status")
	f.DurationVar(&healthFlags.timeout, "timeout", 15*time.Minute, "maximum time to wait with --wait-for")
	f.DurationVar(&healthFlags.interval, "interval", 10*time.Second, "poll interval with --wait-for")
	f.StringVar(&healthFlags.format, "format", "text", "text or json")
}
