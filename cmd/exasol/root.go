package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/exasol-infra/exasol-orchestrator/internal/config"
	"github.com/exasol-infra/exasol-orchestrator/internal/progress"
	"github.com/exasol-infra/exasol-orchestrator/pkg/logger"
	"github.com/exasol-infra/exasol-orchestrator/pkg/metrics"
)

// version, commit, and buildDate are injected at link time via
// -ldflags "-X main.version=... -X main.commit=... -X main.buildDate=...".
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	flagVersionsConfig      string
	flagInstanceTypesConfig string
	flagDeployDir           string
	flagSkipProviderChecks  bool

	flagLogLevel  string
	flagLogFormat string
	flagLogOutput string
	flagLogFile   string

	flagMetricsFile string

	flagSSHUser    string
	flagSSHKeyPath string
)

var (
	appConfig  *config.Config
	appLogger  *slog.Logger
	appMetrics *metrics.Registry
)

var rootCmd = &cobra.Command{
	Use:           "exasol",
	Short:         "Provision, operate, and tear down Exasol database clusters",
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		overrides := config.Overrides{
			VersionsConfigPath:      flagVersionsConfig,
			InstanceTypesConfigPath: flagInstanceTypesConfig,
			DeployDir:               flagDeployDir,
			LogLevel:                flagLogLevel,
			LogFormat:               flagLogFormat,
			LogOutput:               flagLogOutput,
			LogFile:                 flagLogFile,
			MetricsFile:             flagMetricsFile,
			SSHUser:                 flagSSHUser,
			SSHKeyPath:              flagSSHKeyPath,
		}
		if cmd.Flags().Changed("skip-provider-checks") {
			overrides.SkipProviderChecks = &flagSkipProviderChecks
		}
		if flagMetricsFile != "" {
			enabled := true
			overrides.MetricsEnabled = &enabled
		}

		cfg, err := config.Load(overrides)
		if err != nil {
			return err
		}
		appConfig = cfg
		appLogger = logger.NewLogger(logger.Config{
			Level:    cfg.Log.Level,
			Format:   cfg.Log.Format,
			Output:   cfg.Log.Output,
			Filename: cfg.Log.File,
		})
		slog.SetDefault(appLogger)
		appMetrics = metrics.NewRegistry("exasol")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if appConfig != nil && appConfig.Metrics.Enabled {
			return writeMetricsFile(appConfig.Metrics.File)
		}
		return nil
	},
}

func writeMetricsFile(path string) error {
	f, err := createTruncate(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return appMetrics.WriteTo(f)
}

func init() {
	rootCmd.SetVersionTemplate("exasol version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagVersionsConfig, "versions-config", "", "path to versions.conf (default: $EXASOL_VERSIONS_CONFIG or built-in)")
	pf.StringVar(&flagInstanceTypesConfig, "instance-types-config", "", "path to instance_types.conf (default: $EXASOL_INSTANCE_TYPES_CONFIG or built-in)")
	pf.StringVar(&flagDeployDir, "deploy-dir", "", "base directory the progress reporter logs against (default: $EXASOL_DEPLOY_DIR or \".\")")
	pf.BoolVar(&flagSkipProviderChecks, "skip-provider-checks", false, "bypass provider CLI preflight checks (testing)")

	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn, or error (default: info)")
	pf.StringVar(&flagLogFormat, "log-format", "", "text or json (default: text)")
	pf.StringVar(&flagLogOutput, "log-output", "", "stdout or file (default: stdout)")
	pf.StringVar(&flagLogFile, "log-file", "", "log file path, required when --log-output=file")

	pf.StringVar(&flagMetricsFile, "metrics-file", "", "write Prometheus text-exposition metrics to this path on exit (disabled by default)")

	pf.StringVar(&flagSSHUser, "ssh-user", "", "SSH user for health probes (default: exasol)")
	pf.StringVar(&flagSSHKeyPath, "ssh-key", "", "path to the SSH private key used for health probes")

	rootCmd.AddCommand(initCmd, deployCmd, startCmd, stopCmd, statusCmd, healthCmd, destroyCmd, updateVersionsCmd, versionCmd)
}

// Execute runs the command tree; cmd/exasol's main wraps this with its own
// exit-code mapping instead of letting cobra call os.Exit itself.
func Execute() error {
	return rootCmd.Execute()
}

// newReporter builds the standard two-sink Progress Reporter (stderr for
// the operator, a durable JSON log under the deployment directory) shared
// by every state-changing command.
func newReporter(operation string, progressLogFile string) (*progress.Reporter, func()) {
	r := progress.New(operation, progress.NewStderrSink())
	closeFn := func() {}
	if progressLogFile != "" {
		if sink, err := progress.NewJSONLogSink(progressLogFile); err == nil {
			r.AddSink(sink)
			closeFn = func() { sink.Close() }
		} else {
			appLogger.Warn("failed to open progress log", "path", progressLogFile, "error", err)
		}
	}
	return r, closeFn
}
