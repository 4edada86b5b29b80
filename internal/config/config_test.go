package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsetEnvKeys(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		original, existed := os.LookupEnv(k)
		require.NoError(t, os.Unsetenv(k))
		if existed {
			t.Cleanup(func() { os.Setenv(k, original) })
		}
	}
}

func TestLoadAppliesBuiltInDefaults(t *testing.T) {
	unsetEnvKeys(t, "EXASOL_VERSIONS_CONFIG", "EXASOL_INSTANCE_TYPES_CONFIG", "EXASOL_DEPLOY_DIR", "EXASOL_SKIP_PROVIDER_CHECKS")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "/etc/exasol-orchestrator/versions.conf", cfg.VersionsConfigPath)
	assert.Equal(t, "/etc/exasol-orchestrator/instance_types.conf", cfg.InstanceTypesConfigPath)
	assert.Equal(t, ".", cfg.DeployDir)
	assert.False(t, cfg.SkipProviderChecks)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "exasol", cfg.SSH.User)
}

func TestLoadEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("EXASOL_VERSIONS_CONFIG", "/srv/versions.conf")
	t.Setenv("EXASOL_DEPLOY_DIR", "/srv/deployments/prod")
	t.Setenv("EXASOL_SKIP_PROVIDER_CHECKS", "true")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "/srv/versions.conf", cfg.VersionsConfigPath)
	assert.Equal(t, "/srv/deployments/prod", cfg.DeployDir)
	assert.True(t, cfg.SkipProviderChecks)
}

func TestLoadFlagOverridesBeatEnvironment(t *testing.T) {
	t.Setenv("EXASOL_DEPLOY_DIR", "/srv/deployments/prod")

	cfg, err := Load(Overrides{DeployDir: "/home/op/my-cluster"})
	require.NoError(t, err)

	assert.Equal(t, "/home/op/my-cluster", cfg.DeployDir)
}

func TestLoadSkipProviderChecksOverrideFalseWinsOverEnvTrue(t *testing.T) {
	t.Setenv("EXASOL_SKIP_PROVIDER_CHECKS", "true")

	no := false
	cfg, err := Load(Overrides{SkipProviderChecks: &no})
	require.NoError(t, err)

	assert.False(t, cfg.SkipProviderChecks)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	_, err := Load(Overrides{LogLevel: "verbose"})
	require.Error(t, err)
}

func TestLoadRejectsFileOutputWithoutFile(t *testing.T) {
	_, err := Load(Overrides{LogOutput: "file"})
	require.Error(t, err)
}

func TestLoadAcceptsFileOutputWithFile(t *testing.T) {
	cfg, err := Load(Overrides{LogOutput: "file", LogFile: "/var/log/exasol-orchestrator.log"})
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Log.Output)
}

func TestLoadRejectsMetricsEnabledWithoutFile(t *testing.T) {
	yes := true
	_, err := Load(Overrides{MetricsEnabled: &yes})
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveRateLimit(t *testing.T) {
	t.Setenv("EXASOL_SSH_RATE_LIMIT_HZ", "0")
	_, err := Load(Overrides{})
	require.Error(t, err)
}
