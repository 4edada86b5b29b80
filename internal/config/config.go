// Package config loads the orchestrator's process-wide configuration:
// catalog file locations, the default deployment directory, and the
// ambient logging/metrics/SSH settings every subcommand shares. Layering
// follows spec.md §5's precedence — built-in defaults, then
// EXASOL_-prefixed environment variables, then CLI flags — using
// github.com/spf13/viper the way the teacher's internal/config/config.go
// layers its own settings.
package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration.
type Config struct {
	VersionsConfigPath      string `mapstructure:"versions_config"`
	InstanceTypesConfigPath string `mapstructure:"instance_types_config"`
	DeployDir               string `mapstructure:"deploy_dir"`
	SkipProviderChecks      bool   `mapstructure:"skip_provider_checks"`

	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	SSH     SSHConfig     `mapstructure:"ssh"`
}

// LogConfig controls pkg/logger's handler construction.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
	Output string `mapstructure:"output"` // "stdout" or "file"
	File   string `mapstructure:"file"`
}

// MetricsConfig controls the optional Prometheus textfile export.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`
}

// SSHConfig parameterizes the Health Engine's probe dials.
type SSHConfig struct {
	User           string  `mapstructure:"user"`
	KeyPath        string  `mapstructure:"key_path"`
	RateLimitHz    float64 `mapstructure:"rate_limit_hz"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Overrides carries parsed CLI flag values. A zero value for any field
// means "flag not set"; the environment and built-in defaults fall
// through to fill it instead. Flags always win when present.
type Overrides struct {
	VersionsConfigPath      string
	InstanceTypesConfigPath string
	DeployDir               string
	SkipProviderChecks      *bool
	LogLevel                string
	LogFormat               string
	LogOutput               string
	LogFile                 string
	MetricsEnabled          *bool
	MetricsFile             string
	SSHUser                 string
	SSHKeyPath              string
}

// Load resolves a Config from built-in defaults, EXASOL_-prefixed
// environment variables, and the given CLI overrides, in that
// increasing order of precedence.
func Load(overrides Overrides) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EXASOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyOverrides(v, overrides)

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	})); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("versions_config", "/etc/exasol-orchestrator/versions.conf")
	v.SetDefault("instance_types_config", "/etc/exasol-orchestrator/instance_types.conf")
	v.SetDefault("deploy_dir", ".")
	v.SetDefault("skip_provider_checks", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.file", "")

	v.SetDefault("ssh.user", "exasol")
	v.SetDefault("ssh.key_path", "")
	v.SetDefault("ssh.rate_limit_hz", 10.0)
	v.SetDefault("ssh.rate_limit_burst", 10)
}

func applyOverrides(v *viper.Viper, o Overrides) {
	setIfNonEmpty(v, "versions_config", o.VersionsConfigPath)
	setIfNonEmpty(v, "instance_types_config", o.InstanceTypesConfigPath)
	setIfNonEmpty(v, "deploy_dir", o.DeployDir)
	if o.SkipProviderChecks != nil {
		v.Set("skip_provider_checks", *o.SkipProviderChecks)
	}

	setIfNonEmpty(v, "log.level", o.LogLevel)
	setIfNonEmpty(v, "log.format", o.LogFormat)
	setIfNonEmpty(v, "log.output", o.LogOutput)
	setIfNonEmpty(v, "log.file", o.LogFile)

	if o.MetricsEnabled != nil {
		v.Set("metrics.enabled", *o.MetricsEnabled)
	}
	setIfNonEmpty(v, "metrics.file", o.MetricsFile)

	setIfNonEmpty(v, "ssh.user", o.SSHUser)
	setIfNonEmpty(v, "ssh.key_path", o.SSHKeyPath)
}

func setIfNonEmpty(v *viper.Viper, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

// Validate checks the resolved configuration for internally-inconsistent
// values that would otherwise surface as confusing failures deep inside
// an engine.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}

	switch c.Log.Output {
	case "stdout", "file":
	default:
		return fmt.Errorf("invalid log output: %q", c.Log.Output)
	}
	if c.Log.Output == "file" && c.Log.File == "" {
		return fmt.Errorf("log.file is required when log.output is \"file\"")
	}

	if c.Metrics.Enabled && c.Metrics.File == "" {
		return fmt.Errorf("metrics.file is required when metrics.enabled is true")
	}

	if c.SSH.RateLimitHz <= 0 {
		return fmt.Errorf("ssh.rate_limit_hz must be positive, got %v", c.SSH.RateLimitHz)
	}
	if c.SSH.RateLimitBurst <= 0 {
		return fmt.Errorf("ssh.rate_limit_burst must be positive, got %d", c.SSH.RateLimitBurst)
	}

	return nil
}
