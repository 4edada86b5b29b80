// Package initengine implements the Init Engine from spec.md §4.5: it
// validates a requested (provider, version, instance-type) tuple,
// materializes a fresh deployment directory, and seeds its state,
// credentials, templates, and variables.auto.tfvars.
package initengine

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/exasol-infra/exasol-orchestrator/internal/catalog"
	"github.com/exasol-infra/exasol-orchestrator/internal/credentials"
	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
	"github.com/exasol-infra/exasol-orchestrator/internal/progress"
	"github.com/exasol-infra/exasol-orchestrator/internal/provider"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
	"github.com/exasol-infra/exasol-orchestrator/internal/tfvars"
)

// Options captures every `init` input from spec.md §4.5.
type Options struct {
	CloudProvider string
	DeploymentDir string
	DBVersion     string // defaults to "default" alias if empty
	ClusterSize   int    // defaults to 1
	InstanceType  string // resolved from the instance-types catalog if empty

	Volumes                int
	DataVolumesPerNode     int
	RootVolumeSize         int
	EnableMulticastOverlay bool
	CIDR                   string
	Owner                  string

	DBPassword      string
	AdminUIPassword string
	HostPassword    string

	// ProviderFlags carries the provider-specific flags enumerated in
	// spec.md §6 (e.g. "aws-region" -> "eu-central-1"), written verbatim
	// into variables.auto.tfvars.
	ProviderFlags map[string]string

	VersionsCatalog      *catalog.Document
	InstanceTypesCatalog *catalog.Document
	Templates            TemplateSource

	Logger *slog.Logger
}

// Result is what a successful init run produced.
type Result struct {
	Deployment *paths.Deployment
	State      *state.Document
	Version    *catalog.VersionSection
}

// Run executes the full init algorithm from spec.md §4.5, steps 1-10,
// emitting a progress event at each major step via reporter.
func Run(opts Options, reporter *progress.Reporter) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := provider.RequireSupported(opts.CloudProvider); err != nil {
		return nil, err
	}

	dbVersion := opts.DBVersion
	if dbVersion == "" {
		dbVersion = "default"
	}

	var version *catalog.VersionSection
	err := reporter.Step("init", "resolve_version", "resolving version and validating provider compatibility", func() error {
		v, err := opts.VersionsCatalog.ResolveVersion(dbVersion)
		if err != nil {
			return err
		}
		if err := provider.CheckArchitecture(opts.CloudProvider, v.Architecture); err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	instanceType := opts.InstanceType
	if instanceType == "" {
		err := reporter.Step("init", "resolve_instance_type", "resolving default instance type", func() error {
			it, err := opts.InstanceTypesCatalog.DefaultInstanceType(opts.CloudProvider, version.Architecture)
			if err != nil {
				return err
			}
			instanceType = it
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	clusterSize := opts.ClusterSize
	if clusterSize <= 0 {
		clusterSize = 1
	}

	creds := &credentials.Document{
		DBPassword:      opts.DBPassword,
		AdminUIPassword: opts.AdminUIPassword,
		HostPassword:    opts.HostPassword,
		DBVersion:       version.DBVersion,
		Architecture:    version.Architecture,
		DBDownloadURL:   version.DBDownloadURL,
		DBChecksum:      credentials.NormalizeChecksum(version.DBChecksum),
		C4DownloadURL:   version.C4DownloadURL,
		C4Checksum:      credentials.NormalizeChecksum(version.C4Checksum),
	}
	if err := reporter.Step("init", "generate_passwords", "generating missing credentials", func() error {
		return credentials.FillMissingPasswords(creds)
	}); err != nil {
		return nil, err
	}

	deployment, err := paths.New(opts.DeploymentDir)
	if err != nil {
		return nil, orcherrors.Internal("failed to resolve deployment directory", err)
	}

	if err := reporter.Step("init", "create_directory", "verifying deployment directory is fresh", func() error {
		if deployment.IsInitialized() {
			return orcherrors.Preconditionf("deployment directory %q is already initialized", deployment.Dir())
		}
		return deployment.EnsureDirs()
	}); err != nil {
		return nil, err
	}

	store := state.NewStore(deployment)
	var doc *state.Document
	if err := reporter.Step("init", "seed_state", "seeding deployment state", func() error {
		d, err := store.Init(opts.CloudProvider, version.DBVersion, version.Architecture, clusterSize)
		if err != nil {
			return err
		}
		doc = d
		return nil
	}); err != nil {
		return nil, err
	}

	if err := reporter.Step("init", "copy_templates", "copying shared and provider templates", func() error {
		if err := opts.Templates.CopyInto(deployment.TemplatesDir(), opts.CloudProvider); err != nil {
			return err
		}
		return opts.Templates.LinkRootFiles(deployment.Dir(), opts.CloudProvider)
	}); err != nil {
		return nil, err
	}

	if err := reporter.Step("init", "write_tfvars", "writing variables.auto.tfvars", func() error {
		return writeTfvars(deployment, opts, instanceType, version.Architecture)
	}); err != nil {
		return nil, err
	}

	if err := reporter.Step("init", "write_credentials", "writing credentials document", func() error {
		return credentials.Write(deployment, creds)
	}); err != nil {
		return nil, err
	}

	logger.Info("init complete", "deployment_dir", deployment.Dir(), "provider", opts.CloudProvider, "version", version.Name)

	return &Result{Deployment: deployment, State: doc, Version: version}, nil
}

func writeTfvars(d *paths.Deployment, opts Options, instanceType, architecture string) error {
	w := tfvars.NewWriter().
		Set("cloud_provider", tfvars.String(opts.CloudProvider)).
		Set("cluster_size", tfvars.Int(max(opts.ClusterSize, 1))).
		Set("node_count", tfvars.Int(max(opts.ClusterSize, 1))).
		Set("instance_type", tfvars.String(instanceType)).
		Set("instance_architecture", tfvars.String(architecture))

	if opts.Volumes > 0 {
		w.Set("volumes", tfvars.Int(opts.Volumes))
	}
	if opts.DataVolumesPerNode > 0 {
		w.Set("data_volumes_per_node", tfvars.Int(opts.DataVolumesPerNode))
	}
	if opts.RootVolumeSize > 0 {
		w.Set("root_volume_size", tfvars.Int(opts.RootVolumeSize))
	}
	if opts.EnableMulticastOverlay {
		w.Set("enable_multicast_overlay", tfvars.Bool(true))
	}
	if opts.CIDR != "" {
		w.Set("cidr", tfvars.String(opts.CIDR))
	}
	if opts.Owner != "" {
		w.Set("owner", tfvars.String(opts.Owner))
	}
	for _, k := range sortedKeys(opts.ProviderFlags) {
		w.Set(tfvarsKey(k), tfvars.String(opts.ProviderFlags[k]))
	}

	return w.WriteFile(d.TfvarsFile())
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// tfvarsKey converts a CLI flag name (e.g. "aws-region") into a valid HCL
// variable name (e.g. "aws_region"), per spec.md §8's worked example.
func tfvarsKey(flagName string) string {
	return strings.ReplaceAll(flagName, "-", "_")
}
