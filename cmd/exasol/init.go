package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/exasol-infra/exasol-orchestrator/internal/initengine"
	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
	"github.com/exasol-infra/exasol-orchestrator/internal/provider"
)

var initFlags struct {
	cloudProvider string
	deploymentDir string
	dbVersion     string
	clusterSize   int
	instanceType  string

	dataVolumeSize         int
	dataVolumesPerNode     int
	rootVolumeSize         int
	owner                  string
	allowedCIDR            string
	dbPassword             string
	adminUIPassword        string
	hostPassword           string
	enableMulticastOverlay bool

	listProviders   bool
	listVersions    bool
	showPermissions bool

	providerFlags map[string]*string
}

// providerFlagSchema is the full set of provider-specific flags from
// spec.md §6, gathered once from the provider registry so the CLI table
// and the validation logic never drift apart.
func providerFlagSchema() map[string]provider.Flag {
	out := map[string]provider.Flag{}
	for _, name := range provider.Names() {
		d, err := provider.Lookup(name)
		if err != nil {
			continue
		}
		for _, f := range d.Flags {
			out[f.Name] = f
		}
	}
	return out
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Materialize a new deployment directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if initFlags.listProviders {
			for _, name := range provider.Names() {
				fmt.Println(name)
			}
			return nil
		}

		if initFlags.showPermissions {
			return runShowPermissions(initFlags.cloudProvider)
		}

		versions, err := loadVersionsCatalog()
		if err != nil {
			return err
		}

		if initFlags.listVersions {
			for _, name := range versions.NonLocalVersionSections() {
				fmt.Println(name)
			}
			return nil
		}

		if initFlags.cloudProvider == "" {
			return orcherrors.Validation("--cloud-provider is required")
		}
		if err := provider.RequireSupported(initFlags.cloudProvider); err != nil {
			return err
		}

		instanceTypes, err := loadInstanceTypesCatalog()
		if err != nil {
			return err
		}

		providerFlags := map[string]string{}
		for name, val := range initFlags.providerFlags {
			if *val != "" {
				providerFlags[name] = *val
			}
		}

		reporter, closeReporter := newReporter("init", "")
		defer closeReporter()

		result, err := initengine.Run(initengine.Options{
			CloudProvider:          initFlags.cloudProvider,
			DeploymentDir:          initFlags.deploymentDir,
			DBVersion:              initFlags.dbVersion,
			ClusterSize:            initFlags.clusterSize,
			InstanceType:           initFlags.instanceType,
			Volumes:                initFlags.dataVolumeSize,
			DataVolumesPerNode:     initFlags.dataVolumesPerNode,
			RootVolumeSize:         initFlags.rootVolumeSize,
			EnableMulticastOverlay: initFlags.enableMulticastOverlay,
			CIDR:                   initFlags.allowedCIDR,
			Owner:                  initFlags.owner,
			DBPassword:             initFlags.dbPassword,
			AdminUIPassword:        initFlags.adminUIPassword,
			HostPassword:           initFlags.hostPassword,
			ProviderFlags:          providerFlags,
			VersionsCatalog:        versions,
			InstanceTypesCatalog:   instanceTypes,
			Templates:              initengine.TemplateSource{Root: templatesRoot()},
			Logger:                 appLogger,
		}, reporter)
		if err != nil {
			appMetrics.RecordOperation("init", "failure", 0)
			return err
		}
		appMetrics.RecordOperation("init", "success", 0)

		fmt.Printf("initialized %s (provider=%s, version=%s)\n", result.Deployment.Dir(), initFlags.cloudProvider, result.Version.Name)
		return nil
	},
}

func runShowPermissions(name string) error {
	if name == "" {
		return orcherrors.Validation("--cloud-provider is required with --show-permissions")
	}
	d, err := provider.Lookup(name)
	if err != nil {
		return err
	}
	fmt.Printf("%s requires credentials for the following flags:\n", name)
	for _, f := range d.Flags {
		marker := "optional"
		if f.Required {
			marker = "required"
		}
		fmt.Printf("  --%-28s %s\n", f.Name, marker)
	}
	if d.PowerFamily == provider.ManualPower {
		fmt.Println("power control is manual: the operator stops/starts instances through the provider console or CLI")
	}
	return nil
}

// templatesRoot locates the template tree init copies into every fresh
// deployment. Defaults to the conventional installed-package location;
// overridable for local development via EXASOL_TEMPLATES_ROOT.
func templatesRoot() string {
	if root := envOr("EXASOL_TEMPLATES_ROOT", ""); root != "" {
		return root
	}
	return "/usr/share/exasol-orchestrator/templates"
}

func init() {
	f := initCmd.Flags()
	f.StringVar(&initFlags.cloudProvider, "cloud-provider", "", fmt.Sprintf("cloud provider, one of: %v", provider.Names()))
	f.StringVar(&initFlags.deploymentDir, "deployment-dir", ".", "directory to materialize")
	f.StringVar(&initFlags.dbVersion, "db-version", "", "versions.conf section name (default: the \"default\" alias)")
	f.IntVar(&initFlags.clusterSize, "cluster-size", 1, "number of database nodes")
	f.StringVar(&initFlags.instanceType, "instance-type", "", "override the instance-types.conf default")
	f.IntVar(&initFlags.dataVolumeSize, "data-volume-size", 0, "per-volume data disk size in GiB")
	f.IntVar(&initFlags.dataVolumesPerNode, "data-volumes-per-node", 0, "number of data volumes attached to each node")
	f.IntVar(&initFlags.rootVolumeSize, "root-volume-size", 0, "root disk size in GiB")
	f.StringVar(&initFlags.owner, "owner", "", "free-form owner tag applied to provisioned resources")
	f.StringVar(&initFlags.allowedCIDR, "allowed-cidr", "", "CIDR allowed to reach the cluster's management ports")
	f.StringVar(&initFlags.dbPassword, "db-password", "", "database password (generated if omitted)")
	f.StringVar(&initFlags.adminUIPassword, "adminui-password", "", "admin UI password (generated if omitted)")
	f.StringVar(&initFlags.hostPassword, "host-password", "", "host OS user password (generated if omitted)")
	f.BoolVar(&initFlags.enableMulticastOverlay, "enable-multicast-overlay", false, "enable the multicast cluster overlay network")
	f.BoolVar(&initFlags.listProviders, "list-providers", false, "print supported cloud providers and exit")
	f.BoolVar(&initFlags.listVersions, "list-versions", false, "print versions.conf sections and exit")
	f.BoolVar(&initFlags.showPermissions, "show-permissions", false, "print the credentials --cloud-provider requires and exit")

	schema := providerFlagSchema()
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	initFlags.providerFlags = map[string]*string{}
	for _, name := range names {
		initFlags.providerFlags[name] = new(string)
		f.StringVar(initFlags.providerFlags[name], name, "", "provider-specific flag")
	}
}
