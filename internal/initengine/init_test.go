package initengine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exasol-infra/exasol-orchestrator/internal/catalog"
	"github.com/exasol-infra/exasol-orchestrator/internal/progress"
)

const sampleVersionsConf = `[exasol-2025.1.8]
ARCHITECTURE=x86_64
DB_VERSION=8.1.8
DB_DOWNLOAD_URL=https://example.test/db.tar.gz
DB_CHECKSUM=sha256:deadbeef
C4_VERSION=1.0.0
C4_DOWNLOAD_URL=https://example.test/c4.tar.gz
C4_CHECKSUM=sha256:cafef00d

[default]
VERSION=exasol-2025.1.8
`

const sampleInstanceTypesConf = `[aws-x86_64]
INSTANCE_TYPE=r5.2xlarge
`

func loadCatalog(t *testing.T, content string) *catalog.Document {
	t.Helper()
	doc, err := catalog.Parse(strings.NewReader(content))
	require.NoError(t, err)
	return doc
}

func TestRunHappyPath(t *testing.T) {
	versions := loadCatalog(t, sampleVersionsConf)
	instanceTypes := loadCatalog(t, sampleInstanceTypesConf)

	deployDir := filepath.Join(t.TempDir(), "deploy")
	reporter := progress.New("init")

	result, err := Run(Options{
		CloudProvider:        "aws",
		DeploymentDir:        deployDir,
		VersionsCatalog:      versions,
		InstanceTypesCatalog: instanceTypes,
		ProviderFlags:        map[string]string{"aws-region": "eu-central-1"},
	}, reporter)
	require.NoError(t, err)

	assert.Equal(t, "exasol-2025.1.8", result.Version.Name)
	assert.Equal(t, "8.1.8", result.State.DBVersion)
	assert.True(t, result.Deployment.IsInitialized())

	tfvarsData, err := os.ReadFile(result.Deployment.TfvarsFile())
	require.NoError(t, err)
	assert.Contains(t, string(tfvarsData), `aws_region = "eu-central-1"`)
	assert.Contains(t, string(tfvarsData), `instance_type = "r5.2xlarge"`)
	assert.Contains(t, string(tfvarsData), `node_count = 1`)

	credsData, err := os.ReadFile(result.Deployment.CredentialsFile())
	require.NoError(t, err)
	assert.Contains(t, string(credsData), "deadbeef")
	assert.NotContains(t, string(credsData), "sha256:")
}

func TestRunRejectsUnsupportedProvider(t *testing.T) {
	versions := loadCatalog(t, sampleVersionsConf)
	instanceTypes := loadCatalog(t, sampleInstanceTypesConf)

	_, err := Run(Options{
		CloudProvider:        "openstack",
		DeploymentDir:        filepath.Join(t.TempDir(), "deploy"),
		VersionsCatalog:      versions,
		InstanceTypesCatalog: instanceTypes,
	}, progress.New("init"))
	require.Error(t, err)
}

func TestRunRejectsAlreadyInitialized(t *testing.T) {
	versions := loadCatalog(t, sampleVersionsConf)
	instanceTypes := loadCatalog(t, sampleInstanceTypesConf)
	deployDir := filepath.Join(t.TempDir(), "deploy")

	opts := Options{
		CloudProvider:        "aws",
		DeploymentDir:        deployDir,
		VersionsCatalog:      versions,
		InstanceTypesCatalog: instanceTypes,
		ProviderFlags:        map[string]string{"aws-region": "eu-central-1"},
	}

	_, err := Run(opts, progress.New("init"))
	require.NoError(t, err)

	_, err = Run(opts, progress.New("init"))
	require.Error(t, err)
}

func TestRunRejectsDigitalOceanARM64(t *testing.T) {
	versions := loadCatalog(t, `[exasol-2025.1.8-arm64]
ARCHITECTURE=arm64
DB_VERSION=8.1.8
DB_DOWNLOAD_URL=https://example.test/db.tar.gz
DB_CHECKSUM=sha256:deadbeef
C4_VERSION=1.0.0
C4_DOWNLOAD_URL=https://example.test/c4.tar.gz
C4_CHECKSUM=sha256:cafef00d
`)
	instanceTypes := loadCatalog(t, `[digitalocean-arm64]
INSTANCE_TYPE=s-4vcpu-8gb
`)

	_, err := Run(Options{
		CloudProvider:        "digitalocean",
		DeploymentDir:        filepath.Join(t.TempDir(), "deploy"),
		DBVersion:            "exasol-2025.1.8-arm64",
		VersionsCatalog:      versions,
		InstanceTypesCatalog: instanceTypes,
	}, progress.New("init"))
	require.Error(t, err)
}
