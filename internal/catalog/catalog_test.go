package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
)

const sampleVersions = `
[exasol-2025.1.8]
ARCHITECTURE=x86_64
DB_VERSION=2025.1.8
DB_DOWNLOAD_URL=https://example.invalid/db/2025.1.8.tar.gz
DB_CHECKSUM=sha256:deadbeef
C4_VERSION=4.2.0
C4_DOWNLOAD_URL=https://example.invalid/c4/4.2.0.tar.gz
C4_CHECKSUM=sha256:cafef00d

[exasol-2025.1.8-arm64]
ARCHITECTURE=arm64
DB_VERSION=2025.1.8
DB_DOWNLOAD_URL=https://example.invalid/db/2025.1.8-arm64.tar.gz
DB_CHECKSUM=sha256:deadbeef2
C4_VERSION=4.2.0
C4_DOWNLOAD_URL=https://example.invalid/c4/4.2.0-arm64.tar.gz
C4_CHECKSUM=sha256:cafef00d2

[default]
VERSION=exasol-2025.1.8

[default-local]
VERSION=exasol-2025.1.8
`

func TestParseSectionsAndLookup(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleVersions))
	require.NoError(t, err)

	assert.Equal(t, []string{"exasol-2025.1.8", "exasol-2025.1.8-arm64", "default", "default-local"}, doc.Sections())

	val, err := doc.Lookup("exasol-2025.1.8", "ARCHITECTURE")
	require.NoError(t, err)
	assert.Equal(t, "x86_64", val)
}

func TestLookupMissingSection(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleVersions))
	require.NoError(t, err)

	_, err = doc.Lookup("does-not-exist", "X")
	require.Error(t, err)
	var orchErr *orcherrors.OrchestratorError
	require.ErrorAs(t, err, &orchErr)
	assert.Equal(t, orcherrors.CodeNotFound, orchErr.Code)
}

func TestLookupMissingKey(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleVersions))
	require.NoError(t, err)

	_, err = doc.Lookup("exasol-2025.1.8", "NOT_A_KEY")
	require.Error(t, err)
	var orchErr *orcherrors.OrchestratorError
	require.ErrorAs(t, err, &orchErr)
	assert.Equal(t, orcherrors.CodeMalformedSection, orchErr.Code)
}

func TestMalformedSectionHeaderRejected(t *testing.T) {
	_, err := Parse(strings.NewReader("[unterminated\nKEY=VALUE\n"))
	require.Error(t, err)
}

func TestKeyBeforeSectionRejected(t *testing.T) {
	_, err := Parse(strings.NewReader("KEY=VALUE\n[a]\n"))
	require.Error(t, err)
}

func TestValidVersionNameGrammar(t *testing.T) {
	accepted := []string{
		"exasol-2025.1.8",
		"exasol-2025.1.8-arm64",
		"exasol-2025.1.8-local",
		"exasol-2025.1.8-arm64-local",
		"exasol-2025.2.0-arm64dev.0",
	}
	for _, name := range accepted {
		assert.True(t, ValidVersionName(name), "expected %q to be accepted", name)
	}

	rejected := []string{
		"exasol",
		"exasol-2025.1",
		"Exasol-2025.1.8",
		"exasol-2025.1.8-windows",
		"exasol-2025.1.8-dev.0",
	}
	for _, name := range rejected {
		assert.False(t, ValidVersionName(name), "expected %q to be rejected", name)
	}
}

func TestResolveVersionDirect(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleVersions))
	require.NoError(t, err)

	v, err := doc.ResolveVersion("exasol-2025.1.8")
	require.NoError(t, err)
	assert.Equal(t, "x86_64", v.Architecture)
	assert.Equal(t, "2025.1.8", v.DBVersion)
}

func TestResolveVersionViaAlias(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleVersions))
	require.NoError(t, err)

	v, err := doc.ResolveVersion("default")
	require.NoError(t, err)
	assert.Equal(t, "exasol-2025.1.8", v.Name)
}

func TestResolveVersionMissingRequiredKey(t *testing.T) {
	doc, err := Parse(strings.NewReader("[exasol-2025.1.8]\nARCHITECTURE=x86_64\n"))
	require.NoError(t, err)

	_, err = doc.ResolveVersion("exasol-2025.1.8")
	require.Error(t, err)
}

func TestVersionExists(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleVersions))
	require.NoError(t, err)

	assert.True(t, doc.VersionExists("exasol-2025.1.8"))
	assert.False(t, doc.VersionExists("exasol-9999.1.1"))
}

func TestNonLocalVersionSections(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleVersions))
	require.NoError(t, err)

	names := doc.NonLocalVersionSections()
	assert.ElementsMatch(t, []string{"exasol-2025.1.8", "exasol-2025.1.8-arm64"}, names)
}

func TestDefaultInstanceType(t *testing.T) {
	doc, err := Parse(strings.NewReader("[aws-x86_64]\nINSTANCE_TYPE=m6i.xlarge\n"))
	require.NoError(t, err)

	val, err := doc.DefaultInstanceType("aws", "x86_64")
	require.NoError(t, err)
	assert.Equal(t, "m6i.xlarge", val)
}

func TestLoadCachesByMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "versions.conf")
	require.NoError(t, os.WriteFile(path, []byte(sampleVersions), 0o644))

	doc1, err := Load(path)
	require.NoError(t, err)

	doc2, err := Load(path)
	require.NoError(t, err)
	assert.Same(t, doc1, doc2)

	// Force a distinguishable mtime before rewriting with new content.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte(sampleVersions+"\n[extra]\nVERSION=exasol-2025.1.8\n"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	doc3, err := Load(path)
	require.NoError(t, err)
	assert.NotSame(t, doc1, doc3)
	assert.True(t, doc3.HasSection("extra"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.conf"))
	require.Error(t, err)
}
