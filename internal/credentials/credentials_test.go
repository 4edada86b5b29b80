package credentials

import (
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
)

func TestGeneratePasswordLengthAndAlphabet(t *testing.T) {
	pw, err := GeneratePassword()
	require.NoError(t, err)
	assert.Len(t, pw, passwordLength)

	for _, r := range pw {
		assert.Contains(t, passwordAlphabet, string(r))
	}
}

func TestGeneratePasswordIsRandom(t *testing.T) {
	a, err := GeneratePassword()
	require.NoError(t, err)
	b, err := GeneratePassword()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFillMissingPasswordsLeavesSuppliedValuesAlone(t *testing.T) {
	doc := &Document{DBPassword: "operator-supplied"}
	require.NoError(t, FillMissingPasswords(doc))

	assert.Equal(t, "operator-supplied", doc.DBPassword)
	assert.Len(t, doc.AdminUIPassword, passwordLength)
	assert.Len(t, doc.HostPassword, passwordLength)
}

func TestNormalizeChecksum(t *testing.T) {
	assert.Equal(t, "deadbeef", NormalizeChecksum("sha256:deadbeef"))
	assert.Equal(t, "deadbeef", NormalizeChecksum("deadbeef"))
}

func TestWriteReadRoundTrip(t *testing.T) {
	d, err := paths.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.EnsureDirs())

	doc := &Document{DBPassword: "x", AdminUIPassword: "y", HostPassword: "z", DBVersion: "exasol-2025.1.8"}
	require.NoError(t, Write(d, doc))

	loaded, err := Read(d)
	require.NoError(t, err)
	assert.Equal(t, doc.DBPassword, loaded.DBPassword)
	assert.Equal(t, doc.DBVersion, loaded.DBVersion)
}

func TestWriteSetsRestrictivePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permission bits not meaningful on windows")
	}

	d, err := paths.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.EnsureDirs())
	require.NoError(t, Write(d, &Document{}))

	info, err := os.Stat(d.CredentialsFile())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestReadMissing(t *testing.T) {
	d, err := paths.New(t.TempDir())
	require.NoError(t, err)

	_, err = Read(d)
	require.Error(t, err)
}
