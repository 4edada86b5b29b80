package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reachableUpstream serves HEAD/GET for any URL whose path contains one
// of the "reachable" DB/C4 version strings and 404s everything else,
// modeling an upstream that has only published the patch bump.
func reachableUpstream(t *testing.T, reachableVersions ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, v := range reachableVersions {
			if strings.Contains(r.URL.Path, v) {
				w.WriteHeader(http.StatusOK)
				if r.Method == http.MethodGet {
					w.Write([]byte("fake-archive-bytes"))
				}
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
}

func writeCatalog(t *testing.T, dir, dbVersion, c4Version string, srv *httptest.Server) string {
	t.Helper()
	path := filepath.Join(dir, "versions.conf")
	content := "" +
		"[exasol-" + dbVersion + "]\n" +
		"ARCHITECTURE=x86_64\n" +
		"DB_VERSION=" + dbVersion + "\n" +
		"DB_DOWNLOAD_URL=" + srv.URL + "/db/" + dbVersion + ".tar.gz\n" +
		"DB_CHECKSUM=sha256:deadbeef\n" +
		"C4_VERSION=" + c4Version + "\n" +
		"C4_DOWNLOAD_URL=" + srv.URL + "/c4/" + c4Version + ".tar.gz\n" +
		"C4_CHECKSUM=sha256:cafef00d\n" +
		"\n[default]\n" +
		"VERSION=exasol-" + dbVersion + "\n" +
		"\n[default-local]\n" +
		"VERSION=exasol-" + dbVersion + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

func TestUpdateAppendsReachablePatchCandidate(t *testing.T) {
	srv := reachableUpstream(t, "2025.1.18", "4.2.10") // only the patch+10 bump is published
	defer srv.Close()

	dir := t.TempDir()
	path := writeCatalog(t, dir, "2025.1.8", "4.2.0", srv)

	result, err := Update(context.Background(), UpdateOptions{
		CatalogPath: path,
		StagingDir:  filepath.Join(dir, "staging"),
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)

	require.Len(t, result.Found, 1)
	assert.Equal(t, "patch", result.Found[0].Kind)
	assert.Equal(t, "2025.1.18", result.Found[0].DBVersion)
	assert.Len(t, result.Skipped, 2) // minor and major bumps were not published

	doc, err := Load(path)
	require.NoError(t, err)
	assert.True(t, doc.HasSection("exasol-2025.1.18"))
	assert.True(t, doc.HasSection("exasol-2025.1.18-local"))

	v, err := doc.ResolveVersion("exasol-2025.1.18")
	require.NoError(t, err)
	assert.Equal(t, "sha256:"+shaOfFakeArchive(), v.DBChecksum)

	vLocal, err := doc.ResolveVersion("exasol-2025.1.18-local")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(vLocal.DBDownloadURL, "file://"))

	def, err := doc.ResolveVersion("default")
	require.NoError(t, err)
	assert.Equal(t, "exasol-2025.1.18", def.Name)

	defLocal, err := doc.ResolveVersion("default-local")
	require.NoError(t, err)
	assert.Equal(t, "exasol-2025.1.18-local", defLocal.Name)
}

func TestUpdateIsIdempotentOnSecondRun(t *testing.T) {
	srv := reachableUpstream(t, "2025.1.18", "4.2.0")
	defer srv.Close()

	dir := t.TempDir()
	path := writeCatalog(t, dir, "2025.1.8", "4.2.0", srv)
	opts := UpdateOptions{CatalogPath: path, StagingDir: filepath.Join(dir, "staging"), HTTPClient: srv.Client()}

	_, err := Update(context.Background(), opts)
	require.NoError(t, err)

	result, err := Update(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, result.Found, "second run against an unchanged upstream should append nothing")
}

func TestUpdateSkipsAllWhenUpstreamHasNothingNew(t *testing.T) {
	srv := reachableUpstream(t /* no reachable versions */)
	defer srv.Close()

	dir := t.TempDir()
	path := writeCatalog(t, dir, "2025.1.8", "4.2.0", srv)

	result, err := Update(context.Background(), UpdateOptions{
		CatalogPath: path,
		StagingDir:  filepath.Join(dir, "staging"),
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Found)
	assert.Len(t, result.Skipped, 3)

	doc, err := Load(path)
	require.NoError(t, err)
	def, err := doc.ResolveVersion("default")
	require.NoError(t, err)
	assert.Equal(t, "exasol-2025.1.8", def.Name, "default alias must stay put when nothing new was found")
}

func TestUpdateRejectsConcurrentRunViaLockFile(t *testing.T) {
	srv := reachableUpstream(t, "2025.1.18", "4.2.0")
	defer srv.Close()

	dir := t.TempDir()
	path := writeCatalog(t, dir, "2025.1.8", "4.2.0", srv)

	unlock, err := lockCatalog(path)
	require.NoError(t, err)
	defer unlock()

	_, err = Update(context.Background(), UpdateOptions{
		CatalogPath: path,
		StagingDir:  filepath.Join(dir, "staging"),
		HTTPClient:  srv.Client(),
	})
	require.Error(t, err)
}

func TestCandidatesFromComputesAllThreeIncrements(t *testing.T) {
	baseline := &VersionSection{
		Name: "exasol-2025.1.8", Architecture: "x86_64",
		DBVersion: "2025.1.8", DBDownloadURL: "https://example.invalid/db/2025.1.8.tar.gz",
		C4Version: "4.2.0", C4DownloadURL: "https://example.invalid/c4/4.2.0.tar.gz",
	}
	candidates, err := candidatesFrom(baseline)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, "2025.1.18", candidates[0].DBVersion)
	assert.Equal(t, "exasol-2025.1.18", candidates[0].SectionName)
	assert.Equal(t, "2025.6.8", candidates[1].DBVersion)
	assert.Equal(t, "2028.1.8", candidates[2].DBVersion)
	assert.Equal(t, "4.7.0", candidates[1].C4Version)
}

func TestCandidatesFromPreservesArchSuffix(t *testing.T) {
	baseline := &VersionSection{
		Name: "exasol-2025.1.8-arm64", Architecture: "arm64",
		DBVersion: "2025.1.8", DBDownloadURL: "https://example.invalid/db/2025.1.8-arm64.tar.gz",
		C4Version: "4.2.0", C4DownloadURL: "https://example.invalid/c4/4.2.0-arm64.tar.gz",
	}
	candidates, err := candidatesFrom(baseline)
	require.NoError(t, err)
	assert.Equal(t, "exasol-2025.1.18-arm64", candidates[0].SectionName)
}

func TestCandidatesFromRejectsUnparsableBaseline(t *testing.T) {
	baseline := &VersionSection{Name: "exasol-bad", DBVersion: "not-a-version", C4Version: "4.2.0"}
	_, err := candidatesFrom(baseline)
	require.Error(t, err)
}

func shaOfFakeArchive() string {
	// sha256("fake-archive-bytes"), computed once and pinned here so the
	// test doesn't need to import crypto/sha256 just to assert equality.
	return "0938f5684f08b044384953947c8f29c7a6c1cac76650ab77e0ef6104e587681c"
}
