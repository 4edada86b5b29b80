// update-versions generalizes the teacher's scheduled cache-refresh job
// (internal/scheduler/refresh.go polls an upstream for new data, writes it
// through a single-writer path, and invalidates the read cache) to probing
// an upstream download host for newer Exasol releases instead of polling a
// webhook source. Candidates are derived from the highest non-local
// baseline per spec.md §4.8, probed with a HEAD request, downloaded to a
// staging directory, checksummed, and appended to the catalog under an
// advisory file lock so a concurrent `status`/`init` read never observes a
// torn write.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
	"github.com/exasol-infra/exasol-orchestrator/pkg/resilience"
)

var semverPattern = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// VersionCandidate is a not-yet-confirmed (DB, C4) tuple derived from a
// baseline section by incrementing one version component, per spec.md
// §4.8's "probes for newer versions by incrementing patch (+10), minor
// (+5), major (+3)".
type VersionCandidate struct {
	Kind          string // "patch", "minor", or "major"
	SectionName   string
	Architecture  string
	DBVersion     string
	DBDownloadURL string
	C4Version     string
	C4DownloadURL string
}

// candidatesFrom derives the three increment candidates from baseline.
// C4's version tracks the DB bump 1:1, as the catalog carries no separate
// C4 increment rule.
func candidatesFrom(baseline *VersionSection) ([]VersionCandidate, error) {
	major, minor, patch, err := parseSemver(baseline.DBVersion)
	if err != nil {
		return nil, orcherrors.Validationf("baseline DB_VERSION %q is not a valid semver: %v", baseline.DBVersion, err)
	}
	c4Major, c4Minor, c4Patch, err := parseSemver(baseline.C4Version)
	if err != nil {
		return nil, orcherrors.Validationf("baseline C4_VERSION %q is not a valid semver: %v", baseline.C4Version, err)
	}

	increments := []struct {
		kind               string
		dMajor, dMinor, dPatch int
	}{
		{"patch", 0, 0, 10},
		{"minor", 0, 5, 0},
		{"major", 3, 0, 0},
	}

	candidates := make([]VersionCandidate, 0, len(increments))
	for _, inc := range increments {
		newDB := bumpSemver(major, minor, patch, inc.dMajor, inc.dMinor, inc.dPatch)
		newC4 := bumpSemver(c4Major, c4Minor, c4Patch, inc.dMajor, inc.dMinor, inc.dPatch)

		candidates = append(candidates, VersionCandidate{
			Kind:          inc.kind,
			SectionName:   deriveSectionName(baseline.Name, baseline.DBVersion, newDB),
			Architecture:  baseline.Architecture,
			DBVersion:     newDB,
			DBDownloadURL: strings.Replace(baseline.DBDownloadURL, baseline.DBVersion, newDB, 1),
			C4Version:     newC4,
			C4DownloadURL: strings.Replace(baseline.C4DownloadURL, baseline.C4Version, newC4, 1),
		})
	}
	return candidates, nil
}

func parseSemver(v string) (major, minor, patch int, err error) {
	m := semverPattern.FindStringSubmatch(v)
	if m == nil {
		return 0, 0, 0, fmt.Errorf("no semver found in %q", v)
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	patch, _ = strconv.Atoi(m[3])
	return major, minor, patch, nil
}

func bumpSemver(major, minor, patch, dMajor, dMinor, dPatch int) string {
	return fmt.Sprintf("%d.%d.%d", major+dMajor, minor+dMinor, patch+dPatch)
}

// deriveSectionName replaces the baseline's semver run inside its section
// name with newVersion, preserving any grammar suffix (-arm64, devN,
// -local) that follows it untouched.
func deriveSectionName(baselineName, oldVersion, newVersion string) string {
	return strings.Replace(baselineName, oldVersion, newVersion, 1)
}

// probeRetryPolicy retries a HEAD probe against flaky upstream hosts
// before concluding a candidate version is unreachable.
func probeRetryPolicy() *resilience.RetryPolicy {
	return &resilience.RetryPolicy{
		MaxRetries:   3,
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		ErrorChecker: resilience.NewHTTPErrorChecker(),
	}
}

// statusError wraps a non-2xx HTTP response. 404/403/etc mean "not
// published yet" and are marked non-retryable so a probe fails fast
// instead of burning the retry budget on a status that will never change
// within one Update run; 5xx/429/408 are left retryable via
// HTTPErrorChecker.
func statusError(method, url string, status int) error {
	err := fmt.Errorf("%s %s returned unexpected status %d", method, url, status)
	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return err
	}
	return fmt.Errorf("%w: %v", resilience.ErrNonRetryable, err)
}

// probeURL issues a HEAD request and treats any non-2xx status as
// "version not published yet" rather than a transient error once retries
// are exhausted.
func probeURL(ctx context.Context, client *http.Client, url string) error {
	return resilience.WithRetry(ctx, probeRetryPolicy(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", resilience.ErrNonRetryable, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return statusError(http.MethodHead, url, resp.StatusCode)
		}
		return nil
	})
}

// UpdateOptions parameterizes Update's network and filesystem behavior.
type UpdateOptions struct {
	CatalogPath string
	StagingDir  string // parent directory for the per-run download staging dir
	HTTPClient  *http.Client
}

// UpdateResult reports what Update found and wrote.
type UpdateResult struct {
	Found   []VersionCandidate // candidates confirmed reachable and appended
	Skipped []VersionCandidate // candidates probed but unreachable
}

// Update implements spec.md §4.8: finds the highest non-local baseline,
// probes the patch/minor/major increments, downloads and checksums
// whichever are reachable, and appends each as a new section (plus a
// "-local" variant) to the catalog, repointing the default/default-local
// aliases at the newest one found. A second invocation against an
// unchanged upstream performs no writes, since every candidate will
// already exist as a section and is skipped up front.
func Update(ctx context.Context, opts UpdateOptions) (*UpdateResult, error) {
	unlock, err := lockCatalog(opts.CatalogPath)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := Load(opts.CatalogPath)
	if err != nil {
		return nil, err
	}

	baselineName, err := highestBaseline(doc)
	if err != nil {
		return nil, err
	}
	baseline, err := doc.ResolveVersion(baselineName)
	if err != nil {
		return nil, err
	}

	candidates, err := candidatesFrom(baseline)
	if err != nil {
		return nil, err
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	result := &UpdateResult{}
	newest := ""
	for _, c := range candidates {
		if doc.HasSection(c.SectionName) {
			continue // already recorded by a prior run; idempotent
		}

		dbErr := probeURL(ctx, client, c.DBDownloadURL)
		c4Err := probeURL(ctx, client, c.C4DownloadURL)
		if dbErr != nil || c4Err != nil {
			result.Skipped = append(result.Skipped, c)
			continue
		}

		localDir, dbPath, c4Path, dbSum, c4Sum, err := stageDownload(ctx, client, opts.StagingDir, c)
		if err != nil {
			return nil, err
		}

		if err := appendSection(opts.CatalogPath, c, dbSum, c4Sum, localDir, dbPath, c4Path); err != nil {
			return nil, err
		}
		InvalidateCache(opts.CatalogPath)
		doc, err = Load(opts.CatalogPath)
		if err != nil {
			return nil, err
		}

		result.Found = append(result.Found, c)
		newest = c.SectionName
	}

	if newest != "" {
		if err := repointDefaultAliases(opts.CatalogPath, newest); err != nil {
			return nil, err
		}
		InvalidateCache(opts.CatalogPath)
	}

	return result, nil
}

// highestBaseline returns the last non-local, non-alias section in file
// order, matching NonLocalVersionSections' append order.
func highestBaseline(doc *Document) (string, error) {
	sections := doc.NonLocalVersionSections()
	if len(sections) == 0 {
		return "", orcherrors.Validation("catalog has no non-local version sections to probe increments from")
	}
	return sections[len(sections)-1], nil
}

// stageDownload downloads the DB and C4 archives for a confirmed-reachable
// candidate into a fresh per-run directory under stagingRoot, named with a
// UUID so concurrent runs (or a retried run) never collide.
func stageDownload(ctx context.Context, client *http.Client, stagingRoot string, c VersionCandidate) (dir, dbPath, c4Path, dbSum, c4Sum string, err error) {
	dir = filepath.Join(stagingRoot, uuid.New().String())
	if err = os.MkdirAll(dir, 0o750); err != nil {
		return "", "", "", "", "", orcherrors.Internal("failed to create staging directory", err)
	}

	dbPath = filepath.Join(dir, "db.tar.gz")
	c4Path = filepath.Join(dir, "c4.tar.gz")

	if dbSum, err = downloadAndChecksum(ctx, client, c.DBDownloadURL, dbPath); err != nil {
		return "", "", "", "", "", err
	}
	if c4Sum, err = downloadAndChecksum(ctx, client, c.C4DownloadURL, c4Path); err != nil {
		return "", "", "", "", "", err
	}
	return dir, dbPath, c4Path, dbSum, c4Sum, nil
}

func downloadAndChecksum(ctx context.Context, client *http.Client, url, dest string) (string, error) {
	var sum string
	err := resilience.WithRetry(ctx, probeRetryPolicy(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", resilience.ErrNonRetryable, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return statusError(http.MethodGet, url, resp.StatusCode)
		}

		f, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("%w: %v", resilience.ErrNonRetryable, err)
		}
		defer f.Close()

		h := sha256.New()
		if _, err := io.Copy(io.MultiWriter(f, h), resp.Body); err != nil {
			return err
		}
		if err := f.Sync(); err != nil {
			return err
		}
		sum = "sha256:" + hex.EncodeToString(h.Sum(nil))
		return nil
	})
	return sum, err
}

// appendSection appends both the new real section and its "-local"
// variant (pointing at the staged files) to the catalog file on disk.
func appendSection(catalogPath string, c VersionCandidate, dbSum, c4Sum, localDir, dbPath, c4Path string) error {
	localName := c.SectionName + "-local"

	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s]\n", c.SectionName)
	fmt.Fprintf(&b, "ARCHITECTURE=%s\n", c.Architecture)
	fmt.Fprintf(&b, "DB_VERSION=%s\n", c.DBVersion)
	fmt.Fprintf(&b, "DB_DOWNLOAD_URL=%s\n", c.DBDownloadURL)
	fmt.Fprintf(&b, "DB_CHECKSUM=%s\n", dbSum)
	fmt.Fprintf(&b, "C4_VERSION=%s\n", c.C4Version)
	fmt.Fprintf(&b, "C4_DOWNLOAD_URL=%s\n", c.C4DownloadURL)
	fmt.Fprintf(&b, "C4_CHECKSUM=%s\n", c4Sum)

	fmt.Fprintf(&b, "\n[%s]\n", localName)
	fmt.Fprintf(&b, "ARCHITECTURE=%s\n", c.Architecture)
	fmt.Fprintf(&b, "DB_VERSION=%s\n", c.DBVersion)
	fmt.Fprintf(&b, "DB_DOWNLOAD_URL=file://%s\n", dbPath)
	fmt.Fprintf(&b, "DB_CHECKSUM=%s\n", dbSum)
	fmt.Fprintf(&b, "C4_VERSION=%s\n", c.C4Version)
	fmt.Fprintf(&b, "C4_DOWNLOAD_URL=file://%s\n", c4Path)
	fmt.Fprintf(&b, "C4_CHECKSUM=%s\n", c4Sum)

	return appendToFile(catalogPath, b.String())
}

// repointDefaultAliases rewrites the "default" and "default-local"
// sections' VERSION line to point at the newest section found this run.
// Aliases are rewritten in place (not appended as duplicate sections)
// since the catalog grammar allows only one section per name.
func repointDefaultAliases(catalogPath, newest string) error {
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return orcherrors.Internal("failed to read catalog for alias update", err)
	}

	lines := strings.Split(string(data), "\n")
	current := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			current = strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
			continue
		}
		if (current == "default" || current == "default-local") && strings.HasPrefix(trimmed, "VERSION=") {
			target := newest
			if current == "default-local" {
				target = newest + "-local"
			}
			lines[i] = "VERSION=" + target
		}
	}

	return writeFileAtomic(catalogPath, strings.Join(lines, "\n"))
}

func appendToFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return orcherrors.Internal("failed to open catalog for append", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return orcherrors.Internal("failed to append to catalog", err)
	}
	return f.Sync()
}

// writeFileAtomic mirrors state.Store's write-tempfile-fsync-rename
// pattern so a reader never observes a half-written catalog.
func writeFileAtomic(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".catalog.tmp-*")
	if err != nil {
		return orcherrors.Internal("failed to create temp catalog file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return orcherrors.Internal("failed to write temp catalog file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return orcherrors.Internal("failed to fsync temp catalog file", err)
	}
	if err := tmp.Close(); err != nil {
		return orcherrors.Internal("failed to close temp catalog file", err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		return orcherrors.Internal("failed to set catalog file permissions", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return orcherrors.Internal("failed to rename temp catalog file into place", err)
	}
	return nil
}

// lockCatalog takes a simple O_EXCL advisory lock on a sibling
// "<path>.lock" file for the duration of Update, per spec.md §5's note
// that update-versions should lock the catalog to avoid torn writes. It
// is deliberately independent of internal/lock.Manager, which is scoped
// to a single deployment directory rather than a shared system-wide
// catalog file.
func lockCatalog(path string) (func(), error) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		if os.IsExist(err) {
			return nil, orcherrors.Preconditionf("catalog %s is locked by another update-versions run", path)
		}
		return nil, orcherrors.Internal("failed to acquire catalog lock", err)
	}
	f.Close()
	return func() { os.Remove(lockPath) }, nil
}
