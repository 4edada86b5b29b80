package catalog

import (
	"regexp"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
)

// versionNameGrammar implements name-X.Y.Z[-arm64][dev.N][-local] from
// spec.md §4.1 and the boundary behaviors in §8: the dev qualifier is
// appended directly after the optional -arm64 suffix with no separating
// hyphen (e.g. "exasol-2025.2.0-arm64dev.0").
var versionNameGrammar = regexp.MustCompile(`^[a-z0-9]+-\d+\.\d+\.\d+(-arm64)?(dev\.\d+)?(-local)?$`)

// ValidVersionName reports whether name matches the version-name grammar.
func ValidVersionName(name string) bool {
	return versionNameGrammar.MatchString(name)
}

// requiredVersionKeys are the keys every real version section must carry.
var requiredVersionKeys = []string{
	"ARCHITECTURE", "DB_VERSION", "DB_DOWNLOAD_URL", "DB_CHECKSUM",
	"C4_VERSION", "C4_DOWNLOAD_URL", "C4_CHECKSUM",
}

// VersionSection is a fully-resolved version entry from versions.conf.
type VersionSection struct {
	Name           string
	Architecture   string
	DBVersion      string
	DBDownloadURL  string
	DBChecksum     string
	C4Version      string
	C4DownloadURL  string
	C4Checksum     string
}

// IsAlias reports whether section only carries a VERSION pointer.
func (d *Document) IsAlias(section string) bool {
	kv := d.SectionKeys(section)
	if kv == nil {
		return false
	}
	_, hasVersion := kv["VERSION"]
	_, hasArch := kv["ARCHITECTURE"]
	return hasVersion && !hasArch
}

// ResolveVersion resolves name (possibly an alias like "default") to a
// fully validated VersionSection, following at most one level of alias
// indirection per spec.md §3 ("Alias sections contain a single VERSION
// field that points to a real section").
func (d *Document) ResolveVersion(name string) (*VersionSection, error) {
	if !d.HasSection(name) {
		return nil, orcherrors.NotFound("version " + name)
	}

	target := name
	if d.IsAlias(name) {
		pointed, err := d.Lookup(name, "VERSION")
		if err != nil {
			return nil, err
		}
		target = pointed
		if !d.HasSection(target) {
			return nil, orcherrors.NotFound("version " + target + " (aliased from " + name + ")")
		}
	}

	if !ValidVersionName(target) {
		return nil, orcherrors.Validationf("version name %q does not match the required grammar", target)
	}

	for _, key := range requiredVersionKeys {
		if _, err := d.Lookup(target, key); err != nil {
			return nil, err
		}
	}

	kv := d.SectionKeys(target)
	return &VersionSection{
		Name:          target,
		Architecture:  kv["ARCHITECTURE"],
		DBVersion:     kv["DB_VERSION"],
		DBDownloadURL: kv["DB_DOWNLOAD_URL"],
		DBChecksum:    kv["DB_CHECKSUM"],
		C4Version:     kv["C4_VERSION"],
		C4DownloadURL: kv["C4_DOWNLOAD_URL"],
		C4Checksum:    kv["C4_CHECKSUM"],
	}, nil
}

// VersionExists reports whether name (after following at most one alias
// hop) resolves to a valid, complete version section.
func (d *Document) VersionExists(name string) bool {
	_, err := d.ResolveVersion(name)
	return err == nil
}

// NonLocalVersionSections returns the names of every section that is a
// real (non-alias) version entry and is not itself a "-local" variant, in
// file order. update-versions uses this to find the highest baseline to
// probe increments from.
func (d *Document) NonLocalVersionSections() []string {
	var out []string
	for _, name := range d.Sections() {
		if d.IsAlias(name) {
			continue
		}
		if !d.HasSection(name) {
			continue
		}
		if hasSuffixLocal(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func hasSuffixLocal(name string) bool {
	const suffix = "-local"
	return len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix
}
