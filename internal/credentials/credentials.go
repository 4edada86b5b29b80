// Package credentials implements the Credentials Document (.credentials.json):
// generated passwords and a copy of the resolved version URLs/checksums,
// written with mode 0600 and never logged. Password generation uses
// crypto/rand directly over a password-safe alphabet, the same primitive
// pkg/logger.GenerateOperationID and internal/lock's stale-lock detection
// ultimately build on, because these values are shown to operators and
// embedded into Ansible variable files rather than used as opaque tokens.
package credentials

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"os"
	"strings"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
)

// passwordAlphabet avoids characters that commonly break shell quoting or
// INI/HCL literal parsing (no quotes, backslashes, or '=').
const passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#%^&*-_+."

const passwordLength = 16

// Document is the full content of .credentials.json.
type Document struct {
	DBPassword      string `json:"db_password"`
	AdminUIPassword string `json:"adminui_password"`
	HostPassword    string `json:"host_password"`

	DBVersion    string `json:"db_version"`
	Architecture string `json:"architecture"`

	DBDownloadURL string `json:"db_download_url"`
	DBChecksum    string `json:"db_checksum"`
	C4DownloadURL string `json:"c4_download_url"`
	C4Checksum    string `json:"c4_checksum"`
}

// GeneratePassword returns a passwordLength-character random string drawn
// from passwordAlphabet using a cryptographically secure RNG.
func GeneratePassword() (string, error) {
	var sb strings.Builder
	sb.Grow(passwordLength)

	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := 0; i < passwordLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", orcherrors.Internal("failed to generate password", err)
		}
		sb.WriteByte(passwordAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// FillMissingPasswords generates any of DBPassword/AdminUIPassword/HostPassword
// that are empty, leaving operator-supplied values untouched.
func FillMissingPasswords(doc *Document) error {
	fields := []*string{&doc.DBPassword, &doc.AdminUIPassword, &doc.HostPassword}
	for _, f := range fields {
		if *f != "" {
			continue
		}
		pw, err := GeneratePassword()
		if err != nil {
			return err
		}
		*f = pw
	}
	return nil
}

// NormalizeChecksum strips a leading "sha256:" prefix, per spec.md §4.5
// step 9 ("URL values normalize any sha256: prefix on checksums").
func NormalizeChecksum(checksum string) string {
	return strings.TrimPrefix(checksum, "sha256:")
}

// Write persists doc to the deployment's .credentials.json with mode 0600.
func Write(d *paths.Deployment, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return orcherrors.Internal("failed to marshal credentials document", err)
	}

	path := d.CredentialsFile()
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return orcherrors.Internal("failed to write credentials document", err)
	}
	// os.WriteFile applies the umask; re-assert 0600 explicitly since this
	// file must never be group- or world-readable.
	if err := os.Chmod(path, 0o600); err != nil {
		return orcherrors.Internal("failed to set credentials file permissions", err)
	}
	return nil
}

// Read loads the credentials document for a deployment.
func Read(d *paths.Deployment) (*Document, error) {
	data, err := os.ReadFile(d.CredentialsFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcherrors.NotFound("credentials document")
		}
		return nil, orcherrors.Internal("failed to read credentials document", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, orcherrors.Fatal("credentials document is corrupt")
	}
	return &doc, nil
}
