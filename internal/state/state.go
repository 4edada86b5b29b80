// Package state implements the durable per-deployment state document
// (.exasol.json) with crash-safe atomic updates. It mirrors the atomicity
// guarantee the teacher's PostgreSQL-transaction-backed config store gave
// through BEGIN/COMMIT, using the POSIX equivalent for a single JSON file
// on one filesystem: write to a sibling tempfile, fsync, then rename over
// the target. Concurrent readers always observe either the prior or the
// new complete document, never a partial write.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
)

// Document is the full content of .exasol.json.
type Document struct {
	Status        Status    `json:"status"`
	DBVersion     string    `json:"db_version"`
	Architecture  string    `json:"architecture"`
	CloudProvider string    `json:"cloud_provider"`
	ClusterSize   int       `json:"cluster_size"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store reads and writes the state document for one deployment directory.
type Store struct {
	d *paths.Deployment
}

// NewStore returns a Store for the deployment rooted at dir.
func NewStore(d *paths.Deployment) *Store {
	return &Store{d: d}
}

// Init writes the initial state document. It fails if the directory
// already holds one (per spec.md §4.2: "fails if the directory is already
// a deployment").
func (s *Store) Init(provider, dbVersion, architecture string, clusterSize int) (*Document, error) {
	if s.d.IsInitialized() {
		return nil, orcherrors.Preconditionf("deployment directory %q is already initialized", s.d.Dir())
	}

	now := time.Now().UTC()
	doc := &Document{
		Status:        StatusInitialized,
		DBVersion:     dbVersion,
		Architecture:  architecture,
		CloudProvider: provider,
		ClusterSize:   clusterSize,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.write(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Read loads the full state document. Returns orcherrors.CodeNotFound if
// absent and orcherrors.CodeFatal if the file is corrupt.
func (s *Store) Read() (*Document, error) {
	data, err := os.ReadFile(s.d.StateFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcherrors.NotFound("deployment state document")
		}
		return nil, orcherrors.Internal("failed to read state document", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, orcherrors.Fatal(fmt.Sprintf("state document is corrupt: %v", err))
	}
	return &doc, nil
}

// GetStatus returns the current status, or StatusUnknown if the document
// is absent or unreadable (per spec.md §4.2).
func (s *Store) GetStatus() Status {
	doc, err := s.Read()
	if err != nil {
		return StatusUnknown
	}
	return doc.Status
}

// SetStatus validates next against the closed status set and atomically
// updates the document's status and updated_at. It does not itself enforce
// the state-machine transition edges; callers (the lifecycle engines) do
// that before calling SetStatus so that the health engine's corrective
// writes (which may bypass an edge) share this same primitive.
func (s *Store) SetStatus(next Status) error {
	if !next.Valid() {
		return orcherrors.Validationf("status %q is not a recognized status", next)
	}

	doc, err := s.Read()
	if err != nil {
		return err
	}

	doc.Status = next
	doc.UpdatedAt = time.Now().UTC()
	return s.write(doc)
}

// Write persists an already-built document (used by init to seed every
// field in one atomic write, and by health --update to refresh metadata
// alongside a status correction).
func (s *Store) Write(doc *Document) error {
	return s.write(doc)
}

func (s *Store) write(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return orcherrors.Internal("failed to marshal state document", err)
	}

	dir := filepath.Dir(s.d.StateFile())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return orcherrors.Internal("failed to create deployment directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".exasol.json.tmp-*")
	if err != nil {
		return orcherrors.Internal("failed to create temp state file", err)
	}
	tmpName := tmp.Name()
	// Remove the tempfile on any early return; the final os.Rename below
	// is a no-op for this cleanup once it has succeeded.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return orcherrors.Internal("failed to write temp state file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return orcherrors.Internal("failed to fsync temp state file", err)
	}
	if err := tmp.Close(); err != nil {
		return orcherrors.Internal("failed to close temp state file", err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		return orcherrors.Internal("failed to set state file permissions", err)
	}
	if err := os.Rename(tmpName, s.d.StateFile()); err != nil {
		return orcherrors.Internal("failed to rename temp state file into place", err)
	}
	return nil
}
