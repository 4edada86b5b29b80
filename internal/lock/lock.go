// Package lock implements the per-deployment single-writer file lock
// (.exasolLock.json). It generalizes the teacher's Redis SETNX distributed
// lock (internal/infrastructure/lock/distributed.go) to a local file lock:
// O_EXCL file creation takes the place of SETNX, the lock value becomes
// {pid, hostname, started_at, operation}, and TTL-based expiry becomes
// PID-liveness plus age-based staleness detection, since there is no
// daemon here to renew a lease and the only coordination need is across
// short-lived CLI processes on one host (or, for a shared deployment
// directory, a small set of hosts that agree on which PIDs are theirs by
// hostname).
package lock

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
)

// StaleAge bounds how old an unowned-looking lock file may be before it is
// reclaimed even if its PID cannot be checked (e.g. a lock left by a
// process on a different host).
const StaleAge = 6 * time.Hour

// Document is the content of .exasolLock.json.
type Document struct {
	Operation string    `json:"operation"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// Manager acquires and releases the lock for one deployment directory.
type Manager struct {
	d        *paths.Deployment
	logger   *slog.Logger
	hostname string
}

// NewManager returns a Manager for the deployment rooted at dir's paths.
func NewManager(d *paths.Deployment, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Manager{d: d, logger: logger, hostname: hostname}
}

// Acquire attempts to take the lock for operation. On conflict with a live
// holder it returns an *orcherrors.OrchestratorError with CodeLockBusy
// wrapping an *orcherrors.LockBusy in Details.
func (m *Manager) Acquire(operation string) error {
	m.cleanupStale()

	doc := &Document{
		Operation: operation,
		PID:       os.Getpid(),
		Hostname:  m.hostname,
		StartedAt: time.Now().UTC(),
	}

	if err := m.tryCreate(doc); err == nil {
		m.logger.Info("lock acquired", "operation", operation, "pid", doc.PID)
		return nil
	} else if !os.IsExist(err) {
		return orcherrors.Internal("failed to create lock file", err)
	}

	// Lost the race to O_EXCL, or a live lock is already held. One more
	// staleness pass in case the holder just exited.
	m.cleanupStale()

	if err := m.tryCreate(doc); err == nil {
		m.logger.Info("lock acquired after stale-lock reclamation", "operation", operation, "pid", doc.PID)
		return nil
	}

	existing, readErr := m.read()
	if readErr != nil {
		return orcherrors.Internal("lock is held but its document could not be read", readErr)
	}

	busy := &orcherrors.LockBusy{
		Operation: existing.Operation,
		PID:       existing.PID,
		Hostname:  existing.Hostname,
		StartedAt: existing.StartedAt,
	}
	return busy.AsOrchestratorError()
}

// tryCreate attempts the O_EXCL create+write in one shot.
func (m *Manager) tryCreate(doc *Document) error {
	f, err := os.OpenFile(m.d.LockFile(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// Release removes the lock file. Idempotent: a missing lock is not an
// error.
func (m *Manager) Release() error {
	err := os.Remove(m.d.LockFile())
	if err != nil && !os.IsNotExist(err) {
		return orcherrors.Internal("failed to release lock", err)
	}
	m.logger.Info("lock released")
	return nil
}

// Exists reports whether a lock file is currently present, regardless of
// whether it is stale.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.d.LockFile())
	return err == nil
}

// Info returns the current lock document, or nil if no lock is held.
func (m *Manager) Info() (*Document, error) {
	if !m.Exists() {
		return nil, nil
	}
	return m.read()
}

func (m *Manager) read() (*Document, error) {
	data, err := os.ReadFile(m.d.LockFile())
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("lock document is corrupt: %w", err)
	}
	return &doc, nil
}

// CleanupStale removes the lock file if it is stale. It is also called
// automatically before every Acquire, per spec.md §4.3.
func (m *Manager) CleanupStale() {
	m.cleanupStale()
}

func (m *Manager) cleanupStale() {
	doc, err := m.read()
	if err != nil {
		// Missing or corrupt lock document: nothing to reclaim, or
		// unreadable junk left by a crash. A corrupt lock file is removed
		// so the next Acquire doesn't wedge forever on a document Info()
		// can't parse.
		if os.IsNotExist(err) {
			return
		}
		m.logger.Warn("removing unreadable lock file", "error", err)
		os.Remove(m.d.LockFile())
		return
	}

	if doc.PID == 0 || m.isStaleByAge(doc) || m.isStaleByOwner(doc) {
		m.logger.Warn("reclaiming stale lock",
			"operation", doc.Operation, "pid", doc.PID, "hostname", doc.Hostname, "started_at", doc.StartedAt)
		os.Remove(m.d.LockFile())
	}
}

func (m *Manager) isStaleByAge(doc *Document) bool {
	return time.Since(doc.StartedAt) > StaleAge
}

// isStaleByOwner reports true only when the lock was taken on this same
// host and the recorded PID is no longer alive; a lock from a different
// hostname cannot be PID-checked and is only reclaimed via age.
func (m *Manager) isStaleByOwner(doc *Document) bool {
	if doc.Hostname != m.hostname {
		return false
	}
	return !pidAlive(doc.PID)
}

// pidAlive reports whether pid refers to a live process on this host.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On POSIX, FindProcess always succeeds; signal 0 probes existence
	// without actually sending a signal.
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
