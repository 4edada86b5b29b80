package lock

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
)

func newTestManager(t *testing.T) (*Manager, *paths.Deployment) {
	t.Helper()
	d, err := paths.New(t.TempDir())
	require.NoError(t, err)
	return NewManager(d, nil), d
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.Acquire("deploy"))
	assert.True(t, m.Exists())

	require.NoError(t, m.Release())
	assert.False(t, m.Exists())
}

func TestReleaseIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Release())
	require.NoError(t, m.Release())
}

func TestSecondAcquireIsBusy(t *testing.T) {
	m, d := newTestManager(t)
	require.NoError(t, m.Acquire("deploy"))

	other := NewManager(d, nil)
	err := other.Acquire("stop")
	require.Error(t, err)

	var orchErr *orcherrors.OrchestratorError
	require.ErrorAs(t, err, &orchErr)
	assert.Equal(t, orcherrors.CodeLockBusy, orchErr.Code)
}

func TestStaleLockByDeadPIDIsReclaimed(t *testing.T) {
	m, d := newTestManager(t)

	hostname, err := os.Hostname()
	require.NoError(t, err)

	doc := &Document{Operation: "deploy", PID: deadPID(), Hostname: hostname, StartedAt: time.Now().UTC()}
	require.NoError(t, m.tryCreate(doc))

	require.NoError(t, m.Acquire("start"))
	info, err := m.Info()
	require.NoError(t, err)
	assert.Equal(t, "start", info.Operation)

	_ = d
}

func TestStaleLockByAgeIsReclaimed(t *testing.T) {
	m, _ := newTestManager(t)

	doc := &Document{Operation: "deploy", PID: os.Getpid(), Hostname: "some-other-host", StartedAt: time.Now().UTC().Add(-2 * StaleAge)}
	require.NoError(t, m.tryCreate(doc))

	require.NoError(t, m.Acquire("start"))
}

func TestLockFromDifferentLiveHostIsNotReclaimedByAgeAlone(t *testing.T) {
	m, _ := newTestManager(t)

	doc := &Document{Operation: "deploy", PID: os.Getpid(), Hostname: "some-other-host", StartedAt: time.Now().UTC()}
	require.NoError(t, m.tryCreate(doc))

	err := m.Acquire("start")
	require.Error(t, err)
}

func TestInfoNilWhenNoLock(t *testing.T) {
	m, _ := newTestManager(t)
	info, err := m.Info()
	require.NoError(t, err)
	assert.Nil(t, info)
}

// deadPID returns a PID very unlikely to correspond to a live process.
func deadPID() int {
	return 1 << 30
}
