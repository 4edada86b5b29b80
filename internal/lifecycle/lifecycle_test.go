package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exasol-infra/exasol-orchestrator/internal/exec"
	"github.com/exasol-infra/exasol-orchestrator/internal/lock"
	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
	"github.com/exasol-infra/exasol-orchestrator/internal/progress"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fail: make(map[string]bool)}
}

func (f *fakeRunner) Run(_ context.Context, _, name string, args ...string) (*exec.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.fail[name] {
		return nil, assertError(name)
	}
	return &exec.Result{}, nil
}

func (f *fakeRunner) Kill() {}

func assertError(name string) error {
	return &testError{name: name}
}

type testError struct{ name string }

func (e *testError) Error() string { return e.name + " failed" }

func newDeployment(t *testing.T) (*paths.Deployment, *state.Store) {
	t.Helper()
	d, err := paths.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.EnsureDirs())
	store := state.NewStore(d)
	return d, store
}

func TestDeployHappyPath(t *testing.T) {
	d, store := newDeployment(t)
	_, err := store.Init("aws", "8.1.8", "x86_64", 3)
	require.NoError(t, err)

	runner := newFakeRunner()
	guard := &Guard{Operation: "deploy", Lock: lock.NewManager(d, nil), Store: store, Runner: runner, FailureStatus: state.StatusDeploymentFailed}

	err = Deploy(context.Background(), DeployOptions{
		Deployment: d,
		Store:      store,
		Lock:       guard,
		Runner:     runner,
		Reporter:   progress.New("deploy"),
		ProbeSSH:   func(ctx context.Context) error { return nil },
	})
	require.NoError(t, err)

	doc, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, state.StatusDatabaseReady, doc.Status)
}

func TestDeployRejectsWrongStatus(t *testing.T) {
	d, store := newDeployment(t)
	_, err := store.Init("aws", "8.1.8", "x86_64", 3)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(state.StatusDatabaseReady))

	runner := newFakeRunner()
	guard := &Guard{Operation: "deploy", Lock: lock.NewManager(d, nil), Store: store, Runner: runner, FailureStatus: state.StatusDeploymentFailed}

	err = Deploy(context.Background(), DeployOptions{Deployment: d, Store: store, Lock: guard, Runner: runner, Reporter: progress.New("deploy")})
	require.Error(t, err)
}

func TestDeployFailureTransitionsToFailedStatus(t *testing.T) {
	d, store := newDeployment(t)
	_, err := store.Init("aws", "8.1.8", "x86_64", 3)
	require.NoError(t, err)

	runner := newFakeRunner()
	runner.fail["tofu"] = true
	guard := &Guard{Operation: "deploy", Lock: lock.NewManager(d, nil), Store: store, Runner: runner, FailureStatus: state.StatusDeploymentFailed}

	err = Deploy(context.Background(), DeployOptions{
		Deployment: d, Store: store, Lock: guard, Runner: runner, Reporter: progress.New("deploy"),
	})
	require.Error(t, err)

	doc, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, state.StatusDeploymentFailed, doc.Status)
}

func TestDestroyWithNoTerraformStateMarksDestroyedImmediately(t *testing.T) {
	d, store := newDeployment(t)
	_, err := store.Init("aws", "8.1.8", "x86_64", 1)
	require.NoError(t, err)

	runner := newFakeRunner()
	guard := &Guard{Operation: "destroy", Lock: lock.NewManager(d, nil), Store: store, Runner: runner, FailureStatus: state.StatusDestroyFailed}

	err = Destroy(context.Background(), DestroyOptions{
		Deployment: d, Store: store, Lock: guard, Runner: runner, Reporter: progress.New("destroy"), AutoApprove: true,
	})
	require.NoError(t, err)
	assert.Empty(t, runner.calls)

	doc, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, state.StatusDestroyed, doc.Status)
}

func TestDestroyRequiresConfirmationUnlessAutoApprove(t *testing.T) {
	d, store := newDeployment(t)
	_, err := store.Init("aws", "8.1.8", "x86_64", 1)
	require.NoError(t, err)
	require.NoError(t, writeFakeTerraformState(d))

	runner := newFakeRunner()
	guard := &Guard{Operation: "destroy", Lock: lock.NewManager(d, nil), Store: store, Runner: runner, FailureStatus: state.StatusDestroyFailed}

	err = Destroy(context.Background(), DestroyOptions{
		Deployment: d, Store: store, Lock: guard, Runner: runner, Reporter: progress.New("destroy"),
		Confirm: func() bool { return false },
	})
	require.Error(t, err)
}

func TestStopHetznerSkipsTerraformPowerOff(t *testing.T) {
	d, store := newDeployment(t)
	_, err := store.Init("hetzner", "8.1.8", "x86_64", 1)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(state.StatusDatabaseReady))

	runner := newFakeRunner()
	guard := &Guard{Operation: "stop", Lock: lock.NewManager(d, nil), Store: store, Runner: runner, FailureStatus: state.StatusStopFailed}

	err = Stop(context.Background(), StopOptions{
		Deployment: d, Store: store, Lock: guard, Runner: runner, Reporter: progress.New("stop"), CloudProvider: "hetzner",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ansible-playbook"}, runner.calls)

	doc, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, state.StatusStopped, doc.Status)
}

func TestStopAWSRunsTerraformPowerOff(t *testing.T) {
	d, store := newDeployment(t)
	_, err := store.Init("aws", "8.1.8", "x86_64", 1)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(state.StatusDatabaseReady))

	runner := newFakeRunner()
	guard := &Guard{Operation: "stop", Lock: lock.NewManager(d, nil), Store: store, Runner: runner, FailureStatus: state.StatusStopFailed}

	err = Stop(context.Background(), StopOptions{
		Deployment: d, Store: store, Lock: guard, Runner: runner, Reporter: progress.New("stop"), CloudProvider: "aws",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ansible-playbook", "tofu"}, runner.calls)
}

func TestStartManualPowerPrintsInstructionsAndWaitsForHealth(t *testing.T) {
	d, store := newDeployment(t)
	_, err := store.Init("hetzner", "8.1.8", "x86_64", 1)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(state.StatusStopped))

	runner := newFakeRunner()
	guard := &Guard{Operation: "start", Lock: lock.NewManager(d, nil), Store: store, Runner: runner, FailureStatus: state.StatusStartFailed}

	var printed string
	waited := false
	err = Start(context.Background(), StartOptions{
		Deployment: d, Store: store, Lock: guard, Runner: runner, Reporter: progress.New("start"), CloudProvider: "hetzner",
		PrintManualInstructions: func(p string) { printed = p },
		WaitForDatabaseReady: func(ctx context.Context, timeout time.Duration) error {
			waited = true
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hetzner", printed)
	assert.True(t, waited)
	assert.Empty(t, runner.calls)
}

func TestStartAWSPowersOnAndWaitsForSSH(t *testing.T) {
	d, store := newDeployment(t)
	_, err := store.Init("aws", "8.1.8", "x86_64", 1)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(state.StatusStopped))

	runner := newFakeRunner()
	guard := &Guard{Operation: "start", Lock: lock.NewManager(d, nil), Store: store, Runner: runner, FailureStatus: state.StatusStartFailed}

	sshWaited := false
	err = Start(context.Background(), StartOptions{
		Deployment: d, Store: store, Lock: guard, Runner: runner, Reporter: progress.New("start"), CloudProvider: "aws",
		WaitSSHReachable: func(ctx context.Context) error { sshWaited = true; return nil },
	})
	require.NoError(t, err)
	assert.True(t, sshWaited)
	assert.Equal(t, []string{"tofu"}, runner.calls)
}

func writeFakeTerraformState(d *paths.Deployment) error {
	return writeFile(d.TerraformStateFile(), "{}")
}

func writeFile(path, content string) error {
	return osWriteFile(path, []byte(content))
}

func TestStartReleasesLockBeforeWaitingForDatabaseReady(t *testing.T) {
	d, store := newDeployment(t)
	_, err := store.Init("hetzner", "8.1.8", "x86_64", 1)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(state.StatusStopped))

	runner := newFakeRunner()
	lockMgr := lock.NewManager(d, nil)
	guard := &Guard{Operation: "start", Lock: lockMgr, Store: store, Runner: runner, FailureStatus: state.StatusStartFailed}

	var lockHeldDuringWait bool
	err = Start(context.Background(), StartOptions{
		Deployment: d, Store: store, Lock: guard, Runner: runner, Reporter: progress.New("start"), CloudProvider: "hetzner",
		WaitForDatabaseReady: func(ctx context.Context, timeout time.Duration) error {
			lockHeldDuringWait = lockMgr.Exists()
			return nil
		},
	})
	require.NoError(t, err)
	assert.False(t, lockHeldDuringWait, "lock must be released before WaitForDatabaseReady runs")
	assert.False(t, lockMgr.Exists())
}

func TestStartMarksStartFailedWhenDatabaseReadyWaitFails(t *testing.T) {
	d, store := newDeployment(t)
	_, err := store.Init("hetzner", "8.1.8", "x86_64", 1)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(state.StatusStopped))

	runner := newFakeRunner()
	guard := &Guard{Operation: "start", Lock: lock.NewManager(d, nil), Store: store, Runner: runner, FailureStatus: state.StatusStartFailed}

	err = Start(context.Background(), StartOptions{
		Deployment: d, Store: store, Lock: guard, Runner: runner, Reporter: progress.New("start"), CloudProvider: "hetzner",
		WaitForDatabaseReady: func(ctx context.Context, timeout time.Duration) error {
			return assertError("health check")
		},
	})
	require.Error(t, err)
	assert.Equal(t, state.StatusStartFailed, store.GetStatus())
}

func TestAzureDestroySafetyWaitSkipsWhenWindowAlreadyElapsed(t *testing.T) {
	wait := AzureDestroySafetyWait(time.Now().Add(-azureNICReservationWindow - time.Second))
	start := time.Now()
	require.NoError(t, wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAzureDestroySafetyWaitRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := AzureDestroySafetyWait(time.Now())(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
