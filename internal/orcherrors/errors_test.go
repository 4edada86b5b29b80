package orcherrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	err := New(CodeValidation, "unknown cloud provider")
	assert.Equal(t, "[VALIDATION_ERROR] unknown cloud provider", err.Error())
	assert.NotEmpty(t, err.Timestamp)
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(CodeExternalTool, "tofu apply failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestWithDetails(t *testing.T) {
	err := Validation("bad cluster size").WithDetails(map[string]int{"cluster_size": -1})
	assert.Equal(t, map[string]int{"cluster_size": -1}, err.Details)
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		code     ErrorCode
		expected int
	}{
		{CodeValidation, 2},
		{CodePrecondition, 3},
		{CodeLockBusy, 4},
		{CodeNotFound, 5},
		{CodeMalformedSection, 5},
		{CodeExternalTool, 6},
		{CodeReconciliation, 7},
		{CodeFatal, 8},
		{CodeInternal, 1},
	}

	for _, tc := range cases {
		err := New(tc.code, "x")
		assert.Equal(t, tc.expected, err.ExitCode(), "code=%s", tc.code)
	}
}

func TestMalformedSection(t *testing.T) {
	err := MalformedSection("exasol-2025.1.8", "DB_CHECKSUM")
	assert.Equal(t, CodeMalformedSection, err.Code)
	assert.Contains(t, err.Error(), "DB_CHECKSUM")
}

func TestLockBusyAsOrchestratorError(t *testing.T) {
	busy := &LockBusy{Operation: "deploy", PID: 4242, Hostname: "node-a"}
	err := busy.AsOrchestratorError()

	assert.Equal(t, CodeLockBusy, err.Code)
	assert.Equal(t, 4, err.ExitCode())
	assert.Contains(t, err.Error(), "deploy")
	assert.Contains(t, err.Error(), "4242")
}

func TestMarshalJSON(t *testing.T) {
	err := Validationf("unknown provider %q", "openstack")
	data, marshalErr := err.MarshalJSON()
	require.NoError(t, marshalErr)
	assert.Contains(t, string(data), "VALIDATION_ERROR")
	assert.Contains(t, string(data), "openstack")
}
