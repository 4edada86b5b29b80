package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	reg := NewRegistry("exasol_test_op")
	reg.RecordOperation("deploy", "success", 12.5)

	var buf bytes.Buffer
	require.NoError(t, reg.WriteTo(&buf))
	assert.Contains(t, buf.String(), "exasol_test_op_operations_total")
	assert.Contains(t, buf.String(), `command="deploy"`)
}

func TestRecordProbeFailure(t *testing.T) {
	reg := NewRegistry("exasol_test_probe")
	reg.RecordProbeFailure("ssh")

	var buf bytes.Buffer
	require.NoError(t, reg.WriteTo(&buf))
	out := buf.String()
	assert.True(t, strings.Contains(out, "health_probe_failures_total"))
}

func TestRecordRetryAndBackoff(t *testing.T) {
	reg := NewRegistry("exasol_test_retry")
	reg.RecordRetry("ssh_probe", "failure")
	reg.RecordBackoff("ssh_probe", 0.25)

	var buf bytes.Buffer
	require.NoError(t, reg.WriteTo(&buf))
	out := buf.String()
	assert.Contains(t, out, "retry_attempts_total")
	assert.Contains(t, out, "retry_backoff_seconds")
}

func TestNilRegistrySafe(t *testing.T) {
	var reg *Registry
	assert.NotPanics(t, func() {
		reg.RecordOperation("x", "y", 1)
		reg.RecordProbeFailure("x")
		reg.RecordRetry("x", "y")
		reg.RecordBackoff("x", 1)
	})
}

func TestDefaultRegistrySingleton(t *testing.T) {
	a := DefaultRegistry()
	b := DefaultRegistry()
	assert.Same(t, a, b)
}
