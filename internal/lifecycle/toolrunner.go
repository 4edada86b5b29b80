package lifecycle

import (
	"context"

	"github.com/exasol-infra/exasol-orchestrator/internal/exec"
)

// ToolRunner is the subset of *exec.Runner the lifecycle engines depend
// on, narrowed to an interface so tests can substitute a fake instead of
// shelling out to tofu/ansible-playbook.
type ToolRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (*exec.Result, error)
	Kill()
}

var _ ToolRunner = (*exec.Runner)(nil)
