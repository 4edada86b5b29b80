// Package health implements the Health Engine from spec.md §4.4: one
// concurrent probe set per inventory node, aggregated in inventory order,
// followed by an optional status-correction and inventory/ssh_config/
// INFO.txt reconciliation pass when update=true.
package health

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/exasol-infra/exasol-orchestrator/internal/inventory"
	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
	"github.com/exasol-infra/exasol-orchestrator/internal/paths"
	"github.com/exasol-infra/exasol-orchestrator/internal/state"
)

// ClusterStage is the one-letter (or "a1"/"b1", "mixed:…", "unknown")
// indicator emitted by the cluster admin tool, per spec.md §4.4 probe 5
// and the glossary's "cluster stage" entry.
type ClusterStage string

const (
	StageStopped  ClusterStage = "a"
	StageStopped1 ClusterStage = "a1"
	StageBoot     ClusterStage = "b"
	StageBoot1    ClusterStage = "b1"
	StageCOS      ClusterStage = "c"
	StageReady    ClusterStage = "d"
	StageUnknown  ClusterStage = "unknown"
)

// NodeResult is the full probe outcome for one inventory node.
type NodeResult struct {
	Name string

	SSHReachable    bool
	COSSSHReachable bool // only probed when the ssh_config declares a cos user/port

	Services map[string]bool // service name -> active

	VolumeStatus string // "volume_ok", "no_data_volumes", "broken_volume_symlink"

	ClusterStage ClusterStage

	AdminUIReachable bool
	DBPortReachable  bool

	InventoryIP string
	MetadataIP  string
	TerraformIP string

	Issues []string
}

// hasIssue records a probe failure and appends a human-readable note.
func (r *NodeResult) hasIssue(format string, args ...interface{}) {
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
}

// Dependencies are the externally-provided probe implementations a Report
// run needs. Each is injected so tests can substitute fakes instead of
// reaching real SSH/HTTPS endpoints; Probes in probes.go wires the real
// network-backed implementations.
type Dependencies struct {
	ProbeSSH          func(ctx context.Context, host string) error
	ProbeCOSSSH       func(ctx context.Context, host string) error
	ProbeService      func(ctx context.Context, host, service string) (bool, error)
	ProbeVolumes      func(ctx context.Context, host string) (string, error)
	ProbeClusterStage func(ctx context.Context, host string) (ClusterStage, error)
	ProbePort         func(ctx context.Context, ip string, port int) bool
	DetectMetadataIP  func(ctx context.Context, host string) (string, error)
	TerraformStateIP  func(nodeName string) (string, error)

	// Services is the fixed set of systemd services probed per node, per
	// spec.md §4.4 probe 3 ("the main database service, a cloud-command
	// helper, and the admin UI").
	Services []string

	// RateLimiter bounds the rate of outbound probe connections across all
	// nodes, so a large cluster does not open hundreds of simultaneous SSH/
	// HTTPS dials at once.
	RateLimiter *rate.Limiter
}

// Report is the full output of one health run.
type Report struct {
	Nodes         []NodeResult
	AnyIssue      bool
	NewStatus     state.Status
	StatusChanged bool
}

// Options configures one health invocation.
type Options struct {
	Deployment *paths.Deployment
	Store      *state.Store
	Deps       Dependencies
	Update     bool
}

const (
	adminUIPort = 8443
	dbPort      = 8563
)

// Run executes the probe fan-out, aggregates results in inventory order,
// and — when Update is set — reconciles inventory.ini/ssh_config/INFO.txt
// and applies the status-correction policy from spec.md §4.4.
func Run(ctx context.Context, opts Options) (*Report, error) {
	inv, err := inventory.Load(opts.Deployment.InventoryFile())
	if err != nil {
		return nil, err
	}
	// ssh_config must exist too (spec.md §4.4: "missing inventory or SSH
	// config is fatal"), even though only reconcileMetadata rewrites it.
	if _, err := inventory.LoadSSHConfig(opts.Deployment.SSHConfigFile()); err != nil {
		return nil, err
	}

	nodes := inv.Nodes()
	results := make([]NodeResult, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	for i, n := range nodes {
		i, n := i, n
		g.Go(func() error {
			results[i] = probeNode(gctx, n, opts.Deps)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, orcherrors.Internal("health probe fan-out failed", err)
	}

	report := &Report{Nodes: results}
	for _, r := range results {
		if len(r.Issues) > 0 {
			report.AnyIssue = true
		}
	}

	if !opts.Update {
		return report, nil
	}

	doc, err := opts.Store.Read()
	if err != nil {
		return nil, err
	}

	if err := reconcileMetadata(opts.Deployment, inv, results); err != nil {
		return nil, err
	}

	next, changed := correctStatus(doc.Status, results, len(nodes))
	report.NewStatus = next
	report.StatusChanged = changed
	if changed {
		doc.Status = next
		if err := opts.Store.Write(doc); err != nil {
			return nil, err
		}
	}

	return report, nil
}

func probeNode(ctx context.Context, n *inventory.Node, deps Dependencies) NodeResult {
	result := NodeResult{Name: n.Name, Services: make(map[string]bool), InventoryIP: n.Vars["ansible_host"]}

	wait := func() {
		if deps.RateLimiter != nil {
			_ = deps.RateLimiter.Wait(ctx)
		}
	}

	host := n.Vars["ansible_host"]

	wait()
	if deps.ProbeSSH != nil {
		if err := deps.ProbeSSH(ctx, host); err != nil {
			result.hasIssue("ssh unreachable: %v", err)
		} else {
			result.SSHReachable = true
		}
	}

	if _, declared := n.Vars["cos_port"]; declared && deps.ProbeCOSSSH != nil {
		wait()
		if err := deps.ProbeCOSSSH(ctx, host); err != nil {
			result.hasIssue("cos ssh unreachable: %v", err)
		} else {
			result.COSSSHReachable = true
		}
	}

	for _, svc := range deps.Services {
		wait()
		if deps.ProbeService == nil {
			continue
		}
		active, err := deps.ProbeService(ctx, host, svc)
		if err != nil {
			result.hasIssue("service %s probe failed: %v", svc, err)
			continue
		}
		result.Services[svc] = active
		if !active {
			result.hasIssue("service %s is not active", svc)
		}
	}

	if deps.ProbeVolumes != nil {
		wait()
		status, err := deps.ProbeVolumes(ctx, host)
		if err != nil {
			result.hasIssue("volume probe failed: %v", err)
		}
		result.VolumeStatus = status
		if status == "broken_volume_symlink" {
			result.hasIssue("broken data volume symlink")
		}
	}

	if deps.ProbeClusterStage != nil {
		wait()
		stage, err := deps.ProbeClusterStage(ctx, host)
		if err != nil {
			result.ClusterStage = StageUnknown
			result.hasIssue("cluster stage probe failed: %v", err)
		} else {
			result.ClusterStage = stage
		}
	}

	if deps.ProbePort != nil && host != "" {
		wait()
		result.AdminUIReachable = deps.ProbePort(ctx, host, adminUIPort)
		if !result.AdminUIReachable {
			result.hasIssue("admin UI port %d unreachable", adminUIPort)
		}
		wait()
		result.DBPortReachable = deps.ProbePort(ctx, host, dbPort)
		if !result.DBPortReachable {
			result.hasIssue("database port %d unreachable", dbPort)
		}
	}

	if deps.DetectMetadataIP != nil {
		wait()
		if ip, err := deps.DetectMetadataIP(ctx, host); err == nil {
			result.MetadataIP = ip
		}
	}
	if deps.TerraformStateIP != nil {
		if ip, err := deps.TerraformStateIP(n.Name); err == nil {
			result.TerraformIP = ip
		}
	}

	if result.MetadataIP != "" && result.InventoryIP != "" && result.MetadataIP != result.InventoryIP {
		result.hasIssue("inventory IP %s disagrees with detected public IP %s", result.InventoryIP, result.MetadataIP)
	}
	if result.TerraformIP != "" && result.InventoryIP != "" && result.TerraformIP != result.InventoryIP {
		result.hasIssue("inventory IP %s disagrees with infra-as-code state IP %s", result.InventoryIP, result.TerraformIP)
	}

	return result
}

// preferredIP implements spec.md §4.4's precedence: infra-as-code state IP,
// then detected public IP, else the inventory IP.
func preferredIP(r NodeResult) string {
	if r.TerraformIP != "" {
		return r.TerraformIP
	}
	if r.MetadataIP != "" {
		return r.MetadataIP
	}
	return r.InventoryIP
}

func reconcileMetadata(d *paths.Deployment, inv *inventory.Inventory, results []NodeResult) error {
	sshCfg, err := inventory.LoadSSHConfig(d.SSHConfigFile())
	if err != nil {
		return err
	}
	info, err := inventory.LoadInfoFile(d.InfoFile())
	if err != nil {
		return err
	}

	changed := false
	for _, r := range results {
		preferred := preferredIP(r)
		if preferred == "" || preferred == r.InventoryIP {
			continue
		}
		inv.SetHostIP(r.Name, preferred)
		sshCfg.SetHostName(r.Name, preferred)
		info.ReplaceNodeIP(r.Name, preferred)
		changed = true
	}

	if !changed {
		return nil
	}
	if err := inv.Save(d.InventoryFile()); err != nil {
		return err
	}
	if err := sshCfg.Save(d.SSHConfigFile()); err != nil {
		return err
	}
	return info.Save(d.InfoFile())
}

// correctStatus applies the status-correction table from spec.md §4.4.
func correctStatus(current state.Status, results []NodeResult, clusterSize int) (state.Status, bool) {
	sshFailures := 0
	anyIssue := false
	stages := make(map[ClusterStage]bool)
	for _, r := range results {
		if !r.SSHReachable {
			sshFailures++
		}
		if len(r.Issues) > 0 {
			anyIssue = true
		}
		stages[r.ClusterStage] = true
	}
	stage := aggregateStage(stages)

	if sshFailures == clusterSize && clusterSize > 0 {
		return transitionTo(current, state.StatusStopped)
	}

	switch current {
	case state.StatusDeploymentFailed, state.StatusDatabaseConnectionFailed, state.StatusStartFailed,
		state.StatusStopFailed, state.StatusDestroyFailed, state.StatusStopped, state.StatusStarted:
		if !anyIssue && stage == StageReady {
			return transitionTo(current, state.StatusDatabaseReady)
		}
	}

	if current == state.StatusDatabaseReady && stage != StageReady {
		return transitionTo(current, state.StatusDatabaseConnectionFailed)
	}

	if current == state.StatusStopped {
		anySSHReachable := sshFailures < len(results)
		if anySSHReachable {
			return transitionTo(current, state.StatusStopFailed)
		}
	}

	return current, false
}

func transitionTo(current, next state.Status) (state.Status, bool) {
	if current == next {
		return current, false
	}
	return next, true
}

func aggregateStage(stages map[ClusterStage]bool) ClusterStage {
	if len(stages) == 0 {
		return StageUnknown
	}
	if len(stages) == 1 {
		for s := range stages {
			return s
		}
	}
	var mixed string
	for s := range stages {
		if mixed != "" {
			mixed += ","
		}
		mixed += string(s)
	}
	return ClusterStage("mixed:" + mixed)
}

// waitFor polls Run until report reaches target or timeout elapses, per
// spec.md §4.4's wait-for contract.
func WaitFor(ctx context.Context, opts Options, target state.Status, timeout time.Duration, pollInterval time.Duration) (*Report, error) {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		report, err := Run(ctx, opts)
		if err != nil {
			return nil, err
		}
		doc, err := opts.Store.Read()
		if err != nil {
			return nil, err
		}
		if doc.Status == target {
			return report, nil
		}
		if time.Now().After(deadline) {
			return report, orcherrors.Preconditionf("timed out waiting for status %q (current %q)", target, doc.Status)
		}
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
