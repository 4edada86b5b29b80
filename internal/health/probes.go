package health

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/time/rate"

	"github.com/exasol-infra/exasol-orchestrator/pkg/resilience"
)

const (
	dialTimeout = 5 * time.Second
	cosSSHPort  = 20002
)

// probeRetryPolicy retries a single dial/command twice with short backoff
// before the probe is recorded as a failure, absorbing the occasional
// dropped SSH handshake under load rather than flagging a healthy node.
func probeRetryPolicy() *resilience.RetryPolicy {
	return &resilience.RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// ProbeConfig parameterizes the real, network-backed probe
// implementations wired up by NewDependencies.
type ProbeConfig struct {
	SSHUser            string
	SSHKeyPath         string
	RateLimitHz        float64 // probe dials per second across the whole run
	RateLimitBurst     int
	TerraformStateFile string // path to the deployment's tofu state, for TerraformStateIP
}

// metadataEndpoints lists the per-cloud instance-metadata paths probed from
// inside the node over SSH, tried in turn until one answers. libvirt/KVM
// deployments have no metadata service and always fall through to the
// inventory IP (spec.md §4.4's IP precedence).
var metadataEndpoints = []string{
	"curl -s -m 2 http://169.254.169.254/latest/meta-data/public-ipv4",                                                    // AWS
	"curl -s -m 2 -H 'Metadata-Flavor: Google' 'http://169.254.169.254/computeMetadata/v1/instance/network-interfaces/0/access-configs/0/external-ip'", // GCP
	"curl -s -m 2 -H 'Metadata: true' 'http://169.254.169.254/metadata/instance/network/interface/0/ipv4/ipAddress/0/publicIpAddress?api-version=2021-02-01&format=text'", // Azure
	"curl -s -m 2 http://169.254.169.254/opc/v2/vnics/0/publicIp -H 'Authorization: Bearer Oracle'",                        // OCI
}

// NewDependencies builds the Dependencies the health engine uses outside
// of tests: real SSH dials, real TCP port probes, and a shared rate
// limiter bounding how many of those happen concurrently, per spec.md
// §5's note that the health engine spends its time in external I/O.
func NewDependencies(cfg ProbeConfig) (Dependencies, error) {
	signer, err := loadSigner(cfg.SSHKeyPath)
	if err != nil {
		return Dependencies{}, err
	}

	limiter := rate.NewLimiter(rate.Limit(orDefault(cfg.RateLimitHz, 10)), orDefaultInt(cfg.RateLimitBurst, 10))

	sshClientConfig := &ssh.ClientConfig{
		User:            cfg.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	return Dependencies{
		RateLimiter: limiter,
		Services:    []string{"exasol-db", "exasol-cloud-command", "exasol-adminui"},
		ProbeSSH: func(ctx context.Context, host string) error {
			return probeSSHReachable(ctx, host, 22, sshClientConfig)
		},
		ProbeCOSSSH: func(ctx context.Context, host string) error {
			return probeSSHReachable(ctx, host, cosSSHPort, sshClientConfig)
		},
		ProbeService: func(ctx context.Context, host, service string) (bool, error) {
			return probeService(ctx, host, service, sshClientConfig)
		},
		ProbeVolumes: func(ctx context.Context, host string) (string, error) {
			return probeVolumes(ctx, host, sshClientConfig)
		},
		ProbeClusterStage: func(ctx context.Context, host string) (ClusterStage, error) {
			return probeClusterStage(ctx, host, sshClientConfig)
		},
		ProbePort: func(ctx context.Context, ip string, port int) bool {
			if port == adminUIPort {
				return tlsPortProbe(ctx, ip, port)
			}
			return probePort(ctx, ip, port)
		},
		DetectMetadataIP: func(ctx context.Context, host string) (string, error) {
			return detectMetadataIP(ctx, host, sshClientConfig)
		},
		TerraformStateIP: func(nodeName string) (string, error) {
			return terraformStateIP(cfg.TerraformStateFile, nodeName)
		},
	}, nil
}

// detectMetadataIP tries each known cloud metadata endpoint from inside the
// node over SSH and returns the first non-empty answer.
func detectMetadataIP(ctx context.Context, host string, cfg *ssh.ClientConfig) (string, error) {
	for _, cmd := range metadataEndpoints {
		out, err := runSSHCommand(ctx, host, cfg, cmd)
		if err == nil && len(out) > 0 && net.ParseIP(trimSpace(out)) != nil {
			return trimSpace(out), nil
		}
	}
	return "", fmt.Errorf("no metadata endpoint answered for %s", host)
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\n' || s[start] == '\r' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\n' || s[end-1] == '\r' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

// terraformStateOutputs is the narrow slice of a tofu state file's JSON
// shape this package cares about: the root module's output values, one of
// which is expected to carry a nodeName -> public IP map (the provider
// templates' "node_public_ips" output per spec.md §6).
type terraformStateOutputs struct {
	Outputs map[string]struct {
		Value json.RawMessage `json:"value"`
	} `json:"outputs"`
}

func terraformStateIP(stateFile, nodeName string) (string, error) {
	if stateFile == "" {
		return "", fmt.Errorf("no terraform state file configured")
	}
	data, err := os.ReadFile(stateFile)
	if err != nil {
		return "", err
	}
	var doc terraformStateOutputs
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	out, ok := doc.Outputs["node_public_ips"]
	if !ok {
		return "", fmt.Errorf("terraform state has no node_public_ips output")
	}
	var ips map[string]string
	if err := json.Unmarshal(out.Value, &ips); err != nil {
		return "", err
	}
	ip, ok := ips[nodeName]
	if !ok || ip == "" {
		return "", fmt.Errorf("no terraform output ip for node %s", nodeName)
	}
	return ip, nil
}

func loadSigner(path string) (ssh.Signer, error) {
	if path == "" {
		return nil, fmt.Errorf("ssh key path is required for health probes")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh key: %w", err)
	}
	return signer, nil
}

func probeSSHReachable(ctx context.Context, host string, port int, cfg *ssh.ClientConfig) error {
	return resilience.WithRetry(ctx, probeRetryPolicy(), func() error {
		addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		defer conn.Close()

		c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
		if err != nil {
			return err
		}
		client := ssh.NewClient(c, chans, reqs)
		defer client.Close()
		return nil
	})
}

func runSSHCommand(ctx context.Context, host string, cfg *ssh.ClientConfig, command string) (string, error) {
	return resilience.WithRetryFunc(ctx, probeRetryPolicy(), func() (string, error) {
		addr := net.JoinHostPort(host, "22")
		client, err := ssh.Dial("tcp", addr, cfg)
		if err != nil {
			return "", err
		}
		defer client.Close()

		session, err := client.NewSession()
		if err != nil {
			return "", err
		}
		defer session.Close()

		out, err := session.CombinedOutput(command)
		return string(out), err
	})
}

func probeService(ctx context.Context, host, service string, cfg *ssh.ClientConfig) (bool, error) {
	out, err := runSSHCommand(ctx, host, cfg, "systemctl is-active "+service)
	if err != nil {
		// systemctl exits non-zero for an inactive service; that is a
		// legitimate "not active" result, not a probe failure.
		if len(out) > 0 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func probeVolumes(ctx context.Context, host string, cfg *ssh.ClientConfig) (string, error) {
	const dataVolumePath = "/exa/data"
	out, err := runSSHCommand(ctx, host, cfg, "test -L "+dataVolumePath+" && readlink -f "+dataVolumePath)
	if err != nil {
		return "no_data_volumes", nil
	}
	if len(out) == 0 {
		return "broken_volume_symlink", nil
	}
	return "volume_ok", nil
}

func probeClusterStage(ctx context.Context, host string, cfg *ssh.ClientConfig) (ClusterStage, error) {
	out, err := runSSHCommand(ctx, host, cfg, "csctrl -s")
	if err != nil {
		return StageUnknown, err
	}
	return parseClusterStage(out), nil
}

// parseClusterStage falls back to a line-grammar scrape of the cluster
// admin tool's output, per spec.md §10's note that a structured mode
// isn't available for cluster stage.
func parseClusterStage(output string) ClusterStage {
	for _, candidate := range []ClusterStage{StageReady, StageCOS, StageBoot1, StageBoot, StageStopped1, StageStopped} {
		if containsStage(output, string(candidate)) {
			return candidate
		}
	}
	return StageUnknown
}

func containsStage(output, stage string) bool {
	for i := 0; i+len(stage) <= len(output); i++ {
		if output[i:i+len(stage)] == stage {
			return true
		}
	}
	return false
}

func probePort(ctx context.Context, ip string, port int) bool {
	err := resilience.WithRetry(ctx, probeRetryPolicy(), func() error {
		addr := net.JoinHostPort(ip, fmt.Sprintf("%d", port))
		d := net.Dialer{Timeout: dialTimeout}
		conn, dialErr := d.DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			return dialErr
		}
		return conn.Close()
	})
	return err == nil
}

// tlsPortProbe is used for the admin-UI HTTPS port specifically, as a
// plain TCP connect does not confirm a TLS listener is actually behind
// the port. Kept separate from probePort (plain TCP) for the database
// port, which does not speak TLS.
func tlsPortProbe(ctx context.Context, ip string, port int) bool {
	addr := net.JoinHostPort(ip, fmt.Sprintf("%d", port))
	d := tls.Dialer{NetDialer: &net.Dialer{Timeout: dialTimeout}, Config: &tls.Config{InsecureSkipVerify: true}}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	defer conn.Close()
	return true
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
