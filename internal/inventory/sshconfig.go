package inventory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
)

// HostBlock is one `Host <name>` stanza in ssh_config.
type HostBlock struct {
	Name  string
	Lines []string // raw "Key Value" lines, indented, in original order
}

// SSHConfig is the parsed content of a deployment's ssh_config file.
type SSHConfig struct {
	preamble []string
	order    []string
	blocks   map[string]*HostBlock
}

// ParseSSHConfig reads an OpenSSH client config with one Host block per
// node, as written by deploy.
func ParseSSHConfig(r io.Reader) (*SSHConfig, error) {
	scanner := bufio.NewScanner(r)
	cfg := &SSHConfig{blocks: make(map[string]*HostBlock)}

	var current *HostBlock
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if fields := strings.Fields(trimmed); len(fields) == 2 && strings.EqualFold(fields[0], "Host") {
			current = &HostBlock{Name: fields[1]}
			cfg.order = append(cfg.order, current.Name)
			cfg.blocks[current.Name] = current
			continue
		}

		if current == nil {
			cfg.preamble = append(cfg.preamble, line)
			continue
		}
		current.Lines = append(current.Lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, orcherrors.Internal("failed to read ssh_config", err)
	}
	return cfg, nil
}

// LoadSSHConfig parses the ssh_config file at path.
func LoadSSHConfig(path string) (*SSHConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcherrors.Fatal("ssh_config is missing")
		}
		return nil, orcherrors.Internal("failed to read ssh_config", err)
	}
	defer f.Close()
	return ParseSSHConfig(f)
}

// SetHostName rewrites the HostName line of the Host block named name,
// appending one if it did not already have a HostName directive.
func (cfg *SSHConfig) SetHostName(name, ip string) bool {
	block, ok := cfg.blocks[name]
	if !ok {
		return false
	}

	for i, line := range block.Lines {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 2 && strings.EqualFold(fields[0], "HostName") {
			block.Lines[i] = fmt.Sprintf("    HostName %s", ip)
			return true
		}
	}
	block.Lines = append(block.Lines, fmt.Sprintf("    HostName %s", ip))
	return true
}

// Render serializes the config back to ssh_config text.
func (cfg *SSHConfig) Render() string {
	var sb strings.Builder
	for _, line := range cfg.preamble {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	for _, name := range cfg.order {
		block := cfg.blocks[name]
		fmt.Fprintf(&sb, "Host %s\n", block.Name)
		for _, line := range block.Lines {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Save writes the config back to path with mode 0640.
func (cfg *SSHConfig) Save(path string) error {
	if err := os.WriteFile(path, []byte(cfg.Render()), 0o640); err != nil {
		return orcherrors.Internal("failed to write ssh_config", err)
	}
	return nil
}
