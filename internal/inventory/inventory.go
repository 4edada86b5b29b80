// Package inventory reads and rewrites the two host-facing artifacts a
// deployment carries alongside its state: inventory.ini (an Ansible-style
// inventory with one exasol_nodes section) and ssh_config (an OpenSSH
// client config with one Host block per node). The health engine
// reconciles the IP address recorded in both against the infra-as-code
// state and the detected public IP, per spec.md §4.4's "metadata
// reconciliation" step.
package inventory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
)

// Node is one host entry in the exasol_nodes inventory section.
type Node struct {
	Name string
	Vars map[string]string // ansible_host, ansible_user, ...
}

// Inventory is the parsed content of inventory.ini, preserving node
// order and any non-exasol_nodes sections verbatim so reconciliation
// never clobbers sections it doesn't understand.
type Inventory struct {
	nodeOrder []string
	nodes     map[string]*Node
	preamble  []string // lines before [exasol_nodes], kept verbatim
	trailer   []string // lines after the exasol_nodes section, kept verbatim
}

var hostVarPattern = regexp.MustCompile(`^(\S+)\s+(.*)$`)
var kvPattern = regexp.MustCompile(`(\S+)=(\S+)`)

// Parse reads an inventory.ini document from r.
func Parse(r io.Reader) (*Inventory, error) {
	scanner := bufio.NewScanner(r)
	inv := &Inventory{nodes: make(map[string]*Node)}

	inSection := false
	afterSection := false
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "[exasol_nodes]" {
			inSection = true
			continue
		}
		if inSection && strings.HasPrefix(trimmed, "[") {
			inSection = false
			afterSection = true
		}

		switch {
		case inSection:
			if trimmed == "" {
				continue
			}
			node, err := parseNodeLine(trimmed)
			if err != nil {
				return nil, err
			}
			inv.nodeOrder = append(inv.nodeOrder, node.Name)
			inv.nodes[node.Name] = node
		case afterSection:
			inv.trailer = append(inv.trailer, line)
		default:
			inv.preamble = append(inv.preamble, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, orcherrors.Internal("failed to read inventory.ini", err)
	}
	return inv, nil
}

func parseNodeLine(line string) (*Node, error) {
	m := hostVarPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, orcherrors.Fatal(fmt.Sprintf("malformed inventory.ini node line %q", line))
	}
	node := &Node{Name: m[1], Vars: make(map[string]string)}
	for _, kv := range kvPattern.FindAllStringSubmatch(m[2], -1) {
		node.Vars[kv[1]] = kv[2]
	}
	return node, nil
}

// Load parses the inventory.ini file at path.
func Load(path string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcherrors.Fatal("inventory.ini is missing")
		}
		return nil, orcherrors.Internal("failed to read inventory.ini", err)
	}
	defer f.Close()
	return Parse(f)
}

// Nodes returns every node in inventory order.
func (inv *Inventory) Nodes() []*Node {
	out := make([]*Node, 0, len(inv.nodeOrder))
	for _, name := range inv.nodeOrder {
		out = append(out, inv.nodes[name])
	}
	return out
}

// Node looks up a single node by name.
func (inv *Inventory) Node(name string) (*Node, bool) {
	n, ok := inv.nodes[name]
	return n, ok
}

// SetHostIP updates (or adds) the ansible_host variable for node name.
func (inv *Inventory) SetHostIP(name, ip string) {
	n, ok := inv.nodes[name]
	if !ok {
		n = &Node{Name: name, Vars: make(map[string]string)}
		inv.nodes[name] = n
		inv.nodeOrder = append(inv.nodeOrder, name)
	}
	n.Vars["ansible_host"] = ip
}

// Render serializes the inventory back to inventory.ini text, keeping
// preamble/trailer lines verbatim and the exasol_nodes section's keys in
// a stable order (ansible_host first, then the rest alphabetically).
func (inv *Inventory) Render() string {
	var sb strings.Builder
	for _, line := range inv.preamble {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("[exasol_nodes]\n")
	for _, name := range inv.nodeOrder {
		n := inv.nodes[name]
		sb.WriteString(name)
		for _, k := range orderedVarKeys(n.Vars) {
			fmt.Fprintf(&sb, " %s=%s", k, n.Vars[k])
		}
		sb.WriteString("\n")
	}
	for _, line := range inv.trailer {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func orderedVarKeys(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		if k == "ansible_host" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return append([]string{"ansible_host"}, keys...)
}

// Save writes the inventory back to path with mode 0640.
func (inv *Inventory) Save(path string) error {
	if err := os.WriteFile(path, []byte(inv.Render()), 0o640); err != nil {
		return orcherrors.Internal("failed to write inventory.ini", err)
	}
	return nil
}
