// Package provider is the registry of supported cloud providers: their
// names, power-control family (API-power vs manual-power), architecture
// support, and the provider-specific flag schema listed in spec.md §6.
package provider

import (
	"fmt"
	"sort"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
)

// Name identifies one of the closed set of supported cloud providers.
type Name string

const (
	AWS          Name = "aws"
	Azure        Name = "azure"
	GCP          Name = "gcp"
	Hetzner      Name = "hetzner"
	DigitalOcean Name = "digitalocean"
	Exoscale     Name = "exoscale"
	OCI          Name = "oci"
	Libvirt      Name = "libvirt"
)

// PowerFamily classifies how a provider's nodes are stopped/started once
// they exist, per spec.md §4.7.
type PowerFamily string

const (
	// APIPower providers expose a programmatic power_off/power_on, driven
	// through infra_desired_state in the infra-as-code templates.
	APIPower PowerFamily = "api-power"
	// ManualPower providers require the operator to use the provider's
	// console or CLI directly; the orchestrator only detects the result.
	ManualPower PowerFamily = "manual-power"
)

// Flag describes one provider-specific CLI flag accepted by `init`.
type Flag struct {
	Name        string
	Description string
	Required    bool
}

// Descriptor captures everything the orchestrator needs to know about a
// provider at init/stop/start time.
type Descriptor struct {
	Name           Name
	PowerFamily    PowerFamily
	SupportsARM64  bool
	Flags          []Flag
}

// registry is the closed set of supported providers. libvirt is recorded
// as API-power per the current guidance in spec.md §10 (a per-deployment
// capability flag to distinguish Linux libvirtd sessions, which are
// programmatically controllable, from macOS/HVF sessions, which are not,
// is future work -- see DESIGN.md's Open Questions section).
var registry = map[Name]Descriptor{
	AWS: {
		Name:          AWS,
		PowerFamily:   APIPower,
		SupportsARM64: true,
		Flags: []Flag{
			{Name: "aws-region", Required: true},
			{Name: "aws-profile"},
			{Name: "aws-spot-instance"},
		},
	},
	Azure: {
		Name:          Azure,
		PowerFamily:   APIPower,
		SupportsARM64: true,
		Flags: []Flag{
			{Name: "azure-region", Required: true},
			{Name: "azure-subscription", Required: true},
			{Name: "azure-credentials-file"},
			{Name: "azure-spot-instance"},
		},
	},
	GCP: {
		Name:          GCP,
		PowerFamily:   APIPower,
		SupportsARM64: true,
		Flags: []Flag{
			{Name: "gcp-region", Required: true},
			{Name: "gcp-zone", Required: true},
			{Name: "gcp-project", Required: true},
			{Name: "gcp-credentials-file"},
			{Name: "gcp-spot-instance"},
		},
	},
	Hetzner: {
		Name:          Hetzner,
		PowerFamily:   ManualPower,
		SupportsARM64: true,
		Flags: []Flag{
			{Name: "hetzner-location", Required: true},
			{Name: "hetzner-network-zone", Required: true},
			{Name: "hetzner-token", Required: true},
		},
	},
	DigitalOcean: {
		Name:          DigitalOcean,
		PowerFamily:   ManualPower,
		SupportsARM64: false,
		Flags: []Flag{
			{Name: "digitalocean-region", Required: true},
			{Name: "digitalocean-token", Required: true},
		},
	},
	Exoscale: {
		Name:          Exoscale,
		PowerFamily:   ManualPower,
		SupportsARM64: true,
	},
	OCI: {
		Name:          OCI,
		PowerFamily:   ManualPower,
		SupportsARM64: true,
	},
	Libvirt: {
		Name:          Libvirt,
		PowerFamily:   APIPower,
		SupportsARM64: true,
		Flags: []Flag{
			{Name: "libvirt-memory"},
			{Name: "libvirt-vcpus"},
			{Name: "libvirt-network"},
			{Name: "libvirt-pool"},
			{Name: "libvirt-uri"},
		},
	},
}

// Lookup returns the Descriptor for name, or a validation error if name is
// not one of the supported providers.
func Lookup(name string) (Descriptor, error) {
	d, ok := registry[Name(name)]
	if !ok {
		return Descriptor{}, orcherrors.Validationf("unsupported cloud provider %q", name)
	}
	return d, nil
}

// Names returns every supported provider name, sorted for deterministic
// help text and error messages.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}

// CheckArchitecture validates that provider supports architecture, per
// spec.md §4.5 step 2 ("DigitalOcean rejects arm64").
func CheckArchitecture(name, architecture string) error {
	d, err := Lookup(name)
	if err != nil {
		return err
	}
	if architecture == "arm64" && !d.SupportsARM64 {
		return orcherrors.Validationf("provider %q does not support arm64 instances", name)
	}
	return nil
}

// IsAPIPower reports whether provider uses programmatic power control.
func IsAPIPower(name string) (bool, error) {
	d, err := Lookup(name)
	if err != nil {
		return false, err
	}
	return d.PowerFamily == APIPower, nil
}

// RequireSupported returns a formatted error naming the allowed set when
// name is not a valid provider, for use in CLI flag validation.
func RequireSupported(name string) error {
	if _, err := Lookup(name); err != nil {
		return orcherrors.Validationf("unsupported cloud provider %q, must be one of: %v", name, Names())
	}
	return nil
}

// String implements fmt.Stringer.
func (n Name) String() string { return string(n) }

var _ fmt.Stringer = Name("")
