package catalog

import "fmt"

// DefaultInstanceType looks up the default instance type for (provider,
// architecture) in an instance-types.conf document, where each section is
// named "<provider>-<architecture>" (e.g. "[aws-x86_64]") and carries a
// single INSTANCE_TYPE key.
func (d *Document) DefaultInstanceType(provider, architecture string) (string, error) {
	section := fmt.Sprintf("%s-%s", provider, architecture)
	return d.Lookup(section, "INSTANCE_TYPE")
}
