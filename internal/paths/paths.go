// Package paths resolves the fixed set of filenames a deployment directory
// contains. It holds no state and performs no I/O beyond os.Stat calls used
// to answer "does this deployment exist" questions.
package paths

import (
	"os"
	"path/filepath"
)

// Deployment resolves every well-known file inside one deployment
// directory. The zero value is not usable; construct with New.
type Deployment struct {
	dir string
}

// New resolves dir to an absolute path and returns a Deployment rooted
// there. dir need not exist yet (init creates it).
func New(dir string) (*Deployment, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Deployment{dir: abs}, nil
}

// Dir returns the absolute deployment directory path.
func (d *Deployment) Dir() string { return d.dir }

// StateFile is the path to .exasol.json.
func (d *Deployment) StateFile() string { return filepath.Join(d.dir, ".exasol.json") }

// LockFile is the path to .exasolLock.json.
func (d *Deployment) LockFile() string { return filepath.Join(d.dir, ".exasolLock.json") }

// CredentialsFile is the path to .credentials.json.
func (d *Deployment) CredentialsFile() string { return filepath.Join(d.dir, ".credentials.json") }

// TfvarsFile is the path to variables.auto.tfvars.
func (d *Deployment) TfvarsFile() string { return filepath.Join(d.dir, "variables.auto.tfvars") }

// TemplatesDir is the path to .templates/.
func (d *Deployment) TemplatesDir() string { return filepath.Join(d.dir, ".templates") }

// InventoryFile is the path to inventory.ini.
func (d *Deployment) InventoryFile() string { return filepath.Join(d.dir, "inventory.ini") }

// SSHConfigFile is the path to ssh_config.
func (d *Deployment) SSHConfigFile() string { return filepath.Join(d.dir, "ssh_config") }

// InfoFile is the path to INFO.txt.
func (d *Deployment) InfoFile() string { return filepath.Join(d.dir, "INFO.txt") }

// SSHKeyFile is the path to the cluster's private key.
func (d *Deployment) SSHKeyFile() string { return filepath.Join(d.dir, "exasol-key.pem") }

// ProgressLogFile is the path to the supplemental progress audit log.
func (d *Deployment) ProgressLogFile() string {
	return filepath.Join(d.dir, ".exasol-progress.log")
}

// TerraformStateFile is the path to the infra-as-code state file left
// behind by the external tool under the deployment directory.
func (d *Deployment) TerraformStateFile() string { return filepath.Join(d.dir, "terraform.tfstate") }

// TerraformPlanFile is the path to the most recent saved plan file.
func (d *Deployment) TerraformPlanFile() string { return filepath.Join(d.dir, "tfplan") }

// IsInitialized reports whether dir already holds a state document, i.e.
// whether this is already a deployment directory.
func (d *Deployment) IsInitialized() bool {
	_, err := os.Stat(d.StateFile())
	return err == nil
}

// Exists reports whether the deployment directory itself exists.
func (d *Deployment) Exists() bool {
	info, err := os.Stat(d.dir)
	return err == nil && info.IsDir()
}

// EnsureDirs creates the deployment directory and its .templates/
// subdirectory with restrictive permissions (the directory may later hold
// the private key and credentials file).
func (d *Deployment) EnsureDirs() error {
	if err := os.MkdirAll(d.dir, 0o750); err != nil {
		return err
	}
	return os.MkdirAll(d.TemplatesDir(), 0o750)
}

// ResolveConfigPath returns path if it is non-empty, otherwise envValue if
// set, otherwise def. Used to apply the env-var-override precedence for
// EXASOL_VERSIONS_CONFIG / EXASOL_INSTANCE_TYPES_CONFIG described in the
// external-interfaces contract.
func ResolveConfigPath(flagValue, envValue, def string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue != "" {
		return envValue
	}
	return def
}
