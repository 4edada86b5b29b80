package initengine

import (
	"io"
	"os"
	"path/filepath"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
)

// TemplateSource locates the on-disk template trees init copies into a
// fresh deployment's .templates/ directory, per spec.md §4.5 step 7:
// shared templates, then provider-specific templates, then the
// configuration-management playbooks.
type TemplateSource struct {
	Root string // e.g. /usr/share/exasol-orchestrator/templates
}

func (s TemplateSource) sharedDir() string    { return filepath.Join(s.Root, "shared") }
func (s TemplateSource) providerDir(provider string) string {
	return filepath.Join(s.Root, "providers", provider)
}
func (s TemplateSource) playbooksDir() string { return filepath.Join(s.Root, "playbooks") }

// CopyInto copies the shared templates, the provider-specific templates,
// and the playbooks into dst (the deployment's .templates/ directory), in
// that order so provider-specific files may shadow shared ones sharing a
// name.
func (s TemplateSource) CopyInto(dst, provider string) error {
	for _, src := range []string{s.sharedDir(), s.providerDir(provider), s.playbooksDir()} {
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyTree(src, dst); err != nil {
			return orcherrors.Internal("failed to copy templates from "+src, err)
		}
	}
	return nil
}

// LinkRootFiles symlinks the provider's root-level infra-as-code entry
// files (e.g. main.tf, variables.tf) from the template tree into the
// deployment directory itself, per spec.md §4.5 step 7 ("link the
// root-level infra-as-code files as symlinks into the deployment
// directory").
func (s TemplateSource) LinkRootFiles(deploymentDir, provider string) error {
	src := s.providerDir(provider)
	entries, err := os.ReadDir(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return orcherrors.Internal("failed to list provider template root", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".tf" {
			continue
		}
		linkPath := filepath.Join(deploymentDir, entry.Name())
		_ = os.Remove(linkPath)
		if err := os.Symlink(filepath.Join(src, entry.Name()), linkPath); err != nil {
			return orcherrors.Internal("failed to symlink "+entry.Name(), err)
		}
	}
	return nil
}

// copyTree recursively copies the contents of src into dst, creating
// directories as needed and preserving file modes.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
