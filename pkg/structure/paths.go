package structure

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/strataserver/strata/pkg/errcodes"
)

// Resolver computes on-disk locations for library folders under the managed
// root directory.
type Resolver struct {
	root string
}

func NewResolver(root string) *Resolver {
	return &Resolver{root: root}
}

func (r *Resolver) Root() string {
	return r.root
}

// FolderPath returns the directory backing the named library folder.
func (r *Resolver) FolderPath(name string) string {
	return filepath.Join(r.root, name)
}

func (r *Resolver) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// PathsEqual compares two paths the way a case-insensitive filesystem would.
// Equal-fold but byte-different paths signal a case-only rename, which needs
// the two-step move protocol.
func (r *Resolver) PathsEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// validateFolderName rejects names that can't serve as a directory name under
// the managed root.
func validateFolderName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errcodes.ValidationError("Library name can't be blank.")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errcodes.ValidationError(fmt.Sprintf("%q is not a valid library name.", name))
	}
	return nil
}

// validateMediaPath rejects paths that can't join a library's path set. A
// media path has to point at a directory that actually exists.
func validateMediaPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errcodes.ValidationError("Media path can't be blank.")
	}
	if !filepath.IsAbs(path) {
		return errcodes.ValidationError(fmt.Sprintf("%q must be an absolute path.", path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return errcodes.ValidationError(fmt.Sprintf("The path %q does not exist.", path))
	}
	if !info.IsDir() {
		return errcodes.ValidationError(fmt.Sprintf("The path %q is not a directory.", path))
	}
	return nil
}
