package structure

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/strataserver/strata/pkg/errcodes"
)

// Mover performs the on-disk directory operations behind structural changes.
// It only ever touches paths under the managed root.
type Mover struct {
	resolver *Resolver
}

func NewMover(resolver *Resolver) *Mover {
	return &Mover{resolver: resolver}
}

// CheckMove validates a move without performing it. The same checks run again
// inside Move; exposing them separately lets callers reject a request before
// committing to the pause/resume cycle.
func (m *Mover) CheckMove(current, target string) error {
	if !m.resolver.Exists(current) {
		return errcodes.NotFound("Library folder")
	}
	if current != target && !m.resolver.PathsEqual(current, target) && m.resolver.Exists(target) {
		return errcodes.Conflict("A library folder already exists at the target path.")
	}
	return nil
}

// Move relocates a folder directory to target.
//
// A move where current and target are byte-equal succeeds without touching
// disk. A case-only rename goes through a unique temporary path under the
// root first, because a direct case-only rename is a no-op on
// case-insensitive filesystems.
func (m *Mover) Move(current, target string) error {
	if err := m.CheckMove(current, target); err != nil {
		return err
	}

	switch {
	case current == target:
		return nil
	case m.resolver.PathsEqual(current, target):
		id, err := uuid.NewRandom()
		if err != nil {
			return errors.WithStack(err)
		}
		temp := filepath.Join(m.resolver.Root(), id.String())

		if err := os.Rename(current, temp); err != nil {
			return errors.WithStack(err)
		}
		if err := os.Rename(temp, target); err != nil {
			return errors.WithStack(err)
		}
		return nil
	default:
		if err := os.Rename(current, target); err != nil {
			return errors.WithStack(err)
		}
		return nil
	}
}

// CreateFolder creates the directory backing a new library folder.
func (m *Mover) CreateFolder(path string) error {
	return errors.WithStack(os.MkdirAll(path, 0o755))
}

// RemoveFolder deletes the directory backing a library folder, along with
// anything inside it. Removing a directory that's already gone is fine.
func (m *Mover) RemoveFolder(path string) error {
	return errors.WithStack(os.RemoveAll(path))
}
