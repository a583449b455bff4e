package structure

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataserver/strata/pkg/errcodes"
)

func newTestMover(t *testing.T) (*Mover, string) {
	t.Helper()

	root := t.TempDir()
	return NewMover(NewResolver(root)), root
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
}

func dirNames(t *testing.T, root string) []string {
	t.Helper()

	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestCheckMove_SourceMissing(t *testing.T) {
	mover, root := newTestMover(t)

	err := mover.CheckMove(filepath.Join(root, "Movies"), filepath.Join(root, "Films"))
	assert.ErrorIs(t, err, errcodes.NotFound("Library folder"))
}

func TestCheckMove_TargetExists(t *testing.T) {
	mover, root := newTestMover(t)
	mkdir(t, filepath.Join(root, "Movies"))
	mkdir(t, filepath.Join(root, "TV"))

	err := mover.CheckMove(filepath.Join(root, "Movies"), filepath.Join(root, "TV"))
	assert.ErrorIs(t, err, errcodes.Conflict("A library folder already exists at the target path."))
}

func TestCheckMove_SameName(t *testing.T) {
	mover, root := newTestMover(t)
	mkdir(t, filepath.Join(root, "Movies"))

	assert.NoError(t, mover.CheckMove(filepath.Join(root, "Movies"), filepath.Join(root, "Movies")))
}

func TestCheckMove_CaseOnly(t *testing.T) {
	mover, root := newTestMover(t)
	mkdir(t, filepath.Join(root, "Movies"))

	// A casing change is never a conflict, even when the filesystem reports
	// the target as an existing directory.
	mkdir(t, filepath.Join(root, "movies"))
	assert.NoError(t, mover.CheckMove(filepath.Join(root, "Movies"), filepath.Join(root, "movies")))
}

func TestMove(t *testing.T) {
	mover, root := newTestMover(t)
	mkdir(t, filepath.Join(root, "Movies"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Movies", "keep.txt"), []byte("x"), 0o644))

	err := mover.Move(filepath.Join(root, "Movies"), filepath.Join(root, "Films"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Films"}, dirNames(t, root))
	assert.FileExists(t, filepath.Join(root, "Films", "keep.txt"))
}

func TestMove_SameNameIsNoOp(t *testing.T) {
	mover, root := newTestMover(t)
	mkdir(t, filepath.Join(root, "Movies"))

	err := mover.Move(filepath.Join(root, "Movies"), filepath.Join(root, "Movies"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Movies"}, dirNames(t, root))
}

func TestMove_CaseOnly(t *testing.T) {
	mover, root := newTestMover(t)
	mkdir(t, filepath.Join(root, "Movies"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Movies", "keep.txt"), []byte("x"), 0o644))

	err := mover.Move(filepath.Join(root, "Movies"), filepath.Join(root, "movies"))
	require.NoError(t, err)

	// The final directory carries the exact requested casing and the
	// intermediate directory is gone.
	assert.Equal(t, []string{"movies"}, dirNames(t, root))
	assert.FileExists(t, filepath.Join(root, "movies", "keep.txt"))
}

func TestMove_SourceMissing(t *testing.T) {
	mover, root := newTestMover(t)

	err := mover.Move(filepath.Join(root, "Movies"), filepath.Join(root, "Films"))
	assert.ErrorIs(t, err, errcodes.NotFound("Library folder"))
}

func TestMove_TargetExists(t *testing.T) {
	mover, root := newTestMover(t)
	mkdir(t, filepath.Join(root, "Movies"))
	mkdir(t, filepath.Join(root, "TV"))

	err := mover.Move(filepath.Join(root, "Movies"), filepath.Join(root, "TV"))
	assert.ErrorIs(t, err, errcodes.Conflict("A library folder already exists at the target path."))

	// The conflicting move never touches either directory.
	assert.ElementsMatch(t, []string{"Movies", "TV"}, dirNames(t, root))
}

func TestCreateFolder(t *testing.T) {
	mover, root := newTestMover(t)

	require.NoError(t, mover.CreateFolder(filepath.Join(root, "Movies")))
	assert.DirExists(t, filepath.Join(root, "Movies"))

	// Creating an existing folder is fine.
	assert.NoError(t, mover.CreateFolder(filepath.Join(root, "Movies")))
}

func TestMoverRemoveFolder(t *testing.T) {
	mover, root := newTestMover(t)
	mkdir(t, filepath.Join(root, "Movies"))

	require.NoError(t, mover.RemoveFolder(filepath.Join(root, "Movies")))
	assert.NoDirExists(t, filepath.Join(root, "Movies"))

	// Removing a folder that's already gone is fine too.
	assert.NoError(t, mover.RemoveFolder(filepath.Join(root, "Movies")))
}
