package monitor

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/strataserver/strata/pkg/config"
	"github.com/strataserver/strata/pkg/events"
)

// changeRecorder collects PathChanged events published on the bus.
type changeRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *changeRecorder) record(e events.Event) {
	changed, ok := e.(events.PathChanged)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, changed.Path)
}

func (r *changeRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.paths...)
}

func (r *changeRecorder) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = nil
}

func newTestMonitor(t *testing.T) (*Monitor, *events.Bus, *changeRecorder) {
	t.Helper()

	cfg := config.NewForTest()
	bus := events.New(logger.New())
	rec := &changeRecorder{}
	bus.Subscribe(rec.record)

	m := New(cfg, logger.New(), bus)
	t.Cleanup(m.Shutdown)

	return m, bus, rec
}

// waitForChanges polls until the recorder has seen at least n events.
func waitForChanges(t *testing.T, rec *changeRecorder, n int) []string {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		seen := rec.seen()
		if len(seen) >= n {
			return seen
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d change events, saw %v", n, rec.seen())
	return nil
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestMonitor_PauseResumeIdempotent(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	require.NoError(t, m.Start([]string{t.TempDir()}))
	assert.False(t, m.Paused())

	m.Pause()
	assert.True(t, m.Paused())
	m.Pause()
	assert.True(t, m.Paused())

	m.Resume()
	assert.False(t, m.Paused())
	m.Resume()
	assert.False(t, m.Paused())
}

func TestMonitor_DetectsChanges(t *testing.T) {
	m, _, rec := newTestMonitor(t)
	root := t.TempDir()

	require.NoError(t, m.Start([]string{root}))

	writeFile(t, filepath.Join(root, "heat.mkv"))

	seen := waitForChanges(t, rec, 1)
	assert.Equal(t, root, seen[0])
}

func TestMonitor_CoalescesBurstsPerRoot(t *testing.T) {
	m, _, rec := newTestMonitor(t)
	rootA := t.TempDir()
	rootB := t.TempDir()

	require.NoError(t, m.Start([]string{rootA, rootB}))

	writeFile(t, filepath.Join(rootA, "one.mkv"))
	writeFile(t, filepath.Join(rootA, "two.mkv"))
	writeFile(t, filepath.Join(rootA, "three.mkv"))
	writeFile(t, filepath.Join(rootB, "four.mkv"))

	waitForChanges(t, rec, 2)

	// The burst under rootA collapses into a single event.
	time.Sleep(200 * time.Millisecond)
	seen := rec.seen()
	assert.Len(t, seen, 2)
	assert.ElementsMatch(t, []string{rootA, rootB}, seen)
}

func TestMonitor_PauseSuppressesEvents(t *testing.T) {
	m, _, rec := newTestMonitor(t)
	root := t.TempDir()

	require.NoError(t, m.Start([]string{root}))
	m.Pause()

	writeFile(t, filepath.Join(root, "heat.mkv"))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.seen())
}

func TestMonitor_ResumeRestoresWatching(t *testing.T) {
	m, _, rec := newTestMonitor(t)
	root := t.TempDir()

	require.NoError(t, m.Start([]string{root}))
	m.Pause()

	writeFile(t, filepath.Join(root, "missed.mkv"))
	time.Sleep(200 * time.Millisecond)
	require.Empty(t, rec.seen())

	m.Resume()

	writeFile(t, filepath.Join(root, "seen.mkv"))
	seen := waitForChanges(t, rec, 1)
	assert.Equal(t, root, seen[0])
}

func TestMonitor_WatchesNewSubdirectories(t *testing.T) {
	m, _, rec := newTestMonitor(t)
	root := t.TempDir()

	require.NoError(t, m.Start([]string{root}))

	sub := filepath.Join(root, "Season 01")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Creating the directory itself counts as activity under the root.
	waitForChanges(t, rec, 1)
	time.Sleep(100 * time.Millisecond)
	rec.clear()

	writeFile(t, filepath.Join(sub, "e01.mkv"))

	seen := waitForChanges(t, rec, 1)
	assert.Equal(t, root, seen[0])
}

func TestMonitor_RootsFollowStructuralEvents(t *testing.T) {
	m, bus, rec := newTestMonitor(t)
	rootA := t.TempDir()
	rootB := t.TempDir()

	require.NoError(t, m.Start([]string{rootA}))

	// rootB isn't watched yet.
	writeFile(t, filepath.Join(rootB, "ignored.mkv"))
	time.Sleep(200 * time.Millisecond)
	require.Empty(t, rec.seen())

	bus.Publish(events.MediaPathAdded{Folder: "Movies", Path: rootB})

	writeFile(t, filepath.Join(rootB, "seen.mkv"))
	seen := waitForChanges(t, rec, 1)
	assert.Equal(t, rootB, seen[0])
	rec.clear()

	bus.Publish(events.MediaPathRemoved{Folder: "Movies", Path: rootB})

	writeFile(t, filepath.Join(rootB, "ignored-again.mkv"))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.seen())
}

func TestMonitor_RootOfPrefersMostSpecificRoot(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	root := t.TempDir()
	nested := filepath.Join(root, "movies")
	require.NoError(t, os.Mkdir(nested, 0o755))

	require.NoError(t, m.Start([]string{root, nested}))

	assert.Equal(t, nested, m.rootOf(filepath.Join(nested, "heat.mkv")))
	assert.Equal(t, root, m.rootOf(filepath.Join(root, "other.mkv")))
	assert.Equal(t, root, m.rootOf(root))
	assert.Equal(t, "", m.rootOf("/somewhere/else"))
}
