package monitor

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robinjoseph08/golib/logger"
	"github.com/strataserver/strata/pkg/config"
	"github.com/strataserver/strata/pkg/events"
)

// Monitor watches the managed library root and every media path for
// filesystem activity. Activity under a root is debounced and published as a
// single PathChanged event per root.
//
// The monitor can be paused while the server itself rearranges directories,
// so that its own mutations don't come back around as change events. Pause
// and Resume are idempotent.
type Monitor struct {
	log logger.Logger
	bus *events.Bus

	debounceDelay time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	roots   map[string]struct{}
	paused  bool
	closed  bool
	wg      sync.WaitGroup

	debounceMu sync.Mutex
	debounce   map[string]*time.Timer
}

func New(cfg *config.Config, log logger.Logger, bus *events.Bus) *Monitor {
	m := &Monitor{
		log:           log,
		bus:           bus,
		debounceDelay: cfg.MonitorDebounce,
		roots:         map[string]struct{}{},
		debounce:      map[string]*time.Timer{},
	}

	// Structural changes carry their own path updates, so the watched set
	// stays current without a registry round trip.
	bus.Subscribe(m.handleStructureEvent)

	return m
}

// Start begins watching the given roots. It's called once at boot; the
// monitor starts out running, not paused.
func (m *Monitor) Start(paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range paths {
		m.roots[p] = struct{}{}
	}

	return m.openWatcherLocked()
}

// Pause tears down the watcher so that no filesystem events are observed
// until Resume. Pausing an already-paused monitor is a no-op.
func (m *Monitor) Pause() {
	m.mu.Lock()
	if m.paused || m.closed {
		m.mu.Unlock()
		return
	}
	m.paused = true
	m.closeWatcherLocked()
	m.mu.Unlock()

	m.cancelDebounce()

	m.log.Info("monitor paused")
}

// Resume recreates the watcher over the current root set. Resuming a running
// monitor is a no-op. If the watcher can't be recreated, the monitor stays
// paused and the next Resume tries again.
func (m *Monitor) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.paused || m.closed {
		return
	}

	err := m.openWatcherLocked()
	if err != nil {
		m.log.Err(err).Error("monitor resume error")
		return
	}
	m.paused = false

	m.log.Info("monitor resumed")
}

// Paused reports whether the monitor is currently paused.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *Monitor) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.closeWatcherLocked()
	m.mu.Unlock()

	m.cancelDebounce()
	m.wg.Wait()
}

func (m *Monitor) openWatcherLocked() error {
	if m.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for root := range m.roots {
		m.watchTree(w, root)
	}

	m.watcher = w
	m.wg.Add(1)
	go m.watchLoop(w)

	return nil
}

func (m *Monitor) closeWatcherLocked() {
	if m.watcher == nil {
		return
	}
	m.watcher.Close()
	m.watcher = nil
}

// watchTree registers root and all directories beneath it. inotify watches
// are per-directory, so new subdirectories are added as they appear.
func (m *Monitor) watchTree(w *fsnotify.Watcher, root string) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			m.log.Warn("watch add error", logger.Data{"path": path, "error": err.Error()})
		}
		return nil
	})
	if err != nil {
		m.log.Warn("watch walk error", logger.Data{"root": root, "error": err.Error()})
	}
}

func (m *Monitor) watchLoop(w *fsnotify.Watcher) {
	defer m.wg.Done()

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			m.handleEvent(w, event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			m.log.Err(err).Error("monitor watch error")
		}
	}
}

func (m *Monitor) handleEvent(w *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
		info, err := os.Stat(event.Name)
		if err != nil {
			// The path is already gone again; the event is stale.
			return
		}
		if event.Op.Has(fsnotify.Create) && info.IsDir() {
			m.watchTree(w, event.Name)
		}
	}

	root := m.rootOf(event.Name)
	if root == "" {
		return
	}

	m.scheduleFire(root)
}

// rootOf returns the registered root that owns path. When roots nest, the
// most specific one wins.
func (m *Monitor) rootOf(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	best := ""
	for root := range m.roots {
		if path != root && !strings.HasPrefix(path, root+string(os.PathSeparator)) {
			continue
		}
		if len(root) > len(best) {
			best = root
		}
	}
	return best
}

// scheduleFire starts or extends the debounce window for a root. A burst of
// events under one root collapses into a single PathChanged.
func (m *Monitor) scheduleFire(root string) {
	m.debounceMu.Lock()
	defer m.debounceMu.Unlock()

	if timer, ok := m.debounce[root]; ok {
		timer.Stop()
	}
	m.debounce[root] = time.AfterFunc(m.debounceDelay, func() {
		m.fire(root)
	})
}

func (m *Monitor) fire(root string) {
	m.debounceMu.Lock()
	delete(m.debounce, root)
	m.debounceMu.Unlock()

	m.mu.Lock()
	_, isRoot := m.roots[root]
	dropped := m.paused || m.closed || !isRoot
	m.mu.Unlock()
	if dropped {
		return
	}

	m.log.Debug("path changed", logger.Data{"path": root})
	m.bus.Publish(events.PathChanged{Path: root})
}

func (m *Monitor) cancelDebounce() {
	m.debounceMu.Lock()
	defer m.debounceMu.Unlock()

	for root, timer := range m.debounce {
		timer.Stop()
		delete(m.debounce, root)
	}
}

func (m *Monitor) handleStructureEvent(e events.Event) {
	switch ev := e.(type) {
	case events.FolderAdded:
		for _, p := range ev.Paths {
			m.addRoot(p)
		}
	case events.FolderRemoved:
		for _, p := range ev.Paths {
			m.removeRoot(p)
		}
	case events.MediaPathAdded:
		m.addRoot(ev.Path)
	case events.MediaPathRemoved:
		m.removeRoot(ev.Path)
	}
}

func (m *Monitor) addRoot(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roots[path]; ok {
		return
	}
	m.roots[path] = struct{}{}

	if m.watcher != nil {
		m.watchTree(m.watcher, path)
	}
}

func (m *Monitor) removeRoot(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roots[path]; !ok {
		return
	}
	delete(m.roots, path)

	// Watches registered for subdirectories of the removed root can't be
	// enumerated back out of fsnotify, so rebuild the watcher from the
	// remaining roots.
	if m.watcher != nil {
		m.closeWatcherLocked()
		if err := m.openWatcherLocked(); err != nil {
			m.log.Err(err).Error("monitor rebuild error")
		}
	}
}
