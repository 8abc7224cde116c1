// Package workspace tracks developer overlays: a local checkout path a
// developer has substituted for an element's normal source, persisted in
// workspaces.yaml, with debounced change notification through a
// caller-supplied InvalidationFunc. The package holds no cache keys itself.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"forge/internal/logging"
)

// Overlay is one developer-opened workspace: elementID's sources are
// read from Path instead of fetched into the CAS.
type Overlay struct {
	ElementID string `yaml:"element"`
	Path      string `yaml:"path"`
	OpenedAt  string `yaml:"opened_at"`
}

// file is the on-disk shape of workspaces.yaml.
type file struct {
	Overlays []Overlay `yaml:"overlays"`
}

// InvalidationFunc is called with an element ID whose overlay content
// changed, so the caller can drop any cached fingerprint for it.
type InvalidationFunc func(elementID string)

// Manager tracks open overlays for one project, persisting them to a
// workspaces.yaml alongside the project's cache directory, and watches
// each open overlay's directory for changes.
type Manager struct {
	path string

	mu       sync.Mutex
	overlays map[string]Overlay
	watcher  *fsnotify.Watcher
	onChange InvalidationFunc

	debounceMu  sync.Mutex
	debounceMap map[string]time.Time
	debounceDur time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewManager loads workspaces.yaml at path if it exists, and prepares a
// watcher for the overlays it describes. onChange may be nil.
func NewManager(path string, onChange InvalidationFunc) (*Manager, error) {
	m := &Manager{
		path:        path,
		overlays:    make(map[string]Overlay),
		onChange:    onChange,
		debounceMap: make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f file
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for _, ov := range f.Overlays {
			m.overlays[ov.ElementID] = ov
		}
	case os.IsNotExist(err):
		// No workspaces open yet.
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	m.watcher = watcher
	for _, ov := range m.overlays {
		if err := watcher.Add(ov.Path); err != nil {
			logging.Get(logging.CategoryWorkspace).Warn("watch %s for %s: %v", ov.Path, ov.ElementID, err)
		}
	}

	return m, nil
}

// Open records elementID as overlaid onto dir, persists workspaces.yaml,
// and starts watching dir for changes.
func (m *Manager) Open(elementID, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("workspace path %s: %w", abs, err)
	}

	m.mu.Lock()
	m.overlays[elementID] = Overlay{ElementID: elementID, Path: abs, OpenedAt: nowRFC3339()}
	m.mu.Unlock()

	if err := m.watcher.Add(abs); err != nil {
		logging.Get(logging.CategoryWorkspace).Warn("watch %s for %s: %v", abs, elementID, err)
	}
	return m.persist()
}

// Close drops elementID's overlay and stops watching its directory.
func (m *Manager) Close(elementID string) error {
	m.mu.Lock()
	ov, ok := m.overlays[elementID]
	delete(m.overlays, elementID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := m.watcher.Remove(ov.Path); err != nil {
		logging.Get(logging.CategoryWorkspace).Warn("unwatch %s: %v", ov.Path, err)
	}
	return m.persist()
}

// Reset closes every open overlay.
func (m *Manager) Reset() error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.overlays))
	for id := range m.overlays {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Close(id); err != nil {
			return err
		}
	}
	return nil
}

// Lookup reports whether elementID has an open overlay, and its path.
func (m *Manager) Lookup(elementID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ov, ok := m.overlays[elementID]
	return ov.Path, ok
}

// List returns every currently open overlay.
func (m *Manager) List() []Overlay {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Overlay, 0, len(m.overlays))
	for _, ov := range m.overlays {
		out = append(out, ov)
	}
	return out
}

// Watch starts the debounced change-notification loop. It returns once
// ctx is cancelled or Stop is called.
func (m *Manager) Watch(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWorkspace).Error("watcher error: %v", err)
		case <-ticker.C:
			m.flushDebounced()
		}
	}
}

// Stop ends a running Watch loop and waits for it to exit.
func (m *Manager) Stop() {
	close(m.stopCh)
	<-m.doneCh
	m.watcher.Close()
}

func (m *Manager) handleEvent(event fsnotify.Event) {
	elementID := m.elementForPath(event.Name)
	if elementID == "" {
		return
	}
	m.debounceMu.Lock()
	m.debounceMap[elementID] = time.Now()
	m.debounceMu.Unlock()
}

func (m *Manager) flushDebounced() {
	m.debounceMu.Lock()
	now := time.Now()
	var ready []string
	for id, at := range m.debounceMap {
		if now.Sub(at) >= m.debounceDur {
			ready = append(ready, id)
			delete(m.debounceMap, id)
		}
	}
	m.debounceMu.Unlock()

	for _, id := range ready {
		logging.Get(logging.CategoryWorkspace).Debug("overlay changed, invalidating: %s", id)
		if m.onChange != nil {
			m.onChange(id)
		}
	}
}

func (m *Manager) elementForPath(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir := filepath.Dir(path)
	for id, ov := range m.overlays {
		if ov.Path == dir || ov.Path == path {
			return id
		}
	}
	return ""
}

func (m *Manager) persist() error {
	m.mu.Lock()
	f := file{Overlays: make([]Overlay, 0, len(m.overlays))}
	for _, ov := range m.overlays {
		f.Overlays = append(f.Overlays, ov)
	}
	m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal workspaces: %w", err)
	}
	return os.WriteFile(m.path, data, 0644)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
