package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/inkwell/internal/engine"
)

// Manager discovers and runs the plugins under one directory.
type Manager struct {
	ed  *engine.Editor
	dir string
	log zerolog.Logger

	mu    sync.Mutex
	hosts []*Host
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger routes discovery and load reporting through the
// given logger.
func WithManagerLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager prepares a manager over the given plugin directory. An
// empty dir falls back to $HOME/.inkwell/plugins.
func NewManager(ed *engine.Editor, dir string, opts ...ManagerOption) *Manager {
	m := &Manager{ed: ed, dir: dir, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	if m.dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			m.dir = filepath.Join(home, ".inkwell", "plugins")
		}
	}
	return m
}

// Dir returns the directory the manager scans.
func (m *Manager) Dir() string { return m.dir }

// Discover lists the plugins under the directory without loading
// anything. A subdirectory is a plugin when it holds a plugin.yaml;
// a bare .lua file in the root is a single-file plugin named after
// the file. Entries with broken manifests are logged and skipped.
// Results come back in load order: priority ascending, then name.
func (m *Manager) Discover() []*Manifest {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.log.Warn().Err(err).Str("dir", m.dir).Msg("plugin scan failed")
		}
		return nil
	}

	var manifests []*Manifest
	for _, entry := range entries {
		switch {
		case entry.IsDir():
			mf, err := LoadManifestFromDir(filepath.Join(m.dir, entry.Name()))
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue // no manifest, not a plugin
				}
				m.log.Warn().Err(err).Str("dir", entry.Name()).Msg("skipping plugin")
				continue
			}
			manifests = append(manifests, mf)
		case filepath.Ext(entry.Name()) == ".lua":
			mf := minimalManifest(strings.TrimSuffix(entry.Name(), ".lua"), m.dir, entry.Name())
			if err := mf.Validate(); err != nil {
				m.log.Warn().Err(err).Str("file", entry.Name()).Msg("skipping plugin")
				continue
			}
			manifests = append(manifests, mf)
		}
	}

	sort.Slice(manifests, func(i, j int) bool {
		if manifests[i].Priority != manifests[j].Priority {
			return manifests[i].Priority < manifests[j].Priority
		}
		return manifests[i].Name < manifests[j].Name
	})
	return manifests
}

// LoadAll discovers and loads every plugin in load order. A plugin
// that fails to load is logged and skipped so it cannot block the
// rest. Returns the hosts that loaded.
func (m *Manager) LoadAll() []*Host {
	for _, mf := range m.Discover() {
		h, err := NewHost(mf, m.ed, WithHostLogger(m.log))
		if err != nil {
			m.log.Warn().Err(err).Str("plugin", mf.Name).Msg("host create failed")
			continue
		}
		if err := h.Load(); err != nil {
			m.log.Warn().Err(err).Str("plugin", mf.Name).Msg("plugin load failed")
			continue
		}
		m.mu.Lock()
		m.hosts = append(m.hosts, h)
		m.mu.Unlock()
	}
	return m.Hosts()
}

// Hosts returns the loaded hosts in load order.
func (m *Manager) Hosts() []*Host {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Host(nil), m.hosts...)
}

// Host returns the loaded host with the given plugin name, or nil.
func (m *Manager) Host(name string) *Host {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.hosts {
		if h.manifest.Name == name {
			return h
		}
	}
	return nil
}

// Close shuts down every loaded plugin.
func (m *Manager) Close() error {
	m.mu.Lock()
	hosts := m.hosts
	m.hosts = nil
	m.mu.Unlock()

	var errs []error
	for _, h := range hosts {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
