package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ManifestName is the file a plugin directory must contain.
const ManifestName = "plugin.yaml"

// Manifest describes one plugin.
type Manifest struct {
	// Name uniquely identifies the plugin (lowercase, digits, hyphens).
	Name string `yaml:"name"`

	// Version is a semver string. Defaults to 0.0.0.
	Version string `yaml:"version"`

	// Entry is the Lua file run on load, relative to the plugin
	// directory. Defaults to init.lua.
	Entry string `yaml:"entry"`

	// Priority orders plugin loading, ascending with ties broken by
	// name. Earlier-loaded plugins see commands first within the
	// plugin tier.
	Priority int `yaml:"priority"`

	dir string
}

// Manifest validation errors.
var (
	ErrMissingName    = errors.New("manifest: name is required")
	ErrInvalidName    = errors.New("manifest: name must be lowercase alphanumeric with hyphens")
	ErrInvalidVersion = errors.New("manifest: version must be semver")
	ErrInvalidEntry   = errors.New("manifest: entry must be a .lua file inside the plugin directory")
)

var (
	namePattern   = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)
	semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)
)

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	m.dir = filepath.Dir(path)
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifestFromDir reads dir/plugin.yaml.
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, ManifestName))
}

// minimalManifest covers single-file plugins that ship no manifest.
func minimalManifest(name, dir, entry string) *Manifest {
	return &Manifest{
		Name:    name,
		Version: "0.0.0",
		Entry:   entry,
		dir:     dir,
	}
}

func (m *Manifest) applyDefaults() {
	if m.Entry == "" {
		m.Entry = "init.lua"
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
}

// Validate checks the manifest fields.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return ErrMissingName
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, m.Name)
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, m.Version)
	}
	if filepath.Ext(m.Entry) != ".lua" || !filepath.IsLocal(m.Entry) {
		return fmt.Errorf("%w: %q", ErrInvalidEntry, m.Entry)
	}
	return nil
}

// Dir returns the plugin directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// EntryPath returns the full path of the entry script.
func (m *Manifest) EntryPath() string {
	return filepath.Join(m.dir, m.Entry)
}

// String renders "name vVersion".
func (m *Manifest) String() string {
	return fmt.Sprintf("%s v%s", m.Name, m.Version)
}
