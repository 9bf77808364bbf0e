// Package config loads inkwell settings from a TOML file, overlays
// INKWELL_* environment variables, and can watch the file for changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

// Config holds all inkwell settings.
type Config struct {
	Editor  EditorConfig  `toml:"editor"`
	Search  SearchConfig  `toml:"search"`
	Diag    DiagConfig    `toml:"diag"`
	Plugins PluginConfig  `toml:"plugins"`
	Storage StorageConfig `toml:"storage"`
}

// EditorConfig controls the editing engine.
type EditorConfig struct {
	// HistoryLimit caps the number of undo entries kept in memory.
	HistoryLimit int `toml:"historyLimit"`

	// CoalesceWindow is the idle window in milliseconds within which
	// consecutive edits of the same kind merge into one undo entry.
	CoalesceWindow int `toml:"coalesceWindow"`

	// Trigger is the two-character sequence that opens reference
	// autocomplete.
	Trigger string `toml:"trigger"`
}

// CoalesceDuration returns the coalescing window as a duration.
func (e EditorConfig) CoalesceDuration() time.Duration {
	return time.Duration(e.CoalesceWindow) * time.Millisecond
}

// SearchConfig controls the reference-search client.
type SearchConfig struct {
	// BaseURL is the endpoint of the reference-search service.
	BaseURL string `toml:"baseUrl"`

	// Timeout is the per-request timeout in milliseconds.
	Timeout int `toml:"timeout"`

	// Rate is the maximum number of queries issued per second.
	// Zero disables client-side throttling.
	Rate float64 `toml:"rate"`

	// Burst is the number of queries allowed to exceed Rate briefly.
	Burst int `toml:"burst"`

	// MaxItems caps the autocomplete dropdown length.
	MaxItems int `toml:"maxItems"`
}

// TimeoutDuration returns the request timeout as a duration.
func (s SearchConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Millisecond
}

// DiagConfig controls diagnostics output.
type DiagConfig struct {
	// Addr is the listen address for the diagnostics websocket hub.
	Addr string `toml:"addr"`

	// Level is the minimum severity written to the log
	// ("debug", "info", "warn", "error").
	Level string `toml:"level"`
}

// ParsedLevel returns the zerolog level named by Level. Unknown or
// empty names fall back to warn.
func (d DiagConfig) ParsedLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(d.Level)
	if err != nil || d.Level == "" {
		return zerolog.WarnLevel
	}
	return lvl
}

// PluginConfig controls the Lua plugin host.
type PluginConfig struct {
	// Dir is the directory scanned for plugin manifests. Empty means
	// $HOME/.inkwell/plugins.
	Dir string `toml:"dir"`
}

// StorageConfig controls the page index store.
type StorageConfig struct {
	// DataDir is where the page index database lives. Empty means
	// $HOME/.inkwell/data.
	DataDir string `toml:"dataDir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Editor: EditorConfig{
			HistoryLimit:   1000,
			CoalesceWindow: 1000,
			Trigger:        "[[",
		},
		Search: SearchConfig{
			BaseURL:  "http://localhost:8650",
			Timeout:  5000,
			Rate:     20,
			Burst:    5,
			MaxItems: 8,
		},
		Diag: DiagConfig{
			Addr:  "localhost:8651",
			Level: "warn",
		},
	}
}

// DefaultPath returns the standard location of the configuration
// file, $HOME/.inkwell/config.toml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".inkwell", "config.toml")
}

// Load reads the configuration at path, overlays environment
// variables, and validates the result. A missing file is not an
// error; defaults plus environment overrides apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No file, defaults stand.
	case err != nil:
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ParseError{Path: path, Err: err}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks that every setting is inside its allowed range.
func (c *Config) Validate() error {
	if c.Editor.HistoryLimit <= 0 {
		return fmt.Errorf("%w: editor.historyLimit must be positive", ErrInvalidValue)
	}
	if c.Editor.CoalesceWindow < 0 {
		return fmt.Errorf("%w: editor.coalesceWindow must not be negative", ErrInvalidValue)
	}
	if n := len([]rune(c.Editor.Trigger)); n != 2 {
		return fmt.Errorf("%w: editor.trigger must be exactly two characters, got %d", ErrInvalidValue, n)
	}
	if c.Search.BaseURL == "" {
		return fmt.Errorf("%w: search.baseUrl must not be empty", ErrInvalidValue)
	}
	if c.Search.Timeout <= 0 {
		return fmt.Errorf("%w: search.timeout must be positive", ErrInvalidValue)
	}
	if c.Search.Rate < 0 {
		return fmt.Errorf("%w: search.rate must not be negative", ErrInvalidValue)
	}
	if c.Search.Rate > 0 && c.Search.Burst <= 0 {
		return fmt.Errorf("%w: search.burst must be positive when search.rate is set", ErrInvalidValue)
	}
	if c.Search.MaxItems <= 0 {
		return fmt.Errorf("%w: search.maxItems must be positive", ErrInvalidValue)
	}
	if c.Diag.Addr == "" {
		return fmt.Errorf("%w: diag.addr must not be empty", ErrInvalidValue)
	}
	if _, err := zerolog.ParseLevel(c.Diag.Level); err != nil || c.Diag.Level == "" {
		return fmt.Errorf("%w: diag.level %q", ErrInvalidValue, c.Diag.Level)
	}
	return nil
}

// envPrefix namespaces environment overrides.
const envPrefix = "INKWELL_"

// applyEnv overlays INKWELL_* environment variables onto cfg.
// Environment values take precedence over file values.
func applyEnv(cfg *Config) error {
	overrides := []struct {
		name string
		set  func(string) error
	}{
		{"EDITOR_HISTORY_LIMIT", setInt(&cfg.Editor.HistoryLimit)},
		{"EDITOR_COALESCE_WINDOW", setInt(&cfg.Editor.CoalesceWindow)},
		{"EDITOR_TRIGGER", setString(&cfg.Editor.Trigger)},
		{"SEARCH_BASE_URL", setString(&cfg.Search.BaseURL)},
		{"SEARCH_TIMEOUT", setInt(&cfg.Search.Timeout)},
		{"SEARCH_RATE", setFloat(&cfg.Search.Rate)},
		{"SEARCH_BURST", setInt(&cfg.Search.Burst)},
		{"SEARCH_MAX_ITEMS", setInt(&cfg.Search.MaxItems)},
		{"DIAG_ADDR", setString(&cfg.Diag.Addr)},
		{"DIAG_LEVEL", setString(&cfg.Diag.Level)},
		{"PLUGINS_DIR", setString(&cfg.Plugins.Dir)},
		{"STORAGE_DATA_DIR", setString(&cfg.Storage.DataDir)},
	}

	for _, o := range overrides {
		val, ok := os.LookupEnv(envPrefix + o.name)
		if !ok {
			continue
		}
		if err := o.set(val); err != nil {
			return fmt.Errorf("parsing %s%s: %w", envPrefix, o.name, err)
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

// ParseError reports a malformed configuration file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
