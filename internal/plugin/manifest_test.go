package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
name: word-count
version: 1.2.0
entry: main.lua
priority: 5
`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Name != "word-count" {
		t.Errorf("Name = %q, want word-count", m.Name)
	}
	if m.Version != "1.2.0" {
		t.Errorf("Version = %q, want 1.2.0", m.Version)
	}
	if m.Priority != 5 {
		t.Errorf("Priority = %d, want 5", m.Priority)
	}
	if m.Dir() != dir {
		t.Errorf("Dir = %q, want %q", m.Dir(), dir)
	}
	if want := filepath.Join(dir, "main.lua"); m.EntryPath() != want {
		t.Errorf("EntryPath = %q, want %q", m.EntryPath(), want)
	}
	if m.String() != "word-count v1.2.0" {
		t.Errorf("String = %q", m.String())
	}
}

func TestLoadManifest_Defaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "name: bare\n")

	m, err := LoadManifestFromDir(dir)
	if err != nil {
		t.Fatalf("LoadManifestFromDir: %v", err)
	}
	if m.Version != "0.0.0" {
		t.Errorf("Version = %q, want 0.0.0", m.Version)
	}
	if m.Entry != "init.lua" {
		t.Errorf("Entry = %q, want init.lua", m.Entry)
	}
	if m.Priority != 0 {
		t.Errorf("Priority = %d, want 0", m.Priority)
	}
}

func TestLoadManifest_Missing(t *testing.T) {
	if _, err := LoadManifestFromDir(t.TempDir()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want wrapped ErrNotExist", err)
	}
}

func TestLoadManifest_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "name: [unterminated\n")

	if _, err := LoadManifest(path); err == nil {
		t.Fatal("LoadManifest accepted malformed YAML")
	}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		label   string
		m       Manifest
		wantErr error
	}{
		{"valid", Manifest{Name: "word-count", Version: "1.0.0", Entry: "init.lua"}, nil},
		{"single letter name", Manifest{Name: "w", Version: "0.0.0", Entry: "init.lua"}, nil},
		{"digits in name", Manifest{Name: "word2vec", Version: "0.0.0", Entry: "init.lua"}, nil},
		{"prerelease version", Manifest{Name: "a", Version: "1.2.3-rc.1", Entry: "init.lua"}, nil},
		{"build metadata", Manifest{Name: "a", Version: "1.0.0+build.5", Entry: "init.lua"}, nil},
		{"nested entry", Manifest{Name: "a", Version: "0.0.0", Entry: "lua/init.lua"}, nil},
		{"missing name", Manifest{Version: "1.0.0", Entry: "init.lua"}, ErrMissingName},
		{"uppercase name", Manifest{Name: "WordCount", Version: "1.0.0", Entry: "init.lua"}, ErrInvalidName},
		{"leading hyphen", Manifest{Name: "-word", Version: "1.0.0", Entry: "init.lua"}, ErrInvalidName},
		{"trailing hyphen", Manifest{Name: "word-", Version: "1.0.0", Entry: "init.lua"}, ErrInvalidName},
		{"underscore", Manifest{Name: "word_count", Version: "1.0.0", Entry: "init.lua"}, ErrInvalidName},
		{"short version", Manifest{Name: "a", Version: "1.0", Entry: "init.lua"}, ErrInvalidVersion},
		{"v prefix", Manifest{Name: "a", Version: "v1.0.0", Entry: "init.lua"}, ErrInvalidVersion},
		{"non lua entry", Manifest{Name: "a", Version: "1.0.0", Entry: "init.txt"}, ErrInvalidEntry},
		{"escaping entry", Manifest{Name: "a", Version: "1.0.0", Entry: "../init.lua"}, ErrInvalidEntry},
		{"absolute entry", Manifest{Name: "a", Version: "1.0.0", Entry: "/tmp/init.lua"}, ErrInvalidEntry},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
