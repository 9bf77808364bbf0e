package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/inkwell/internal/command"
	"github.com/dshills/inkwell/internal/engine"
)

// writePluginDir lays out root/name with a manifest and entry script.
func writePluginDir(t *testing.T, root, name, manifest, script string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", name, err)
	}
	if manifest != "" {
		if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0o644); err != nil {
			t.Fatalf("write manifest: %v", err)
		}
	}
	if script != "" {
		if err := os.WriteFile(filepath.Join(dir, "init.lua"), []byte(script), 0o644); err != nil {
			t.Fatalf("write script: %v", err)
		}
	}
}

func manifestNames(manifests []*Manifest) []string {
	names := make([]string, len(manifests))
	for i, m := range manifests {
		names[i] = m.Name
	}
	return names
}

func TestManagerDiscover_Ordering(t *testing.T) {
	root := t.TempDir()
	writePluginDir(t, root, "bravo", "name: bravo\n", "")
	writePluginDir(t, root, "alpha", "name: alpha\n", "")
	writePluginDir(t, root, "zeta", "name: zeta\npriority: -1\n", "")
	if err := os.WriteFile(filepath.Join(root, "solo.lua"), []byte("-- solo"), 0o644); err != nil {
		t.Fatalf("write solo.lua: %v", err)
	}

	m := NewManager(engine.New(), root)
	got := manifestNames(m.Discover())
	want := []string{"zeta", "alpha", "bravo", "solo"}
	if len(got) != len(want) {
		t.Fatalf("Discover = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Discover = %v, want %v", got, want)
		}
	}
}

func TestManagerDiscover_SkipsBroken(t *testing.T) {
	root := t.TempDir()
	writePluginDir(t, root, "good", "name: good\n", "")
	writePluginDir(t, root, "badname", "name: Bad_Name\n", "")
	writePluginDir(t, root, "nomanifest", "", "")
	if err := os.WriteFile(filepath.Join(root, "Bad_File.lua"), []byte("-- nope"), 0o644); err != nil {
		t.Fatalf("write lua: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("not a plugin"), 0o644); err != nil {
		t.Fatalf("write txt: %v", err)
	}

	m := NewManager(engine.New(), root)
	got := manifestNames(m.Discover())
	if len(got) != 1 || got[0] != "good" {
		t.Fatalf("Discover = %v, want [good]", got)
	}
}

func TestManagerDiscover_MissingDir(t *testing.T) {
	m := NewManager(engine.New(), filepath.Join(t.TempDir(), "absent"))
	if got := m.Discover(); got != nil {
		t.Fatalf("Discover = %v, want nil", got)
	}
}

func TestManagerLoadAll(t *testing.T) {
	root := t.TempDir()
	writePluginDir(t, root, "good", "name: good\n", `loaded = true`)
	writePluginDir(t, root, "broken", "name: broken\n", `error("no thanks")`)

	ed := engine.New()
	m := NewManager(ed, root)
	hosts := m.LoadAll()

	if len(hosts) != 1 {
		t.Fatalf("LoadAll loaded %d hosts, want 1", len(hosts))
	}
	if hosts[0].Manifest().Name != "good" {
		t.Errorf("loaded %q, want good", hosts[0].Manifest().Name)
	}
	if m.Host("good") == nil {
		t.Error("Host(good) = nil")
	}
	if m.Host("broken") != nil {
		t.Error("Host(broken) loaded despite entry error")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(m.Hosts()) != 0 {
		t.Error("Hosts not cleared after Close")
	}
}

func TestManagerLoadAll_Order(t *testing.T) {
	root := t.TempDir()
	script := func(who string) string {
		return `inkwell.on_command("who.won", function()
  winner = "` + who + `"
  return true
end)`
	}
	writePluginDir(t, root, "early", "name: early\npriority: -1\n", script("early"))
	writePluginDir(t, root, "late", "name: late\n", script("late"))

	ed := engine.New()
	m := NewManager(ed, root)
	defer m.Close()
	if hosts := m.LoadAll(); len(hosts) != 2 {
		t.Fatalf("LoadAll loaded %d hosts, want 2", len(hosts))
	}

	// Both plugins claim the command; the lower priority number
	// registered first, so it wins the tier.
	if !ed.Dispatch(command.Type("who.won"), nil) {
		t.Fatal("command not handled")
	}
	if got := m.Host("early").Global("winner"); got != "early" {
		t.Errorf("early winner = %v, want early", got)
	}
	if got := m.Host("late").Global("winner"); got != nil {
		t.Errorf("late handler ran, winner = %v", got)
	}
}
