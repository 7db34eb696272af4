package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/tale/pkg/bytecode"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[project]
name = "dungeon"

[engine]
typecheck = false
max-steps = 500

[cache]
capacity = 32
store = "tale.db"

[log]
verbosity = 2
file = "/var/log/tale.log"

[bindings]
result = 6
ratio = 0.5
greeting = "hello"
armed = true
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Project.Name != "dungeon" {
		t.Errorf("project name = %q, want dungeon", c.Project.Name)
	}
	if c.TypecheckEnabled() {
		t.Error("typecheck = true, want false")
	}
	if c.Engine.MaxSteps != 500 {
		t.Errorf("max-steps = %d, want 500", c.Engine.MaxSteps)
	}
	if c.Cache.Capacity != 32 {
		t.Errorf("cache capacity = %d, want 32", c.Cache.Capacity)
	}
	abs, _ := filepath.Abs(dir)
	if got, want := c.StorePath(), filepath.Join(abs, "tale.db"); got != want {
		t.Errorf("StorePath() = %q, want %q", got, want)
	}
	if c.LogPath() != "/var/log/tale.log" {
		t.Errorf("LogPath() = %q", c.LogPath())
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", c.Log.Verbosity)
	}

	b, err := c.InitialBindings()
	if err != nil {
		t.Fatalf("InitialBindings: %v", err)
	}
	want := map[string]bytecode.Value{
		"result":   bytecode.Int(6),
		"ratio":    bytecode.Float(0.5),
		"greeting": bytecode.String("hello"),
		"armed":    bytecode.Bool(true),
	}
	if len(b) != len(want) {
		t.Fatalf("bindings = %v, want %v", b, want)
	}
	for name, v := range want {
		if !b[name].Identical(v) {
			t.Errorf("binding %s = %s, want %s", name, b[name].Repr(), v.Repr())
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[project]
name = "minimal"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !c.TypecheckEnabled() {
		t.Error("typecheck should default to true")
	}
	if c.Engine.MaxSteps != DefaultMaxSteps {
		t.Errorf("max-steps = %d, want %d", c.Engine.MaxSteps, DefaultMaxSteps)
	}
	if c.Cache.Capacity != DefaultCacheCapacity {
		t.Errorf("cache capacity = %d, want %d", c.Cache.Capacity, DefaultCacheCapacity)
	}
	if c.StorePath() != "" || c.LogPath() != "" {
		t.Errorf("StorePath() = %q, LogPath() = %q, want both empty", c.StorePath(), c.LogPath())
	}

	d := Default()
	if !d.TypecheckEnabled() || d.Engine.MaxSteps != DefaultMaxSteps || d.Cache.Capacity != DefaultCacheCapacity {
		t.Errorf("Default() = %+v", d)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[engine\n", "parse error"},
		{"wrong type", "[engine]\nmax-steps = \"many\"\n", "parse error"},
		{"table binding", "[bindings]\nroom = { name = \"hall\" }\n", `binding "room"`},
		{"array binding", "[bindings]\nitems = [1, 2]\n", `binding "items"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of an empty directory succeeded")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "[project]\nname = \"found-project\"\n")

	// Should find the file when starting from a deep subdirectory
	c, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if c.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", c.Project.Name)
	}
	abs, _ := filepath.Abs(dir)
	if c.Dir != abs {
		t.Errorf("Dir = %q, want %q", c.Dir, abs)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if c != nil {
		t.Error("expected nil config when no tale.toml exists")
	}
}
