package settings

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestOpenMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "launcher_settings.json"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	g := s.Global()
	if g.ExecutableFolder == "" || g.ModelsDirectory == "" {
		t.Fatalf("defaults not applied: %+v", g)
	}
	m := s.ModelConfig("/m/a.gguf")
	if m.ServerHost != "127.0.0.1" || m.ServerPort != 8080 || m.CustomArgs != "" {
		t.Fatalf("unexpected model defaults: %+v", m)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, ext := range []string{".json", ".toml", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "settings"+ext)
			s := NewStore(path, nil)
			s.SetGlobal(GlobalConfig{
				ModelsDirectory:  filepath.Join(dir, "models"),
				ExecutableFolder: filepath.Join(dir, "llama.cpp"),
			})
			if err := s.Activate(filepath.Join(dir, "llama.cpp", "versions", "b4000"), "b4000"); err != nil {
				t.Fatalf("activate: %v", err)
			}
			cfg := ModelConfig{ModelPath: "/Models/Big.Q4.gguf", CustomArgs: "--port 9001 -ngl 99", ServerHost: "0.0.0.0", ServerPort: 8181}
			if err := s.SetModelConfig(cfg); err != nil {
				t.Fatalf("set model: %v", err)
			}

			loaded, err := Open(path, nil)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			if got := loaded.Global(); got != s.Global() {
				t.Fatalf("global mismatch:\n got %+v\nwant %+v", got, s.Global())
			}
			if got := loaded.ModelConfig(cfg.ModelPath); !reflect.DeepEqual(got, cfg) {
				t.Fatalf("model mismatch: %+v", got)
			}
		})
	}
}

func TestSaveRejectsUnknownExtension(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "settings.ini"), nil)
	if err := s.Save(); err == nil {
		t.Fatal("expected error for .ini")
	}
}

func TestSetModelConfigRequiresPath(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "s.json"), nil)
	if err := s.SetModelConfig(ModelConfig{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeactivate(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "s.json"), nil)
	s.SetGlobal(GlobalConfig{ActiveExecutableFolder: "/x/versions/a", ActiveExecutableVersion: "a"})
	if s.Deactivate("/x/versions/b") {
		t.Fatal("should not clear a different folder")
	}
	if !s.Deactivate("/x/versions/a/") {
		t.Fatal("expected clear")
	}
	if g := s.Global(); g.ActiveExecutableFolder != "" || g.ActiveExecutableVersion != "" {
		t.Fatalf("not cleared: %+v", g)
	}
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "s.json"), nil)
	s.SetGlobal(GlobalConfig{
		ModelsDirectory:  filepath.Join(dir, "models"),
		ExecutableFolder: filepath.Join(dir, "exe"),
	})
	if err := s.EnsureDirs(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, d := range []string{"models", "exe", filepath.Join("exe", "versions")} {
		if fi, err := os.Stat(filepath.Join(dir, d)); err != nil || !fi.IsDir() {
			t.Fatalf("%s not created: %v", d, err)
		}
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandHome("~/x"); got != filepath.Join(home, "x") {
		t.Fatalf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/abs"); got != "/abs" {
		t.Fatalf("ExpandHome changed absolute path: %q", got)
	}
}
