package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Store is the in-memory settings with file persistence. Global and model
// configuration are guarded separately; callers receive copies.
type Store struct {
	path   string
	logger *slog.Logger

	gmu    sync.RWMutex
	global GlobalConfig

	mmu    sync.RWMutex
	models map[string]ModelConfig

	saveMu sync.Mutex
}

// NewStore returns a store with default settings that persists to path.
func NewStore(path string, logger *slog.Logger) *Store {
	if path == "" {
		path = DefaultPath()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   ExpandHome(path),
		logger: logger,
		global: Defaults(),
		models: make(map[string]ModelConfig),
	}
}

// Open creates a store and loads path if it exists.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := NewStore(path, logger)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Load replaces the in-memory settings with the file contents. A missing
// file keeps the defaults.
func (s *Store) Load() error {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("settings file does not exist, using defaults", "path", s.path)
		return nil
	}
	v := viper.New()
	v.SetConfigFile(s.path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read settings %s: %w", s.path, err)
	}
	var f fileLayout
	if err := v.Unmarshal(&f); err != nil {
		return fmt.Errorf("decode settings %s: %w", s.path, err)
	}

	g := Defaults()
	if f.Global.ModelsDirectory != "" {
		g.ModelsDirectory = ExpandHome(f.Global.ModelsDirectory)
	}
	if f.Global.ExecutableFolder != "" {
		g.ExecutableFolder = ExpandHome(f.Global.ExecutableFolder)
	}
	g.ActiveExecutableFolder = f.Global.ActiveExecutableFolder
	g.ActiveExecutableVersion = f.Global.ActiveExecutableVersion

	models := make(map[string]ModelConfig, len(f.Models))
	for _, m := range f.Models {
		if m.ModelPath == "" {
			continue
		}
		models[m.ModelPath] = m.withDefaults()
	}

	s.gmu.Lock()
	s.global = g
	s.gmu.Unlock()
	s.mmu.Lock()
	s.models = models
	s.mmu.Unlock()

	s.logger.Info("settings loaded", "path", s.path, "models", len(models))
	return nil
}

// Save writes the current settings, encoded according to the file
// extension, via a temp file and rename.
func (s *Store) Save() error {
	f := fileLayout{Global: s.Global()}
	s.mmu.RLock()
	for _, m := range s.models {
		f.Models = append(f.Models, m)
	}
	s.mmu.RUnlock()
	sort.Slice(f.Models, func(i, j int) bool { return f.Models[i].ModelPath < f.Models[j].ModelPath })

	data, err := encode(s.path, f)
	if err != nil {
		return err
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace settings: %w", err)
	}
	s.logger.Debug("settings saved", "path", s.path)
	return nil
}

func encode(path string, f fileLayout) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", "":
		return json.MarshalIndent(f, "", "  ")
	case ".toml":
		return toml.Marshal(f)
	case ".yaml", ".yml":
		return yaml.Marshal(f)
	default:
		return nil, fmt.Errorf("unsupported settings format %q", filepath.Ext(path))
	}
}

// Global returns a copy of the global configuration.
func (s *Store) Global() GlobalConfig {
	s.gmu.RLock()
	defer s.gmu.RUnlock()
	return s.global
}

// SetGlobal replaces the global configuration in memory.
func (s *Store) SetGlobal(g GlobalConfig) {
	s.gmu.Lock()
	s.global = g
	s.gmu.Unlock()
}

// Activate records folder/version as the active executable and persists.
// The in-memory update stands even if persisting fails.
func (s *Store) Activate(folder, version string) error {
	s.gmu.Lock()
	s.global.ActiveExecutableFolder = folder
	s.global.ActiveExecutableVersion = version
	s.gmu.Unlock()
	return s.Save()
}

// Deactivate clears the active executable if it points at folder. It
// reports whether anything changed.
func (s *Store) Deactivate(folder string) bool {
	s.gmu.Lock()
	defer s.gmu.Unlock()
	if s.global.ActiveExecutableFolder == "" || !SamePath(s.global.ActiveExecutableFolder, folder) {
		return false
	}
	s.global.ActiveExecutableFolder = ""
	s.global.ActiveExecutableVersion = ""
	return true
}

// ModelConfig returns the saved config for modelPath, or the defaults.
func (s *Store) ModelConfig(modelPath string) ModelConfig {
	s.mmu.RLock()
	m, ok := s.models[modelPath]
	s.mmu.RUnlock()
	if !ok {
		return NewModelConfig(modelPath)
	}
	m.Env = append([]string(nil), m.Env...)
	return m
}

// SetModelConfig stores cfg and persists.
func (s *Store) SetModelConfig(cfg ModelConfig) error {
	if cfg.ModelPath == "" {
		return errors.New("model_path is required")
	}
	s.mmu.Lock()
	s.models[cfg.ModelPath] = cfg.withDefaults()
	s.mmu.Unlock()
	return s.Save()
}

// EnsureDirs creates the models, executable and versions directories.
func (s *Store) EnsureDirs() error {
	g := s.Global()
	for _, d := range []string{g.ModelsDirectory, g.ExecutableFolder, g.VersionsRoot()} {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// SamePath compares two paths after cleaning. Windows comparison ignores
// case and separator style.
func SamePath(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if filepath.Separator == '\\' {
		return strings.EqualFold(filepath.ToSlash(a), filepath.ToSlash(b))
	}
	return a == b
}
