// Package resolver decides which llama-server executable to launch and
// manages installed versions under <executable_folder>/versions.
package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loykin/llamactl/internal/metrics"
	"github.com/loykin/llamactl/internal/process"
	"github.com/loykin/llamactl/internal/settings"
)

// Sink persists the active executable selection.
type Sink interface {
	Activate(folder, version string) error
	Deactivate(folder string) bool
	Save() error
}

type Resolver struct {
	exeName string
	sink    Sink
	logger  *slog.Logger
	created func(path string) (time.Time, bool)
}

// New returns a resolver for the platform's llama-server binary. sink may be
// nil, in which case fallbacks are not persisted.
func New(sink Sink, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		exeName: process.ExecutableName(),
		sink:    sink,
		logger:  logger,
		created: birthTime,
	}
}

// ExecutableName is the binary name looked up in version folders.
func (r *Resolver) ExecutableName() string { return r.exeName }

// PreferredPath is where the configuration says the executable should be.
func (r *Resolver) PreferredPath(cfg settings.GlobalConfig) string {
	switch {
	case cfg.ActiveExecutableVersion != "":
		return filepath.Join(cfg.VersionsRoot(), cfg.ActiveExecutableVersion, r.exeName)
	case cfg.ActiveExecutableFolder != "":
		return filepath.Join(cfg.ActiveExecutableFolder, r.exeName)
	default:
		return filepath.Join(cfg.ExecutableFolder, r.exeName)
	}
}

// Resolve returns the executable to launch. When the preferred path is
// missing, the most recently installed version that contains the binary is
// used and recorded as active. If nothing is found the preferred path is
// returned and the caller's existence check fails.
func (r *Resolver) Resolve(cfg settings.GlobalConfig) string {
	preferred := r.PreferredPath(cfg)
	if fileExists(preferred) {
		return preferred
	}

	cands := r.candidates(cfg.VersionsRoot())
	if len(cands) == 0 {
		r.logger.Warn("llama-server not found and no installed versions", "path", preferred)
		return preferred
	}
	best := cands[0]
	r.logger.Info("falling back to newest installed version",
		"preferred", preferred, "version", best.name, "folder", best.dir)
	metrics.IncVersionFallback()

	if r.sink != nil {
		if err := r.sink.Activate(best.dir, best.name); err != nil {
			r.logger.Warn("failed to persist active version", "version", best.name, "error", err)
		}
	}
	return filepath.Join(best.dir, r.exeName)
}

type candidate struct {
	name    string
	dir     string
	created time.Time
	hasTime bool
}

// candidates lists version folders that contain the executable, newest
// first.
func (r *Resolver) candidates(root string) []candidate {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var out []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if !fileExists(filepath.Join(dir, r.exeName)) {
			continue
		}
		c := candidate{name: e.Name(), dir: dir}
		c.created, c.hasTime = r.created(dir)
		out = append(out, c)
	}
	sortCandidates(out)
	return out
}

// sortCandidates orders by creation time descending. Entries without a
// creation time go last, ordered by name descending.
func sortCandidates(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		switch {
		case a.hasTime && b.hasTime:
			if !a.created.Equal(b.created) {
				return a.created.After(b.created)
			}
			return a.name > b.name
		case a.hasTime != b.hasTime:
			return a.hasTime
		default:
			return a.name > b.name
		}
	})
}

// Version describes one installed llama.cpp build.
type Version struct {
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	HasServer bool       `json:"has_server"`
	Created   *time.Time `json:"created,omitempty"`
	Active    bool       `json:"is_active"`
}

// ListVersions enumerates the versions folder. If exactly one version is
// installed and none is active, it is activated.
func (r *Resolver) ListVersions(cfg settings.GlobalConfig) ([]Version, error) {
	root := cfg.VersionsRoot()
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return []Version{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read versions dir: %w", err)
	}

	out := make([]Version, 0, len(entries))
	anyActive := false
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		v := Version{
			Name:      e.Name(),
			Path:      dir,
			HasServer: fileExists(filepath.Join(dir, r.exeName)),
			Active:    isActive(cfg, e.Name(), dir),
		}
		if t, ok := r.created(dir); ok {
			v.Created = &t
		}
		anyActive = anyActive || v.Active
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	if len(out) == 1 && !anyActive && r.sink != nil {
		if err := r.sink.Activate(out[0].Path, out[0].Name); err != nil {
			r.logger.Warn("failed to persist auto-activated version", "version", out[0].Name, "error", err)
		}
		out[0].Active = true
		r.logger.Info("auto-activated only installed version", "version", out[0].Name)
	}
	return out, nil
}

func isActive(cfg settings.GlobalConfig, name, dir string) bool {
	if cfg.ActiveExecutableVersion != "" {
		return cfg.ActiveExecutableVersion == name
	}
	return cfg.ActiveExecutableFolder != "" && settings.SamePath(cfg.ActiveExecutableFolder, dir)
}

// Activate marks the version folder at path as active.
func (r *Resolver) Activate(cfg settings.GlobalConfig, path string) error {
	dir, err := r.versionDir(cfg, path)
	if err != nil {
		return err
	}
	if r.sink == nil {
		return errors.New("no settings sink configured")
	}
	return r.sink.Activate(dir, filepath.Base(dir))
}

// DeleteVersion removes an installed version folder. The active selection
// is cleared when it pointed at the removed folder.
func (r *Resolver) DeleteVersion(cfg settings.GlobalConfig, path string) error {
	dir, err := r.versionDir(cfg, path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove version %s: %w", dir, err)
	}
	r.logger.Info("deleted version", "path", dir)
	if r.sink != nil && r.sink.Deactivate(dir) {
		if err := r.sink.Save(); err != nil {
			r.logger.Warn("failed to persist settings after delete", "error", err)
		}
	}
	return nil
}

// versionDir validates that path is an existing directory directly inside
// the versions root.
func (r *Resolver) versionDir(cfg settings.GlobalConfig, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("version path is required")
	}
	root, err := filepath.Abs(cfg.VersionsRoot())
	if err != nil {
		return "", err
	}
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("path %s is not inside versions directory %s", path, root)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("version %s: %w", path, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("version %s is not a directory", path)
	}
	return dir, nil
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
