package resolver

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/llamactl/internal/settings"
)

type fakeSink struct {
	folder, version string
	activations     int
	saves           int
	failSave        bool
}

func (f *fakeSink) Activate(folder, version string) error {
	f.folder, f.version = folder, version
	f.activations++
	if f.failSave {
		return errors.New("disk full")
	}
	return nil
}

func (f *fakeSink) Deactivate(folder string) bool {
	if f.folder == "" || !settings.SamePath(f.folder, folder) {
		return false
	}
	f.folder, f.version = "", ""
	return true
}

func (f *fakeSink) Save() error { f.saves++; return nil }

func writeExe(t *testing.T, dir string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, exeName())
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"), 0o755))
	return p
}

func exeName() string { return New(nil, nil).ExecutableName() }

func fixedTimes(times map[string]time.Time) func(string) (time.Time, bool) {
	return func(p string) (time.Time, bool) {
		t, ok := times[filepath.Base(p)]
		return t, ok
	}
}

func TestResolvePreferredPathWins(t *testing.T) {
	root := t.TempDir()
	cfg := settings.GlobalConfig{ExecutableFolder: root, ActiveExecutableVersion: "b1"}
	want := writeExe(t, filepath.Join(root, "versions", "b1"))
	writeExe(t, filepath.Join(root, "versions", "b2"))

	sink := &fakeSink{}
	r := New(sink, nil)
	assert.Equal(t, want, r.Resolve(cfg))
	assert.Zero(t, sink.activations, "no fallback expected")
}

func TestPreferredPathPrecedence(t *testing.T) {
	r := New(nil, nil)
	exe := r.ExecutableName()
	cfg := settings.GlobalConfig{ExecutableFolder: "/e"}
	assert.Equal(t, filepath.Join("/e", exe), r.PreferredPath(cfg))

	cfg.ActiveExecutableFolder = "/custom"
	assert.Equal(t, filepath.Join("/custom", exe), r.PreferredPath(cfg))

	cfg.ActiveExecutableVersion = "v2"
	assert.Equal(t, filepath.Join("/e", "versions", "v2", exe), r.PreferredPath(cfg))
}

func TestResolveFallsBackToNewestAndActivates(t *testing.T) {
	root := t.TempDir()
	cfg := settings.GlobalConfig{ExecutableFolder: root, ActiveExecutableVersion: "gone"}
	writeExe(t, filepath.Join(root, "versions", "older"))
	newest := writeExe(t, filepath.Join(root, "versions", "newer"))
	// folder without the binary is ignored even if newest
	require.NoError(t, os.MkdirAll(filepath.Join(root, "versions", "empty"), 0o755))

	now := time.Now()
	sink := &fakeSink{}
	r := New(sink, nil)
	r.created = fixedTimes(map[string]time.Time{
		"older": now.Add(-time.Hour),
		"newer": now,
		"empty": now.Add(time.Hour),
	})

	assert.Equal(t, newest, r.Resolve(cfg))
	assert.Equal(t, 1, sink.activations)
	assert.Equal(t, "newer", sink.version)
	assert.Equal(t, filepath.Join(root, "versions", "newer"), sink.folder)
}

func TestResolvePersistFailureIsNotFatal(t *testing.T) {
	root := t.TempDir()
	want := writeExe(t, filepath.Join(root, "versions", "only"))
	sink := &fakeSink{failSave: true}
	r := New(sink, nil)
	assert.Equal(t, want, r.Resolve(settings.GlobalConfig{ExecutableFolder: root}))
	assert.Equal(t, "only", sink.version)
}

func TestResolveNothingFoundReturnsPreferred(t *testing.T) {
	root := t.TempDir()
	r := New(&fakeSink{}, nil)
	cfg := settings.GlobalConfig{ExecutableFolder: root}
	assert.Equal(t, r.PreferredPath(cfg), r.Resolve(cfg))
}

func TestSortCandidates(t *testing.T) {
	now := time.Now()
	cs := []candidate{
		{name: "a"},
		{name: "c"},
		{name: "old", created: now.Add(-time.Minute), hasTime: true},
		{name: "new", created: now, hasTime: true},
	}
	sortCandidates(cs)
	var names []string
	for _, c := range cs {
		names = append(names, c.name)
	}
	assert.Equal(t, []string{"new", "old", "c", "a"}, names)
}

func TestListVersionsAutoActivatesSingle(t *testing.T) {
	root := t.TempDir()
	writeExe(t, filepath.Join(root, "versions", "b5000"))
	sink := &fakeSink{}
	r := New(sink, nil)

	vs, err := r.ListVersions(settings.GlobalConfig{ExecutableFolder: root})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.True(t, vs[0].Active)
	assert.True(t, vs[0].HasServer)
	assert.Equal(t, "b5000", sink.version)
}

func TestListVersionsMarksActive(t *testing.T) {
	root := t.TempDir()
	writeExe(t, filepath.Join(root, "versions", "a"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "versions", "b"), 0o755))
	sink := &fakeSink{}
	r := New(sink, nil)

	cfg := settings.GlobalConfig{ExecutableFolder: root, ActiveExecutableFolder: filepath.Join(root, "versions", "b")}
	vs, err := r.ListVersions(cfg)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.False(t, vs[0].Active)
	assert.True(t, vs[1].Active)
	assert.False(t, vs[1].HasServer)
	assert.Zero(t, sink.activations)

	empty, err := r.ListVersions(settings.GlobalConfig{ExecutableFolder: filepath.Join(root, "missing")})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteVersion(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "versions", "b1")
	writeExe(t, dir)
	sink := &fakeSink{folder: dir, version: "b1"}
	r := New(sink, nil)
	cfg := settings.GlobalConfig{ExecutableFolder: root}

	require.NoError(t, r.DeleteVersion(cfg, dir))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, sink.folder)
	assert.Equal(t, 1, sink.saves)
}

func TestDeleteVersionRejectsOutsidePaths(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	r := New(&fakeSink{}, nil)
	cfg := settings.GlobalConfig{ExecutableFolder: root}
	require.NoError(t, os.MkdirAll(cfg.VersionsRoot(), 0o755))

	for _, p := range []string{outside, cfg.VersionsRoot(), filepath.Join(cfg.VersionsRoot(), "..", "..")} {
		assert.Error(t, r.DeleteVersion(cfg, p), p)
	}
	_, err := os.Stat(outside)
	assert.NoError(t, err)
}

func TestActivateVersion(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "versions", "b2")
	writeExe(t, dir)
	sink := &fakeSink{}
	r := New(sink, nil)
	require.NoError(t, r.Activate(settings.GlobalConfig{ExecutableFolder: root}, dir))
	assert.Equal(t, "b2", sink.version)
}
