package toolchain

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTool(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return path
}

func noPath(string) (string, error) { return "", errors.New("not found") }

func TestExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	gn := writeTool(t, filepath.Join(dir, "custom-gn"))

	l := &Locator{
		GOOS: runtime.GOOS,
		LookPath: func(file string) (string, error) {
			return "/usr/bin/" + file, nil
		},
	}
	paths := l.Locate(Paths{Gn: gn})

	assert.Equal(t, gn, paths.Gn)
	assert.Equal(t, "/usr/bin/ninja", paths.Ninja)
	assert.Empty(t, paths.Missing())
}

func TestBadExplicitPathStaysUnresolved(t *testing.T) {
	l := &Locator{
		GOOS: "linux",
		LookPath: func(file string) (string, error) {
			return "/opt/bin/" + file, nil
		},
	}
	bad := filepath.Join(t.TempDir(), "does-not-exist")
	paths := l.Locate(Paths{Gn: bad})

	assert.Empty(t, paths.Gn)
	assert.Equal(t, "/opt/bin/ninja", paths.Ninja)
	assert.Equal(t, []string{Gn}, paths.Missing())
	assert.Equal(t, map[string]string{Gn: bad}, paths.Rejected)
}

func TestUnresolvedIsNotAnError(t *testing.T) {
	l := &Locator{GOOS: "linux", LookPath: noPath}
	paths := l.Locate(Paths{})

	assert.Equal(t, Paths{}, paths)
	assert.Equal(t, []string{Gn, Ninja}, paths.Missing())
}

func TestWithFallback(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses unix executable bits")
	}
	src := t.TempDir()
	gn := writeTool(t, filepath.Join(src, "bin", "gn"))
	ninja := writeTool(t, filepath.Join(src, "third_party", "ninja", "ninja"))

	paths := Paths{}.WithFallback(src, "linux")
	assert.Equal(t, gn, paths.Gn)
	assert.Equal(t, ninja, paths.Ninja)

	explicit := Paths{Gn: "/usr/local/bin/gn"}.WithFallback(src, "linux")
	assert.Equal(t, "/usr/local/bin/gn", explicit.Gn)

	rejected := Paths{Rejected: map[string]string{Ninja: "/nope/ninja"}}.WithFallback(src, "linux")
	assert.Equal(t, gn, rejected.Gn)
	assert.Empty(t, rejected.Ninja)
}

func TestNonExecutableIsRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses unix executable bits")
	}
	path := filepath.Join(t.TempDir(), "gn")
	require.NoError(t, os.WriteFile(path, []byte("not a program"), 0o644))

	l := &Locator{GOOS: "linux", LookPath: noPath}
	assert.Empty(t, l.Locate(Paths{Gn: path}).Gn)
}
