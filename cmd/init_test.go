package cmd

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/msg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitProjectResolves(t *testing.T) {
	old := msg.Output
	msg.Output = io.Discard
	defer func() { msg.Output = old }()

	dir := filepath.Join(t.TempDir(), "app")
	initIn(dir)
	assert.FileExists(t, filepath.Join(dir, ".gitignore"))

	cases := map[string][]string{
		"x86_64-unknown-linux-gnu": {"gl", "svg", "textlayout", "vulkan"},
		"aarch64-apple-darwin":     {"metal", "svg", "textlayout"},
		"x86_64-pc-windows-msvc":   {"d3d", "svg", "textlayout"},
	}
	for target, want := range cases {
		cfg, err := config.Resolve(config.Environ{}, config.Options{WorkDir: dir, Target: target})
		require.NoError(t, err, target)
		assert.Equal(t, want, cfg.Capabilities.Names(), target)
	}

	debug, err := config.Resolve(config.Environ{}, config.Options{WorkDir: dir, Target: "x86_64-unknown-linux-gnu", Profile: "debug"})
	require.NoError(t, err)
	assert.True(t, debug.Profile.Debug)
	assert.False(t, debug.Profile.Official)
}

func TestInitKeepsExistingProject(t *testing.T) {
	old := msg.Output
	msg.Output = io.Discard
	defer func() { msg.Output = old }()

	dir := t.TempDir()
	path := filepath.Join(dir, config.ProjectFilename)
	require.NoError(t, os.WriteFile(path, []byte("[features]\n"), 0o644))

	initIn(dir)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[features]\n", string(data))
}
