package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/qobs-build/skiabuild/internal/binaries"
	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/executor"
	"github.com/qobs-build/skiabuild/internal/failure"
	"github.com/qobs-build/skiabuild/internal/source"
	"github.com/qobs-build/skiabuild/internal/toolchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	okGn      = `touch "$PWD/gn.ran"; mkdir -p "$2"`
	okNinja   = `touch "$PWD/ninja.ran"; printf 'archive' > "$2/libskia.a"`
	failingGn = `touch "$PWD/gn.ran"; echo "ERROR at //BUILD.gn:1:1: Unknown target" >&2; exit 1`
)

type harness struct {
	workDir   string
	sourceDir string
	toolDir   string
	pipeline  *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	root := t.TempDir()
	h := &harness{
		workDir:   filepath.Join(root, "work"),
		sourceDir: filepath.Join(root, "skia-src"),
		toolDir:   filepath.Join(root, "tools"),
	}
	for _, dir := range []string{h.workDir, h.sourceDir, h.toolDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(h.sourceDir, "BUILD.gn"), []byte("# skia\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(h.sourceDir, "include", "core"), 0o755))

	h.pipeline = &Pipeline{
		Locator: &toolchain.Locator{
			LookPath: func(string) (string, error) { return "", exec.ErrNotFound },
			GOOS:     runtime.GOOS,
		},
		Resolver: &source.Resolver{Probe: &source.Probe{}},
		Output:   &bytes.Buffer{},
		GOOS:     runtime.GOOS,
	}
	return h
}

func (h *harness) tool(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func (h *harness) options(t *testing.T, gn, ninja string, features ...string) config.Options {
	return config.Options{
		WorkDir:          h.workDir,
		Target:           "x86_64-unknown-linux-gnu",
		Features:         features,
		OfflineSourceDir: h.sourceDir,
		GnCommand:        h.tool(t, filepath.Join(h.toolDir, "gn"), gn),
		NinjaCommand:     h.tool(t, filepath.Join(h.toolDir, "ninja"), ninja),
	}
}

func (h *harness) ran(tool string) bool {
	_, err := os.Stat(filepath.Join(h.sourceDir, tool+".ran"))
	return err == nil
}

func TestBaselineBuild(t *testing.T) {
	h := newHarness(t)

	c, err := h.pipeline.Run(context.Background(), config.Environ{}, h.options(t, okGn, okNinja))
	require.NoError(t, err)

	assert.Equal(t, []string{"skia"}, c.StaticLibs)
	assert.Empty(t, c.Capabilities)
	assert.Equal(t, filepath.Join(h.workDir, "build", "skia", "x86_64-unknown-linux-gnu-release"), c.OutputDir)
	assert.Equal(t, []string{h.sourceDir, filepath.Join(h.sourceDir, "include")}, c.IncludeDirs)
	assert.True(t, h.ran("gn"))
	assert.True(t, h.ran("ninja"))
}

func TestInvalidCapabilityNeverSpawns(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Run(context.Background(), config.Environ{}, h.options(t, okGn, okNinja, "metal"))
	require.Error(t, err)
	assert.Equal(t, failure.Configuration, failure.KindOf(err))
	assert.Contains(t, err.Error(), `capability "metal" is not available for target x86_64-unknown-linux-gnu`)
	assert.False(t, h.ran("gn"))
	assert.False(t, h.ran("ninja"))
}

func TestGenerationFailureStopsBeforeNinja(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Run(context.Background(), config.Environ{}, h.options(t, failingGn, okNinja))
	require.Error(t, err)
	assert.Equal(t, failure.Generation, failure.KindOf(err))
	assert.Contains(t, err.Error(), "Unknown target")
	assert.True(t, h.ran("gn"))
	assert.False(t, h.ran("ninja"))
}

func TestMissingToolchain(t *testing.T) {
	h := newHarness(t)
	opts := h.options(t, okGn, okNinja)
	opts.NinjaCommand = filepath.Join(h.toolDir, "no-such-ninja")

	_, err := h.pipeline.Run(context.Background(), config.Environ{}, opts)
	assert.Equal(t, failure.ToolchainMissing, failure.KindOf(err))
	assert.ErrorContains(t, err, "no-such-ninja")
	assert.False(t, h.ran("gn"))
}

func TestBadExplicitToolIsNotReplacedByVendoredCopy(t *testing.T) {
	h := newHarness(t)
	checkout := filepath.Join(h.workDir, source.CheckoutDir)
	require.NoError(t, os.MkdirAll(checkout, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(checkout, "BUILD.gn"), []byte("# skia\n"), 0o644))
	h.tool(t, filepath.Join(checkout, "bin", "gn"), okGn)
	h.tool(t, filepath.Join(checkout, "third_party", "ninja", "ninja"), okNinja)

	_, err := h.pipeline.Run(context.Background(), config.Environ{
		config.EnvOfflineGnCommand: filepath.Join(h.toolDir, "typo-gn"),
	}, config.Options{
		WorkDir: h.workDir,
		Target:  "x86_64-unknown-linux-gnu",
	})
	assert.Equal(t, failure.ToolchainMissing, failure.KindOf(err))
	assert.ErrorContains(t, err, "typo-gn")
	assert.NoFileExists(t, filepath.Join(checkout, "gn.ran"))
}

func TestFullModeUsesVendoredTools(t *testing.T) {
	h := newHarness(t)
	checkout := filepath.Join(h.workDir, source.CheckoutDir)
	require.NoError(t, os.MkdirAll(checkout, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(checkout, "BUILD.gn"), []byte("# skia\n"), 0o644))
	h.tool(t, filepath.Join(checkout, "bin", "gn"), okGn)
	h.tool(t, filepath.Join(checkout, "third_party", "ninja", "ninja"), okNinja)

	c, err := h.pipeline.Run(context.Background(), config.Environ{}, config.Options{
		WorkDir: h.workDir,
		Target:  "x86_64-unknown-linux-gnu",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{checkout}, c.IncludeDirs)
	assert.FileExists(t, filepath.Join(checkout, "ninja.ran"))
}

func TestDryRun(t *testing.T) {
	h := newHarness(t)

	plan, err := h.pipeline.DryRun(config.Environ{config.EnvGnArgs: "skia_use_lua=true"}, h.options(t, okGn, okNinja, "gl"))
	require.NoError(t, err)
	assert.Contains(t, plan.Args.Flatten(), "skia_use_gl=true")
	assert.Contains(t, plan.Args.Flatten(), "skia_use_lua=true")
	assert.Equal(t, []string{"SK_GANESH", "SK_GL"}, plan.Args.Defines)
	assert.Equal(t, source.Offline, plan.Final.Mode)
	assert.False(t, h.ran("gn"))
}

func packedSkia(t *testing.T) []byte {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "libskia.a"), []byte("prebuilt"), 0o644))
	var buf bytes.Buffer
	require.NoError(t, binaries.Pack(&buf, dir, []string{"libskia.a"}))
	return buf.Bytes()
}

func TestPrebuiltBinariesSkipBuild(t *testing.T) {
	h := newHarness(t)
	archive := packedSkia(t)

	var requested atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested.Store(r.URL.Path)
		_, _ = w.Write(archive)
	}))
	defer srv.Close()
	h.pipeline.Fetcher = &binaries.Fetcher{Client: srv.Client(), Progress: io.Discard}

	env := config.Environ{config.EnvBinariesURL: srv.URL + "/skia-{key}.tar.gz"}
	c, err := h.pipeline.Run(context.Background(), env, h.options(t, failingGn, okNinja))
	require.NoError(t, err)

	assert.Equal(t, "/skia-"+c.Key+".tar.gz", requested.Load())
	assert.Equal(t, []string{"skia"}, c.StaticLibs)
	assert.False(t, h.ran("gn"))

	data, err := os.ReadFile(filepath.Join(c.OutputDir, "libskia.a"))
	require.NoError(t, err)
	assert.Equal(t, "prebuilt", string(data))

	// released once the archive is in place
	lock, _, err := executor.AcquireLock(c.OutputDir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestPrebuiltRespectsOutputLock(t *testing.T) {
	h := newHarness(t)
	archive := packedSkia(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(archive)
	}))
	defer srv.Close()
	h.pipeline.Fetcher = &binaries.Fetcher{Client: srv.Client(), Progress: io.Discard}

	outDir := filepath.Join(h.workDir, "build", "skia", "x86_64-unknown-linux-gnu-release")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	held, _, err := executor.AcquireLock(outDir)
	require.NoError(t, err)
	defer held.Release()

	env := config.Environ{config.EnvBinariesURL: srv.URL + "/{key}.tar.gz"}
	_, err = h.pipeline.Run(context.Background(), env, h.options(t, okGn, okNinja))
	assert.Equal(t, failure.Configuration, failure.KindOf(err))
	assert.ErrorContains(t, err, "in use by another build")
	assert.Zero(t, hits.Load())
	assert.NoFileExists(t, filepath.Join(outDir, "libskia.a"))
	assert.False(t, h.ran("gn"))
}

func TestPrebuiltFailureFallsBackToSource(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer srv.Close()
	h.pipeline.Fetcher = &binaries.Fetcher{Client: srv.Client(), Progress: io.Discard}

	env := config.Environ{config.EnvBinariesURL: srv.URL + "/{key}.tar.gz"}
	c, err := h.pipeline.Run(context.Background(), env, h.options(t, okGn, okNinja))
	require.NoError(t, err)
	assert.True(t, h.ran("ninja"))
	assert.Equal(t, []string{"skia"}, c.StaticLibs)
}
