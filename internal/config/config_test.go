package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/qobs-build/skiabuild/internal/failure"
	"github.com/qobs-build/skiabuild/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveIn(t *testing.T, env Environ, opts Options) (*BuildConfiguration, error) {
	t.Helper()
	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}
	return Resolve(env, opts)
}

func TestResolveDefaults(t *testing.T) {
	cfg, err := resolveIn(t, Environ{}, Options{Target: "x86_64-unknown-linux-gnu"})
	require.NoError(t, err)

	assert.Equal(t, platform.Target{OS: platform.Linux, Arch: platform.X86_64, ABI: "gnu"}, cfg.Target)
	assert.Equal(t, 0, cfg.Capabilities.Len())
	assert.Equal(t, "release", cfg.Profile.Name)
	assert.True(t, cfg.Profile.Official)
	assert.False(t, cfg.Profile.Debug)
	assert.False(t, cfg.Offline())
	assert.Equal(t, filepath.Join(cfg.WorkDir, "build", "skia", "x86_64-unknown-linux-gnu-release"), cfg.OutDir)
}

func TestResolveFeaturesFromEnvAndFlags(t *testing.T) {
	env := Environ{
		EnvFeatures: "gl, textlayout",
		EnvProfile:  "debug",
	}
	cfg, err := resolveIn(t, env, Options{Target: "linux-amd64", Features: []string{"svg", "gl"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"gl", "svg", "textlayout"}, cfg.Capabilities.Names())
	assert.True(t, cfg.Capabilities.Has("svg"))
	assert.False(t, cfg.Capabilities.Has("metal"))
	assert.True(t, cfg.Profile.Debug)
}

func TestResolveDeprecatedNames(t *testing.T) {
	cfg, err := resolveIn(t, Environ{}, Options{
		Target:   "x86_64-unknown-linux-gnu",
		Features: []string{"shaper", "webp", "shaper"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"textlayout", "webp-decode", "webp-encode"}, cfg.Capabilities.Names())
	require.Len(t, cfg.Warnings, 2)
	assert.Contains(t, cfg.Warnings[0], "'shaper' has been removed")
}

func TestResolveCollectsEveryProblem(t *testing.T) {
	env := Environ{
		EnvNinjaJobs: "lots",
	}
	_, err := resolveIn(t, env, Options{
		Target:   "sparc-sun-solaris",
		Profile:  "fast",
		Features: []string{"vulcan", "gl", "textlayuot"},
	})
	require.Error(t, err)
	assert.Equal(t, failure.Configuration, failure.KindOf(err))

	var fe *failure.Error
	require.ErrorAs(t, err, &fe)
	assert.Len(t, fe.Problems, 5)

	text := err.Error()
	assert.Contains(t, text, `"sparc-sun-solaris"`)
	assert.Contains(t, text, `unknown capability "vulcan"`)
	assert.Contains(t, text, `unknown capability "textlayuot"`)
	assert.Contains(t, text, `unknown profile "fast"`)
	assert.Contains(t, text, "SKIA_NINJA_JOBS")
}

func TestResolveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	env := Environ{
		EnvFeatures:         "skottie,gl",
		EnvGnArgs:           "skia_use_piex=false; extra_cflags=[\"-g\"]",
		EnvOfflineSourceDir: "/opt/skia",
		"ANDROID_NDK":       "/opt/ndk",
	}
	opts := Options{WorkDir: dir, Target: "aarch64-linux-android"}

	a, err := Resolve(env, opts)
	require.NoError(t, err)
	b, err := Resolve(env, opts)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, []string{"skia_use_piex=false", `extra_cflags=["-g"]`}, a.ExtraArgs)
	assert.Equal(t, "/opt/ndk", a.QuirkEnv["ANDROID_NDK"])
	assert.True(t, a.Offline())
}

func TestKeyDependsOnCapabilities(t *testing.T) {
	a, err := resolveIn(t, Environ{}, Options{Target: "x86_64-unknown-linux-gnu"})
	require.NoError(t, err)
	b, err := resolveIn(t, Environ{}, Options{Target: "x86_64-unknown-linux-gnu", Features: []string{"pdf"}})
	require.NoError(t, err)

	assert.NotEqual(t, a.Key(), b.Key())
	assert.Len(t, a.Key(), 16)
}

func TestResolveProjectFile(t *testing.T) {
	dir := t.TempDir()
	project := `
[package]
default-features = ["textlayout", "pdf"]

[features]
disable = ["pdf"]

[features.'target_os == "macos"']
enable = ["metal"]

[features.'target_os == "linux"']
enable = ["gl", "x11"]

[profile.relwithdebinfo]
official = true
debug = true

[gn]
args = { skia_use_dng_sdk = true }
defines = ["SK_CUSTOM"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFilename), []byte(project), 0o644))

	cfg, err := Resolve(Environ{}, Options{WorkDir: dir, Target: "aarch64-apple-darwin", Profile: "relwithdebinfo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"metal", "textlayout"}, cfg.Capabilities.Names())
	assert.True(t, cfg.Profile.Debug)
	assert.True(t, cfg.Profile.Official)
	assert.Equal(t, true, cfg.ProjectArgs["skia_use_dng_sdk"])
	assert.Equal(t, []string{"SK_CUSTOM"}, cfg.ProjectDefines)

	cfg, err = Resolve(Environ{}, Options{WorkDir: dir, Target: "x86_64-unknown-linux-gnu", NoDefaultFeatures: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"gl", "x11"}, cfg.Capabilities.Names())
}

func TestResolveProjectFileErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFilename), []byte("[package\n"), 0o644))

	_, err := Resolve(Environ{}, Options{WorkDir: dir, Target: "x86_64-unknown-linux-gnu"})
	require.Error(t, err)
	assert.Equal(t, failure.Configuration, failure.KindOf(err))
	assert.True(t, strings.Contains(err.Error(), ProjectFilename))
}

func TestProjectStringExpressions(t *testing.T) {
	env := NewConfigEnv(platform.Target{OS: platform.Android, Arch: platform.AArch64}, Environ{"HOME": "/home/me"}, nil)
	p, err := ParseProject(strings.NewReader(`
[gn]
args = { ndk = "{{ environ['HOME'] }}/ndk", target = "{{ target_os }}-{{ target_arch }}" }
`), env)
	require.NoError(t, err)
	assert.Equal(t, "/home/me/ndk", p.Gn.Args["ndk"])
	assert.Equal(t, "android-aarch64", p.Gn.Args["target"])
}
