package config

import (
	"os"
	"strings"

	"github.com/qobs-build/skiabuild/internal/platform"
)

// Environment variables read by Resolve. Nothing after Resolve looks at the
// process environment again.
const (
	EnvOfflineSourceDir    = "SKIA_OFFLINE_SOURCE_DIR"
	EnvOfflineGnCommand    = "SKIA_OFFLINE_GN_COMMAND"
	EnvOfflineNinjaCommand = "SKIA_OFFLINE_NINJA_COMMAND"
	EnvFeatures            = "SKIA_FEATURES"
	EnvTarget              = "SKIA_TARGET"
	EnvProfile             = "SKIA_PROFILE"
	EnvOutDir              = "SKIA_OUT_DIR"
	EnvGnArgs              = "SKIA_GN_ARGS"
	EnvNinjaJobs           = "SKIA_NINJA_JOBS"
	EnvBinariesURL         = "SKIA_BINARIES_URL"
)

// quirkVars are snapshotted for platform quirk detection.
var quirkVars = []string{
	"SDKROOT",
	"DEVELOPER_DIR",
	"ANDROID_NDK",
	"ANDROID_NDK_HOME",
	"ANDROID_NDK_ROOT",
	"EMSDK",
	"LLVM_HOME",
	"ProgramFiles",
}

// Environ is a snapshot of environment variables.
type Environ map[string]string

// EnvironFromOS snapshots the current process environment.
func EnvironFromOS() Environ {
	environ := make(Environ)
	for _, e := range os.Environ() {
		if i := strings.Index(e, "="); i >= 0 {
			environ[e[:i]] = e[i+1:]
		}
	}
	return environ
}

// Get returns the trimmed value of key, or "".
func (e Environ) Get(key string) string {
	return strings.TrimSpace(e[key])
}

// ConfigEnv is the environment expr expressions in Skia.toml and in the
// capability table are evaluated against.
type ConfigEnv struct {
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	TargetABI  string            `expr:"target_abi"`
	Environ    map[string]string `expr:"environ"`
	Features   []string          `expr:"features"`
}

func NewConfigEnv(target platform.Target, environ Environ, features []string) ConfigEnv {
	if environ == nil {
		environ = Environ{}
	}
	if features == nil {
		features = []string{}
	}
	return ConfigEnv{
		TargetOS:   string(target.OS),
		TargetArch: string(target.Arch),
		TargetABI:  target.ABI,
		Environ:    environ,
		Features:   features,
	}
}
