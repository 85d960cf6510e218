package source

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/skiabuild/internal/platform"
)

// Quirks are target specific facts found on disk. Empty fields were not found.
type Quirks struct {
	SDKRoot    string // Apple SDK (xcode_sysroot)
	NDK        string // Android NDK root
	NDKHostTag string // e.g. linux-x86_64
	ClangWin   string // LLVM installation used for clang-cl
	WinVC      string // Visual Studio VC directory
	Emsdk      string
	Musl       bool
}

// Probe looks for platform SDKs. Its search roots are fields so tests can
// point it at temporary directories. On Windows, LLVM_HOME and
// %ProgramFiles%\LLVM are searched before LLVMRoots.
type Probe struct {
	XcodeRoots   []string
	LLVMRoots    []string
	VisualStudio func() string
}

func DefaultProbe() *Probe {
	return &Probe{
		XcodeRoots: []string{
			"/Applications/Xcode*.app/Contents/Developer",
			"/Library/Developer/CommandLineTools",
		},
		LLVMRoots:    []string{`C:\Program Files\LLVM`},
		VisualStudio: findVisualStudioVC,
	}
}

// Detect never runs subprocesses; it only reads env (a snapshot taken by the
// config stage) and the filesystem.
func (p *Probe) Detect(target platform.Target, env map[string]string) Quirks {
	var q Quirks
	switch target.OS {
	case platform.Android:
		q.NDK = firstExistingDir(env["ANDROID_NDK"], env["ANDROID_NDK_HOME"], env["ANDROID_NDK_ROOT"])
		if q.NDK != "" {
			q.NDKHostTag = ndkHostTag(q.NDK)
		}
	case platform.IOS, platform.MacOS:
		q.SDKRoot = p.appleSDK(target, env)
	case platform.Windows:
		var roots []string
		if home := env["LLVM_HOME"]; home != "" {
			roots = append(roots, home)
		}
		if pf := env["ProgramFiles"]; pf != "" {
			roots = append(roots, filepath.Join(pf, "LLVM"))
		}
		roots = append(roots, p.LLVMRoots...)
		for _, root := range roots {
			if fileExists(filepath.Join(root, "bin", "clang-cl.exe")) {
				q.ClangWin = root
				break
			}
		}
		if p.VisualStudio != nil {
			q.WinVC = p.VisualStudio()
		}
	case platform.Wasm:
		q.Emsdk = firstExistingDir(env["EMSDK"])
	case platform.Linux:
		q.Musl = target.ABI == "musl"
	}
	return q
}

func (p *Probe) appleSDK(target platform.Target, env map[string]string) string {
	if sdk := firstExistingDir(env["SDKROOT"]); sdk != "" {
		return sdk
	}

	sdkName := "MacOSX"
	platformDir := "MacOSX.platform"
	if target.OS == platform.IOS {
		sdkName, platformDir = "iPhoneOS", "iPhoneOS.platform"
		if target.ABI == "sim" || target.Arch == platform.X86_64 {
			sdkName, platformDir = "iPhoneSimulator", "iPhoneSimulator.platform"
		}
	}

	roots := p.XcodeRoots
	if dev := env["DEVELOPER_DIR"]; dev != "" {
		roots = append([]string{dev}, roots...)
	}
	for _, root := range roots {
		patterns := []string{
			filepath.Join(root, "Platforms", platformDir, "Developer", "SDKs", sdkName+"*.sdk"),
			filepath.Join(root, "SDKs", sdkName+"*.sdk"),
		}
		for _, pattern := range patterns {
			if sdk := lastMatch(pattern); sdk != "" {
				return sdk
			}
		}
	}
	return ""
}

// ndkHostTag returns the single prebuilt toolchain directory name inside an NDK.
func ndkHostTag(ndk string) string {
	dir := lastMatch(filepath.Join(ndk, "toolchains", "llvm", "prebuilt", "*"))
	if dir == "" {
		return ""
	}
	return filepath.Base(dir)
}

// lastMatch returns the lexically greatest match, which for versioned SDK
// directory names is usually the newest.
func lastMatch(pattern string) string {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil || len(matches) == 0 {
		return ""
	}
	slices.Sort(matches)
	return matches[len(matches)-1]
}

func firstExistingDir(candidates ...string) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if stat, err := os.Stat(c); err == nil && stat.IsDir() {
			return c
		}
	}
	return ""
}

func fileExists(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && !stat.IsDir()
}
