// Package platform describes the target a Skia build is produced for.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

type OS string

const (
	Linux   OS = "linux"
	Windows OS = "windows"
	MacOS   OS = "macos"
	IOS     OS = "ios"
	Android OS = "android"
	Wasm    OS = "wasm"
)

type Arch string

const (
	X86_64  Arch = "x86_64"
	AArch64 Arch = "aarch64"
	X86     Arch = "x86"
	ARM     Arch = "arm"
	Wasm32  Arch = "wasm32"
)

// Target is an (OS, architecture, ABI) triple. ABI may be empty.
type Target struct {
	OS   OS
	Arch Arch
	ABI  string
}

func (t Target) String() string { return t.Triple() }

// Triple renders the canonical triple, e.g. "x86_64-unknown-linux-gnu".
func (t Target) Triple() string {
	vendor := "unknown"
	osName := string(t.OS)
	switch t.OS {
	case Windows:
		vendor = "pc"
	case MacOS:
		vendor = "apple"
		osName = "darwin"
	case IOS:
		vendor = "apple"
	case Android:
		return joinNonEmpty(string(t.Arch), "linux", abiOr(t.ABI, "android"))
	case Wasm:
		osName = "emscripten"
	}
	return joinNonEmpty(string(t.Arch), vendor, osName, t.ABI)
}

func abiOr(abi, def string) string {
	if abi == "" {
		return def
	}
	return abi
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "-")
}

// GnOS is the value of gn's target_os.
func (t Target) GnOS() string {
	switch t.OS {
	case Windows:
		return "win"
	case MacOS:
		return "mac"
	default:
		return string(t.OS)
	}
}

// GnCPU is the value of gn's target_cpu.
func (t Target) GnCPU() string {
	switch t.Arch {
	case X86_64:
		return "x64"
	case AArch64:
		return "arm64"
	case Wasm32:
		return "wasm"
	default:
		return string(t.Arch)
	}
}

// IsMSVC reports whether the target uses MSVC-style library names.
func (t Target) IsMSVC() bool {
	return t.OS == Windows && t.ABI != "gnu"
}

func (t Target) IsApple() bool {
	return t.OS == MacOS || t.OS == IOS
}

// StaticLib returns the file name of a static library for this target.
func (t Target) StaticLib(name string) string {
	if t.IsMSVC() {
		return name + ".lib"
	}
	return "lib" + name + ".a"
}

var archAliases = map[string]Arch{
	"x86_64":  X86_64,
	"amd64":   X86_64,
	"x64":     X86_64,
	"aarch64": AArch64,
	"arm64":   AArch64,
	"i386":    X86,
	"i586":    X86,
	"i686":    X86,
	"x86":     X86,
	"386":     X86,
	"arm":     ARM,
	"wasm32":  Wasm32,
	"wasm":    Wasm32,
}

func parseArch(s string) (Arch, bool) {
	if a, ok := archAliases[s]; ok {
		return a, true
	}
	if strings.HasPrefix(s, "armv7") || strings.HasPrefix(s, "thumbv7") {
		return ARM, true
	}
	return "", false
}

var osAliases = map[string]OS{
	"linux":      Linux,
	"windows":    Windows,
	"darwin":     MacOS,
	"macos":      MacOS,
	"ios":        IOS,
	"android":    Android,
	"emscripten": Wasm,
	"wasm":       Wasm,
}

var knownABIs = map[string]bool{
	"gnu":         true,
	"msvc":        true,
	"musl":        true,
	"gnueabihf":   true,
	"musleabihf":  true,
	"eabi":        true,
	"androideabi": true,
	"sim":         true,
}

// Parse accepts full triples ("aarch64-linux-android", "x86_64-pc-windows-msvc")
// and Go-style pairs ("linux-amd64", "darwin/arm64").
func Parse(triple string) (Target, error) {
	s := strings.ToLower(strings.TrimSpace(triple))
	s = strings.ReplaceAll(s, "/", "-")
	parts := strings.Split(s, "-")
	if len(parts) < 2 {
		return Target{}, fmt.Errorf("invalid target %q: expected <arch>-<vendor>-<os>[-<abi>]", triple)
	}

	// Go-style <os>-<arch>
	if goos, ok := osAliases[parts[0]]; ok && len(parts) == 2 {
		arch, ok := parseArch(parts[1])
		if !ok {
			return Target{}, fmt.Errorf("invalid target %q: unknown architecture %q", triple, parts[1])
		}
		return withDefaultABI(Target{OS: goos, Arch: arch}), nil
	}

	arch, ok := parseArch(parts[0])
	if !ok {
		return Target{}, fmt.Errorf("invalid target %q: unknown architecture %q", triple, parts[0])
	}

	t := Target{Arch: arch}
	for _, p := range parts[1:] {
		if strings.HasPrefix(p, "android") {
			t.OS = Android
			if p == "androideabi" {
				t.ABI = p
			}
			continue
		}
		if o, ok := osAliases[p]; ok && t.OS != Android {
			t.OS = o
			continue
		}
		if knownABIs[p] && t.ABI == "" {
			t.ABI = p
		}
	}
	if t.OS == "" {
		return Target{}, fmt.Errorf("invalid target %q: unknown operating system", triple)
	}
	return withDefaultABI(t), nil
}

func withDefaultABI(t Target) Target {
	if t.ABI != "" {
		return t
	}
	switch t.OS {
	case Linux:
		t.ABI = "gnu"
	case Windows:
		t.ABI = "msvc"
	}
	return t
}

// Host returns the target describing the machine skiabuild runs on.
func Host() Target {
	return FromGo(runtime.GOOS, runtime.GOARCH)
}

// FromGo maps a GOOS/GOARCH pair to a Target. Unknown values map through
// unchanged so that validation can report them.
func FromGo(goos, goarch string) Target {
	o, ok := osAliases[goos]
	if !ok {
		o = OS(goos)
	}
	a, ok := parseArch(goarch)
	if !ok {
		a = Arch(goarch)
	}
	return withDefaultABI(Target{OS: o, Arch: a})
}

// Known reports whether both OS and architecture are ones skiabuild can build for.
func (t Target) Known() bool {
	switch t.OS {
	case Linux, Windows, MacOS, IOS, Android, Wasm:
	default:
		return false
	}
	switch t.Arch {
	case X86_64, AArch64, X86, ARM, Wasm32:
	default:
		return false
	}
	return true
}

// Exe appends the executable suffix used on the given GOOS.
func Exe(name, goos string) string {
	if goos == "windows" {
		return name + ".exe"
	}
	return name
}
