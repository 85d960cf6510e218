// Package gnargs turns a resolved build configuration into gn arguments and
// preprocessor defines, checking the capability rule table on the way.
package gnargs

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/failure"
	"github.com/qobs-build/skiabuild/internal/platform"
	"github.com/qobs-build/skiabuild/internal/source"
)

const stage = "argument synthesis"

type Arg struct {
	Name  string
	Value Value
}

// BuildArguments is the deterministic input for gn: args sorted by name and
// defines sorted and unique.
type BuildArguments struct {
	Args    []Arg
	Defines []string
}

// Get returns the value of the named arg.
func (b *BuildArguments) Get(name string) (Value, bool) {
	i, found := slices.BinarySearchFunc(b.Args, name, func(a Arg, name string) int {
		return strings.Compare(a.Name, name)
	})
	if !found {
		return nil, false
	}
	return b.Args[i].Value, true
}

// Flatten renders the single string passed to `gn gen --args=`.
func (b *BuildArguments) Flatten() string {
	parts := make([]string, len(b.Args))
	for i, a := range b.Args {
		parts[i] = a.Name + "=" + a.Value.GN()
	}
	return strings.Join(parts, " ")
}

// ArgsGn renders the args in the layout gn itself uses for out/args.gn.
func (b *BuildArguments) ArgsGn() string {
	var sb strings.Builder
	for _, a := range b.Args {
		writeln(&sb, a.Name, " = ", a.Value.GN())
	}
	return sb.String()
}

func writeln(sb *strings.Builder, s ...string) {
	for _, str := range s {
		sb.WriteString(str)
	}
	sb.WriteByte('\n')
}

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// argSet accumulates layers; later layers override earlier ones.
type argSet map[string]Value

func (s argSet) apply(args map[string]any, problems *failure.Problems, origin string) {
	for _, name := range slices.Sorted(maps.Keys(args)) {
		v, err := FromAny(args[name])
		if err != nil {
			problems.Add("%s: gn arg %s: %v", origin, name, err)
			continue
		}
		s[name] = v
	}
}

func (s argSet) sorted() []Arg {
	out := make([]Arg, 0, len(s))
	for _, name := range slices.Sorted(maps.Keys(s)) {
		out = append(out, Arg{Name: name, Value: s[name]})
	}
	return out
}

// Synthesize validates the capability set of fcfg against the rule table and
// produces gn arguments. Validation runs to completion; the returned error
// lists every violated rule.
func Synthesize(fcfg *source.FinalBuildConfiguration) (*BuildArguments, error) {
	return synthesize(config.Capabilities(), fcfg)
}

func synthesize(table *config.CapabilityTable, fcfg *source.FinalBuildConfiguration) (*BuildArguments, error) {
	var problems failure.Problems

	target := fcfg.Target
	enabled := fcfg.Capabilities
	names := enabled.Names()

	if !target.Known() {
		problems.Add("unsupported target %s", target)
	}
	checkRules(table, target, enabled, &problems)
	checkQuirks(fcfg, &problems)

	args := argSet{}
	var defines []string

	args.apply(table.Base.Args, &problems, "base")
	defines = append(defines, table.Base.Defines...)

	args["is_official_build"] = Bool(fcfg.Profile.Official)
	args["is_debug"] = Bool(fcfg.Profile.Debug)
	args["target_os"] = String(target.GnOS())
	args["target_cpu"] = String(target.GnCPU())

	gpu := slices.ContainsFunc(names, func(name string) bool {
		c, ok := table.Lookup(name)
		return ok && c.GPU
	})
	if gpu {
		args.apply(table.GPU.Args, &problems, "gpu")
		defines = append(defines, table.GPU.Defines...)
	}

	for _, name := range names {
		c, ok := table.Lookup(name)
		if !ok {
			continue
		}
		args.apply(c.Args, &problems, "capability "+name)
		defines = append(defines, c.Defines...)
	}

	cflags := quirkArgs(fcfg, args)

	defines = append(defines, fcfg.ProjectDefines...)
	slices.Sort(defines)
	defines = slices.Compact(defines)
	for _, d := range defines {
		cflags = append(cflags, "-D"+d)
	}
	if len(cflags) > 0 {
		args["extra_cflags"] = List(cflags)
	}

	// user supplied args may tune anything except capability toggles
	owners := capabilityOwners(table)
	synthesized := maps.Clone(args)
	overrides := argSet{}
	overrides.apply(fcfg.ProjectArgs, &problems, config.ProjectFilename)
	for _, raw := range fcfg.ExtraArgs {
		name, value, ok := strings.Cut(raw, "=")
		name = strings.TrimSpace(name)
		if !ok || !identRegex.MatchString(name) {
			problems.Add("malformed %s entry %q: expected name=value", config.EnvGnArgs, raw)
			continue
		}
		v, err := ParseValue(value)
		if err != nil {
			problems.Add("malformed %s entry %q: %v", config.EnvGnArgs, raw, err)
			continue
		}
		overrides[name] = v
	}
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		v := overrides[name]
		if owner, owned := owners[name]; owned {
			if prev, ok := synthesized[name]; !ok || prev.GN() != v.GN() {
				problems.Add("gn arg %s=%s is controlled by capability %q; enable or disable the capability instead", name, v.GN(), owner)
				continue
			}
		}
		args[name] = v
	}

	if err := problems.Err(failure.Configuration, stage); err != nil {
		return nil, err
	}

	return &BuildArguments{
		Args:    args.sorted(),
		Defines: defines,
	}, nil
}

// checkRules applies the implication, exclusion and platform rules.
func checkRules(table *config.CapabilityTable, target platform.Target, enabled config.CapabilitySet, problems *failure.Problems) {
	env := config.NewConfigEnv(target, nil, enabled.Names())
	reported := make(map[[2]string]bool)

	for _, name := range enabled.Names() {
		c, ok := table.Lookup(name)
		if !ok {
			problems.Add("unknown capability %q", name)
			continue
		}
		for _, req := range c.Requires {
			if !enabled.Has(req) {
				problems.Add("capability %q requires capability %q to be enabled", name, req)
			}
		}
		for _, other := range c.Conflicts {
			if !enabled.Has(other) {
				continue
			}
			pair := [2]string{min(name, other), max(name, other)}
			if reported[pair] {
				continue
			}
			reported[pair] = true
			problems.Add("capabilities %q and %q are mutually exclusive", pair[0], pair[1])
		}
		available, err := c.AvailableOn(env)
		if err != nil {
			problems.Add("%v", err)
			continue
		}
		if !available {
			problems.Add("capability %q is not available for target %s", name, target)
		}
	}
}

// checkQuirks reports targets that cannot be built without a platform SDK.
func checkQuirks(fcfg *source.FinalBuildConfiguration, problems *failure.Problems) {
	q := fcfg.Quirks
	switch fcfg.Target.OS {
	case platform.Android:
		if q.NDK == "" {
			problems.Add("target %s requires the Android NDK; set ANDROID_NDK or ANDROID_NDK_HOME", fcfg.Target)
		}
	case platform.IOS:
		if q.SDKRoot == "" {
			problems.Add("target %s requires an iOS SDK; set SDKROOT or install Xcode", fcfg.Target)
		}
	case platform.Wasm:
		if q.Emsdk == "" {
			problems.Add("target %s requires emsdk; set EMSDK", fcfg.Target)
		}
	}
}

// quirkArgs adds arguments derived from detected platform facts and returns
// the compiler flags that must precede the defines in extra_cflags.
func quirkArgs(fcfg *source.FinalBuildConfiguration, args argSet) []string {
	q := fcfg.Quirks
	var cflags []string

	if cc := fcfg.Compilers.CC; cc != "" {
		args["cc"] = String(cc)
	}
	if cxx := fcfg.Compilers.CXX; cxx != "" {
		args["cxx"] = String(cxx)
	}

	switch fcfg.Target.OS {
	case platform.Android:
		if q.NDK != "" {
			args["ndk"] = String(q.NDK)
		}
	case platform.IOS, platform.MacOS:
		if q.SDKRoot != "" {
			args["xcode_sysroot"] = String(q.SDKRoot)
		}
		if fcfg.Target.ABI == "sim" {
			args["ios_use_simulator"] = Bool(true)
		}
	case platform.Windows:
		if q.ClangWin != "" {
			args["clang_win"] = String(q.ClangWin)
		}
		if q.WinVC != "" {
			args["win_vc"] = String(q.WinVC)
		}
		if fcfg.Target.IsMSVC() {
			if fcfg.Profile.Debug {
				cflags = append(cflags, "/MDd")
			} else {
				cflags = append(cflags, "/MD")
			}
		}
	case platform.Linux:
		if q.Musl {
			// musl >= 1.2.4 only exposes off64_t and friends with this
			cflags = append(cflags, "-D_LARGEFILE64_SOURCE")
		}
	}
	return cflags
}

// capabilityOwners maps every arg a capability switches on to that capability.
func capabilityOwners(table *config.CapabilityTable) map[string]string {
	owners := make(map[string]string)
	for _, name := range table.Names() {
		c, _ := table.Lookup(name)
		for arg, v := range c.Args {
			if b, ok := v.(bool); ok && b {
				if _, taken := owners[arg]; !taken {
					owners[arg] = name
				}
			}
		}
	}
	for arg, v := range table.GPU.Args {
		if b, ok := v.(bool); ok && b {
			owners[arg] = "gpu backends"
		}
	}
	return owners
}

// String describes the arguments for logs and the `args` command.
func (b *BuildArguments) String() string {
	return fmt.Sprintf("%d gn args, %d defines", len(b.Args), len(b.Defines))
}
