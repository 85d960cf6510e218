// Package config turns environment variables, command line options and the
// optional Skia.toml into an immutable BuildConfiguration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/qobs-build/skiabuild/internal/failure"
	"github.com/qobs-build/skiabuild/internal/platform"
)

const stage = "configuration"

// CapabilitySet is a sorted, duplicate-free set of canonical capability names.
type CapabilitySet struct {
	names []string
}

func NewCapabilitySet(names ...string) CapabilitySet {
	s := slices.Clone(names)
	slices.Sort(s)
	return CapabilitySet{names: slices.Compact(s)}
}

func (s CapabilitySet) Has(name string) bool {
	_, found := slices.BinarySearch(s.names, name)
	return found
}

// Names returns the capabilities in sorted order.
func (s CapabilitySet) Names() []string { return slices.Clone(s.names) }

func (s CapabilitySet) Len() int { return len(s.names) }

func (s CapabilitySet) String() string {
	if len(s.names) == 0 {
		return "(none)"
	}
	return strings.Join(s.names, ",")
}

type Profile struct {
	Name     string
	Debug    bool
	Official bool
}

type Compilers struct {
	CC  string
	CXX string
}

// BuildConfiguration is created once per invocation and never modified.
type BuildConfiguration struct {
	Target       platform.Target
	Capabilities CapabilitySet
	Profile      Profile

	WorkDir          string
	OutDir           string
	OfflineSourceDir string
	GnCommand        string
	NinjaCommand     string

	ExtraArgs      []string       // raw SKIA_GN_ARGS entries, validated during synthesis
	ProjectArgs    map[string]any // [gn] args from Skia.toml
	ProjectDefines []string
	NinjaJobs      int
	BinariesURL    string
	Compilers      Compilers
	QuirkEnv       map[string]string

	Warnings []string
}

// Offline reports whether an offline source directory was supplied.
func (c *BuildConfiguration) Offline() bool {
	return c.OfflineSourceDir != ""
}

// Key is a short stable hash identifying the produced binaries. Two
// configurations with the same key produce interchangeable artifacts.
func (c *BuildConfiguration) Key() string {
	h := sha256.New()
	fmt.Fprintf(h, "target=%s\n", c.Target.Triple())
	fmt.Fprintf(h, "profile=%s debug=%t official=%t\n", c.Profile.Name, c.Profile.Debug, c.Profile.Official)
	fmt.Fprintf(h, "capabilities=%s\n", strings.Join(c.Capabilities.names, ","))
	for _, a := range c.ExtraArgs {
		fmt.Fprintf(h, "extra=%s\n", a)
	}
	keys := make([]string, 0, len(c.ProjectArgs))
	for k := range c.ProjectArgs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "arg=%s:%v\n", k, c.ProjectArgs[k])
	}
	for _, d := range c.ProjectDefines {
		fmt.Fprintf(h, "define=%s\n", d)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Options are the command line inputs. Non-empty fields take precedence
// over the corresponding environment variables.
type Options struct {
	WorkDir           string
	ProjectFile       string
	Target            string
	Profile           string
	Features          []string
	NoDefaultFeatures bool
	OutDir            string
	OfflineSourceDir  string
	GnCommand         string
	NinjaCommand      string
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// splitFeatures accepts comma and whitespace separated lists.
func splitFeatures(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

// normalizeFeatures maps requested names onto canonical capability names.
// Deprecated names are replaced and produce a warning; unknown names are
// reported as problems.
func normalizeFeatures(table *CapabilityTable, requested []string, problems *failure.Problems) (names, warnings []string) {
	warned := make(map[string]bool)
	for _, raw := range requested {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, ok := table.Lookup(name); ok {
			names = append(names, name)
			continue
		}
		if dep, ok := table.Deprecated[name]; ok {
			names = append(names, dep.Replacement...)
			if !warned[name] {
				warnings = append(warnings, dep.Message)
				warned[name] = true
			}
			continue
		}
		problems.Add("unknown capability %q (known capabilities: %s)", raw, strings.Join(table.Names(), ", "))
	}
	return names, warnings
}

// Resolve builds the configuration. Every invalid input is collected and
// reported in a single failure.Configuration error.
func Resolve(env Environ, opts Options) (*BuildConfiguration, error) {
	var problems failure.Problems
	table := Capabilities()

	workDir, err := filepath.Abs(firstNonEmpty(opts.WorkDir, "."))
	if err != nil {
		return nil, failure.Wrap(failure.Configuration, stage, err, "cannot resolve working directory")
	}

	projectFile := firstNonEmpty(opts.ProjectFile, filepath.Join(workDir, ProjectFilename))

	// the target is needed before Skia.toml can be evaluated, so Skia.toml's
	// own [package] target only applies when neither flag nor env sets one
	targetName := firstNonEmpty(opts.Target, env.Get(EnvTarget))
	target := platform.Host()
	if targetName != "" {
		if t, err := platform.Parse(targetName); err != nil {
			problems.Add("%v", err)
		} else {
			target = t
		}
	}

	requested := slices.Concat(splitFeatures(env.Get(EnvFeatures)), opts.Features)
	project, err := LoadProject(projectFile, NewConfigEnv(target, env, requested))
	if err != nil {
		problems.Add("%v", err)
		project = DefaultProject()
	}

	if targetName == "" && project.Package.Target != "" {
		if t, err := platform.Parse(project.Package.Target); err != nil {
			problems.Add("%s: %v", ProjectFilename, err)
		} else {
			target = t
		}
	}
	if !target.Known() {
		problems.Add("unsupported target %s", target)
	}

	var features []string
	if !opts.NoDefaultFeatures {
		features = append(features, project.Package.DefaultFeatures...)
	}
	features = append(features, project.Features.Enable...)
	features = slices.DeleteFunc(features, func(f string) bool {
		return slices.Contains(project.Features.Disable, f)
	})
	features = append(features, requested...)

	names, warnings := normalizeFeatures(table, features, &problems)

	profileName := firstNonEmpty(opts.Profile, env.Get(EnvProfile), "release")
	prof, ok := project.Profile[profileName]
	if !ok {
		problems.Add("unknown profile %q, known profiles: %s", profileName, strings.Join(project.Profiles(), ", "))
	}

	jobs := 0
	if s := env.Get(EnvNinjaJobs); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			problems.Add("%s must be a positive integer, got %q", EnvNinjaJobs, s)
		} else {
			jobs = n
		}
	}

	var extraArgs []string
	for _, a := range strings.Split(env.Get(EnvGnArgs), ";") {
		if a = strings.TrimSpace(a); a != "" {
			extraArgs = append(extraArgs, a)
		}
	}

	if err := problems.Err(failure.Configuration, stage); err != nil {
		return nil, err
	}

	capabilities := NewCapabilitySet(names...)

	outDir := firstNonEmpty(opts.OutDir, env.Get(EnvOutDir))
	if outDir == "" {
		outDir = filepath.Join(workDir, "build", "skia", target.Triple()+"-"+profileName)
	} else if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(workDir, outDir)
	}

	quirkEnv := make(map[string]string)
	for _, k := range quirkVars {
		if v := env.Get(k); v != "" {
			quirkEnv[k] = v
		}
	}

	projectArgs := make(map[string]any, len(project.Gn.Args))
	for k, v := range project.Gn.Args {
		projectArgs[k] = v
	}

	return &BuildConfiguration{
		Target:       target,
		Capabilities: capabilities,
		Profile: Profile{
			Name:     profileName,
			Debug:    prof.Debug,
			Official: prof.Official,
		},
		WorkDir:          workDir,
		OutDir:           filepath.Clean(outDir),
		OfflineSourceDir: firstNonEmpty(opts.OfflineSourceDir, env.Get(EnvOfflineSourceDir)),
		GnCommand:        firstNonEmpty(opts.GnCommand, env.Get(EnvOfflineGnCommand)),
		NinjaCommand:     firstNonEmpty(opts.NinjaCommand, env.Get(EnvOfflineNinjaCommand)),
		ExtraArgs:        extraArgs,
		ProjectArgs:      projectArgs,
		ProjectDefines:   slices.Clone(project.Gn.Defines),
		NinjaJobs:        jobs,
		BinariesURL:      env.Get(EnvBinariesURL),
		Compilers: Compilers{
			CC:  env.Get("CC"),
			CXX: env.Get("CXX"),
		},
		QuirkEnv: quirkEnv,
		Warnings: warnings,
	}, nil
}
