// Package binaries checks the artifacts a finished build produced and turns
// them into link metadata for the consuming build.
package binaries

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/executor"
	"github.com/qobs-build/skiabuild/internal/failure"
	"github.com/qobs-build/skiabuild/internal/platform"
	"github.com/qobs-build/skiabuild/internal/source"
)

const stage = "artifact collection"

// moduleLibrary is a static library built only when its capability is on.
type moduleLibrary struct {
	name       string
	capability string
	include    string // module directory under modules/, "" if none
}

// linkOrder lists every library dependents first; skia always comes last.
var linkOrder = []moduleLibrary{
	{name: "skottie", capability: "animation", include: "skottie"},
	{name: "sksg", capability: "animation", include: "sksg"},
	{name: "svg", capability: "svg", include: "svg"},
	{name: "skparagraph", capability: "textlayout", include: "skparagraph"},
	{name: "skshaper", capability: "textlayout", include: "skshaper"},
	{name: "skunicode", capability: "textlayout", include: "skunicode"},
	{name: "skia"},
}

// Libraries returns the static libraries a build with the given
// capabilities produces, in link order.
func Libraries(capabilities config.CapabilitySet) []string {
	var libs []string
	for _, lib := range linkOrder {
		if lib.capability == "" || capabilities.Has(lib.capability) {
			libs = append(libs, lib.name)
		}
	}
	return libs
}

// Configuration is everything a consumer needs to link against the build.
type Configuration struct {
	Key          string   `json:"key" yaml:"key"`
	Target       string   `json:"target" yaml:"target"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	OutputDir    string   `json:"output_dir" yaml:"output_dir"`
	SearchPaths  []string `json:"search_paths" yaml:"search_paths"`
	StaticLibs   []string `json:"static_libs" yaml:"static_libs"`
	DynamicLibs  []string `json:"dynamic_libs,omitempty" yaml:"dynamic_libs,omitempty"`
	Frameworks   []string `json:"frameworks,omitempty" yaml:"frameworks,omitempty"`
	IncludeDirs  []string `json:"include_dirs" yaml:"include_dirs"`
	Defines      []string `json:"defines,omitempty" yaml:"defines,omitempty"`
	Warnings     []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Collect turns a successful outcome into a Configuration. Any other outcome
// is returned as its error. Every missing or empty artifact is reported.
func Collect(outcome executor.Outcome, fcfg *source.FinalBuildConfiguration, defines []string) (*Configuration, error) {
	success, ok := outcome.(executor.Success)
	if !ok {
		if err := outcome.Err(); err != nil {
			return nil, err
		}
		return nil, failure.New(failure.ArtifactMissing, stage, fmt.Sprintf("unexpected build outcome %T", outcome))
	}

	libs := Libraries(fcfg.Capabilities)
	if problems := checkArtifacts(success.OutputDir, fcfg.Target, libs); problems.Len() > 0 {
		return nil, problems.Err(failure.ArtifactMissing, stage)
	}

	system := systemLibraries(fcfg.Target, fcfg.Capabilities)

	return &Configuration{
		Key:          fcfg.Key(),
		Target:       fcfg.Target.Triple(),
		Capabilities: fcfg.Capabilities.Names(),
		OutputDir:    success.OutputDir,
		SearchPaths:  []string{success.OutputDir},
		StaticLibs:   libs,
		DynamicLibs:  system.dylibs,
		Frameworks:   system.frameworks,
		IncludeDirs:  includeDirs(fcfg.SourceDir, fcfg.Capabilities),
		Defines:      slices.Clone(defines),
		Warnings:     slices.Clone(fcfg.Warnings),
	}, nil
}

func checkArtifacts(outDir string, target platform.Target, libs []string) *failure.Problems {
	problems := &failure.Problems{}
	for _, lib := range libs {
		path := filepath.Join(outDir, target.StaticLib(lib))
		stat, err := os.Stat(path)
		switch {
		case err != nil:
			problems.Add("expected artifact %s was not produced", path)
		case stat.IsDir():
			problems.Add("expected artifact %s is a directory", path)
		case stat.Size() == 0:
			problems.Add("expected artifact %s is empty", path)
		}
	}
	return problems
}

// includeDirs returns the source root (Skia headers are included as
// "include/core/..."), <source>/include when present, and the public include
// directories of enabled modules.
func includeDirs(sourceDir string, capabilities config.CapabilitySet) []string {
	dirs := []string{sourceDir}
	if stat, err := os.Stat(filepath.Join(sourceDir, "include")); err == nil && stat.IsDir() {
		dirs = append(dirs, filepath.Join(sourceDir, "include"))
	}

	var modules []string
	for _, lib := range linkOrder {
		if lib.include != "" && capabilities.Has(lib.capability) {
			modules = append(modules, lib.include)
		}
	}
	if len(modules) == 0 {
		return dirs
	}

	pattern := filepath.Join(sourceDir, "modules", "{"+strings.Join(modules, ",")+"}", "include")
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return dirs
	}
	slices.Sort(matches)
	for _, m := range matches {
		if stat, err := os.Stat(m); err == nil && stat.IsDir() {
			dirs = append(dirs, m)
		}
	}
	return dirs
}
