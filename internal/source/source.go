// Package source decides between an offline (caller supplied) and a full
// (managed checkout) Skia source tree and records the platform quirks later
// stages need.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/failure"
)

const stage = "source resolution"

// CheckoutDir is the managed checkout location relative to the working directory.
const CheckoutDir = "skia"

type Mode int

const (
	Full Mode = iota
	Offline
)

func (m Mode) String() string {
	if m == Offline {
		return "offline"
	}
	return "full"
}

// FinalBuildConfiguration is a BuildConfiguration plus the resolved
// filesystem facts. It is read-only once returned.
type FinalBuildConfiguration struct {
	*config.BuildConfiguration
	SourceDir string
	Mode      Mode
	Quirks    Quirks
}

type Resolver struct {
	Logger hclog.Logger
	Probe  *Probe
}

func NewResolver(logger hclog.Logger) *Resolver {
	return &Resolver{Logger: logger, Probe: DefaultProbe()}
}

// Resolve picks the source tree. A non-empty offlineDir selects offline mode.
func (r *Resolver) Resolve(cfg *config.BuildConfiguration, offlineDir string) (*FinalBuildConfiguration, error) {
	logger := r.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	var (
		dir  string
		mode Mode
		err  error
	)
	if offlineDir != "" {
		mode = Offline
		dir, err = checkOfflineDir(offlineDir)
	} else {
		mode = Full
		dir, err = checkCheckout(filepath.Join(cfg.WorkDir, CheckoutDir))
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("resolved source tree", "mode", mode, "dir", dir)

	probe := r.Probe
	if probe == nil {
		probe = DefaultProbe()
	}
	quirks := probe.Detect(cfg.Target, cfg.QuirkEnv)
	logger.Debug("detected platform quirks", "target", cfg.Target, "quirks", hclog.Fmt("%+v", quirks))

	return &FinalBuildConfiguration{
		BuildConfiguration: cfg,
		SourceDir:          dir,
		Mode:               mode,
		Quirks:             quirks,
	}, nil
}

// checkOfflineDir trusts the tree's contents; it only has to exist and not be empty.
func checkOfflineDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", failure.Wrap(failure.SourceMissing, stage, err, fmt.Sprintf("offline source directory %s", dir))
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", failure.New(failure.SourceMissing, stage,
				fmt.Sprintf("offline source directory %s (%s) does not exist", abs, config.EnvOfflineSourceDir))
		}
		return "", failure.Wrap(failure.SourceMissing, stage, err,
			fmt.Sprintf("offline source directory %s (%s) is not a readable directory", abs, config.EnvOfflineSourceDir))
	}
	if len(entries) == 0 {
		return "", failure.New(failure.SourceMissing, stage,
			fmt.Sprintf("offline source directory %s (%s) is empty", abs, config.EnvOfflineSourceDir))
	}
	return abs, nil
}

func checkCheckout(dir string) (string, error) {
	stat, err := os.Stat(dir)
	if err != nil || !stat.IsDir() {
		return "", failure.New(failure.SourceMissing, stage,
			fmt.Sprintf("no Skia checkout at %s; run `skiabuild fetch` or set %s", dir, config.EnvOfflineSourceDir))
	}
	if _, err := os.Stat(filepath.Join(dir, "BUILD.gn")); err != nil {
		return "", failure.New(failure.SourceMissing, stage,
			fmt.Sprintf("%s does not look like a Skia checkout (BUILD.gn missing); run `skiabuild fetch`", dir))
	}
	return dir, nil
}
