// Package toolchain finds the gn and ninja executables.
package toolchain

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/go-hclog"
	"github.com/qobs-build/skiabuild/internal/platform"
)

const (
	Gn    = "gn"
	Ninja = "ninja"
)

// Paths holds resolved absolute tool paths. An empty field means the tool
// could not be found; that is not an error until a stage needs the tool.
type Paths struct {
	Gn    string
	Ninja string

	// Rejected maps a tool to the explicit path that was given for it but is
	// not an executable file. Such a tool stays unresolved.
	Rejected map[string]string
}

// Missing returns the names of the unresolved tools, gn first.
func (p Paths) Missing() []string {
	var missing []string
	if p.Gn == "" {
		missing = append(missing, Gn)
	}
	if p.Ninja == "" {
		missing = append(missing, Ninja)
	}
	return missing
}

// LookPathFunc searches the executable search path, like exec.LookPath.
type LookPathFunc func(file string) (string, error)

var errNotExecutable = errors.New("not an executable file")

// Locator resolves tools in the order: explicit override, search path,
// unresolved. A bad explicit override leaves the tool unresolved rather than
// falling through to the search path.
type Locator struct {
	LookPath LookPathFunc
	GOOS     string
	Logger   hclog.Logger
}

func NewLocator(logger hclog.Logger) *Locator {
	return &Locator{
		LookPath: exec.LookPath,
		GOOS:     runtime.GOOS,
		Logger:   logger,
	}
}

// Locate resolves both tools. explicit may carry user supplied paths.
func (l *Locator) Locate(explicit Paths) Paths {
	var p Paths
	p.Gn = l.find(&p, Gn, explicit.Gn)
	p.Ninja = l.find(&p, Ninja, explicit.Ninja)
	return p
}

func (l *Locator) find(p *Paths, tool, override string) string {
	logger := l.logger().With("tool", tool)
	if override != "" {
		path, err := checkExecutable(override)
		if err == nil {
			logger.Debug("using explicit path", "path", path)
			return path
		}
		logger.Warn("explicit tool path is not usable", "path", override, "error", err)
		if p.Rejected == nil {
			p.Rejected = make(map[string]string)
		}
		p.Rejected[tool] = override
		return ""
	}

	lookPath := l.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(platform.Exe(tool, l.GOOS))
	if err == nil {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		logger.Debug("found on PATH", "path", path)
		return path
	}

	logger.Debug("unresolved")
	return ""
}

func (l *Locator) logger() hclog.Logger {
	if l.Logger == nil {
		return hclog.NewNullLogger()
	}
	return l.Logger
}

// WithFallback fills unresolved slots with the copies Skia's bin/fetch-gn and
// bin/fetch-ninja scripts leave inside a checkout.
// Tools whose explicit path was rejected are left alone.
func (p Paths) WithFallback(sourceDir, goos string) Paths {
	if p.Gn == "" && p.Rejected[Gn] == "" {
		if path, err := checkExecutable(filepath.Join(sourceDir, "bin", platform.Exe(Gn, goos))); err == nil {
			p.Gn = path
		}
	}
	if p.Ninja == "" && p.Rejected[Ninja] == "" {
		if path, err := checkExecutable(filepath.Join(sourceDir, "third_party", "ninja", platform.Exe(Ninja, goos))); err == nil {
			p.Ninja = path
		}
	}
	return p
}

func checkExecutable(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	stat, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if stat.IsDir() {
		return "", errNotExecutable
	}
	if runtime.GOOS != "windows" && stat.Mode().Perm()&0o111 == 0 {
		return "", errNotExecutable
	}
	return abs, nil
}
