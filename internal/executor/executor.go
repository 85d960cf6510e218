// Package executor runs gn and ninja against a Skia source tree and reports
// the result as an Outcome.
package executor

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/qobs-build/skiabuild/internal/config"
	"github.com/qobs-build/skiabuild/internal/gnargs"
	"github.com/qobs-build/skiabuild/internal/msg"
	"github.com/qobs-build/skiabuild/internal/toolchain"
	"golang.org/x/sync/errgroup"
)

// Dirs are the two directories a build touches.
type Dirs struct {
	Source string // gn runs here
	Output string // gn and ninja write here; never cleaned
}

type Executor struct {
	Logger hclog.Logger
	Jobs   int       // ninja -j; 0 leaves the choice to ninja
	Output io.Writer // live tool output, msg.Output when nil
}

func New(logger hclog.Logger, jobs int) *Executor {
	return &Executor{Logger: logger, Jobs: jobs}
}

func toolEnv(tool string) string {
	if tool == toolchain.Ninja {
		return config.EnvOfflineNinjaCommand
	}
	return config.EnvOfflineGnCommand
}

// Run generates and compiles. It does not retry and never removes anything
// from dirs.Output, so repeated runs are incremental.
func (e *Executor) Run(ctx context.Context, args *gnargs.BuildArguments, tools toolchain.Paths, dirs Dirs) Outcome {
	logger := e.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if missing := tools.Missing(); len(missing) > 0 {
		return ToolMissing{Tools: missing, Rejected: tools.Rejected}
	}

	if err := os.MkdirAll(dirs.Output, 0o755); err != nil {
		return GenerationFailed{ExitCode: -1, Diagnostic: err.Error()}
	}

	lock, holder, err := AcquireLock(dirs.Output)
	if errors.Is(err, ErrLocked) {
		return Locked{OutputDir: dirs.Output, Holder: holder}
	} else if err != nil {
		return GenerationFailed{ExitCode: -1, Diagnostic: err.Error()}
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release output directory lock", "dir", dirs.Output, "error", err)
		}
	}()

	state := &BuildState{
		Args:    args.ArgsGn(),
		Defines: args.Defines,
		Gn:      tools.Gn,
		Ninja:   tools.Ninja,
	}
	e.logStateChange(logger, dirs.Output, state)

	msg.Stage("Generating", "%s (%s)", dirs.Output, args)
	code, diagnostic, err := e.runTool(ctx, logger, dirs.Source, tools.Gn,
		"gen", dirs.Output, "--args="+args.Flatten())
	if toolVanished(err, tools.Gn) {
		return ToolMissing{Tools: []string{toolchain.Gn}}
	}
	if err != nil || code != 0 {
		return GenerationFailed{ExitCode: code, Diagnostic: diagnosticOf(diagnostic, err)}
	}

	if err := saveBuildState(dirs.Output, state); err != nil {
		logger.Warn("failed to record build state", "dir", dirs.Output, "error", err)
	}

	ninjaArgs := []string{"-C", dirs.Output}
	if e.Jobs > 0 {
		ninjaArgs = append(ninjaArgs, "-j", strconv.Itoa(e.Jobs))
	}
	msg.Stage("Compiling", "skia")
	code, diagnostic, err = e.runTool(ctx, logger, dirs.Source, tools.Ninja, ninjaArgs...)
	if toolVanished(err, tools.Ninja) {
		return ToolMissing{Tools: []string{toolchain.Ninja}}
	}
	if err != nil || code != 0 {
		return CompileFailed{ExitCode: code, Diagnostic: diagnosticOf(diagnostic, err)}
	}

	return Success{OutputDir: dirs.Output}
}

func (e *Executor) logStateChange(logger hclog.Logger, outDir string, state *BuildState) {
	prev, err := loadBuildState(outDir)
	if err != nil {
		logger.Warn("ignoring unreadable build state", "dir", outDir, "error", err)
		return
	}
	if prev == nil {
		logger.Debug("fresh output directory", "dir", outDir)
		return
	}
	if prev.Gn != state.Gn || prev.Ninja != state.Ninja {
		logger.Info("tool paths changed", "gn", state.Gn, "ninja", state.Ninja)
	}
	if diff := argsDiff(prev.Args, state.Args); len(diff) > 0 {
		logger.Info("gn args changed since last build", "dir", outDir, "changes", diff)
	}
}

// runTool runs path with args inside dir, streaming its output live and
// returning the exit code and the tail of the combined output. err is set
// only when the process could not be started or waited for.
func (e *Executor) runTool(ctx context.Context, logger hclog.Logger, dir, path string, args ...string) (int, string, error) {
	logger.Debug("running", "tool", path, "args", args, "dir", dir)

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, "", err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, "", err
	}

	out := e.Output
	if out == nil {
		out = msg.Output
	}
	live := &syncWriter{w: &msg.IndentWriter{Indent: "    ", W: out}}
	tail := &tailBuffer{limit: DiagnosticLimit}
	sink := io.MultiWriter(live, tail)

	if err := cmd.Start(); err != nil {
		return -1, "", err
	}

	// both pipes must be drained before Wait closes them
	var eg errgroup.Group
	eg.Go(func() error {
		_, err := io.Copy(sink, stdout)
		return err
	})
	eg.Go(func() error {
		_, err := io.Copy(sink, stderr)
		return err
	})
	copyErr := eg.Wait()

	waitErr := cmd.Wait()
	if copyErr != nil {
		logger.Debug("output copy ended early", "tool", path, "error", copyErr)
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		return 0, tail.String(), nil
	case errors.As(waitErr, &exitErr):
		code := exitErr.ExitCode()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return code, tail.String(), ctxErr
		}
		return code, tail.String(), nil
	default:
		return -1, tail.String(), waitErr
	}
}

// toolVanished reports whether a resolved tool disappeared before it could
// be started.
func toolVanished(err error, path string) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) && pathErr.Path == path && errors.Is(err, fs.ErrNotExist)
}

func diagnosticOf(diagnostic string, err error) string {
	if err == nil {
		return diagnostic
	}
	if diagnostic == "" {
		return err.Error()
	}
	return diagnostic + "\n" + err.Error()
}
