package executor

import (
	"fmt"

	"github.com/qobs-build/skiabuild/internal/failure"
)

const (
	stageGenerate = "gn generation"
	stageCompile  = "ninja compilation"
	stageExecute  = "build execution"
)

// Outcome is the result of one Run. The concrete types are Success,
// GenerationFailed, CompileFailed, ToolMissing and Locked.
type Outcome interface {
	// Err maps the outcome onto the failure taxonomy; nil for Success.
	Err() error
	outcome()
}

// Success means ninja finished and OutputDir holds the artifacts.
type Success struct {
	OutputDir string
}

// GenerationFailed means gn rejected the arguments or the source tree.
type GenerationFailed struct {
	ExitCode   int
	Diagnostic string
}

// CompileFailed means ninja exited unsuccessfully.
type CompileFailed struct {
	ExitCode   int
	Diagnostic string
}

// ToolMissing means required tools were never resolved; nothing ran.
// Rejected carries explicit paths that were given but unusable.
type ToolMissing struct {
	Tools    []string
	Rejected map[string]string
}

// Locked means another build holds the output directory.
type Locked struct {
	OutputDir string
	Holder    string
}

func (Success) outcome()          {}
func (GenerationFailed) outcome() {}
func (CompileFailed) outcome()    {}
func (ToolMissing) outcome()      {}
func (Locked) outcome()           {}

func (Success) Err() error { return nil }

func (o GenerationFailed) Err() error {
	return failure.New(failure.Generation, stageGenerate,
		exitProblem("gn", o.ExitCode), diagnosticProblem(o.Diagnostic))
}

func (o CompileFailed) Err() error {
	return failure.New(failure.Compile, stageCompile,
		exitProblem("ninja", o.ExitCode), diagnosticProblem(o.Diagnostic))
}

func (o ToolMissing) Err() error {
	problems := make([]string, 0, len(o.Tools))
	for _, tool := range o.Tools {
		if path, ok := o.Rejected[tool]; ok {
			problems = append(problems, fmt.Sprintf("%s path %s (from --%s or %s) is not an executable file",
				tool, path, tool, toolEnv(tool)))
			continue
		}
		problems = append(problems, fmt.Sprintf("%s executable not found; put it on PATH or set %s", tool, toolEnv(tool)))
	}
	return failure.New(failure.ToolchainMissing, stageExecute, problems...)
}

func (o Locked) Err() error {
	problem := fmt.Sprintf("output directory %s is in use by another build", o.OutputDir)
	if o.Holder != "" {
		problem += " (" + o.Holder + ")"
	}
	return failure.New(failure.Configuration, stageExecute, problem)
}

func exitProblem(tool string, code int) string {
	if code < 0 {
		return tool + " did not run to completion"
	}
	return fmt.Sprintf("%s exited with status %d", tool, code)
}

func diagnosticProblem(diagnostic string) string {
	if diagnostic == "" {
		return "no output was captured"
	}
	return "last output:\n" + diagnostic
}
