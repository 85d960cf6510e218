package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/qobs-build/skiabuild/internal/failure"
	"github.com/qobs-build/skiabuild/internal/gnargs"
	"github.com/qobs-build/skiabuild/internal/toolchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func script(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testArgs() *gnargs.BuildArguments {
	return &gnargs.BuildArguments{
		Args: []gnargs.Arg{
			{Name: "is_official_build", Value: gnargs.Bool(true)},
			{Name: "target_os", Value: gnargs.String("linux")},
		},
		Defines: []string{"SK_GL"},
	}
}

type fixture struct {
	dirs  Dirs
	tools string
	out   *bytes.Buffer
	exec  *Executor
}

func newFixture(t *testing.T) *fixture {
	root := t.TempDir()
	f := &fixture{
		dirs: Dirs{
			Source: filepath.Join(root, "skia"),
			Output: filepath.Join(root, "out", "release"),
		},
		tools: filepath.Join(root, "tools"),
		out:   &bytes.Buffer{},
	}
	require.NoError(t, os.MkdirAll(f.dirs.Source, 0o755))
	require.NoError(t, os.MkdirAll(f.tools, 0o755))
	f.exec = &Executor{Jobs: 4, Output: f.out}
	return f
}

const recordingGn = `printf '%s\n' "$@" > "$PWD/gn.invocation"
echo "Done. Made 42 targets from 17 files"`

const recordingNinja = `printf '%s\n' "$@" > "$PWD/ninja.invocation"
echo "[1/1] LINK libskia.a"`

func TestRunSuccess(t *testing.T) {
	f := newFixture(t)
	tools := toolchain.Paths{
		Gn:    script(t, f.tools, "gn", recordingGn),
		Ninja: script(t, f.tools, "ninja", recordingNinja),
	}

	outcome := f.exec.Run(context.Background(), testArgs(), tools, f.dirs)
	require.Equal(t, Success{OutputDir: f.dirs.Output}, outcome)
	assert.NoError(t, outcome.Err())

	gn, err := os.ReadFile(filepath.Join(f.dirs.Source, "gn.invocation"))
	require.NoError(t, err)
	assert.Equal(t, "gen\n"+f.dirs.Output+"\n--args=is_official_build=true target_os=\"linux\"\n", string(gn))

	ninja, err := os.ReadFile(filepath.Join(f.dirs.Source, "ninja.invocation"))
	require.NoError(t, err)
	assert.Equal(t, "-C\n"+f.dirs.Output+"\n-j\n4\n", string(ninja))

	assert.Contains(t, f.out.String(), "    Done. Made 42 targets")
	assert.Contains(t, f.out.String(), "    [1/1] LINK libskia.a")

	state, err := loadBuildState(f.dirs.Output)
	require.NoError(t, err)
	assert.Equal(t, testArgs().ArgsGn(), state.Args)
	assert.Equal(t, tools.Gn, state.Gn)
}

func TestRunCompileFailureKeepsOutput(t *testing.T) {
	f := newFixture(t)
	tools := toolchain.Paths{
		Gn: script(t, f.tools, "gn", `mkdir -p "$2" && touch "$2/build.ninja"`),
		Ninja: script(t, f.tools, "ninja", `echo "[1/2] CXX SkCanvas.o"
echo "FAILED: obj/src/core/SkCanvas.o" >&2
echo "SkCanvas.cpp:12: error: unknown type name" >&2
exit 2`),
	}
	marker := filepath.Join(f.dirs.Output, "partial.o")
	require.NoError(t, os.MkdirAll(f.dirs.Output, 0o755))
	require.NoError(t, os.WriteFile(marker, []byte("obj"), 0o644))

	outcome := f.exec.Run(context.Background(), testArgs(), tools, f.dirs)
	failed, ok := outcome.(CompileFailed)
	require.True(t, ok, "got %#v", outcome)
	assert.Equal(t, 2, failed.ExitCode)
	assert.Contains(t, failed.Diagnostic, "SkCanvas.cpp:12: error: unknown type name")

	err := outcome.Err()
	assert.Equal(t, failure.Compile, failure.KindOf(err))
	assert.Contains(t, err.Error(), "ninja exited with status 2")

	assert.FileExists(t, marker)
	assert.FileExists(t, filepath.Join(f.dirs.Output, "build.ninja"))
}

func TestRunGenerationFailure(t *testing.T) {
	f := newFixture(t)
	tools := toolchain.Paths{
		Gn:    script(t, f.tools, "gn", `echo "ERROR Unknown build argument skia_bogus" >&2; exit 1`),
		Ninja: script(t, f.tools, "ninja", `touch "$PWD/ninja.ran"`),
	}

	outcome := f.exec.Run(context.Background(), testArgs(), tools, f.dirs)
	failed, ok := outcome.(GenerationFailed)
	require.True(t, ok, "got %#v", outcome)
	assert.Equal(t, 1, failed.ExitCode)
	assert.Equal(t, "ERROR Unknown build argument skia_bogus", failed.Diagnostic)
	assert.Equal(t, failure.Generation, failure.KindOf(outcome.Err()))
	assert.NoFileExists(t, filepath.Join(f.dirs.Source, "ninja.ran"))
}

func TestRunToolMissing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix paths")
	}
	f := newFixture(t)

	outcome := f.exec.Run(context.Background(), testArgs(), toolchain.Paths{Ninja: "/usr/bin/ninja"}, f.dirs)
	assert.Equal(t, ToolMissing{Tools: []string{"gn"}}, outcome)
	assert.Equal(t, failure.ToolchainMissing, failure.KindOf(outcome.Err()))
	assert.Contains(t, outcome.Err().Error(), "SKIA_OFFLINE_GN_COMMAND")
	assert.NoDirExists(t, f.dirs.Output)

	outcome = f.exec.Run(context.Background(), testArgs(), toolchain.Paths{
		Gn:    filepath.Join(f.tools, "vanished-gn"),
		Ninja: "/usr/bin/ninja",
	}, f.dirs)
	assert.Equal(t, ToolMissing{Tools: []string{"gn"}}, outcome)
}

func TestRunReportsEveryMissingTool(t *testing.T) {
	f := newFixture(t)

	tools := toolchain.Paths{Rejected: map[string]string{"ninja": "/opt/missing/ninja"}}
	outcome := f.exec.Run(context.Background(), testArgs(), tools, f.dirs)
	require.Equal(t, ToolMissing{Tools: []string{"gn", "ninja"}, Rejected: tools.Rejected}, outcome)

	var fe *failure.Error
	require.True(t, errors.As(outcome.Err(), &fe))
	require.Len(t, fe.Problems, 2)
	assert.Contains(t, fe.Problems[0], "gn executable not found")
	assert.Contains(t, fe.Problems[1], "/opt/missing/ninja")
	assert.Contains(t, fe.Problems[1], "SKIA_OFFLINE_NINJA_COMMAND")
	assert.NoDirExists(t, f.dirs.Output)
}

func TestRunLocked(t *testing.T) {
	f := newFixture(t)
	tools := toolchain.Paths{
		Gn:    script(t, f.tools, "gn", recordingGn),
		Ninja: script(t, f.tools, "ninja", recordingNinja),
	}
	require.NoError(t, os.MkdirAll(f.dirs.Output, 0o755))

	held, _, err := AcquireLock(f.dirs.Output)
	require.NoError(t, err)

	outcome := f.exec.Run(context.Background(), testArgs(), tools, f.dirs)
	locked, ok := outcome.(Locked)
	require.True(t, ok, "got %#v", outcome)
	assert.Contains(t, locked.Holder, "invocation")
	assert.Equal(t, failure.Configuration, failure.KindOf(outcome.Err()))
	assert.NoFileExists(t, filepath.Join(f.dirs.Source, "gn.invocation"))

	require.NoError(t, held.Release())
	assert.Equal(t, Success{OutputDir: f.dirs.Output}, f.exec.Run(context.Background(), testArgs(), tools, f.dirs))
}

func TestRunCanceled(t *testing.T) {
	f := newFixture(t)
	tools := toolchain.Paths{
		Gn:    script(t, f.tools, "gn", `sleep 10`),
		Ninja: script(t, f.tools, "ninja", recordingNinja),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := f.exec.Run(ctx, testArgs(), tools, f.dirs)
	failed, ok := outcome.(GenerationFailed)
	require.True(t, ok, "got %#v", outcome)
	assert.Contains(t, failed.Diagnostic, context.Canceled.Error())
}

func TestArgsDiff(t *testing.T) {
	before := "a = true\nb = \"x\"\nc = false\n"
	after := "a = true\nb = \"y\"\nc = false\nd = true\n"

	assert.Equal(t, []string{`- b = "x"`, `+ b = "y"`, "+ d = true"}, argsDiff(before, after))
	assert.Empty(t, argsDiff(before, before))
}

func TestTailBufferKeepsEnd(t *testing.T) {
	tail := &tailBuffer{limit: 8}
	_, _ = tail.Write([]byte("0123456789"))
	_, _ = tail.Write([]byte("ab\n"))
	assert.Equal(t, "56789ab", tail.String())

	big := &tailBuffer{limit: DiagnosticLimit}
	_, _ = big.Write([]byte(strings.Repeat("x", DiagnosticLimit) + "end"))
	assert.Len(t, big.String(), DiagnosticLimit)
	assert.True(t, strings.HasSuffix(big.String(), "end"))
}

func TestOutcomeErrors(t *testing.T) {
	var fe *failure.Error
	require.True(t, errors.As(GenerationFailed{ExitCode: -1}.Err(), &fe))
	assert.Equal(t, []string{"gn did not run to completion", "no output was captured"}, fe.Problems)
	assert.True(t, fe.Kind.External())
}
