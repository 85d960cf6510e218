package executor

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	lockFilename  = ".skiabuild.lock"
	stateFilename = "skiabuild_state.json"
)

var ErrLocked = errors.New("output directory is locked")

// BuildState records what the last successful generation in an output
// directory was run with.
type BuildState struct {
	Args    string   `json:"args"` // args.gn rendering
	Defines []string `json:"defines,omitempty"`
	Gn      string   `json:"gn"`
	Ninja   string   `json:"ninja"`
}

func loadBuildState(outDir string) (*BuildState, error) {
	f, err := os.Open(filepath.Join(outDir, stateFilename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var state BuildState
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&state); err != nil {
		return nil, fmt.Errorf("%s: %w", stateFilename, err)
	}
	return &state, nil
}

func saveBuildState(outDir string, state *BuildState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, stateFilename), data, 0o644)
}

// argsDiff returns the changed lines between two args.gn renderings,
// prefixed with "- " and "+ ".
func argsDiff(before, after string) []string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []string
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		default:
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			out = append(out, prefix+line)
		}
	}
	return out
}

// DirLock is an exclusive advisory lock on an output directory. Run holds
// it for the whole build; other writers of the directory take it too.
type DirLock struct {
	f *os.File
}

// AcquireLock locks outDir, which must exist. When another build holds it,
// ErrLocked is returned together with the holder recorded in the lock file.
func AcquireLock(outDir string) (*DirLock, string, error) {
	f, err := os.OpenFile(filepath.Join(outDir, lockFilename), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, "", err
	}
	if err := lockFile(f); err != nil {
		holder := ""
		if data, readErr := os.ReadFile(f.Name()); readErr == nil {
			holder = strings.TrimSpace(string(data))
		}
		f.Close()
		return nil, holder, err
	}

	// the lock file itself stays; only its contents identify the holder
	_ = f.Truncate(0)
	fmt.Fprintf(f, "pid %d, invocation %s\n", os.Getpid(), uuid.NewString())
	return &DirLock{f: f}, "", nil
}

func (l *DirLock) Release() error {
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}
