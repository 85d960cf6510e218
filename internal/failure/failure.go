// Package failure classifies the ways a Skia build can go wrong.
//
// Kinds split into two families. Rejected kinds mean skiabuild refused the
// inputs (fix feature flags or paths); external kinds mean a native tool was
// missing or failed (fix the toolchain or environment).
package failure

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	Configuration Kind = iota + 1
	ToolchainMissing
	SourceMissing
	Generation
	Compile
	ArtifactMissing
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration error"
	case ToolchainMissing:
		return "toolchain missing"
	case SourceMissing:
		return "source missing"
	case Generation:
		return "generation failed"
	case Compile:
		return "compilation failed"
	case ArtifactMissing:
		return "artifact missing"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// External reports whether the failure originates in an external tool
// rather than in skiabuild's own validation.
func (k Kind) External() bool {
	return k == ToolchainMissing || k == Generation || k == Compile
}

type Error struct {
	Kind     Kind
	Stage    string
	Problems []string
	Err      error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(" in ")
	sb.WriteString(e.Stage)
	if e.Kind.External() {
		sb.WriteString(" (external tool failed)")
	} else {
		sb.WriteString(" (rejected by skiabuild)")
	}

	switch len(e.Problems) {
	case 0:
	case 1:
		sb.WriteString(": ")
		sb.WriteString(e.Problems[0])
	default:
		fmt.Fprintf(&sb, ": %d problems", len(e.Problems))
		for _, p := range e.Problems {
			sb.WriteString("\n  - ")
			sb.WriteString(p)
		}
	}

	if e.Err != nil {
		sb.WriteString("\n")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, stage string, problems ...string) *Error {
	return &Error{Kind: kind, Stage: stage, Problems: problems}
}

func Wrap(kind Kind, stage string, err error, problems ...string) *Error {
	return &Error{Kind: kind, Stage: stage, Problems: problems, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// Problems collects problem strings and turns them into a single error.
type Problems struct {
	list []string
}

func (p *Problems) Add(format string, a ...any) {
	p.list = append(p.list, fmt.Sprintf(format, a...))
}

func (p *Problems) Len() int { return len(p.list) }

func (p *Problems) List() []string { return p.list }

// Err returns nil when nothing was collected.
func (p *Problems) Err(kind Kind, stage string) error {
	if len(p.list) == 0 {
		return nil
	}
	return New(kind, stage, p.list...)
}
