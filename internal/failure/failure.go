// Package failure defines the error kinds that abort a packaging run.
//
// Every step of the pipeline wraps its error in an *Error carrying one of the
// sentinel kinds below, so callers can branch with errors.Is on the kind while
// still reaching the underlying cause (os.ErrNotExist, *exec.ExitError, ...).
package failure

import (
	"errors"
	"fmt"
)

var (
	ErrSourceControl = errors.New("source control error")
	ErrDependency    = errors.New("dependency error")
	ErrNotFound      = errors.New("not found")
	ErrWrite         = errors.New("write error")
	ErrVerify        = errors.New("verification error")
)

// Error is a fatal failure of one pipeline step.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	s := e.Kind.Error()
	if e.Op != "" {
		s = e.Op + ": " + s
	}

	if e.Msg != "" {
		s += ": " + e.Msg
	}

	if e.Err != nil {
		s += ": " + e.Err.Error()
	}

	return s
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// New returns an *Error of the given kind.
func New(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind wrapping err. A nil err yields nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// Exit statuses reported by the CLI for each kind
const (
	ExitGeneric       = 1
	ExitSourceControl = 10
	ExitDependency    = 11
	ExitNotFound      = 12
	ExitWrite         = 13
	ExitVerify        = 14
)

// ExitCode maps err to a non-zero process exit status. A nil err maps to 0.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrSourceControl):
		return ExitSourceControl
	case errors.Is(err, ErrDependency):
		return ExitDependency
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	case errors.Is(err, ErrWrite):
		return ExitWrite
	case errors.Is(err, ErrVerify):
		return ExitVerify
	default:
		return ExitGeneric
	}
}
