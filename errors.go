package ember

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorType is the error taxonomy described in the error handling
// design: every error the engine surfaces to the host belongs to
// exactly one of these classes.
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorParsing
	ErrorCompilation
	ErrorRuntime
	ErrorTimeout
	ErrorAllocation
	ErrorUser
)

func (t ErrorType) String() string {
	switch t {
	case ErrorParsing:
		return "Parsing"
	case ErrorCompilation:
		return "Compilation"
	case ErrorRuntime:
		return "Runtime"
	case ErrorTimeout:
		return "Timeout"
	case ErrorAllocation:
		return "Allocation"
	case ErrorUser:
		return "User"
	default:
		return "None"
	}
}

// maxErrorMessage bounds an EngineError's Message, matching the
// source's 255-byte cap on error messages.
const maxErrorMessage = 255

// EngineError is the single error representation the host sees,
// carrying a classification, a bounded message, the source position
// where it was raised and an optional traceback captured at raise
// time. It is the Go analogue of the teacher's ParsingError, widened
// to cover every error class in the taxonomy instead of just parse
// failures.
type EngineError struct {
	Type      ErrorType
	Message   string
	Pos       Position
	Traceback *Traceback
	Cause     error
}

func (e *EngineError) Error() string {
	if e.Pos.Line == 0 && e.Pos.Column == 0 {
		return fmt.Sprintf("%s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s error: %s @ %s", e.Type, e.Message, e.Pos)
}

// Unwrap exposes Cause to errors.Is/errors.As and to pkg/errors'
// Cause() walking.
func (e *EngineError) Unwrap() error { return e.Cause }

func newEngineError(t ErrorType, pos Position, format string, args ...any) *EngineError {
	msg := fmt.Sprintf(format, args...)
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage]
	}
	return &EngineError{Type: t, Message: msg, Pos: pos}
}

func newParseError(pos Position, format string, args ...any) *EngineError {
	return newEngineError(ErrorParsing, pos, format, args...)
}

// newCompileError wraps cause (when non-nil) with pkg/errors so that
// the compiler's own recursive descent over the AST preserves the
// original failure through several call frames, the same way the
// corpus's own language engines (gad-lang-gad, sentra) do instead of
// losing context behind a bare fmt.Errorf.
func newCompileError(pos Position, cause error, format string, args ...any) *EngineError {
	e := newEngineError(ErrorCompilation, pos, format, args...)
	if cause != nil {
		e.Cause = errors.Wrap(cause, e.Message)
	}
	return e
}

func newRuntimeError(pos Position, format string, args ...any) *EngineError {
	return newEngineError(ErrorRuntime, pos, format, args...)
}

func newTimeoutError(pos Position) *EngineError {
	return newEngineError(ErrorTimeout, pos, "execution time limit exceeded")
}

func newAllocationError(pos Position) *EngineError {
	return newEngineError(ErrorAllocation, pos, "allocation failed")
}

func newUserError(pos Position, format string, args ...any) *EngineError {
	return newEngineError(ErrorUser, pos, format, args...)
}

// maxErrorQueue caps the number of errors the engine keeps: "preserve
// the first failure" means anything past the cap is silently dropped.
const maxErrorQueue = 16

// ErrorList accumulates EngineErrors up to maxErrorQueue, matching
// §7's "error queue is capped at 16" rule.
type ErrorList struct {
	errs []*EngineError
}

func (l *ErrorList) Add(e *EngineError) {
	if len(l.errs) >= maxErrorQueue {
		return
	}
	l.errs = append(l.errs, e)
}

func (l *ErrorList) Count() int             { return len(l.errs) }
func (l *ErrorList) Errors() []*EngineError { return l.errs }
func (l *ErrorList) Reset()                 { l.errs = l.errs[:0] }

func (l *ErrorList) First() *EngineError {
	if len(l.errs) == 0 {
		return nil
	}
	return l.errs[0]
}
