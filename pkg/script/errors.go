package script

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// ErrorKind classifies script failures.
type ErrorKind string

const (
	ErrorKindSyntax   ErrorKind = "syntax"
	ErrorKindRuntime  ErrorKind = "runtime"
	ErrorKindTimeout  ErrorKind = "timeout"
	ErrorKindSecurity ErrorKind = "security"
	ErrorKindInternal ErrorKind = "internal"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("script pool is closed")

// Error is a failure raised while compiling or running a script.
type Error struct {
	Kind    ErrorKind
	Message string
	Stack   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("script %s error: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrap converts goja failures into *Error.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return &Error{Kind: ErrorKindRuntime, Message: exc.Value().String(), Stack: exc.String()}
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &Error{Kind: ErrorKindSyntax, Message: syntax.Error()}
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return &Error{Kind: ErrorKindTimeout, Message: fmt.Sprint(interrupted.Value())}
	}
	return &Error{Kind: ErrorKindInternal, Message: err.Error()}
}
