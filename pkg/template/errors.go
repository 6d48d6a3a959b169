package template

import (
	"errors"
	"fmt"
)

var (
	ErrSyntax         = errors.New("template syntax error")
	ErrRender         = errors.New("template render error")
	ErrBudgetExceeded = errors.New("template step budget exceeded")
	ErrTimeout        = errors.New("template render timed out")
	ErrOutputTooLarge = errors.New("template output too large")
)

// Error describes a template failure. Kind is one of the sentinel errors
// above so callers can branch with errors.Is.
type Error struct {
	Kind    error
	Line    int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Line > 0 {
		return fmt.Sprintf("%v: line %d: %s", e.Kind, e.Line, msg)
	}
	if msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, msg)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Cause}
}

func syntaxError(line int, format string, args ...interface{}) *Error {
	return &Error{Kind: ErrSyntax, Line: line, Message: fmt.Sprintf(format, args...)}
}
