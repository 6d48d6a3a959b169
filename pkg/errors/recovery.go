package errors

import (
	"fmt"
	"runtime/debug"
)

const detailPanic = "panic"

// PanicError carries a recovered panic value and the stack it was raised
// on. Panics are never retried.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func (e *PanicError) IsFatal() bool {
	return true
}

// RecoverPanic turns a value returned by recover into an internal error.
// It returns nil when nothing was recovered.
func RecoverPanic(r interface{}) error {
	if r == nil {
		return nil
	}
	return ErrInternal.
		WithCause(&PanicError{Value: r, Stack: debug.Stack()}).
		WithDetail(detailPanic, true)
}
