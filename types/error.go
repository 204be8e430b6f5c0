package types

import (
	"github.com/juju/errors"
)

var (
	_ error = &FatalError{}
)

// NewFatalError marks an error that must not be retried by the caller,
// such as a charset the ack codec cannot encode with.
func NewFatalError(otherErr error) error {
	return &FatalError{baseError: newBaseErr(otherErr)}
}

func NewFatalErrorf(format string, args ...interface{}) error {
	return NewFatalError(errors.Errorf(format, args...))
}

// IsFatal reports whether err, or anything it wraps, is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func newBaseErr(otherErr error) *baseError {
	return &baseError{unwrapErr(otherErr)}
}

func unwrapErr(err error) error {
	if err == nil {
		return nil
	}
	if ue, ok := err.(wrappedErr); ok {
		return unwrapErr(ue.UnwrapLocal())
	}
	return err
}

type wrappedErr interface {
	UnwrapLocal() error
}

type baseError struct {
	BaseErr error
}

func (e *baseError) Error() string {
	return e.BaseErr.Error()
}

func (e *baseError) UnwrapLocal() error {
	return e.BaseErr
}

func (e *baseError) Unwrap() error {
	return e.BaseErr
}

type FatalError struct {
	*baseError
}
