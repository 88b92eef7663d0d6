package errorsx

import (
	"errors"
	"fmt"
)

// Error carries a reason code alongside its cause. The message is the
// cause's message; the code is for callers that branch on failure kind.
type Error struct {
	Cause error
	Code  ReasonCode
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Code)
	}
	return e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Wrap tags err with reason. The innermost reason wins, so an error that
// already carries one is returned unchanged. nil stays nil.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if _, ok := find(err); ok {
		return err
	}
	return &Error{Cause: err, Code: reason}
}

// Wrapf formats a new error with fmt.Errorf (so %w works) and tags it.
func Wrapf(reason ReasonCode, format string, args ...any) error {
	return Wrap(fmt.Errorf(format, args...), reason)
}

// Reason returns the reason code carried anywhere in err's chain.
func Reason(err error) ReasonCode {
	if e, ok := find(err); ok {
		return e.Code
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

func find(err error) (*Error, bool) {
	var e *Error
	if err == nil || !errors.As(err, &e) {
		return nil, false
	}
	return e, true
}
