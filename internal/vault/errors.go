package vault

import (
	"errors"
	"fmt"
)

// UserError is an operation failure caused by user input or selection, as
// opposed to a system fault. Handlers surface Message verbatim as a
// notification.
type UserError struct {
	Op      string
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *UserError) Unwrap() error {
	return e.Err
}

func userErrorf(op string, format string, args ...any) *UserError {
	return &UserError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// AsUserError extracts a UserError from an error chain.
func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
