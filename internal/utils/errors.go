package utils

import "fmt"

// AppError carries the failing operation alongside a message suitable for
// logs, e.g. "valkey.connect: ping failed: dial tcp ...". It unwraps to the
// underlying error so errors.Is still sees transport sentinels.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError wraps err with the operation name and a short message.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}
