package points

import (
	"fmt"

	"questboard/pkg/errutil"
)

// InsufficientError is returned when an operation needs more points than the
// user's current balance. It carries both numbers so callers can tell the
// user exactly how far short they are.
type InsufficientError struct {
	Required int64 `json:"required"`
	Balance  int64 `json:"balance"`
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient points: required=%d balance=%d", e.Required, e.Balance)
}

func (e *InsufficientError) Status() errutil.CoreStatus {
	return errutil.StatusBadRequest
}
