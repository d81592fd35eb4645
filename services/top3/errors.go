package top3

import (
	"fmt"

	"questboard/pkg/errutil"
)

// AlreadySetError signals that a selection already exists for the
// (user, date) pair. This operation never overwrites.
type AlreadySetError struct {
	Date string `json:"date"`
}

func (e *AlreadySetError) Error() string {
	return fmt.Sprintf("top3 already set for %s", e.Date)
}

func (e *AlreadySetError) Status() errutil.CoreStatus {
	return errutil.StatusConflict
}
