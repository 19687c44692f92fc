package domain

import "errors"

var (
	// ErrEmptyText is returned when task text is empty after trimming.
	ErrEmptyText = errors.New("task text is empty")
	// ErrInvalidDate is returned for malformed or impossible calendar dates.
	ErrInvalidDate = errors.New("invalid due date")
	// ErrTaskNotFound indicates that the referenced task does not exist for the owner.
	ErrTaskNotFound = errors.New("task not found")
	// ErrBatchTooLarge is returned when a batch exceeds what the store can commit atomically.
	ErrBatchTooLarge = errors.New("batch too large for a single atomic commit")
)

// IsValidation reports whether err is a local validation failure, as opposed to a
// store failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyText) || errors.Is(err, ErrInvalidDate)
}
