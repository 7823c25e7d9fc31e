package domain

import "errors"

var (
	// ErrValidation marks caller errors rejected before a record is created.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups that matched no delivery record.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks state transitions rejected by the current record state.
	ErrConflict = errors.New("conflict")
)
