package repository

import "errors"

var (
	// ErrAlreadyExists is returned when a conditional create loses to an
	// existing item with the same key.
	ErrAlreadyExists = errors.New("item already exists")
	// ErrConditionFailed is returned when a conditional update finds the
	// item no longer in the expected state.
	ErrConditionFailed = errors.New("conditional update failed")
)
