package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAmountOverflow is returned when a stored amount does not fit in uint64.
	ErrAmountOverflow = errors.New("amount overflows uint64")
)
