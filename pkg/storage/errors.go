package storage

import "errors"

var (
	// ErrNotFound is returned when a transcript does not exist, was
	// deleted, or belongs to another tenant.
	ErrNotFound = errors.New("transcript not found")

	// ErrConflict is returned when a transcript with the given ID is
	// already stored.
	ErrConflict = errors.New("transcript already exists")
)
