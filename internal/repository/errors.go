package repository

import "errors"

var (
	ErrNotFound = errors.New("repository: record not found")

	// ErrConflict is returned on unique constraint violations
	ErrConflict = errors.New("repository: conflicting record")

	ErrLimitReached = errors.New("repository: usage limit reached")
)
