package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrInactiveParent = errors.New("parent is inactive")
	ErrInvalidRef     = errors.New("invalid reference")
	ErrValidation     = errors.New("validation failed")
	// ErrConflict means a concurrent transaction changed the record first.
	ErrConflict = errors.New("concurrent lifecycle change")
)
