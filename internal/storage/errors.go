package storage

import "errors"

// Common storage errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidKey   = errors.New("invalid key")
	ErrInvalidValue = errors.New("invalid value")
)
