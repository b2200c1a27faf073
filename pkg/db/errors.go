package db

import "errors"

// Error taxonomy surfaced by the store. Handlers map these to status codes;
// anything else is treated as a persistence failure.
var (
	ErrNotFound     = errors.New("file not found")
	ErrAccessDenied = errors.New("access denied")
	ErrValidation   = errors.New("invalid value")
)
