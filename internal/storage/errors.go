package storage

import "errors"

// Common storage errors
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyRecorded = errors.New("deployment already recorded")
	ErrDisabled        = errors.New("history store is disabled")
	ErrInvalidCursor   = errors.New("invalid pagination cursor")
)
