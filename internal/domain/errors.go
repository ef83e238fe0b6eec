package domain

import "errors"

var (
	// ErrNotFound is returned when a block, children list or text id is absent.
	// The enclosing transaction is aborted before anything is committed.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation is returned when a request has no sensible fallback,
	// e.g. attaching a block under its own descendant.
	ErrInvalidOperation = errors.New("invalid operation")
)
