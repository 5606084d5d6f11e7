package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks operations that target an id absent from its collection.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest marks malformed identifiers, rejected patches, and
	// violated referential preconditions.
	ErrInvalidRequest = errors.New("invalid request")
)

// NotFoundError reports a missing entity. It matches ErrNotFound under errors.Is.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Unwrap exposes the sentinel.
func (e NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidRequestError carries the reason a request was rejected. It matches
// ErrInvalidRequest under errors.Is.
type InvalidRequestError struct {
	Reason string
}

func (e InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// Unwrap exposes the sentinel.
func (e InvalidRequestError) Unwrap() error { return ErrInvalidRequest }

// Invalidf builds an InvalidRequestError from a format string.
func Invalidf(format string, args ...any) error {
	return InvalidRequestError{Reason: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError for the given entity kind and id.
func NotFound(entity EntityType, id string) error {
	return NotFoundError{Entity: entity, ID: id}
}
