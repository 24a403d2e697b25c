package entity

import "errors"

// Domain errors for the entity package.
var (
	// ErrEntityNotFound is returned when an entity ID is not registered.
	ErrEntityNotFound = errors.New("entity: not found")

	// ErrDuplicateEntity is returned when registering an ID twice.
	ErrDuplicateEntity = errors.New("entity: already registered")

	// ErrInvalidEntity is returned for a nil entity or one with an empty ID.
	ErrInvalidEntity = errors.New("entity: invalid")

	// ErrRegistryClosed is returned by Add after Close.
	ErrRegistryClosed = errors.New("entity: registry closed")
)
