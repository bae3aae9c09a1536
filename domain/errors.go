package domain

import (
	"errors"
	"strings"
)

var (
	// ErrUnauthenticated is returned when no identity token was supplied.
	ErrUnauthenticated = errors.New("x-username header is required")
	// ErrNotFound covers both absent entities and entities owned by someone else.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation, e.g. a taken username.
	ErrConflict = errors.New("conflict")
)

// NotFoundError names the entity that failed the existence+ownership lookup.
// It matches ErrNotFound with errors.Is.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any write when input is malformed.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation error: " + strings.Join(parts, "; ")
}
