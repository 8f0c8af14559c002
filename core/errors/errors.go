// Package errors holds the reader's typed errors. Each type unwraps to its
// cause or, failing that, to one of the sentinels below, so callers classify
// with errors.Is and only reach for errors.As when they need the details.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: a book, chapter, verse or mapping does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput: the caller supplied something unusable.
	ErrInvalidInput = errors.New("invalid input")
	// ErrQuotaExceeded: the preference store is full.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrUnavailable: the preference store cannot be used at all.
	ErrUnavailable = errors.New("storage unavailable")
)

// cause returns err when set, else the fallback sentinel.
func cause(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string // "book", "chapter", "preference", ...
	ID       string
	Err      error
}

// NewNotFound reports that resource id does not exist.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return cause(e.Err, ErrNotFound) }

// ValidationError rejects a field's value.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

// NewValidation rejects value for field with a human-readable message.
func NewValidation(field, value, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return cause(e.Err, ErrInvalidInput) }

// IOError is a failed read, write or fetch of Path.
type IOError struct {
	Operation string
	Path      string
	Err       error
}

// NewIO wraps err from operation on path.
func NewIO(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

func (e *IOError) Error() string {
	target := e.Operation
	if e.Path != "" {
		target += " " + e.Path
	}
	return fmt.Sprintf("failed to %s: %v", target, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ParseError is malformed input in a given format ("JSON", "reference").
// Without a cause it counts as invalid input.
type ParseError struct {
	Format  string
	Path    string
	Message string
	Err     error
}

// NewParse reports malformed format input at path.
func NewParse(format, path, message string, err error) *ParseError {
	return &ParseError{Format: format, Path: path, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	where := e.Format
	if e.Path != "" {
		where += " at " + e.Path
	}
	return fmt.Sprintf("failed to parse %s: %s", where, e.Message)
}

func (e *ParseError) Unwrap() error { return cause(e.Err, ErrInvalidInput) }

// StorageError is a preference store read or write that did not complete.
type StorageError struct {
	Backend string
	Key     string
	Err     error // ErrUnavailable when nil
}

// NewStorage wraps err from backend while handling key.
func NewStorage(backend, key string, err error) *StorageError {
	return &StorageError{Backend: backend, Key: key, Err: err}
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s store: %v", e.Backend, e.Unwrap())
	}
	return fmt.Sprintf("%s store: key %s: %v", e.Backend, e.Key, e.Unwrap())
}

func (e *StorageError) Unwrap() error { return cause(e.Err, ErrUnavailable) }

// IsStorageFailure reports whether err means the store could not complete
// the operation, being full or unavailable.
func IsStorageFailure(err error) bool {
	var se *StorageError
	return errors.As(err, &se) || errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrUnavailable)
}
