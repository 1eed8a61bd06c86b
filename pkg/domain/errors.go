package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is against the typed errors below.
var (
	ErrPersistence = errors.New("persistence failed")
	ErrValidation  = errors.New("validation failed")
)

// PersistenceError reports a failed read or write against the storage backend.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrPersistence, e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is makes every PersistenceError match ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// ValidationError reports a malformed form payload or import record.
type ValidationError struct {
	ID     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.ID != "" && e.Field != "":
		return fmt.Sprintf("snapshot %s: %s %s", e.ID, e.Field, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	case e.ID != "":
		return fmt.Sprintf("snapshot %s: %s", e.ID, e.Reason)
	default:
		return e.Reason
	}
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ErrNotFound is reported by adapters when an operation targets an unknown snapshot id.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("snapshot %s not found", e.ID)
}
