package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input to a ledger operation.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrNotFound marks an unknown account, group or document reference.
	ErrNotFound = errors.New("accounting: not found")
	// ErrConfiguration marks a required system account that cannot be resolved.
	ErrConfiguration = errors.New("accounting: configuration error")
	// ErrInvalidState marks an operation that the current lifecycle state forbids.
	ErrInvalidState = errors.New("accounting: invalid state")
	// ErrStorage marks a transaction or commit failure in the underlying store.
	ErrStorage = errors.New("accounting: storage failure")
	// ErrSourceConflict indicates a primary posting group already exists for the source.
	ErrSourceConflict = errors.New("accounting: source already posted")
)

// ValidationError describes a rejected field. Err optionally carries the cause,
// e.g. a NotFoundError for an unknown account id.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "accounting: validation failed: " + e.Reason
	}
	return fmt.Sprintf("accounting: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("accounting: %s %s not found", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConfigurationError reports a system account role without a usable account.
type ConfigurationError struct {
	Role   string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("accounting: account role %q: %s", e.Role, e.Reason)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfiguration}
	}
	return []error{ErrConfiguration, e.Err}
}

// InvalidStateError reports a lifecycle violation such as a second reversal.
type InvalidStateError struct {
	Entity string
	Key    string
	Reason string
	Err    error
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("accounting: %s %s: %s", e.Entity, e.Key, e.Reason)
}

func (e *InvalidStateError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidState}
	}
	return []error{ErrInvalidState, e.Err}
}

// StorageError wraps a failure surfaced by the database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("accounting: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound builds a NotFoundError.
func NotFound(entity string, key any) error {
	return &NotFoundError{Entity: entity, Key: fmt.Sprint(key)}
}

// InvalidState builds an InvalidStateError.
func InvalidState(entity string, key any, reason string) error {
	return &InvalidStateError{Entity: entity, Key: fmt.Sprint(key), Reason: reason}
}

// Storage wraps err as a StorageError unless it already belongs to the taxonomy.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTyped(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsTyped reports whether err already carries one of the ledger error kinds.
func IsTyped(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrSourceConflict)
}
