package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed or missing input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrConstraint marks a business rule or reference violation.
	ErrConstraint = errors.New("constraint violated")
	// ErrConcurrencyConflict marks a lock timeout, deadlock or serialization failure.
	// Callers may retry the whole request.
	ErrConcurrencyConflict = errors.New("concurrent modification, retry the request")
	// ErrStorage indicates the database is unavailable.
	ErrStorage = errors.New("storage unavailable")
)

// ValidationError carries a field-level validation message and, optionally,
// the domain sentinel behind it.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Validation builds a ValidationError for field.
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// InvalidField builds a ValidationError for field from a domain sentinel.
func InvalidField(field string, cause error) *ValidationError {
	return &ValidationError{Field: field, Message: cause.Error(), Err: cause}
}

// ValidationErrors aggregates several field errors, e.g. from DTO validation.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ErrValidation.Error()
	}
	if len(v) == 1 {
		return v[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", v[0].Error(), len(v)-1)
}

func (v ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(v)+1)
	out = append(out, ErrValidation)
	for _, e := range v {
		out = append(out, e)
	}
	return out
}

// Fields returns the errors keyed by field name.
func (v ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(v))
	for _, e := range v {
		out[e.Field] = e.Message
	}
	return out
}

// ConstraintError reports a violated business rule against a specific entity.
type ConstraintError struct {
	Entity string
	ID     int64
	Err    error
	Detail string
}

func (e *ConstraintError) Error() string {
	msg := e.Entity
	if e.ID != 0 {
		msg = fmt.Sprintf("%s %d", e.Entity, e.ID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	return msg
}

func (e *ConstraintError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConstraint}
	}
	return []error{ErrConstraint, e.Err}
}

// MissingReference builds a ConstraintError for an entity that does not exist.
func MissingReference(entity string, id int64) *ConstraintError {
	return &ConstraintError{Entity: entity, ID: id, Err: ErrNotFound}
}
