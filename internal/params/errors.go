package params

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaLoad is returned (wrapped) when the parameter source is malformed.
	ErrSchemaLoad = errors.New("invalid parameter schema")
	// ErrUnknownParameter is returned (wrapped) for names outside the catalog.
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrTypeMismatch is returned (wrapped) when a value cannot be coerced.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrConstraintViolation is returned (wrapped) when a value fails its bound check.
	ErrConstraintViolation = errors.New("constraint violation")
)

// SchemaLoadError describes a malformed schema entry.
type SchemaLoadError struct {
	Param  string
	Reason string
}

func (e *SchemaLoadError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%v: %s", ErrSchemaLoad, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrSchemaLoad, e.Param, e.Reason)
}

func (e *SchemaLoadError) Unwrap() error { return ErrSchemaLoad }

// UnknownParameterError is returned for a name the schema does not define.
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("%v %q", ErrUnknownParameter, e.Name)
}

func (e *UnknownParameterError) Unwrap() error { return ErrUnknownParameter }

// TypeMismatchError is returned when a value cannot be converted to the
// declared type of its parameter.
type TypeMismatchError struct {
	Name  string
	Type  Type
	Value any
}

func (e *TypeMismatchError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%v: cannot use %v (%T) as %s", ErrTypeMismatch, e.Value, e.Value, e.Type)
	}
	return fmt.Sprintf("%v: %s: cannot use %v (%T) as %s", ErrTypeMismatch, e.Name, e.Value, e.Value, e.Type)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// ConstraintViolationError carries the human-readable reason a value was rejected.
type ConstraintViolationError struct {
	Name   string
	Value  any
	Reason string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("%v: %s=%v: %s", ErrConstraintViolation, e.Name, e.Value, e.Reason)
}

func (e *ConstraintViolationError) Unwrap() error { return ErrConstraintViolation }
