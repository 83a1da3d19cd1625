package custom_errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoRecipients      = errors.New("no recipients provided")
	ErrNoValidRecipients = errors.New("no valid email addresses found")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrConflict          = errors.New("conflict")
)

// InvalidReferenceError is returned by the submitter when the user or template
// of a batch does not exist. It is fatal to the whole batch.
type InvalidReferenceError struct {
	Entity string // "user" or "template"
	ID     int64
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid %s: %s with id %d does not exist", e.Entity, e.Entity, e.ID)
}

func (e *InvalidReferenceError) Unwrap() error {
	return ErrInvalidReference
}

// ReferenceViolationError is returned by the log store when a foreign id is
// missing at insert time. Field names the offending column.
type ReferenceViolationError struct {
	Field string // "user_id" or "template_id"
	ID    int64
}

func (e *ReferenceViolationError) Error() string {
	return fmt.Sprintf("reference violation: %s %d does not exist", e.Field, e.ID)
}

func (e *ReferenceViolationError) Unwrap() error {
	return ErrInvalidReference
}

// ParseError reports an upload that could not be read in its detected format.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s file: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DeliveryError wraps a transport failure for one delivery log.
type DeliveryError struct {
	LogID int64
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery of log %d failed: %v", e.LogID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps a batch-level error to the status code the web layer returns.
func HTTPStatus(err error) int {
	var parseErr *ParseError
	var validationErr *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNoRecipients),
		errors.Is(err, ErrNoValidRecipients),
		errors.Is(err, ErrInvalidReference),
		errors.As(err, &parseErr),
		errors.As(err, &validationErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
