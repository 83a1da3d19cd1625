package custom_errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidReferenceError_Is(t *testing.T) {
	err := fmt.Errorf("submit: %w", &InvalidReferenceError{Entity: "template", ID: 9})
	assert.True(t, errors.Is(err, ErrInvalidReference))
	assert.Contains(t, err.Error(), "template with id 9 does not exist")
}

func TestReferenceViolationError_As(t *testing.T) {
	err := fmt.Errorf("create log: %w", &ReferenceViolationError{Field: "user_id", ID: 3})

	var rv *ReferenceViolationError
	assert.True(t, errors.As(err, &rv))
	assert.Equal(t, "user_id", rv.Field)
	assert.True(t, errors.Is(err, ErrInvalidReference))
}

func TestParseError_Unwrap(t *testing.T) {
	inner := errors.New("zip: not a valid zip file")
	err := &ParseError{Format: "xlsx", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "failed to parse xlsx file: zip: not a valid zip file", err.Error())
}

func TestValidationError(t *testing.T) {
	v := &ValidationError{}
	assert.False(t, v.HasError())
	assert.Equal(t, "", v.Error())

	v.Add(nil)
	assert.False(t, v.HasError())

	v.Add(ErrNoRecipients)
	v.Add(errors.New("worker concurrency must be positive"))
	assert.True(t, v.HasError())
	assert.ErrorIs(t, v, ErrNoRecipients)
	assert.Contains(t, v.Error(), "worker concurrency must be positive")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"no recipients", ErrNoRecipients, http.StatusBadRequest},
		{"no valid recipients", fmt.Errorf("batch: %w", ErrNoValidRecipients), http.StatusBadRequest},
		{"invalid reference", &InvalidReferenceError{Entity: "user", ID: 1}, http.StatusBadRequest},
		{"parse", &ParseError{Format: "csv", Err: errors.New("bad quote")}, http.StatusBadRequest},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"conflict", fmt.Errorf("log 2: %w", ErrConflict), http.StatusConflict},
		{"other", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
