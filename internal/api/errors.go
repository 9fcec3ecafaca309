package api

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("requested item not found")
var ErrConflict = errors.New("item already exists or conflict")
var ErrUnauthenticated = errors.New("authentication required or invalid credentials")

// FieldErrors maps a request field name to a human-readable validation message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	if len(fe) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, fe[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidationError wraps a FieldErrors map so callers can surface per-field
// messages while still matching with errors.As.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return e.Fields.Error()
}

func NewValidationError(fields FieldErrors) error {
	return &ValidationError{Fields: fields}
}
