package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FieldErrors maps draft field names to validation messages, matching the
// backend's 422 payload shape. It implements error so it can flow through
// the normal step failure path while keeping per-field detail intact.
type FieldErrors map[string][]string

func (f FieldErrors) Error() string {
	if len(f) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs := f[field]
		if len(msgs) == 0 {
			parts = append(parts, field)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, "; ")))
	}
	return strings.Join(parts, ", ")
}

// Add appends a message for a field.
func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Fields returns the affected field names in sorted order.
func (f FieldErrors) Fields() []string {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// AsFieldErrors unwraps err looking for FieldErrors.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// ValidationError tags field errors with the validation sentinel so
// FailureStatus routes the job to review.
func ValidationError(step, operation string, fields FieldErrors) error {
	return fmt.Errorf("%w: %s: %w", ErrValidation, buildDetail(step, operation, ""), fields)
}
