// Package apperr holds the error taxonomy shared by the store, the session
// tracker and the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// NonFieldErrors is the key for validation messages that do not belong to a single field.
const NonFieldErrors = "non_field_errors"

// ErrNotLoggedIn is returned when a logout ping arrives for a machine with no active session.
var ErrNotLoggedIn = errors.New("machine not logged in")

// ValidationError reports malformed input, uniqueness conflicts and UID schema mismatches.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidation creates a ValidationError with a single message.
func NewValidation(field, format string, args ...any) *ValidationError {
	e := &ValidationError{Fields: map[string][]string{}}
	e.Add(field, fmt.Sprintf(format, args...))
	return e
}

// Add appends a message for field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Empty reports whether no messages were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// IntegrityError reports stored data that violates an invariant, such as
// event log arrays whose lengths disagree with the timepoints.
type IntegrityError struct {
	Msg string
}

func (e *IntegrityError) Error() string { return "integrity error: " + e.Msg }

// NotFoundError reports a missing record, identified by resource and key.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find %s %s", e.Resource, e.Key)
}

// NotFound creates a NotFoundError.
func NotFound(resource string, key any) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: fmt.Sprint(key)}
}

// ExhaustedError reports a bounded retry loop that ran out of attempts.
type ExhaustedError struct {
	Attempts int
	What     string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("tried %d %s and couldn't find any unique ones", e.Attempts, e.What)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
