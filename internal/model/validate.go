package model

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/viewshare/internal/idgen"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// maxViewStateLen bounds the encoded view state. It lives in a URL, and row
// changes carry it twice in a NOTIFY payload capped at 8000 bytes.
const maxViewStateLen = 3072

// ValidateSession checks a Session for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the session is valid.
func ValidateSession(s *Session) error {
	var ve ValidationError

	if strings.TrimSpace(s.ID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "sessionId", Message: "is required"})
	} else if !idgen.Valid(s.ID) {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "sessionId",
			Message: fmt.Sprintf("must be at most %d letters, digits, '-' or '_'", idgen.MaxLen),
		})
	}
	if strings.TrimSpace(s.OwnerUserID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "ownerUserId", Message: "is required"})
	}
	if !s.Mode.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "mode",
			Message: fmt.Sprintf("invalid value %q", s.Mode),
		})
	}
	if !s.Visibility.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "visibility",
			Message: fmt.Sprintf("invalid value %q", s.Visibility),
		})
	}
	if len(s.ViewState) > maxViewStateLen {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "urlEncodedViewState",
			Message: fmt.Sprintf("must be %d bytes or fewer", maxViewStateLen),
		})
	} else if _, err := ParseViewState(s.ViewState); err != nil {
		ve.Errors = append(ve.Errors, FieldError{Field: "urlEncodedViewState", Message: "is not a url-encoded single-valued view state"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
