package performance

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("personal performance not found")
	ErrAnnualTargetNotFound = errors.New("annual target not found")
	ErrQuarterNotFound      = errors.New("quarterly target not found")
	ErrObjectiveNotFound    = errors.New("objective not found")
	ErrKPINotFound          = errors.New("kpi not found")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrNotEditable          = errors.New("quarterly target is not editable")
	ErrOutsideWindow        = errors.New("outside the review period window")
	ErrBusy                 = errors.New("another operation is in progress for this quarter")
	ErrForbidden            = errors.New("forbidden")
)

type FieldIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is returned before any persistence call is made.
type ValidationError struct {
	Issues []FieldIssue
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Issues: []FieldIssue{{Field: field, Reason: reason}}}
}

func (e *ValidationError) add(field, reason string) {
	e.Issues = append(e.Issues, FieldIssue{Field: field, Reason: reason})
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// TransportError wraps a failed call to the store or the notifier.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func invalidTransition(op string, phase Phase, status Status) error {
	return fmt.Errorf("%w: cannot %s %s in status %s", ErrInvalidTransition, op, phase, status)
}
