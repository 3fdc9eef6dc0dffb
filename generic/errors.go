/*
errors.go - Centralized error types for the adjudication engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure the engine reports is a deterministic consequence of its
  input; none of them is transient, so none of them should be retried
  except ErrConcurrentModification raised by the stores.

ERROR CATEGORIES:
  1. Filing errors     - malformed input, surfaced to the filer
  2. Data errors       - not enough clock data to classify ("N/A")
  3. Business rules    - duplicate, exceeds candidate, invalid approval
  4. Lifecycle errors  - decision on a closed request
  5. Store errors      - lookups and optimistic concurrency

USAGE:
  Callers test with errors.Is against the sentinels and use errors.As to
  read details from the structured variants:

    if errors.Is(err, generic.ErrExceedsCandidate) {
        var ex *generic.ExceedsCandidateError
        errors.As(err, &ex)
        fmt.Println(ex.Candidate)
    }

SEE ALSO:
  - approval.go: Raises ErrAlreadyFinalized / ErrValidation
  - overtime/adjudicator.go: Raises the overtime business-rule errors
  - api/errors.go: Maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed filing input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrIncompleteData is returned when neither clock-in nor clock-out is
	// present. Reporting renders it as "N/A", it is not a hard failure.
	ErrIncompleteData = errors.New("incomplete clock data")

	// ErrNoCandidateMinutes is returned when overtime is filed against an
	// entry that has no overtime-candidate minutes.
	ErrNoCandidateMinutes = errors.New("no overtime candidate minutes")

	// ErrDuplicateOpenRequest is returned when an entry already has an open
	// (or approved) overtime request.
	ErrDuplicateOpenRequest = errors.New("time entry already has an active overtime request")

	// ErrExceedsCandidate is returned when requested minutes exceed the
	// classified overtime-candidate minutes.
	ErrExceedsCandidate = errors.New("requested minutes exceed overtime candidate minutes")

	// ErrInvalidApproval is returned when approved minutes fall outside
	// [0, requestedMinutes].
	ErrInvalidApproval = errors.New("invalid approved minutes")

	// ErrAlreadyFinalized is returned for a decision on a terminal request.
	ErrAlreadyFinalized = errors.New("request already finalized")

	// ErrNotApprover is returned when the acting user is not a named
	// approver for the role being decided.
	ErrNotApprover = errors.New("actor is not an approver for this role")

	// ErrClockEventExists is returned when a second clock event arrives for
	// a direction already recorded. Corrections supersede the entry instead.
	ErrClockEventExists = errors.New("clock event already recorded")

	// ErrDuplicateEntry is returned when an employee-day already has a time
	// entry. Changes to that day go through a correction.
	ErrDuplicateEntry = errors.New("time entry already exists for this employee-day")

	// ErrEntrySuperseded is returned when a corrected entry is corrected again
	// or has overtime filed on it. Use the latest correction instead.
	ErrEntrySuperseded = errors.New("time entry has been superseded by a correction")

	// ErrNotOwner is returned when an authenticated actor files on behalf of
	// another employee.
	ErrNotOwner = errors.New("actor cannot file for another employee")

	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects field errors for one filing.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when it holds at least one field error, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ToMap flattens field errors for API responses. Later messages for the
// same field win.
func (e *ValidationError) ToMap() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Field] = f.Message
	}
	return out
}

// Invalid builds a single-field ValidationError.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// IncompleteDataError names the entry that could not be classified.
type IncompleteDataError struct {
	TimeEntryID TimeEntryID
}

func (e *IncompleteDataError) Error() string {
	return fmt.Sprintf("incomplete clock data for time entry %s: no clock-in or clock-out", e.TimeEntryID)
}

func (e *IncompleteDataError) Unwrap() error { return ErrIncompleteData }

// ExceedsCandidateError provides details about an over-sized filing.
type ExceedsCandidateError struct {
	Requested int
	Candidate int
}

func (e *ExceedsCandidateError) Error() string {
	return fmt.Sprintf("requested %d minutes but only %d overtime candidate minutes are available",
		e.Requested, e.Candidate)
}

func (e *ExceedsCandidateError) Unwrap() error { return ErrExceedsCandidate }

// DuplicateRequestError identifies the request already blocking a filing.
type DuplicateRequestError struct {
	TimeEntryID TimeEntryID
	ExistingID  RequestID
	Status      Status
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("time entry %s already has %s overtime request %s",
		e.TimeEntryID, e.Status, e.ExistingID)
}

func (e *DuplicateRequestError) Unwrap() error { return ErrDuplicateOpenRequest }

// InvalidApprovalError provides details about out-of-range approved minutes.
type InvalidApprovalError struct {
	Approved  int
	Requested int
}

func (e *InvalidApprovalError) Error() string {
	return fmt.Sprintf("approved minutes %d must be between 0 and requested minutes %d",
		e.Approved, e.Requested)
}

func (e *InvalidApprovalError) Unwrap() error { return ErrInvalidApproval }

// AlreadyFinalizedError carries the terminal status of the request.
type AlreadyFinalizedError struct {
	RequestID RequestID
	Status    Status
}

func (e *AlreadyFinalizedError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("request already finalized as %s", e.Status)
	}
	return fmt.Sprintf("request %s already finalized as %s", e.RequestID, e.Status)
}

func (e *AlreadyFinalizedError) Unwrap() error { return ErrAlreadyFinalized }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input or
// a business rule the actor violated.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrIncompleteData) ||
		errors.Is(err, ErrNoCandidateMinutes) ||
		errors.Is(err, ErrExceedsCandidate) ||
		errors.Is(err, ErrInvalidApproval) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrNotApprover) ||
		errors.Is(err, ErrNotOwner) ||
		IsConflict(err)
}

// IsConflict returns true if the error reports a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateOpenRequest) ||
		errors.Is(err, ErrDuplicateEntry) ||
		errors.Is(err, ErrEntrySuperseded) ||
		errors.Is(err, ErrAlreadyFinalized) ||
		errors.Is(err, ErrClockEventExists) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
