// Package errors provides structured error types for taskboard.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// Code represents a unique, machine-checkable error code.
type Code string

// Error codes for taskboard.
const (
	// Validation errors
	CodeInvalidStatus    Code = "INVALID_STATUS"
	CodeValidationFailed Code = "VALIDATION_FAILED"

	// Precondition errors
	CodeWorkNotesRequired Code = "WORK_NOTES_REQUIRED"

	// Lookup errors
	CodeTaskNotFound    Code = "TASK_NOT_FOUND"
	CodeProjectNotFound Code = "PROJECT_NOT_FOUND"

	// Concurrency errors
	CodeClaimConflict    Code = "CLAIM_CONFLICT"
	CodeConcurrentUpdate Code = "CONCURRENT_UPDATE"

	// External tracker errors
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeTrackerUnavailable Code = "TRACKER_UNAVAILABLE"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryPrecondition
	CategoryConflict
	CategoryTooManyRequests
	CategoryUnavailable
)

var codeCategories = map[Code]Category{
	CodeInvalidStatus:      CategoryBadRequest,
	CodeValidationFailed:   CategoryBadRequest,
	CodeWorkNotesRequired:  CategoryPrecondition,
	CodeTaskNotFound:       CategoryNotFound,
	CodeProjectNotFound:    CategoryNotFound,
	CodeClaimConflict:      CategoryConflict,
	CodeConcurrentUpdate:   CategoryConflict,
	CodeRateLimited:        CategoryTooManyRequests,
	CodeTrackerUnavailable: CategoryUnavailable,
	CodeConfigInvalid:      CategoryBadRequest,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryPrecondition:
		return 412
	case CategoryConflict:
		return 409
	case CategoryTooManyRequests:
		return 429
	case CategoryUnavailable:
		return 503
	default:
		return 500
	}
}

// BoardError is the structured error type for taskboard.
// What/Why/Fix are written for the operator or worker that has to act on it.
type BoardError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *BoardError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *BoardError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *BoardError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category for HTTP status mapping.
func (e *BoardError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *BoardError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *BoardError) MarshalJSON() ([]byte, error) {
	type alias BoardError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a BoardError with the same code.
func (e *BoardError) Is(target error) bool {
	t, ok := target.(*BoardError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *BoardError) WithCause(err error) *BoardError {
	return &BoardError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrInvalidStatus returns an error for a status value the workflow does not know.
func ErrInvalidStatus(status string, valid []string) *BoardError {
	return &BoardError{
		Code: CodeInvalidStatus,
		What: fmt.Sprintf("invalid status %q", status),
		Why:  "The status is not part of the configured workflow",
		Fix:  "Use one of: " + strings.Join(valid, ", "),
	}
}

// ErrWorkNotesRequired returns the precondition error raised when a task would be
// completed without any work notes.
func ErrWorkNotesRequired(taskNumber int) *BoardError {
	return &BoardError{
		Code: CodeWorkNotesRequired,
		What: fmt.Sprintf("task #%d cannot be completed without work notes", taskNumber),
		Why:  "Every completion must leave an auditable trace in the task's work notes",
		Fix:  fmt.Sprintf("Add a note describing what was done (taskboard task note %d \"...\") and retry, or complete with --summary", taskNumber),
	}
}

// ErrValidation returns an error for a rejected field value.
func ErrValidation(field, reason string) *BoardError {
	return &BoardError{
		Code: CodeValidationFailed,
		What: fmt.Sprintf("invalid %s", field),
		Why:  reason,
	}
}

// ErrTaskNotFound returns an error when a task doesn't exist.
func ErrTaskNotFound(ref string) *BoardError {
	return &BoardError{
		Code: CodeTaskNotFound,
		What: fmt.Sprintf("task %s not found", ref),
		Why:  "No task with this id or number exists",
		Fix:  "Run 'taskboard task list' to see available tasks",
	}
}

// ErrProjectNotFound returns an error when a project doesn't exist.
func ErrProjectNotFound(ref string) *BoardError {
	return &BoardError{
		Code: CodeProjectNotFound,
		What: fmt.Sprintf("project %s not found", ref),
		Fix:  "Run 'taskboard project list' to see registered projects",
	}
}

// ErrClaimConflict returns an error when another worker claimed the task first.
func ErrClaimConflict(taskNumber int, status string) *BoardError {
	return &BoardError{
		Code: CodeClaimConflict,
		What: fmt.Sprintf("task #%d could not be claimed", taskNumber),
		Why:  fmt.Sprintf("Task is %s; only ready tasks can be started", status),
		Fix:  "Run 'taskboard next' to pick another task",
	}
}

// ErrConcurrentUpdate returns an error when a task changed status between
// the caller's read and its write.
func ErrConcurrentUpdate(taskNumber int, expected, actual string) *BoardError {
	return &BoardError{
		Code: CodeConcurrentUpdate,
		What: fmt.Sprintf("task #%d was modified concurrently", taskNumber),
		Why:  fmt.Sprintf("Expected status %s but the task is now %s", expected, actual),
		Fix:  "Reload the task and retry the operation",
	}
}

// ErrRateLimited returns an error when the external tracker asked us to back off.
func ErrRateLimited(retryAfter time.Time) *BoardError {
	return &BoardError{
		Code: CodeRateLimited,
		What: "issue tracker rate limit reached",
		Why:  fmt.Sprintf("Requests are suspended until %s", retryAfter.Format(time.RFC3339)),
		Fix:  "Wait for the next sync cycle after the retry time",
	}
}

// ErrTrackerUnavailable returns an error when the tracker cannot be reached.
func ErrTrackerUnavailable(provider string, cause error) *BoardError {
	return &BoardError{
		Code:  CodeTrackerUnavailable,
		What:  fmt.Sprintf("%s issue tracker unavailable", provider),
		Why:   "The request failed or timed out; it will be retried next cycle",
		Cause: cause,
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *BoardError {
	return &BoardError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .taskboard/config.yaml and fix the invalid field",
	}
}

// AsBoardError attempts to convert an error to a BoardError.
// Returns nil if the error is not a BoardError.
func AsBoardError(err error) *BoardError {
	var boardErr *BoardError
	if stderrors.As(err, &boardErr) {
		return boardErr
	}
	return nil
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	be := AsBoardError(err)
	return be != nil && be.Code == code
}

// Wrap wraps a generic error into a BoardError with unknown code.
func Wrap(err error, what string) *BoardError {
	return &BoardError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
