package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBoardErrorFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      *BoardError
		wantErr  string
		wantUser string
	}{
		{
			name:     "what only",
			err:      &BoardError{What: "something broke"},
			wantErr:  "something broke",
			wantUser: "Error: something broke",
		},
		{
			name:     "what and why",
			err:      &BoardError{What: "something broke", Why: "bad input"},
			wantErr:  "something broke: bad input",
			wantUser: "Error: something broke\n\nWhy: bad input",
		},
		{
			name: "full error",
			err: &BoardError{
				What: "something broke",
				Why:  "bad input",
				Fix:  "try again",
			},
			wantErr:  "something broke: bad input",
			wantUser: "Error: something broke\n\nWhy: bad input\n\nFix: try again",
		},
		{
			name: "with cause",
			err: &BoardError{
				What:  "something broke",
				Cause: errors.New("underlying error"),
			},
			wantErr:  "something broke: underlying error",
			wantUser: "Error: something broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantErr {
				t.Errorf("Error() = %q, want %q", got, tt.wantErr)
			}
			if got := tt.err.UserMessage(); got != tt.wantUser {
				t.Errorf("UserMessage() = %q, want %q", got, tt.wantUser)
			}
		})
	}
}

func TestBoardErrorJSON(t *testing.T) {
	err := &BoardError{
		Code:  CodeTaskNotFound,
		What:  "task #12 not found",
		Why:   "No task with this id or number exists",
		Cause: errors.New("sql: no rows in result set"),
	}

	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("MarshalJSON failed: %v", marshalErr)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if result["code"] != string(CodeTaskNotFound) {
		t.Errorf("code = %v, want %v", result["code"], CodeTaskNotFound)
	}
	if result["cause"] != "sql: no rows in result set" {
		t.Errorf("cause = %v", result["cause"])
	}
}

func TestErrWorkNotesRequired(t *testing.T) {
	err := ErrWorkNotesRequired(7)

	if err.Code != CodeWorkNotesRequired {
		t.Errorf("Code = %v, want %v", err.Code, CodeWorkNotesRequired)
	}
	if err.What != "task #7 cannot be completed without work notes" {
		t.Errorf("What = %q", err.What)
	}
	if err.Fix == "" {
		t.Error("Fix should tell the caller how to remediate")
	}
	if err.HTTPStatus() != 412 {
		t.Errorf("HTTPStatus() = %d, want 412", err.HTTPStatus())
	}
}

func TestErrInvalidStatus(t *testing.T) {
	err := ErrInvalidStatus("done", []string{"backlog", "ready"})

	if err.Code != CodeInvalidStatus {
		t.Errorf("Code = %v, want %v", err.Code, CodeInvalidStatus)
	}
	if err.Fix != "Use one of: backlog, ready" {
		t.Errorf("Fix = %q", err.Fix)
	}
}

func TestErrRateLimited(t *testing.T) {
	retry := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := ErrRateLimited(retry)

	if err.Why != "Requests are suspended until 2026-01-02T03:04:05Z" {
		t.Errorf("Why = %q", err.Why)
	}
}

func TestErrorCodeUniqueness(t *testing.T) {
	codes := []Code{
		CodeInvalidStatus,
		CodeValidationFailed,
		CodeWorkNotesRequired,
		CodeTaskNotFound,
		CodeProjectNotFound,
		CodeClaimConflict,
		CodeConcurrentUpdate,
		CodeRateLimited,
		CodeTrackerUnavailable,
		CodeConfigInvalid,
	}

	seen := make(map[Code]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("duplicate error code: %s", code)
		}
		seen[code] = true
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err        *BoardError
		wantStatus int
	}{
		{ErrInvalidStatus("x", nil), 400},
		{ErrValidation("blocked_by", "self reference"), 400},
		{ErrWorkNotesRequired(1), 412},
		{ErrTaskNotFound("#1"), 404},
		{ErrProjectNotFound("p"), 404},
		{ErrClaimConflict(1, "in-progress"), 409},
		{ErrConcurrentUpdate(1, "ready", "blocked"), 409},
		{ErrRateLimited(time.Now()), 429},
		{ErrTrackerUnavailable("github", nil), 503},
		{ErrConfigInvalid("x", "y"), 400},
		{Wrap(errors.New("x"), "y"), 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestWithCause(t *testing.T) {
	original := ErrTaskNotFound("#1")
	cause := errors.New("row missing")
	wrapped := original.WithCause(cause)

	if wrapped.Cause != cause {
		t.Error("WithCause should set the cause")
	}
	if original.Cause != nil {
		t.Error("Original should not be modified")
	}
	if errors.Unwrap(wrapped) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("complete task: %w", ErrWorkNotesRequired(3))

	if !HasCode(err, CodeWorkNotesRequired) {
		t.Error("HasCode should find the code through fmt.Errorf wrapping")
	}
	if HasCode(err, CodeInvalidStatus) {
		t.Error("HasCode should not match a different code")
	}
	if !errors.Is(err, &BoardError{Code: CodeWorkNotesRequired}) {
		t.Error("errors.Is should match by code")
	}
	if HasCode(errors.New("plain"), CodeWorkNotesRequired) {
		t.Error("plain errors carry no code")
	}
}
