// Package errors provides the standardized error model shared by the decision
// core, the capability handlers and the transports.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Decision core errors
const (
	ErrCodeActionNotFound          ErrorCode = "ACTION_NOT_FOUND"
	ErrCodeMissingParameter        ErrorCode = "MISSING_PARAMETER"
	ErrCodeUnauthorized            ErrorCode = "UNAUTHORIZED"
	ErrCodeCollaboratorFailure     ErrorCode = "COLLABORATOR_FAILURE"
	ErrCodeClassificationAmbiguous ErrorCode = "CLASSIFICATION_AMBIGUOUS"
	ErrCodeExecutionCancelled      ErrorCode = "EXECUTION_CANCELLED"

	ErrCodeContextEnrichmentFailed ErrorCode = "CONTEXT_ENRICHMENT_FAILED"
	ErrCodeInvalidRequest          ErrorCode = "INVALID_REQUEST"
	ErrCodeInternal                ErrorCode = "INTERNAL_ERROR"
)

// Collaborator errors
const (
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeSearchQueryFailed        ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeNotificationSendFailed   ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeAuthenticationFailed     ErrorCode = "AUTHENTICATION_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Public returns a copy without Details, for responses that leave the process.
func (e *StandardError) Public() *StandardError {
	if e == nil {
		return nil
	}
	out := *e
	out.Details = ""
	return &out
}

// Field returns the parameter name carried by a MISSING_PARAMETER error.
func (e *StandardError) Field() string {
	if e == nil || e.Metadata == nil {
		return ""
	}
	field, _ := e.Metadata["field"].(string)
	return field
}

// NewActionNotFoundError is returned when a plan names an action nobody registered.
func NewActionNotFoundError(action string) *StandardError {
	return &StandardError{
		Code:      ErrCodeActionNotFound,
		Message:   "Action not registered",
		Details:   fmt.Sprintf("action: %s", action),
		Retryable: false,
		Metadata:  map[string]interface{}{"action": action},
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingParameterError names the first required parameter absent from an invocation.
func NewMissingParameterError(action, field string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingParameter,
		Message:   "Required parameter missing",
		Details:   fmt.Sprintf("action: %s, field: %s", action, field),
		Retryable: false,
		Metadata:  map[string]interface{}{"action": action, "field": field},
		Timestamp: time.Now().UTC(),
	}
}

// NewUnauthorizedError is returned when an action requires an authenticated user or a permission.
func NewUnauthorizedError(action, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorized,
		Message:   "Authentication required",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"action": action},
		Timestamp: time.Now().UTC(),
	}
}

// NewCollaboratorFailureError wraps a business failure or unexpected error from a capability.
func NewCollaboratorFailureError(action, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCollaboratorFailure,
		Message:   fmt.Sprintf("Action '%s' failed", action),
		Details:   details,
		Retryable: true,
		Metadata:  map[string]interface{}{"action": action},
		Timestamp: time.Now().UTC(),
	}
}

// NewClassificationAmbiguousError marks a decision whose confidence is below the usability threshold.
func NewClassificationAmbiguousError(intent string, confidence float64) *StandardError {
	return &StandardError{
		Code:      ErrCodeClassificationAmbiguous,
		Message:   "Intent classification is ambiguous",
		Details:   fmt.Sprintf("intent: %s, confidence: %.2f", intent, confidence),
		Retryable: false,
		Metadata:  map[string]interface{}{"intent": intent, "confidence": confidence},
		Timestamp: time.Now().UTC(),
	}
}

// NewExecutionCancelledError is recorded when the caller's context ends the plan early.
func NewExecutionCancelledError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExecutionCancelled,
		Message:   "Plan execution cancelled",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewContextEnrichmentFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeContextEnrichmentFailed,
		Message:   "Context enrichment failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Invalid request payload",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAuthenticationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthenticationFailed,
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// As extracts a StandardError from err's chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Code == code
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	return NewInternalError(err.Error())
}

// GetRetryCount returns the recommended retry count for job workers.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeCollaboratorFailure,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeNotificationSendFailed:
		return 3

	case ErrCodeContextEnrichmentFailed, ErrCodeExecutionCancelled:
		return 1

	default:
		return 0 // Business errors: no retry
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "UNAUTHORIZED") || strings.Contains(codeStr, "AUTHENTICATION"):
		return "AUTH"
	case strings.Contains(codeStr, "ACTION") || strings.Contains(codeStr, "PARAMETER"):
		return "PLAN"
	case strings.Contains(codeStr, "CLASSIFICATION"):
		return "NLU"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "COLLABORATOR") || strings.Contains(codeStr, "ENRICHMENT"):
		return "COLLABORATOR"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
