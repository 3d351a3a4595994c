package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatExecution  ErrorCategory = "execution"  // Runtime failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatRateLimit  ErrorCategory = "rate_limit" // Provider rate limited
	ErrCatAuth       ErrorCategory = "auth"       // Missing or rejected credentials
	ErrCatNetwork    ErrorCategory = "network"    // Network connectivity
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatConflict   ErrorCategory = "conflict"   // Duplicate or concurrent modification
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     code,
		Message:  message,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      "RATE_LIMITED",
		Message:   message,
		Retryable: true,
	}
}

// ErrAuth creates an authentication error.
func ErrAuth(message string) *DomainError {
	return &DomainError{
		Category: ErrCatAuth,
		Code:     "AUTH_FAILED",
		Message:  message,
	}
}

// ErrNetwork creates a network error.
func ErrNetwork(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      "NETWORK",
		Message:   message,
		Retryable: true,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category: ErrCatNotFound,
		Code:     "NOT_FOUND",
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// ErrConflict creates a conflict error.
func ErrConflict(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatConflict,
		Code:     code,
		Message:  message,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeStoryNotFound      = "STORY_NOT_FOUND"
	CodeCollectionNotFound = "COLLECTION_NOT_FOUND"
	CodeDuplicateRitual    = "DUPLICATE_RITUAL"

	// Validation error codes
	CodeEmptyPrompt        = "EMPTY_PROMPT"
	CodePromptTooShort     = "PROMPT_TOO_SHORT"
	CodePromptTooLong      = "PROMPT_TOO_LONG"
	CodeInvalidConfig      = "INVALID_CONFIG"
	CodeUnknownPreset      = "UNKNOWN_PRESET"
	CodeUnknownProvider    = "UNKNOWN_PROVIDER"
	CodeUnknownTemplate    = "UNKNOWN_TEMPLATE"
	CodeOracleRequired     = "ORACLE_REQUIRED"
	CodeInvalidTemperature = "INVALID_TEMPERATURE"
	CodeMissingIdentity    = "MISSING_IDENTITY"
	CodeInvalidCollection  = "INVALID_COLLECTION"

	// Execution error codes
	CodeProviderFailed   = "PROVIDER_FAILED"
	CodeEmptyCompletion  = "EMPTY_COMPLETION"
	CodeProviderDisabled = "PROVIDER_NOT_CONFIGURED"
	CodeParseFailed      = "PARSE_FAILED"
)

// Prompt length bounds accepted by the generation endpoints.
const (
	MinPromptLength = 10
	MaxPromptLength = 1000
)

// ErrStoryNotFound reports a missing or inaccessible story.
func ErrStoryNotFound(id string) *DomainError {
	e := ErrNotFound("story", id)
	e.Code = CodeStoryNotFound
	return e
}

// ErrCollectionNotFound reports a missing or inaccessible collection.
func ErrCollectionNotFound(id string) *DomainError {
	e := ErrNotFound("collection", id)
	e.Code = CodeCollectionNotFound
	return e
}

// ErrMissingIdentity is returned when an operation needs a user.
func ErrMissingIdentity() *DomainError {
	e := ErrAuth("user identity required")
	e.Code = CodeMissingIdentity
	return e
}
