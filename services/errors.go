package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeRetrieval    ErrorType = "retrieval"
	ErrorTypeGeneration   ErrorType = "generation"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Not Found Errors
	ErrUserNotFound     = NewDomainError(ErrorTypeNotFound, "user not found", nil)
	ErrDocumentNotFound = NewDomainError(ErrorTypeNotFound, "document not found", nil)
	ErrQueryLogNotFound = NewDomainError(ErrorTypeNotFound, "query not found", nil)
	ErrFeedbackNotFound = NewDomainError(ErrorTypeNotFound, "feedback not found", nil)
	ErrAPIKeyNotFound   = NewDomainError(ErrorTypeNotFound, "API key not found", nil)
	ErrABTestNotFound   = NewDomainError(ErrorTypeNotFound, "A/B test not found", nil)

	// Validation Errors
	ErrInvalidInput        = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidEmail        = NewDomainError(ErrorTypeValidation, "invalid email format", nil)
	ErrWeakPassword        = NewDomainError(ErrorTypeValidation, "password does not meet requirements", nil)
	ErrEmptyQuery          = NewDomainError(ErrorTypeValidation, "query cannot be empty", nil)
	ErrEmptyDocument       = NewDomainError(ErrorTypeValidation, "document has no extractable text", nil)
	ErrUnsupportedFileType = NewDomainError(ErrorTypeValidation, "unsupported file type", nil)
	ErrFileTooLarge        = NewDomainError(ErrorTypeValidation, "file exceeds maximum upload size", nil)

	// Authorization Errors
	ErrUnauthorized       = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthorized, "incorrect username or password", nil)
	ErrInvalidAPIKey      = NewDomainError(ErrorTypeUnauthorized, "invalid API key", nil)
	ErrAPIKeyExpired      = NewDomainError(ErrorTypeUnauthorized, "API key expired", nil)
	ErrAPIKeyInactive     = NewDomainError(ErrorTypeUnauthorized, "API key deactivated", nil)
	ErrInvalidToken       = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired       = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)

	// Permission Errors
	ErrForbidden               = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrInsufficientPermissions = NewDomainError(ErrorTypeForbidden, "insufficient permissions", nil)
	ErrAdminRequired           = NewDomainError(ErrorTypeForbidden, "admin access required", nil)
	ErrNotOwner                = NewDomainError(ErrorTypeForbidden, "resource belongs to another user", nil)

	// Rate Limit Errors
	ErrRateLimitExceeded  = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)
	ErrUserLimitExceeded  = NewDomainError(ErrorTypeRateLimit, "user request limit exceeded", nil)
	ErrIPLimitExceeded    = NewDomainError(ErrorTypeRateLimit, "IP request limit exceeded", nil)
	ErrAPIKeyLimitReached = NewDomainError(ErrorTypeRateLimit, "API key rate limit exceeded", nil)

	// Conflict Errors
	ErrDuplicateUsername = NewDomainError(ErrorTypeConflict, "username already registered", nil)
	ErrDuplicateEmail    = NewDomainError(ErrorTypeConflict, "email already registered", nil)
	ErrDuplicateABTest   = NewDomainError(ErrorTypeConflict, "A/B test name already exists", nil)
	ErrConcurrentUpdate  = NewDomainError(ErrorTypeConflict, "concurrent update detected", nil)

	// Internal Errors
	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)
	ErrCacheFailed       = NewDomainError(ErrorTypeInternal, "cache operation failed", nil)

	// External Provider Errors
	ErrProviderUnavailable = NewDomainError(ErrorTypeExternal, "LLM provider unavailable", nil)
	ErrProviderTimeout     = NewDomainError(ErrorTypeExternal, "LLM provider timeout", nil)
	ErrProviderError       = NewDomainError(ErrorTypeExternal, "LLM provider error", nil)
	ErrProviderRateLimit   = NewDomainError(ErrorTypeExternal, "LLM provider rate limit", nil)

	// Retrieval Errors
	ErrRetrievalFailed        = NewDomainError(ErrorTypeRetrieval, "retrieval failed", nil)
	ErrEmbeddingFailed        = NewDomainError(ErrorTypeRetrieval, "query embedding failed", nil)
	ErrVectorStoreUnavailable = NewDomainError(ErrorTypeRetrieval, "vector store unavailable", nil)

	// Generation Errors
	ErrGenerationFailed = NewDomainError(ErrorTypeGeneration, "answer generation failed", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnauthorized
	}
	return false
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeForbidden
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeRateLimit
	}
	return false
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeConflict
	}
	return false
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInternal
	}
	return false
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeExternal
	}
	return false
}

// IsRetrievalError checks if an error is a retrieval error
func IsRetrievalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeRetrieval
	}
	return false
}

// IsGenerationError checks if an error is a generation error
func IsGenerationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeGeneration
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}

// WrapRetrieval wraps an error as a retrieval error
func WrapRetrieval(message string, err error) error {
	return NewDomainError(ErrorTypeRetrieval, message, err)
}

// WrapGeneration wraps an error as a generation error
func WrapGeneration(message string, err error) error {
	return NewDomainError(ErrorTypeGeneration, message, err)
}
