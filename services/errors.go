package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error.
//
// The categories mirror the pipeline's failure taxonomy: upstream failures
// are the only ones surfaced to the caller; degraded-signal and export
// failures are always absorbed locally; validation failures are rejected
// before any session mutation.
type ErrorType string

const (
	ErrorTypeUpstream   ErrorType = "upstream"   // LLM provider call failed or timed out
	ErrorTypeDegraded   ErrorType = "degraded"   // embedding/pricing signal unavailable
	ErrorTypeExport     ErrorType = "export"     // observability backend unreachable
	ErrorTypeValidation ErrorType = "validation" // malformed inbound request
	ErrorTypeNotFound   ErrorType = "not_found"  // referenced session/resource unknown
	ErrorTypeInternal   ErrorType = "internal"
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
	ErrProviderUnavailable = NewDomainError(ErrorTypeUpstream, "LLM provider unavailable", nil)
	ErrProviderTimeout     = NewDomainError(ErrorTypeUpstream, "LLM provider timeout", nil)
	ErrEmptyCompletion     = NewDomainError(ErrorTypeUpstream, "empty response from provider", nil)

	ErrEmbeddingUnavailable = NewDomainError(ErrorTypeDegraded, "embedding backend unavailable", nil)
	ErrPricingUnknown       = NewDomainError(ErrorTypeDegraded, "no pricing for model", nil)

	ErrExportFailed   = NewDomainError(ErrorTypeExport, "telemetry export failed", nil)
	ErrExportRejected = NewDomainError(ErrorTypeExport, "telemetry payload rejected by backend", nil)

	ErrInvalidInput    = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyMessages   = NewDomainError(ErrorTypeValidation, "messages cannot be empty", nil)
	ErrSessionNotFound = NewDomainError(ErrorTypeNotFound, "session not found", nil)

	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// Error type checking helper functions

// IsUpstreamError checks if an error is an upstream provider failure
func IsUpstreamError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUpstream
	}
	return false
}

// IsDegradedError checks if an error is a degraded-signal failure
func IsDegradedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeDegraded
	}
	return false
}

// IsExportError checks if an error is an export failure
func IsExportError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeExport
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

// IsNotFoundError checks if an error refers to an unknown session or resource
func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNotFound
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

// WrapUpstream wraps an error as an upstream provider failure
func WrapUpstream(message string, err error) error {
	return NewDomainError(ErrorTypeUpstream, message, err)
}

// WrapDegraded wraps an error as a degraded-signal failure
func WrapDegraded(message string, err error) error {
	return NewDomainError(ErrorTypeDegraded, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
