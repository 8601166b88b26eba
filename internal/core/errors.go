// Package core provides shared types and interfaces for the PII guardrail service.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error that occurred
type ErrorType string

const (
	// ErrorTypeDetectorFailure indicates the PII detector backend failed (502)
	ErrorTypeDetectorFailure ErrorType = "detector_failure"
	// ErrorTypeRetrievalFailure indicates the retrieval collaborator failed (502)
	ErrorTypeRetrievalFailure ErrorType = "retrieval_failure"
	// ErrorTypeModelCall indicates an upstream model provider error (5xx)
	ErrorTypeModelCall ErrorType = "model_call_failure"
	// ErrorTypeMappingCorruption indicates an inconsistent placeholder mapping (500)
	ErrorTypeMappingCorruption ErrorType = "mapping_corruption"
	// ErrorTypeEvaluation indicates an evaluation or benchmark error (500)
	ErrorTypeEvaluation ErrorType = "evaluation_error"
	// ErrorTypeRateLimit indicates a rate limit error (429)
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeInvalidRequest indicates a client error (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates an authentication error (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates a not found error (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
)

// GuardrailError is the base error type for all guardrail errors
type GuardrailError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Component  string    `json:"component,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *GuardrailError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *GuardrailError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *GuardrailError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	// Default status codes based on error type
	switch e.Type {
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeDetectorFailure, ErrorTypeRetrievalFailure, ErrorTypeModelCall:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *GuardrailError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewDetectorFailureError creates a new detector failure error (502)
func NewDetectorFailureError(detector string, message string, err error) *GuardrailError {
	return &GuardrailError{
		Type:       ErrorTypeDetectorFailure,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Component:  detector,
		Err:        err,
	}
}

// NewRetrievalFailureError creates a new retrieval failure error (502)
func NewRetrievalFailureError(message string, err error) *GuardrailError {
	return &GuardrailError{
		Type:       ErrorTypeRetrievalFailure,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Component:  "retrieval",
		Err:        err,
	}
}

// NewModelCallError creates a new model call error (upstream 5xx)
func NewModelCallError(provider string, statusCode int, message string, err error) *GuardrailError {
	return &GuardrailError{
		Type:       ErrorTypeModelCall,
		Message:    message,
		StatusCode: statusCode,
		Component:  provider,
		Err:        err,
	}
}

// NewMappingCorruptionError creates a new mapping corruption error (500)
func NewMappingCorruptionError(message string, err error) *GuardrailError {
	return &GuardrailError{
		Type:       ErrorTypeMappingCorruption,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewEvaluationError creates a new evaluation error (500)
func NewEvaluationError(message string, err error) *GuardrailError {
	return &GuardrailError{
		Type:       ErrorTypeEvaluation,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewRateLimitError creates a new rate limit error (429)
func NewRateLimitError(component string, message string) *GuardrailError {
	return &GuardrailError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Component:  component,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *GuardrailError {
	return NewInvalidRequestErrorWithStatus(http.StatusBadRequest, message, err)
}

// NewInvalidRequestErrorWithStatus creates a new invalid request error with a specific status code
func NewInvalidRequestErrorWithStatus(statusCode int, message string, err error) *GuardrailError {
	return &GuardrailError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewAuthenticationError creates a new authentication error (401)
func NewAuthenticationError(component string, message string) *GuardrailError {
	return &GuardrailError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Component:  component,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *GuardrailError {
	return &GuardrailError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// ErrorTypeOf returns the taxonomy type of err as a string, or
// "internal_error" for untyped errors.
func ErrorTypeOf(err error) string {
	var gerr *GuardrailError
	if errors.As(err, &gerr) {
		return string(gerr.Type)
	}
	return "internal_error"
}

// ParseProviderError parses an error response from a model provider and returns an appropriate GuardrailError
func ParseProviderError(provider string, statusCode int, body []byte, originalErr error) *GuardrailError {
	// Try to parse the error response as JSON
	var errorResponse struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	if err := json.Unmarshal(body, &errorResponse); err == nil && errorResponse.Error.Message != "" {
		message = errorResponse.Error.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewAuthenticationError(provider, message)
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(provider, message)
	case statusCode >= 400 && statusCode < 500:
		// Client errors from provider keep both provider info and the original status code
		err := NewInvalidRequestErrorWithStatus(statusCode, message, originalErr)
		err.Component = provider
		return err
	case statusCode >= 500:
		return NewModelCallError(provider, http.StatusBadGateway, message, originalErr)
	default:
		return NewModelCallError(provider, http.StatusBadGateway, message, originalErr)
	}
}
