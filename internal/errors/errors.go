package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents a structured application error with context
type AppError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	HTTPCode int    `json:"-"`
	Cause    error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInvalidRequest   = "INVALID_REQUEST"

	// Remote API errors
	CodeUpstreamError       = "UPSTREAM_ERROR"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"

	CodeCacheError       = "CACHE_ERROR"
	CodeCacheUnavailable = "CACHE_UNAVAILABLE"
)

func newError(code, message string, httpCode int, cause error) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		HTTPCode: httpCode,
		Cause:    cause,
	}
}

// ValidationError is input the remote API or a form refused.
func ValidationError(message string, cause error) *AppError {
	return newError(CodeValidationFailed, message, http.StatusUnprocessableEntity, cause)
}

func NotFoundError(message string, cause error) *AppError {
	return newError(CodeNotFound, message, http.StatusNotFound, cause)
}

func ForbiddenError(message string, cause error) *AppError {
	return newError(CodeForbidden, message, http.StatusForbidden, cause)
}

func InternalError(message string, cause error) *AppError {
	return newError(CodeInternalError, message, http.StatusInternalServerError, cause)
}

func RateLimitedError(message string, cause error) *AppError {
	return newError(CodeRateLimited, message, http.StatusTooManyRequests, cause)
}

func InvalidRequestError(message string, cause error) *AppError {
	return newError(CodeInvalidRequest, message, http.StatusBadRequest, cause)
}

// UpstreamError is a failure reported by, or while talking to, the remote API.
func UpstreamError(message string, cause error) *AppError {
	return newError(CodeUpstreamError, message, http.StatusBadGateway, cause)
}

func UpstreamUnavailableError(message string, cause error) *AppError {
	return newError(CodeUpstreamUnavailable, message, http.StatusServiceUnavailable, cause)
}

func CacheError(message string, cause error) *AppError {
	return newError(CodeCacheError, message, http.StatusInternalServerError, cause)
}

func CacheUnavailableError(message string, cause error) *AppError {
	return newError(CodeCacheUnavailable, message, http.StatusServiceUnavailable, cause)
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code, message string) *AppError {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the original code but update message
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:     appErr.Code,
			Message:  fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPCode: appErr.HTTPCode,
			Cause:    appErr.Cause,
		}
	}

	httpCode := http.StatusInternalServerError
	switch code {
	case CodeValidationFailed:
		httpCode = http.StatusUnprocessableEntity
	case CodeInvalidRequest:
		httpCode = http.StatusBadRequest
	case CodeNotFound:
		httpCode = http.StatusNotFound
	case CodeForbidden:
		httpCode = http.StatusForbidden
	case CodeUpstreamError:
		httpCode = http.StatusBadGateway
	case CodeCacheUnavailable, CodeUpstreamUnavailable:
		httpCode = http.StatusServiceUnavailable
	case CodeRateLimited:
		httpCode = http.StatusTooManyRequests
	}

	return &AppError{
		Code:     code,
		Message:  message,
		HTTPCode: httpCode,
		Cause:    err,
	}
}

// IsType checks if an error is of a specific type/code
func IsType(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetHTTPCode extracts the HTTP status code from an error
func GetHTTPCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPCode
	}
	return http.StatusInternalServerError
}
