package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations
var (
	// Ticket validation
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrDescriptionRequired = errors.New("description is required")
	ErrDescriptionTooShort = errors.New("description is too short")
	ErrDescriptionTooLong  = errors.New("description exceeds maximum length")

	// Classification
	ErrInvalidCategory      = errors.New("invalid ticket category")
	ErrInvalidSentiment     = errors.New("invalid ticket sentiment")
	ErrConfidenceOutOfRange = errors.New("confidence out of range")
	ErrAnalysisFailed       = errors.New("classification service failed")

	// Change feed
	ErrUnauthorized = errors.New("unauthorized")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrInternal    = errors.New("internal server error")
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "NOT_FOUND",
		StatusCode: 404,
	}
}

func NewAnalysisError(err error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %w", ErrAnalysisFailed, err),
		Message:    "Classification service is unavailable",
		Code:       "ANALYSIS_UNAVAILABLE",
		StatusCode: 503,
	}
}

func NewRateLimitError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       "RATE_LIMITED",
		StatusCode: 429,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}
