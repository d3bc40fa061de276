package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrBodyTooLarge is returned when a response exceeds Config.MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

// APIError represents a failed backend request with additional context.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("backend %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Class returns the error classification of err, or "" if err is not an
// *APIError.
func Class(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ""
}
