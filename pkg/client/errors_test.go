package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			apiError: &APIError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Message:    "internal server error",
				Err:        errors.New("connection refused"),
			},
			expected: "backend server error (status 500): internal server error: connection refused",
		},
		{
			name: "error without wrapped error",
			apiError: &APIError{
				StatusCode: 404,
				ErrorClass: ErrorClassClient,
				Message:    "not found",
				Err:        nil,
			},
			expected: "backend client error (status 404): not found",
		},
		{
			name: "network error",
			apiError: &APIError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        errors.New("dial tcp: i/o timeout"),
			},
			expected: "backend network error (status 0): request failed: dial tcp: i/o timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.apiError.Error()
			if result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	wrappedErr := errors.New("wrapped error")
	apiError := &APIError{
		StatusCode: 500,
		ErrorClass: ErrorClassServer,
		Message:    "server error",
		Err:        wrappedErr,
	}

	if unwrapped := apiError.Unwrap(); unwrapped != wrappedErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, wrappedErr)
	}

	if !errors.Is(apiError, wrappedErr) {
		t.Error("errors.Is should work with wrapped error")
	}
}

func TestClass(t *testing.T) {
	apiErr := &APIError{StatusCode: 503, ErrorClass: ErrorClassServer}

	if got := Class(fmt.Errorf("fetch: %w", apiErr)); got != ErrorClassServer {
		t.Errorf("Class() = %q, want %q", got, ErrorClassServer)
	}
	if got := Class(errors.New("plain")); got != "" {
		t.Errorf("Class() = %q, want empty", got)
	}
}
