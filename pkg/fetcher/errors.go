package fetcher

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/panel-aggregator/pkg/client"
)

// Common errors returned by the fetcher.
var (
	// ErrUnrecognizedShape is wrapped by a *ParseError when a body matches
	// neither the array nor the envelope shape.
	ErrUnrecognizedShape = errors.New("unrecognized response shape")

	// ErrPartitionDisabled is reported when Fetch is called for a disabled
	// partition. No request is made.
	ErrPartitionDisabled = errors.New("partition disabled")
)

// NetworkError is a failed or rejected request for one partition.
type NetworkError struct {
	Resource   string
	TypeValue  string
	StatusCode int
	Class      client.ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	target := e.Resource
	if e.TypeValue != "" {
		target += " (tipo " + e.TypeValue + ")"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s error (status %d): %v", target, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s error: %v", target, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError is a response body that matched no accepted shape.
type ParseError struct {
	Resource  string
	TypeValue string
	Reason    string
	Err       error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	target := e.Resource
	if e.TypeValue != "" {
		target += " (tipo " + e.TypeValue + ")"
	}
	if target == "" {
		return fmt.Sprintf("parse response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s response: %s: %v", target, e.Reason, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}
