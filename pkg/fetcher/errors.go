package fetcher

import (
	"errors"
	"fmt"
)

// Common errors returned by the fetcher.
var (
	// ErrNotFound is returned when the upstream reports 404 for a resource.
	ErrNotFound = errors.New("upstream resource not found")

	// ErrTimeout is returned when an outbound call exceeds its deadline.
	ErrTimeout = errors.New("upstream request timed out")
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ClassNotFound represents 404 responses.
	ClassNotFound ErrorClass = "not_found"

	// ClassUpstream represents other non-success upstream responses.
	ClassUpstream ErrorClass = "upstream"

	// ClassTimeout represents deadline expiry.
	ClassTimeout ErrorClass = "timeout"

	// ClassNetwork represents transport-level failures.
	ClassNetwork ErrorClass = "network"
)

// UpstreamError represents a non-success upstream outcome with context.
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream error (status %d): %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Classify categorizes an error for observability and handling.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrTimeout):
		return ClassTimeout
	default:
		var ue *UpstreamError
		if errors.As(err, &ue) && ue.StatusCode > 0 {
			return ClassUpstream
		}
		return ClassNetwork
	}
}
