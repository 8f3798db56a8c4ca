package errors

import (
	"errors"
	"fmt"
)

// FailureKind classifies a downstream call failure. Retry and circuit breaker
// decisions are pure functions of this classification.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureTimeout
	FailureConnect
	FailureServer
	FailureClient
)

// String returns the failure kind name
func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureConnect:
		return "connect"
	case FailureServer:
		return "server"
	case FailureClient:
		return "client"
	default:
		return "unknown"
	}
}

// DownstreamError is the typed failure produced by the transport layer for a
// call to a downstream target.
type DownstreamError struct {
	Kind   FailureKind
	Target string
	Status int
	Err    error
}

// Error implements the error interface
func (e *DownstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("downstream %s: %s failure (status %d)", e.Target, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("downstream %s: %s failure: %v", e.Target, e.Kind, e.Err)
	}
	return fmt.Sprintf("downstream %s: %s failure", e.Target, e.Kind)
}

// Unwrap returns the wrapped error
func (e *DownstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether this failure kind may be retried. Timeouts,
// connection failures and downstream 5xx replies are transient; client
// failures must never be retried.
func (e *DownstreamError) Retryable() bool {
	switch e.Kind {
	case FailureTimeout, FailureConnect, FailureServer:
		return true
	default:
		return false
	}
}

// ErrDownstreamTimeout creates a timeout failure for a target
func ErrDownstreamTimeout(target string, err error) *DownstreamError {
	return &DownstreamError{Kind: FailureTimeout, Target: target, Err: err}
}

// ErrDownstreamConnect creates a connection failure for a target
func ErrDownstreamConnect(target string, err error) *DownstreamError {
	return &DownstreamError{Kind: FailureConnect, Target: target, Err: err}
}

// ErrDownstreamServer creates a server-side failure for a target
func ErrDownstreamServer(target string, status int) *DownstreamError {
	return &DownstreamError{Kind: FailureServer, Target: target, Status: status}
}

// ErrDownstreamClient creates a client-side failure for a target
func ErrDownstreamClient(target string, status int) *DownstreamError {
	return &DownstreamError{Kind: FailureClient, Target: target, Status: status}
}

// AsDownstreamError converts an error to a DownstreamError if possible
func AsDownstreamError(err error) (*DownstreamError, bool) {
	var dsErr *DownstreamError
	if errors.As(err, &dsErr) {
		return dsErr, true
	}
	return nil, false
}

// FailureKindOf returns the classification of an error, FailureUnknown when
// the error carries no downstream classification
func FailureKindOf(err error) FailureKind {
	if dsErr, ok := AsDownstreamError(err); ok {
		return dsErr.Kind
	}
	return FailureUnknown
}

// IsRetryable reports whether an error is a transient downstream failure.
// Errors without a downstream classification are not retried.
func IsRetryable(err error) bool {
	if dsErr, ok := AsDownstreamError(err); ok {
		return dsErr.Retryable()
	}
	return false
}

// IsClientError reports whether an error is classified as a caller fault
func IsClientError(err error) bool {
	return FailureKindOf(err) == FailureClient
}
