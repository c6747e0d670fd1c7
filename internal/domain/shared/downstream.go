package shared

import (
	"errors"
	"fmt"
)

// DownstreamKind classifies an infrastructure failure of a remote dependency
type DownstreamKind string

const (
	// DownstreamUnavailable covers refused/unreachable connections, open breakers
	// and any transport-level failure that is not a timeout
	DownstreamUnavailable DownstreamKind = "UNAVAILABLE"
	// DownstreamTimeout covers calls that exceeded their deadline
	DownstreamTimeout DownstreamKind = "TIMEOUT"
)

// DownstreamError is raised when a remote dependency cannot produce an answer.
// The cause is kept for logging only and is never rendered to callers.
type DownstreamError struct {
	Kind       DownstreamKind
	Dependency string
	cause      error
}

// NewDownstreamError creates a downstream error for the named dependency
func NewDownstreamError(kind DownstreamKind, dependency string, cause error) *DownstreamError {
	return &DownstreamError{Kind: kind, Dependency: dependency, cause: cause}
}

// Error implements the error interface
func (e *DownstreamError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("downstream %s %s: %v", e.Dependency, e.kindText(), e.cause)
	}
	return fmt.Sprintf("downstream %s %s", e.Dependency, e.kindText())
}

// Unwrap returns the underlying transport error
func (e *DownstreamError) Unwrap() error {
	return e.cause
}

// Retryable reports whether the caller may retry after a backoff
func (e *DownstreamError) Retryable() bool {
	return true
}

// PublicMessage is the caller-visible description
func (e *DownstreamError) PublicMessage() string {
	if e.Kind == DownstreamTimeout {
		return fmt.Sprintf("The %s service did not respond in time", e.Dependency)
	}
	return fmt.Sprintf("The %s service is currently unavailable", e.Dependency)
}

func (e *DownstreamError) kindText() string {
	if e.Kind == DownstreamTimeout {
		return "timed out"
	}
	return "unavailable"
}

// IsDownstreamKind reports whether err carries a DownstreamError of the given kind
func IsDownstreamKind(err error, kind DownstreamKind) bool {
	var de *DownstreamError
	return errors.As(err, &de) && de.Kind == kind
}
