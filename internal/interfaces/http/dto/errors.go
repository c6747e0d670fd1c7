package dto

import (
	"errors"
	"net/http"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
)

// Error labels rendered in the "error" field of the envelope
const (
	LabelServiceNotFound     = "Service Not Found"
	LabelServiceUnavailable  = "Service Unavailable"
	LabelGatewayTimeout      = "Gateway Timeout"
	LabelInternalServerError = "Internal Server Error"
	LabelUnprocessableEntity = "Unprocessable Entity"
	LabelClientNotActive     = "Client Not Active"
	LabelClientNotFound      = "Client Not Found"
	LabelConflict            = "Conflict"
	LabelNotFound            = "Not Found"
	LabelBadRequest          = "Bad Request"
)

// Caller-visible messages for failures whose cause must stay server-side
const (
	MessageInternal    = "An unexpected error occurred"
	MessageRouteLookup = "No service is registered for the requested path"
)

// ErrRouteNotFound is raised when no route or upstream matches a request
var ErrRouteNotFound = errors.New("route not found")

// codeStatus declares the status and label of every domain error code
type codeStatus struct {
	Status int
	Label  string
}

// ErrorCodeHTTPStatus maps domain error codes to their HTTP rendering
var ErrorCodeHTTPStatus = map[string]codeStatus{
	shared.CodeValidation:          {http.StatusUnprocessableEntity, LabelUnprocessableEntity},
	shared.CodeClientNotActive:     {http.StatusConflict, LabelClientNotActive},
	shared.CodeClientNotFound:      {http.StatusNotFound, LabelClientNotFound},
	shared.CodeConflict:            {http.StatusConflict, LabelConflict},
	shared.CodeInvalidState:        {http.StatusConflict, LabelConflict},
	shared.CodeConcurrencyConflict: {http.StatusConflict, LabelConflict},
	shared.CodeNotFound:            {http.StatusNotFound, LabelNotFound},
	shared.CodePersistence:         {http.StatusInternalServerError, LabelInternalServerError},
}

// GetHTTPStatus returns the status and label declared for a domain error code.
// Unknown codes render as 500 Internal Server Error.
func GetHTTPStatus(code string) (int, string) {
	if cs, ok := ErrorCodeHTTPStatus[code]; ok {
		return cs.Status, cs.Label
	}
	return http.StatusInternalServerError, LabelInternalServerError
}

// StatusError is an explicit rejection carrying its own HTTP status.
// It is used for failures that have no domain error code, such as an oversized body.
type StatusError struct {
	Status  int
	Reason  string
	Message string
	Details []string
}

// NewStatusError creates a StatusError whose reason is the standard status text
func NewStatusError(status int, message string, details ...string) *StatusError {
	return &StatusError{
		Status:  status,
		Reason:  http.StatusText(status),
		Message: message,
		Details: details,
	}
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return e.Reason + ": " + e.Message
}

// ErrorEnvelope is the body of every error response
type ErrorEnvelope struct {
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
	TraceID   *string   `json:"traceId"`
	Timestamp time.Time `json:"timestamp"`
	Details   []string  `json:"details"`
}

// NewErrorEnvelope builds an envelope. An empty traceID and empty details
// render as null.
func NewErrorEnvelope(status int, label, message, path, traceID string, details []string) ErrorEnvelope {
	env := ErrorEnvelope{
		Status:    status,
		Error:     label,
		Message:   message,
		Path:      path,
		Timestamp: time.Now().UTC(),
	}
	if traceID != "" {
		env.TraceID = &traceID
	}
	if len(details) > 0 {
		env.Details = details
	}
	return env
}
