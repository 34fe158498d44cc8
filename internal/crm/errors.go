package crm

import (
	"fmt"
	"net/http"
)

// APIError is an error response returned by the CRM.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("crm responded %d", e.StatusCode)
	}
	return fmt.Sprintf("crm responded %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Schema reports whether the CRM rejected the request body's shape.
// Auth, rate limit and server errors never count.
func (e *APIError) Schema() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
}

// SchemaError signifies the CRM rejected a payload encoding.
// The client recovers from it once by switching encodings.
type SchemaError struct{ Err error }

func (e *SchemaError) Error() string { return fmt.Sprintf("schema rejected: %v", e.Err) }
func (e *SchemaError) Unwrap() error { return e.Err }

// UpstreamError signifies a CRM call that failed after any local recovery,
// such as a network issue, an auth failure or a 5xx.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *UpstreamError) Unwrap() error { return e.Err }
