package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

type Kind string

const (
	KindInput     Kind = "INPUT_VALIDATION"
	KindSignature Kind = "SIGNATURE_MISMATCH"
	KindMethod    Kind = "METHOD_NOT_ALLOWED"
	KindConfig    Kind = "CONFIGURATION"
	KindUpstream  Kind = "UPSTREAM_FAILURE"
	KindInternal  Kind = "INTERNAL"
)

// Error is an error the relay knows how to report to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindInput:
		return http.StatusBadRequest
	case KindSignature:
		return http.StatusUnauthorized
	case KindMethod:
		return http.StatusMethodNotAllowed
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Input(msg string, err error) *Error { return &Error{Kind: KindInput, Message: msg, Err: err} }
func Config(msg string) *Error { return &Error{Kind: KindConfig, Message: msg} }
func Upstream(msg string, err error) *Error { return &Error{Kind: KindUpstream, Message: msg, Err: err} }
func Internal(msg string, err error) *Error { return &Error{Kind: KindInternal, Message: msg, Err: err} }

// Response is the JSON body written for every failure.
type Response struct {
	OK     bool   `json:"ok"`
	Code   Kind   `json:"code"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Trace  any    `json:"trace,omitempty"`
}

// Describe maps any error to a status code and response body.
// Upstream failures carry their cause as detail; internal causes are only
// echoed when debug is set.
func Describe(err error, debug bool) (int, Response) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = Internal("internal server error", err)
	}

	resp := Response{Code: appErr.Kind, Error: appErr.Message}
	switch appErr.Kind {
	case KindInput, KindUpstream:
		if appErr.Err != nil {
			resp.Detail = appErr.Err.Error()
		}
	case KindInternal:
		resp.Error = "internal server error"
		if debug && appErr.Err != nil {
			resp.Detail = appErr.Err.Error()
		}
	}
	return appErr.StatusCode(), resp
}

// HandleError logs err and writes its response.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error, debug bool) {
	status, resp := Describe(err, debug)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "status", status, "code", resp.Code, "error", err)
	} else {
		logger.Warn("Request rejected", "status", status, "code", resp.Code, "error", err)
	}
	WriteJSON(w, logger, status, resp)
}

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response", "error", err)
	}
}
