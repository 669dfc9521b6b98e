// Package api provides the typed REST client for the email merge service
// and the error taxonomy surfaced to the state machines.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"
	"time"
)

// ErrorKind classifies a failure for display and retry decisions.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNetwork    ErrorKind = "network"
	KindServer     ErrorKind = "server"
	KindMalformed  ErrorKind = "malformed_response"
	KindCancelled  ErrorKind = "cancelled"
	KindUnknown    ErrorKind = "unknown"
)

// ValidationError is a client-side precondition failure. It never reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NetworkError is a transport failure or timeout.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the underlying error was a deadline.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// ServerError is a non-2xx response.
type ServerError struct {
	Op         string
	StatusCode int
	// Message is the service's {"error": "..."} text, or the raw body when it is not JSON.
	Message string
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = nethttp.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.StatusCode, msg)
}

// MalformedResponseError is a 2xx body that could not be decoded or lacks a required field.
type MalformedResponseError struct {
	Op    string
	Field string
	Err   error
}

func (e *MalformedResponseError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s: malformed response field %q: %v", e.Op, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: malformed response: missing field %q", e.Op, e.Field)
	default:
		return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
	}
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ErrorInfo is the structured error value stored in component state.
type ErrorInfo struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Time       time.Time
}

func (e ErrorInfo) String() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Describe converts err into an ErrorInfo stamped with now. It returns nil for a nil error.
func Describe(err error, now time.Time) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{Kind: KindUnknown, Message: err.Error(), Time: now}

	var (
		validationErr *ValidationError
		networkErr    *NetworkError
		serverErr     *ServerError
		malformedErr  *MalformedResponseError
	)
	switch {
	case errors.As(err, &validationErr):
		info.Kind = KindValidation
		info.Message = validationErr.Error()
	case errors.As(err, &serverErr):
		info.Kind = KindServer
		info.StatusCode = serverErr.StatusCode
		info.Message = serverErr.Message
		if info.Message == "" {
			info.Message = nethttp.StatusText(serverErr.StatusCode)
		}
	case errors.As(err, &malformedErr):
		info.Kind = KindMalformed
	case errors.Is(err, context.Canceled):
		info.Kind = KindCancelled
	case errors.As(err, &networkErr):
		info.Kind = KindNetwork
		if networkErr.Timeout() {
			info.Message = "request timed out: " + networkErr.Err.Error()
		}
	}
	return info
}

// IsRetryable reports whether a read could reasonably be retried: transport
// failures and 5xx responses. Writes are never retried automatically.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.StatusCode >= 500 || serverErr.StatusCode == nethttp.StatusTooManyRequests
	}
	var networkErr *NetworkError
	return errors.As(err, &networkErr)
}

// IsValidation reports whether err is a client-side ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// errorMessage extracts the service's {"error": "..."} text. FastAPI's
// {"detail": ...} shape is accepted too.
func errorMessage(body []byte) string {
	var payload struct {
		Error  string      `json:"error"`
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		switch d := payload.Detail.(type) {
		case string:
			return d
		case nil:
		default:
			return fmt.Sprint(d)
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	return msg
}
