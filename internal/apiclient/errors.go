package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind is the client-side classification of a failed call
type Kind string

const (
	// KindOffline: no response and the connectivity monitor reports offline
	KindOffline Kind = "OFFLINE_MODE"
	// KindNetwork: no response despite apparent connectivity (timeouts included)
	KindNetwork Kind = "NETWORK_ERROR"
	// KindUnauthorized: 401, passed through to the caller
	KindUnauthorized Kind = "UNAUTHORIZED"
	// KindAccessDenied: 403
	KindAccessDenied Kind = "ACCESS_DENIED"
	// KindServer: 500
	KindServer Kind = "SERVER_ERROR"
	// KindUnavailable: 503
	KindUnavailable Kind = "SERVICE_UNAVAILABLE"
	// KindHTTP: any other non-2xx status, unchanged
	KindHTTP Kind = "HTTP_ERROR"
	// KindCanceled: the caller's context ended before a response arrived
	KindCanceled Kind = "CANCELED"
)

const (
	msgOffline      = "You are offline. Please check your internet connection."
	msgNetwork      = "Unable to reach the server. Please try again later."
	msgAccessDenied = "You do not have permission to perform this action."
	msgServer       = "The server encountered an error. Please try again later."
	msgUnavailable  = "The service is temporarily unavailable. Please try again later."
)

// Error is returned for every failed call made through Client
type Error struct {
	Kind    Kind
	Status  int // 0 when no response was received
	Message string
	Method  string
	Path    string
	Body    []byte

	// ServerMessage is the message the server put in the body, if any.
	// Message falls back to a generic text when this is empty.
	ServerMessage string

	// RetryAfter is set for 429 responses that carry a Retry-After header
	RetryAfter time.Duration

	Err error // underlying transport error, if any
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %s: %v", e.Method, e.Path, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Path, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts an *Error from err
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// KindOf returns the classification of err, or "" for foreign errors
func KindOf(err error) Kind {
	if apiErr, ok := AsError(err); ok {
		return apiErr.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0
func StatusOf(err error) int {
	if apiErr, ok := AsError(err); ok {
		return apiErr.Status
	}
	return 0
}

// MessageOf returns the user-facing message carried by err, falling back
// to fallback for foreign errors or empty messages
func MessageOf(err error, fallback string) string {
	if apiErr, ok := AsError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

func IsOffline(err error) bool      { return KindOf(err) == KindOffline }
func IsNetwork(err error) bool      { return KindOf(err) == KindNetwork }
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }
func IsAccessDenied(err error) bool { return KindOf(err) == KindAccessDenied }

// IsServerFault reports 500 and 503 classifications
func IsServerFault(err error) bool {
	k := KindOf(err)
	return k == KindServer || k == KindUnavailable
}

// classifyStatus builds the error for a non-2xx response
func classifyStatus(method, path string, resp *http.Response, body []byte) *Error {
	e := &Error{
		Status: resp.StatusCode,
		Method: method,
		Path:   path,
		Body:   body,
	}
	serverMsg := serverMessage(body)
	e.ServerMessage = serverMsg

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		e.Kind = KindUnauthorized
		e.Message = orDefault(serverMsg, http.StatusText(resp.StatusCode))
	case http.StatusForbidden:
		e.Kind = KindAccessDenied
		e.Message = orDefault(serverMsg, msgAccessDenied)
	case http.StatusInternalServerError:
		e.Kind = KindServer
		e.Message = orDefault(serverMsg, msgServer)
	case http.StatusServiceUnavailable:
		e.Kind = KindUnavailable
		e.Message = orDefault(serverMsg, msgUnavailable)
	default:
		e.Kind = KindHTTP
		e.Message = orDefault(serverMsg, http.StatusText(resp.StatusCode))
		if resp.StatusCode == http.StatusTooManyRequests {
			e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
	}
	return e
}

// serverMessage pulls a human-readable message out of a JSON error body
func serverMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, m := range []string{payload.Message, payload.Error, payload.Msg} {
		if s := strings.TrimSpace(m); s != "" {
			return s
		}
	}
	return ""
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

// parseRetryAfter parses the Retry-After header
// Supports both integer seconds and HTTP-date format
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}
