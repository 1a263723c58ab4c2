// Package chaterr defines the typed errors returned by the chat API.
// Codes have the form "type:surface", e.g. "rate_limit:chat".
package chaterr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Type string

const (
	BadRequest   Type = "bad_request"
	Unauthorized Type = "unauthorized"
	Forbidden    Type = "forbidden"
	NotFound     Type = "not_found"
	RateLimit    Type = "rate_limit"
	Offline      Type = "offline"
)

type Surface string

const (
	SurfaceAPI             Surface = "api"
	SurfaceChat            Surface = "chat"
	SurfaceHistory         Surface = "history"
	SurfaceStream          Surface = "stream"
	SurfaceActivateGateway Surface = "activate_gateway"
)

// Error is an API-visible failure.
type Error struct {
	Type    Type
	Surface Surface
	Cause   string
	Err     error
}

// New parses a "type:surface" code. Unknown codes map to offline:api.
func New(code string) *Error {
	typ, surface, ok := strings.Cut(code, ":")
	if !ok {
		return &Error{Type: Offline, Surface: SurfaceAPI}
	}
	e := &Error{Type: Type(typ), Surface: Surface(surface)}
	if e.Status() == http.StatusInternalServerError {
		return &Error{Type: Offline, Surface: SurfaceAPI}
	}
	return e
}

// Wrap parses code and attaches an underlying error. The underlying error is
// logged but never sent to clients.
func Wrap(code string, err error) *Error {
	e := New(code)
	e.Err = err
	return e
}

// WithCause returns a copy carrying a client-visible cause.
func (e *Error) WithCause(cause string) *Error {
	c := *e
	c.Cause = cause
	return &c
}

func (e *Error) Code() string {
	return string(e.Type) + ":" + string(e.Surface)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code(), e.Message(), e.Err)
	}
	return e.Code() + ": " + e.Message()
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error type to an HTTP status.
func (e *Error) Status() int {
	switch e.Type {
	case BadRequest:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case RateLimit:
		return http.StatusTooManyRequests
	case Offline:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-facing text for the code.
func (e *Error) Message() string {
	if e.Code() == "bad_request:activate_gateway" {
		return "The model gateway requires a valid credit card on file to service requests. Please add one and try again."
	}
	if e.Type == BadRequest {
		return "The request couldn't be processed. Please check your input and try again."
	}

	switch e.Surface {
	case SurfaceChat:
		switch e.Type {
		case Unauthorized:
			return "You need to sign in to view this chat. Please sign in and try again."
		case Forbidden:
			return "This chat belongs to another user. Please check the chat ID and try again."
		case NotFound:
			return "The requested chat was not found. Please check the chat ID and try again."
		case RateLimit:
			return "You have exceeded your maximum number of messages for the day. Please try again later."
		case Offline:
			return "We're having trouble sending your message. Please check your internet connection and try again."
		}
	case SurfaceHistory:
		return "Unable to load chat history. Please try again later."
	case SurfaceStream:
		if e.Type == NotFound {
			return "The requested stream was not found."
		}
	}

	switch e.Type {
	case Unauthorized:
		return "You need to sign in before continuing."
	case Forbidden:
		return "Your account does not have access to this feature."
	case NotFound:
		return "The requested resource was not found."
	case RateLimit:
		return "Too many requests. Please slow down and try again later."
	}
	return "Something went wrong. Please try again later."
}

type payload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// WriteHTTP writes the error as a JSON response.
func (e *Error) WriteHTTP(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status())
	_ = json.NewEncoder(w).Encode(payload{Code: e.Code(), Message: e.Message(), Cause: e.Cause})
}

// Decode parses a JSON error body written by WriteHTTP.
func Decode(status int, body []byte) *Error {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil || p.Code == "" {
		return &Error{Type: typeForStatus(status), Surface: SurfaceAPI, Cause: strings.TrimSpace(string(body))}
	}
	e := New(p.Code)
	e.Cause = p.Cause
	return e
}

func typeForStatus(status int) Type {
	switch status {
	case http.StatusBadRequest:
		return BadRequest
	case http.StatusUnauthorized:
		return Unauthorized
	case http.StatusForbidden:
		return Forbidden
	case http.StatusNotFound:
		return NotFound
	case http.StatusTooManyRequests:
		return RateLimit
	default:
		return Offline
	}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
