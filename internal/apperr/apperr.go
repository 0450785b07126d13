// Package apperr is the closed set of application error kinds shared by the
// HTTP API and its clients. Errors cross the wire as stable codes, never as
// free text to be matched.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error.
type Kind int

const (
	Unknown Kind = iota
	Validation
	Unauthorized
	NotFound
	Conflict
	RateLimited
	CodeExpired
	CodeInvalid
	SessionMissing
	Unavailable
)

var kindCodes = map[Kind]string{
	Unknown:        "unknown",
	Validation:     "validation_failed",
	Unauthorized:   "unauthorized",
	NotFound:       "not_found",
	Conflict:       "conflict",
	RateLimited:    "rate_limited",
	CodeExpired:    "otp_expired",
	CodeInvalid:    "otp_invalid",
	SessionMissing: "session_missing",
	Unavailable:    "unavailable",
}

// Code returns the wire code for k.
func (k Kind) Code() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[Unknown]
}

func (k Kind) String() string { return k.Code() }

// KindFromCode maps a wire code back to its kind. Unrecognised codes are Unknown.
func KindFromCode(code string) Kind {
	for k, c := range kindCodes {
		if c == code {
			return k
		}
	}
	return Unknown
}

// HTTPStatus is the response status used for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation, CodeInvalid:
		return http.StatusBadRequest
	case Unauthorized, SessionMissing:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case RateLimited:
		return http.StatusTooManyRequests
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// KindFromStatus guesses a kind when a response carried no error code.
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return Validation
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return Unauthorized
	case status == http.StatusNotFound:
		return NotFound
	case status == http.StatusConflict:
		return Conflict
	case status == http.StatusTooManyRequests:
		return RateLimited
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return Unavailable
	default:
		return Unknown
	}
}

// Error is an application error with a kind and an optional retry hint.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Code()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf builds an error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Limited is a RateLimited error carrying how long to wait.
func Limited(retryAfter time.Duration, msg string) *Error {
	return &Error{Kind: RateLimited, Message: msg, RetryAfter: retryAfter}
}

// KindOf extracts the kind of err. Context deadlines count as Unavailable.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Unavailable
	}
	return Unknown
}

// Is reports whether err is an application error of kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// RetryAfter returns the retry hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Retryable reports whether repeating the same call may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case RateLimited, Unavailable:
		return true
	}
	return false
}

const genericMessage = "Something went wrong. Please try again."

// UserMessage renders err for display.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		if errors.Is(err, context.DeadlineExceeded) {
			return "The service is unreachable right now. Check your connection and try again."
		}
		return genericMessage
	}
	switch e.Kind {
	case RateLimited:
		if secs := int((e.RetryAfter + time.Second - 1) / time.Second); secs > 0 {
			return fmt.Sprintf("Too many requests. Please wait %d seconds and try again.", secs)
		}
		return "Too many requests. Please wait a moment and try again."
	case CodeExpired:
		return "Your code has expired. Request a new one."
	case CodeInvalid:
		return "That code is not valid. Check it and try again."
	case SessionMissing:
		return "Your reset session is no longer valid. Request a new code."
	case Unavailable:
		return "The service is unreachable right now. Check your connection and try again."
	case Validation, Unauthorized, NotFound, Conflict:
		if e.Message != "" {
			return e.Message
		}
		if e.Kind == Unauthorized {
			return "Please sign in again."
		}
		return genericMessage
	default:
		return genericMessage
	}
}

// Payload is the wire form of an error.
type Payload struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// Envelope wraps a payload in an API response body.
type Envelope struct {
	Error Payload `json:"error"`
}

// ToPayload converts err for the wire. Non-application errors become Unknown
// with a generic message so internals do not leak.
func ToPayload(err error) Payload {
	var e *Error
	if !errors.As(err, &e) {
		return Payload{Code: Unknown.Code(), Message: "internal error"}
	}
	p := Payload{Code: e.Kind.Code(), Message: e.Message}
	if e.RetryAfter > 0 {
		p.RetryAfterSeconds = int((e.RetryAfter + time.Second - 1) / time.Second)
	}
	return p
}

// FromPayload rebuilds an error received with the given HTTP status.
func FromPayload(status int, p Payload) *Error {
	kind := KindFromCode(p.Code)
	if p.Code == "" || (kind == Unknown && p.Code != Unknown.Code()) {
		kind = KindFromStatus(status)
	}
	return &Error{
		Kind:       kind,
		Message:    p.Message,
		RetryAfter: time.Duration(p.RetryAfterSeconds) * time.Second,
	}
}
