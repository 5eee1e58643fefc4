package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies gateway call failures.
type ErrorKind string

const (
	// KindAuth means the gateway rejected the credentials or bearer token.
	KindAuth ErrorKind = "auth"
	// KindTransport covers network errors, timeouts and non-auth HTTP failures.
	KindTransport ErrorKind = "transport"
	// KindRejected means the gateway answered but refused the message.
	KindRejected ErrorKind = "rejected"
	// KindInvalidResponse means the gateway answered with something unusable.
	KindInvalidResponse ErrorKind = "invalid_response"
)

var authFailureMarkers = []string{
	"unauthorized",
	"invalid token",
	"token expired",
}

// Error is a typed gateway failure.
type Error struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	parts = append(parts, "gateway "+e.Op+" failed")
	parts = append(parts, string(e.Kind))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsAuthFailure reports whether err means the bearer token or credentials were rejected.
// Timeouts and cancellations are never auth failures.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind == KindAuth
	}
	return false
}

// KindOf returns the error kind, or KindTransport for untyped errors.
func KindOf(err error) ErrorKind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindTransport
}

// StatusCodeOf returns the HTTP status carried by a gateway error, if any.
func StatusCodeOf(err error) int {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.StatusCode
	}
	return 0
}

func containsAuthMarker(values ...string) bool {
	for _, value := range values {
		normalized := strings.ToLower(value)
		for _, marker := range authFailureMarkers {
			if strings.Contains(normalized, marker) {
				return true
			}
		}
	}
	return false
}
