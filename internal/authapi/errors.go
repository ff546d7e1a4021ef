// Package authapi provides the HTTP client for the SSO authentication
// endpoints (sign-in, credential renewal, sign-out) with error
// classification. It implements session.Authenticator.
package authapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, authapi.ErrUnauthorized) to check.
var (
	ErrBadRequest   = errors.New("authapi: bad request")
	ErrUnauthorized = errors.New("authapi: unauthorized")
	ErrForbidden    = errors.New("authapi: forbidden")
	ErrNotFound     = errors.New("authapi: not found")
	ErrServerError  = errors.New("authapi: server error")

	// ErrUnreachable marks transport-level failures: connection refused,
	// DNS, timeout. The server's state is unknown.
	ErrUnreachable = errors.New("authapi: endpoint unreachable")
)

// APIError wraps a sentinel error with the HTTP status code and the error
// message body the endpoint returned.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authapi: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
