package source

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when the API answers 429.
	ErrRateLimited = errors.New("source: rate limited")
	// ErrUnauthorized is returned when the token or the credentials are rejected.
	ErrUnauthorized = errors.New("source: unauthorized")
	// ErrRequestFailed covers every other non-2xx answer and transport failure.
	ErrRequestFailed = errors.New("source: request failed")
)

// APIError carries the status and a bounded excerpt of the response body.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// AuthError reports a failed token request or a rejected bearer token.
type AuthError struct {
	Stage string // "token" or "request"
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed at %s: %v", e.Stage, e.Err)
}

func (e *AuthError) Unwrap() []error { return []error{ErrUnauthorized, e.Err} }
