package supportgraph

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Use errors.Is() to check.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRateLimited         = errors.New("rate limited")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrUnavailable         = errors.New("service unavailable")
	// ErrJobFailed is returned with a non-nil Report when the job failed as a whole.
	ErrJobFailed = errors.New("job failed")
)

// APIError is an error response returned by the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supportgraph: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the response status onto a sentinel.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadGateway:
		return ErrProviderUnavailable
	case http.StatusServiceUnavailable:
		return ErrUnavailable
	}
	return nil
}
