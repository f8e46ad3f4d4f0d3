package directory

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfigLoad is returned when the settings file cannot be read or parsed.
	ErrConfigLoad = errors.New("load configuration")
	// ErrUnexpectedStatus is matched by every non-200 directory response.
	ErrUnexpectedStatus = errors.New("unexpected http status")
	// ErrTransport is returned when the request cannot be built or sent.
	ErrTransport = errors.New("directory request failed")
	// ErrMalformedResponse is returned when a 200 body is not a valid user or event list.
	ErrMalformedResponse = errors.New("malformed directory response")
	// ErrEventsNotConfigured is returned by an events fetch when api.events.url is empty.
	ErrEventsNotConfigured = errors.New("events endpoint is not configured")
)

// StatusError carries the HTTP status of a rejected directory response.
type StatusError struct {
	// StatusCode is the code the service answered with.
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrUnexpectedStatus, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is makes errors.Is(err, ErrUnexpectedStatus) match any StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus //nolint:errorlint // Sentinel identity is intended.
}
