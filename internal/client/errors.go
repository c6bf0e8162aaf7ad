package client

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownOperation is returned for operations missing from the route table.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrMissingParam is returned when a path template parameter is empty.
	ErrMissingParam = errors.New("missing path parameter")

	// ErrInvalidBody is returned when a request body fails validation.
	ErrInvalidBody = errors.New("invalid request body")

	// ErrInvalidJSON is returned when a 2xx response body is not JSON.
	ErrInvalidJSON = errors.New("response is not valid JSON")
)

// maxErrorBody bounds how much of an error body is quoted in messages.
const maxErrorBody = 512

// APIError reports a non-2xx response when ThrowOnError is set.
type APIError struct {
	Op     Operation
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	body := string(e.Body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s: engine returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: engine returned status %d: %s", e.Op, e.Status, body)
}

// TransportError reports that no response was received. Calls are never retried.
type TransportError struct {
	Op  Operation
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request to %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
