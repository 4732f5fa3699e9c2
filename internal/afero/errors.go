package afero

import (
	"errors"
	"fmt"
)

var (
	// ErrExceededRetries means the retry budget ran out on retryable statuses.
	ErrExceededRetries = errors.New("exceeded maximum number of retries")

	// ErrForbidden means the API rejected the call with 403. Not retryable.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidAuth means the supplied credentials were rejected.
	ErrInvalidAuth = errors.New("invalid credentials")

	// ErrDeviceNotFound means no controller claims the requested device id.
	ErrDeviceNotFound = errors.New("device not found")
)

// MalformedDeviceError marks one device payload that could not be mapped.
// The rest of the poll batch is unaffected.
type MalformedDeviceError struct {
	ID  string
	Err error
}

func (e *MalformedDeviceError) Error() string {
	if e == nil {
		return "malformed device payload"
	}
	if e.ID == "" {
		return fmt.Sprintf("malformed device payload: %v", e.Err)
	}
	return fmt.Sprintf("malformed payload for device %q: %v", e.ID, e.Err)
}

func (e *MalformedDeviceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StatusError carries a non-retryable HTTP failure back to the caller.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "unexpected status"
	}
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}
