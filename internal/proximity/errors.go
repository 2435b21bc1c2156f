package proximity

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidURL      = errors.New("invalid dataset URL")
	ErrInvalidResponse = errors.New("invalid response")
	ErrNoData          = errors.New("no data in response")
)

// HTTPError reports a non-2xx status from a dataset endpoint.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// DecodingError wraps a failure to decode a feature collection.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("error decoding feature collection: %v", e.Err)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}
