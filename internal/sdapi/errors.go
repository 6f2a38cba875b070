package sdapi

import (
	"errors"
	"fmt"
)

// ErrNoImages is returned when a successful generation response carries no images.
var ErrNoImages = errors.New("sdapi: response contained no images")

// RemoteError is a non-2xx answer from the generation service.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sdapi: http %d", e.StatusCode)
	}
	return fmt.Sprintf("sdapi: http %d: %s", e.StatusCode, e.Body)
}

// ConnectionError wraps a transport level failure (refused, reset, timed out).
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("sdapi: connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err came from the transport rather than the service.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
