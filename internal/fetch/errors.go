package fetch

import (
	"errors"
	"fmt"
)

// ErrServiceUnavailable marks failures to retrieve data from a remote service.
var ErrServiceUnavailable = errors.New("service unavailable")

// ServiceError describes a failed request. It matches ErrServiceUnavailable
// with errors.Is and also unwraps to the underlying cause.
type ServiceError struct {
	Err     error
	Service string
	URL     string
	Status  int
}

func (e *ServiceError) Error() string {
	msg := e.Service + ": " + ErrServiceUnavailable.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns both the sentinel and the cause.
func (e *ServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrServiceUnavailable}
	}
	return []error{ErrServiceUnavailable, e.Err}
}
