package micro

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigValidation wraps every invalid-argument failure: bad
	// service names, malformed versions, bad subjects, bad error codes.
	ErrConfigValidation = errors.New("validation")

	// ErrServiceStopped is returned by operations that require a
	// running service.
	ErrServiceStopped = errors.New("service stopped")

	// ErrDuplicateEndpoint is returned when an endpoint name is
	// already taken within the service.
	ErrDuplicateEndpoint = errors.New("duplicate endpoint")

	// ErrNoReplySubject is returned by Respond and Error when the
	// request carries no reply subject.
	ErrNoReplySubject = errors.New("no reply subject")

	// ErrVerbNotSupported is returned for verbs outside PING, INFO
	// and STATS.
	ErrVerbNotSupported = errors.New("unsupported verb")

	// ErrServiceNameRequired is returned by ControlSubject when an id
	// is given without a service name.
	ErrServiceNameRequired = errors.New("service name is required")
)

// BusError describes a transport-level failure on one of the service's
// subscriptions. It is handed to the configured ErrorHandler.
type BusError struct {
	Subject     string
	Description string
}

func (e *BusError) Error() string {
	return fmt.Sprintf("%q: %s", e.Subject, e.Description)
}
