package common

import "fmt"

// TransportError wraps a failed exchange call. It is recoverable: callers
// log it and carry on with the next tick or event, never crash on it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("exchange: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError builds a TransportError for the named call.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}
