package app

import (
	"errors"
	"fmt"
)

// RemoteError represents a failed gateway call: transport failure, timeout,
// or a non-2xx response. Status is 0 when the request never reached the server.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote error: %s", e.Message)
	}
	return fmt.Sprintf("remote error: status %d: %s", e.Status, e.Message)
}

// PersistenceError represents a durable-storage read or write failure.
type PersistenceError struct {
	Path string
	Op   string // "read", "write", "parse"
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ValidationError is rejected at the call boundary and never reaches the
// gateway: empty query text, no file selected, double submit while in flight.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
