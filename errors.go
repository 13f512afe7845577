package main

import (
	"errors"
	"fmt"
)

var (
	// errNoData is returned by queries before any snapshot was committed.
	errNoData = errors.New("no cached data yet")
	// errUserNotFound means the message log has no entry for the username.
	errUserNotFound = errors.New("user not found")
	// errMissingArgument is returned when a command's required argument is absent.
	errMissingArgument = errors.New("missing argument")
)

// fetchError covers every transport-level failure for one resource: network
// errors, timeouts and non-2xx responses. Status is zero when no response
// was received.
type fetchError struct {
	Resource resourceName
	Status   int
	Err      error
}

func (e *fetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: http status %d", e.Resource, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.Resource, e.Err)
}

func (e *fetchError) Unwrap() error { return e.Err }

// parseError means the payload arrived but could not be decoded into its
// dataset.
type parseError struct {
	Resource resourceName
	Err      error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Resource, e.Err)
}

func (e *parseError) Unwrap() error { return e.Err }

// failureKind labels a cycle failure for logs and metrics.
func failureKind(err error) string {
	var fe *fetchError
	var pe *parseError
	switch {
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &fe):
		if fe.Status != 0 {
			return "status"
		}
		if errors.Is(fe.Err, errFetchTimeout) {
			return "timeout"
		}
		if errors.Is(fe.Err, errPayloadTooLarge) {
			return "too_large"
		}
		return "network"
	default:
		return "other"
	}
}
