package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error class markers. Every error leaving a component is tagged with one of
// them so callers can classify it with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrUpstream      = errors.New("upstream service error")
	ErrStorage       = errors.New("storage error")
	ErrValidation    = errors.New("validation error")
	ErrPersistence   = errors.New("persistence error")
)

var (
	// ErrKeyNotFound is returned by KeyValueStore.Get when no value is stored.
	ErrKeyNotFound = errors.New("key not found")
	// ErrUnauthenticated is returned by the document store for anonymous callers.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrInFlight rejects a duplicate of an operation that is still running.
	ErrInFlight = errors.New("operation already in progress")
	// ErrSessionClosed is returned once a session has been published or closed.
	ErrSessionClosed = errors.New("session closed")
)

// Wrap tags err with marker and prefixes it with the operation context.
// A nil marker is treated as ErrUpstream.
func Wrap(marker error, operation, message string, err error) error {
	if marker == nil {
		marker = ErrUpstream
	}

	detail := buildDetail(operation, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}

	return fmt.Errorf("%w: %s", marker, detail)
}

// MarkerOf returns the class marker err carries, or nil when it has none.
func MarkerOf(err error) error {
	for _, marker := range []error{
		ErrConfiguration, ErrValidation, ErrStorage, ErrPersistence, ErrUpstream,
		ErrUnauthenticated, ErrInFlight, ErrSessionClosed,
	} {
		if errors.Is(err, marker) {
			return marker
		}
	}

	return nil
}

// UserMessage renders a human-readable notification for err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "The studio is not configured correctly. Please contact support."
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in to publish."
	case errors.Is(err, ErrInFlight):
		return "Please wait for the current operation to finish."
	case errors.Is(err, ErrValidation):
		return "Please complete the required fields: " + lastSegment(err)
	case errors.Is(err, ErrStorage):
		return "Failed to store the generated file. Please try again."
	case errors.Is(err, ErrUpstream):
		return "The generation service failed. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}

	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}

	if len(parts) == 0 {
		return "operation failed"
	}

	return strings.Join(parts, ": ")
}

func lastSegment(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}

	return msg
}
