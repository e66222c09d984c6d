package telemetry

import "errors"

var (
	// ErrMalformedPayload is returned by ParseValue for payloads that are
	// not a finite decimal number.
	ErrMalformedPayload = errors.New("telemetry: malformed payload")

	// ErrNilTransport is returned by NewLink when no transport is given.
	ErrNilTransport = errors.New("telemetry: transport is required")
)
