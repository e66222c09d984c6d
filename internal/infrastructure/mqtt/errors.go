package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails for a
	// reason the broker did not report in its CONNACK.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt: operation timed out")
)

// Connection refusals reported by the broker in CONNACK (MQTT 3.1.1 codes 1-5).
var (
	// ErrBadProtocol is CONNACK code 1.
	ErrBadProtocol = errors.New("mqtt: broker refused protocol version")

	// ErrIdentifierRejected is CONNACK code 2.
	ErrIdentifierRejected = errors.New("mqtt: client identifier rejected")

	// ErrServerUnavailable is CONNACK code 3.
	ErrServerUnavailable = errors.New("mqtt: server unavailable")

	// ErrBadCredentials is CONNACK code 4.
	ErrBadCredentials = errors.New("mqtt: bad username or password")

	// ErrNotAuthorized is CONNACK code 5.
	ErrNotAuthorized = errors.New("mqtt: not authorized")
)
