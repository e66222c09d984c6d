package telemetry

import (
	"errors"
	"time"

	"github.com/nerrad567/medwatch/internal/infrastructure/mqtt"
)

// Channel identifies a telemetry series.
type Channel int

// Telemetry channels.
const (
	Temperature Channel = iota
	Humidity
)

// String returns "temperature" or "humidity".
func (c Channel) String() string {
	switch c {
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	default:
		return "unknown"
	}
}

// Reading is one value received from the device.
type Reading struct {
	Channel    Channel   `json:"-"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// EventKind discriminates Events.
type EventKind int

// Event kinds, matching the link states they report.
const (
	EventConnected EventKind = iota
	EventDisconnected
	EventError
	EventReading
)

// String returns a lower-case name for the kind.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventReading:
		return "reading"
	default:
		return "unknown"
	}
}

// Category is a human-readable class of transport failure.
type Category string

// Failure categories.
const (
	CategoryBadProtocol        Category = "bad protocol"
	CategoryIdentifierRejected Category = "identifier rejected"
	CategoryServerUnavailable  Category = "server unavailable"
	CategoryBadCredentials     Category = "bad credentials"
	CategoryUnauthorized       Category = "unauthorized"
	CategoryConnectionLost     Category = "connection lost"
	CategoryUnknown            Category = "unknown"
)

// Event is a single link occurrence. Reading is set for EventReading;
// Category, Reason and Err are set for EventError and, when the link
// dropped unexpectedly, for EventDisconnected.
type Event struct {
	Kind     EventKind
	At       time.Time
	Reading  Reading
	Category Category
	Reason   string
	Err      error
}

// Categorize maps a transport error onto a failure category.
func Categorize(err error) Category {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, mqtt.ErrBadProtocol):
		return CategoryBadProtocol
	case errors.Is(err, mqtt.ErrIdentifierRejected):
		return CategoryIdentifierRejected
	case errors.Is(err, mqtt.ErrServerUnavailable):
		return CategoryServerUnavailable
	case errors.Is(err, mqtt.ErrBadCredentials):
		return CategoryBadCredentials
	case errors.Is(err, mqtt.ErrNotAuthorized):
		return CategoryUnauthorized
	default:
		return CategoryUnknown
	}
}
