package monitor

import (
	"time"

	"github.com/nerrad567/medwatch/internal/evaluator"
	"github.com/nerrad567/medwatch/internal/history"
	"github.com/nerrad567/medwatch/internal/liveness"
)

// Event type names, as carried on the WebSocket feed and in the journal.
const (
	TypeLinkStatus      = "link_status"
	TypeLinkError       = "link_error"
	TypeReading         = "reading"
	TypeClassification  = "classification"
	TypeReconnect       = "reconnect"
	TypeHistory         = "history"
	TypeProfileSelected = "profile_selected"
)

// Event is an output of the monitor loop.
type Event interface {
	EventType() string
}

// LinkStatusEvent reports a change of link health.
type LinkStatusEvent struct {
	At          time.Time      `json:"at"`
	State       liveness.State `json:"state"`
	Previous    liveness.State `json:"previous,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	LastDataAt  *time.Time     `json:"last_data_at,omitempty"`

	// IdleFor is the time since the last reading, in nanoseconds on the wire.
	IdleFor time.Duration `json:"idle_for"`
}

// EventType implements Event.
func (LinkStatusEvent) EventType() string { return TypeLinkStatus }

// LinkErrorEvent reports a categorized transport failure.
type LinkErrorEvent struct {
	At       time.Time `json:"at"`
	Category string    `json:"category"`
	Reason   string    `json:"reason"`
}

// EventType implements Event.
func (LinkErrorEvent) EventType() string { return TypeLinkError }

// ReadingEvent reports one received value.
type ReadingEvent struct {
	At      time.Time `json:"at"`
	Channel string    `json:"channel"`
	Value   float64   `json:"value"`
}

// EventType implements Event.
func (ReadingEvent) EventType() string { return TypeReading }

// ClassificationEvent reports the evaluation of the latest reading pair
// against the active profile. Indeterminate is set when the active
// profile is unknown; Result, Label and Alert are then empty.
type ClassificationEvent struct {
	At            time.Time        `json:"at"`
	ProfileID     string           `json:"profile_id"`
	ProfileName   string           `json:"profile_name,omitempty"`
	Temp          float64          `json:"temp"`
	Hum           float64          `json:"hum"`
	Result        evaluator.Result `json:"result"`
	Indeterminate bool             `json:"indeterminate"`
	Label         string           `json:"label,omitempty"`
	Alert         string           `json:"alert,omitempty"`
}

// EventType implements Event.
func (ClassificationEvent) EventType() string { return TypeClassification }

// ReconnectEvent reports an automatic reconnect attempt.
type ReconnectEvent struct {
	At          time.Time `json:"at"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
}

// EventType implements Event.
func (ReconnectEvent) EventType() string { return TypeReconnect }

// HistoryEvent carries the chart window after a new point was added.
type HistoryEvent struct {
	At          time.Time       `json:"at"`
	Points      []history.Point `json:"points"`
	Temperature history.Stats   `json:"temperature"`
	Humidity    history.Stats   `json:"humidity"`
}

// EventType implements Event.
func (HistoryEvent) EventType() string { return TypeHistory }

// ProfileSelectedEvent reports a change of the active profile. Known is
// false for identifiers not in the profile table.
type ProfileSelectedEvent struct {
	At          time.Time `json:"at"`
	ProfileID   string    `json:"profile_id"`
	ProfileName string    `json:"profile_name,omitempty"`
	Known       bool      `json:"known"`
}

// EventType implements Event.
func (ProfileSelectedEvent) EventType() string { return TypeProfileSelected }
