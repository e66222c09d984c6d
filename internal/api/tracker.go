package api

import (
	"sync"
	"time"

	"github.com/nerrad567/medwatch/internal/monitor"
)

// Status is the latest known state of the monitor, assembled from its
// events. Sections are nil until the first event of their kind.
type Status struct {
	Profile        string                        `json:"profile"`
	Link           *monitor.LinkStatusEvent      `json:"link,omitempty"`
	LastError      *monitor.LinkErrorEvent       `json:"last_error,omitempty"`
	Temperature    *monitor.ReadingEvent         `json:"temperature,omitempty"`
	Humidity       *monitor.ReadingEvent         `json:"humidity,omitempty"`
	Classification *monitor.ClassificationEvent  `json:"classification,omitempty"`
	Reconnect      *monitor.ReconnectEvent       `json:"reconnect,omitempty"`
	History        *monitor.HistoryEvent         `json:"history,omitempty"`
	ProfileEvent   *monitor.ProfileSelectedEvent `json:"profile_selected,omitempty"`
	UpdatedAt      time.Time                     `json:"updated_at"`
}

// Tracker keeps a Status current.
//
// Thread Safety: all methods are safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	status Status
}

// NewTracker returns a Tracker reporting profile until told otherwise.
func NewTracker(profile string) *Tracker {
	return &Tracker{status: Status{Profile: profile}}
}

// Apply folds ev into the status.
func (t *Tracker) Apply(ev monitor.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case monitor.LinkStatusEvent:
		t.status.Link = &e
		// A fresh connection clears the reconnect counter shown to users.
		if e.State.Connected() {
			t.status.Reconnect = nil
		}
		t.status.UpdatedAt = e.At
	case monitor.LinkErrorEvent:
		t.status.LastError = &e
		t.status.UpdatedAt = e.At
	case monitor.ReadingEvent:
		switch e.Channel {
		case "temperature":
			t.status.Temperature = &e
		case "humidity":
			t.status.Humidity = &e
		}
		t.status.UpdatedAt = e.At
	case monitor.ClassificationEvent:
		t.status.Classification = &e
		t.status.UpdatedAt = e.At
	case monitor.ReconnectEvent:
		t.status.Reconnect = &e
		t.status.UpdatedAt = e.At
	case monitor.HistoryEvent:
		t.status.History = &e
		t.status.UpdatedAt = e.At
	case monitor.ProfileSelectedEvent:
		t.status.Profile = e.ProfileID
		t.status.ProfileEvent = &e
		t.status.UpdatedAt = e.At
	}
}

// Snapshot returns a copy of the status. The events it points at are
// never modified after Apply.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Profile returns the active profile identifier.
func (t *Tracker) Profile() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status.Profile
}
