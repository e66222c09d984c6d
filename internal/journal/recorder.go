package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/medwatch/internal/evaluator"
	"github.com/nerrad567/medwatch/internal/liveness"
	"github.com/nerrad567/medwatch/internal/monitor"
)

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// Logger defines the logging interface for the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Recorder turns monitor events into journal entries.
//
// Link status changes, link errors and profile selections are recorded
// as they arrive. Classifications are recorded only when the tier (or
// indeterminacy) differs from the last one recorded, so a steady
// reading stream produces no rows.
type Recorder struct {
	repo    Repository
	logger  Logger
	onError func(error)

	// Owned by Run.
	lastProfile string
	lastTier    evaluator.Tier
	lastIndet   bool
	hasTier     bool
}

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo Repository) (*Recorder, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	return &Recorder{repo: repo, logger: noopLogger{}}, nil
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// SetOnError sets a callback for failed writes. It runs on the
// recorder's goroutine.
func (r *Recorder) SetOnError(fn func(error)) {
	r.onError = fn
}

// Run records events until the channel is closed or ctx is done.
func (r *Recorder) Run(ctx context.Context, events <-chan monitor.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.Record(ctx, ev)
		}
	}
}

// Record writes the entry for ev, if it warrants one.
func (r *Recorder) Record(ctx context.Context, ev monitor.Event) {
	e, ok := r.entryFor(ev)
	if !ok {
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.repo.Create(wctx, &e); err != nil {
		err = fmt.Errorf("recording %s: %w", e.Kind, err)
		r.logger.Warn("journal write failed", "kind", e.Kind, "error", err)
		if r.onError != nil {
			r.onError(err)
		}
		return
	}
	r.logger.Debug("journal entry recorded", "kind", e.Kind, "id", e.ID)
}

func (r *Recorder) entryFor(ev monitor.Event) (Entry, bool) {
	switch e := ev.(type) {
	case monitor.LinkStatusEvent:
		return linkStatusEntry(e), true

	case monitor.LinkErrorEvent:
		return Entry{
			RecordedAt: e.At,
			Kind:       KindLinkError,
			Message:    e.Category + ": " + e.Reason,
		}, true

	case monitor.ProfileSelectedEvent:
		msg := "profile " + e.ProfileID + " selected"
		if !e.Known {
			msg = "unknown profile " + e.ProfileID + " selected"
		}
		return Entry{
			RecordedAt: e.At,
			Kind:       KindProfileChange,
			ProfileID:  e.ProfileID,
			Message:    msg,
		}, true

	case monitor.ClassificationEvent:
		return r.tierEntry(e)
	}
	return Entry{}, false
}

func linkStatusEntry(e monitor.LinkStatusEvent) Entry {
	kind := KindLinkState
	msg := string(e.State)
	if e.Previous != "" {
		msg = string(e.Previous) + " -> " + msg
	}
	if e.State == liveness.StateReconnectFailed {
		kind = KindReconnectExhausted
		msg = fmt.Sprintf("%s after %d attempts", msg, e.MaxAttempts)
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return Entry{
		RecordedAt: e.At,
		Kind:       kind,
		LinkState:  string(e.State),
		Message:    msg,
	}
}

func (r *Recorder) tierEntry(e monitor.ClassificationEvent) (Entry, bool) {
	same := r.hasTier &&
		e.ProfileID == r.lastProfile &&
		e.Indeterminate == r.lastIndet &&
		e.Result.Tier == r.lastTier
	if same {
		return Entry{}, false
	}
	r.hasTier = true
	r.lastProfile = e.ProfileID
	r.lastIndet = e.Indeterminate
	r.lastTier = e.Result.Tier

	temp, hum := e.Temp, e.Hum
	entry := Entry{
		RecordedAt:  e.At,
		Kind:        KindTierChange,
		ProfileID:   e.ProfileID,
		Temperature: &temp,
		Humidity:    &hum,
	}
	if e.Indeterminate {
		entry.Message = "status indeterminate: unknown profile " + e.ProfileID
		return entry, true
	}

	stability := e.Result.Stability
	entry.Tier = string(e.Result.Tier)
	entry.Stability = &stability
	entry.Message = e.Label
	if e.Alert != "" {
		entry.Message = e.Alert
	}
	return entry, true
}
