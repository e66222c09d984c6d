package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/medwatch/internal/evaluator"
	"github.com/nerrad567/medwatch/internal/history"
	"github.com/nerrad567/medwatch/internal/liveness"
	"github.com/nerrad567/medwatch/internal/profile"
	"github.com/nerrad567/medwatch/internal/telemetry"
)

// Loop timing defaults.
const (
	DefaultCheckInterval     = 3 * time.Second
	DefaultReconnectInterval = 5 * time.Second

	// requestBuffer bounds queued SelectProfile/Restart/SendCommand calls.
	requestBuffer = 16
)

// Link is the telemetry source the monitor drives.
// *telemetry.Link satisfies it.
type Link interface {
	Events() <-chan telemetry.Event
	Connect()
	Disconnect()
	IsConnected() bool
	PublishCommand(cmd string)
}

// Logger defines the logging interface for the monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Config holds monitor settings.
type Config struct {
	CheckInterval     time.Duration
	ReconnectInterval time.Duration
	Liveness          liveness.Config
	HistoryCapacity   int

	// Profile is the identifier active at startup.
	Profile string
}

// Monitor is the single foreground loop.
type Monitor struct {
	cfg    Config
	link   Link
	logger Logger
	now    func() time.Time

	// Loop-owned state. Only touched from Run's goroutine.
	sup       *liveness.Supervisor
	hist      *history.Buffer
	temp      float64
	hum       float64
	hasTemp   bool
	hasHum    bool
	profileID string
	reconnect *time.Ticker

	requests chan func()
	done     chan struct{}
	running  atomic.Bool

	subsMu  sync.Mutex
	subs    []*subscriber
	dropped atomic.Uint64
}

// stickyTypes are the event types that describe current state. A full
// subscriber keeps the latest of each and receives it once there is room,
// in this order.
var stickyTypes = [...]string{TypeLinkStatus, TypeProfileSelected, TypeClassification}

func isSticky(eventType string) bool {
	for _, t := range stickyTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// subscriber is one consumer channel and its undelivered state events.
type subscriber struct {
	ch      chan Event
	pending map[string]Event
}

// flush delivers pending state events while the channel has room. It
// reports whether nothing is left pending.
func (s *subscriber) flush() bool {
	for _, t := range stickyTypes {
		ev, ok := s.pending[t]
		if !ok {
			continue
		}
		select {
		case s.ch <- ev:
			delete(s.pending, t)
		default:
			return false
		}
	}
	return true
}

// New creates a Monitor. Call Subscribe for each consumer, then Run.
func New(link Link, cfg Config) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = history.DefaultCapacity
	}

	return &Monitor{
		cfg:       cfg,
		link:      link,
		logger:    noopLogger{},
		now:       time.Now,
		sup:       liveness.New(cfg.Liveness),
		hist:      history.NewBuffer(cfg.HistoryCapacity),
		profileID: cfg.Profile,
		requests:  make(chan func(), requestBuffer),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.logger = logger
}

// Subscribe returns a channel receiving every output event. The channel
// is closed when Run returns.
//
// A subscriber whose buffer is full loses ReadingEvent, HistoryEvent,
// ReconnectEvent and LinkErrorEvent values. LinkStatusEvent,
// ProfileSelectedEvent and ClassificationEvent are never lost outright:
// the latest of each type is held back and delivered as soon as the
// buffer has room, so intermediate values of one type may be coalesced
// but the current state always arrives.
func (m *Monitor) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, &subscriber{ch: ch, pending: make(map[string]Event)})
	m.subsMu.Unlock()
	return ch
}

// Dropped returns how many events were discarded or superseded for slow
// subscribers.
func (m *Monitor) Dropped() uint64 {
	return m.dropped.Load()
}

// Run executes the loop until ctx is cancelled. It connects the link
// once at start and disconnects it on exit.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.shutdown()

	check := time.NewTicker(m.cfg.CheckInterval)
	defer check.Stop()

	m.publish(m.statusEvent(liveness.Action{State: m.sup.State()}, ""))
	m.announceProfile()

	m.logger.Info("monitor started",
		"profile", m.profileID,
		"check_interval", m.cfg.CheckInterval,
		"reconnect_interval", m.cfg.ReconnectInterval,
	)
	m.link.Connect()

	events := m.link.Events()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return nil

		case ev := <-events:
			m.handleLinkEvent(ev)

		case now := <-check.C:
			m.handleCheck(now)

		case <-m.reconnectC():
			m.handleReconnectDue()

		case req := <-m.requests:
			req()
		}
	}
}

func (m *Monitor) shutdown() {
	m.stopReconnectTimer()
	m.link.Disconnect()
	close(m.done)

	m.subsMu.Lock()
	for _, sub := range m.subs {
		close(sub.ch)
	}
	m.subs = nil
	m.subsMu.Unlock()
}

// SelectProfile makes id the active profile. Unknown identifiers are
// accepted and yield indeterminate classifications.
func (m *Monitor) SelectProfile(id string) error {
	return m.submit(func() {
		if id == m.profileID {
			return
		}
		m.profileID = id
		m.announceProfile()
		m.evaluate()
	})
}

// Restart leaves any link state, including reconnect exhaustion, and
// starts a fresh connection with the attempt counter cleared.
func (m *Monitor) Restart() error {
	return m.submit(func() {
		m.logger.Info("manual restart requested", "state", m.sup.State())
		m.link.Disconnect()
		m.apply(m.sup.Restart(), "manual restart")
	})
}

// SendCommand publishes cmd to the device. It is dropped if the link is
// down.
func (m *Monitor) SendCommand(cmd string) error {
	return m.submit(func() {
		m.link.PublishCommand(cmd)
	})
}

func (m *Monitor) submit(fn func()) error {
	select {
	case <-m.done:
		return ErrStopped
	default:
	}
	select {
	case m.requests <- fn:
		return nil
	case <-m.done:
		return ErrStopped
	}
}

// handleLinkEvent dispatches one telemetry event.
func (m *Monitor) handleLinkEvent(ev telemetry.Event) {
	switch ev.Kind {
	case telemetry.EventConnected:
		m.apply(m.sup.HandleConnected(), "")

	case telemetry.EventDisconnected:
		m.apply(m.sup.HandleDisconnected(), ev.Reason)

	case telemetry.EventError:
		m.publish(LinkErrorEvent{At: ev.At, Category: string(ev.Category), Reason: ev.Reason})
		m.logger.Warn("link error", "category", ev.Category, "reason", ev.Reason)
		m.apply(m.sup.HandleError(ev.Reason), ev.Reason)

	case telemetry.EventReading:
		m.handleReading(ev.Reading)
	}
}

func (m *Monitor) handleReading(r telemetry.Reading) {
	switch r.Channel {
	case telemetry.Temperature:
		m.temp, m.hasTemp = r.Value, true
	case telemetry.Humidity:
		m.hum, m.hasHum = r.Value, true
	default:
		return
	}

	m.publish(ReadingEvent{At: r.ObservedAt, Channel: r.Channel.String(), Value: r.Value})
	m.apply(m.sup.HandleReading(r.ObservedAt), "")

	if !m.hasTemp || !m.hasHum {
		return
	}

	m.hist.Push(m.temp, m.hum, r.ObservedAt)
	m.publish(HistoryEvent{
		At:          r.ObservedAt,
		Points:      m.hist.Points(),
		Temperature: m.hist.Stats(history.Temperature),
		Humidity:    m.hist.Stats(history.Humidity),
	})
	m.evaluate()
}

// evaluate publishes a classification of the current pair, if complete.
func (m *Monitor) evaluate() {
	if !m.hasTemp || !m.hasHum {
		return
	}

	ev := ClassificationEvent{
		At:        m.now(),
		ProfileID: m.profileID,
		Temp:      m.temp,
		Hum:       m.hum,
	}

	e, ok := evaluator.Evaluate(m.temp, m.hum, m.profileID)
	if !ok {
		ev.Indeterminate = true
		m.publish(ev)
		return
	}

	ev.ProfileName = e.Profile.Name
	ev.Result = e.Result
	ev.Label = e.Label
	ev.Alert = e.Alert
	m.publish(ev)
}

func (m *Monitor) announceProfile() {
	ev := ProfileSelectedEvent{At: m.now(), ProfileID: m.profileID}
	if p, err := profile.Get(m.profileID); err == nil {
		ev.ProfileName = p.Name
		ev.Known = true
	} else {
		m.logger.Warn("classification indeterminate", "error", err)
	}
	m.publish(ev)
}

func (m *Monitor) handleCheck(now time.Time) {
	m.flushPending()
	m.apply(m.sup.Tick(now, m.link.IsConnected()), "")
}

func (m *Monitor) handleReconnectDue() {
	a := m.sup.ReconnectDue()
	if a.Reconnect {
		m.publish(ReconnectEvent{At: m.now(), Attempt: m.sup.Attempts(), MaxAttempts: m.sup.MaxAttempts()})
		m.logger.Info("reconnecting", "attempt", m.sup.Attempts(), "max_attempts", m.sup.MaxAttempts())
	}
	reason := ""
	if a.Changed && a.State == liveness.StateReconnectFailed {
		reason = "reconnect attempts exhausted"
		m.logger.Warn("giving up on broker", "attempts", m.sup.MaxAttempts())
	}
	m.apply(a, reason)
}

// apply carries out a supervisor Action.
func (m *Monitor) apply(a liveness.Action, reason string) {
	switch a.Timer {
	case liveness.TimerStart:
		m.startReconnectTimer()
	case liveness.TimerStop:
		m.stopReconnectTimer()
	}

	if a.Changed {
		m.logger.Debug("link state changed", "from", a.Previous, "to", a.State)
		m.publish(m.statusEvent(a, reason))
	}

	if a.Reconnect {
		m.link.Connect()
	}
}

func (m *Monitor) statusEvent(a liveness.Action, reason string) LinkStatusEvent {
	now := m.now()
	snap := m.sup.Snapshot()
	return LinkStatusEvent{
		At:          now,
		State:       a.State,
		Previous:    a.Previous,
		Reason:      reason,
		Attempts:    snap.Attempts,
		MaxAttempts: snap.MaxAttempts,
		LastDataAt:  snap.LastDataAt,
		IdleFor:     m.sup.IdleFor(now),
	}
}

func (m *Monitor) startReconnectTimer() {
	if m.reconnect != nil {
		return
	}
	m.reconnect = time.NewTicker(m.cfg.ReconnectInterval)
}

func (m *Monitor) stopReconnectTimer() {
	if m.reconnect == nil {
		return
	}
	m.reconnect.Stop()
	m.reconnect = nil
}

// reconnectC returns the reconnect ticker channel, or nil when idle so
// the select case never fires.
func (m *Monitor) reconnectC() <-chan time.Time {
	if m.reconnect == nil {
		return nil
	}
	return m.reconnect.C
}

// publish fans ev out without blocking. Held-back state events go out
// ahead of ev so a subscriber never sees them out of order.
func (m *Monitor) publish(ev Event) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, sub := range m.subs {
		if sub.flush() {
			select {
			case sub.ch <- ev:
				continue
			default:
			}
		}
		m.holdOrDrop(sub, ev)
	}
}

// holdOrDrop keeps ev pending for sub if it carries state, replacing an
// older value of the same type, and discards it otherwise.
func (m *Monitor) holdOrDrop(sub *subscriber, ev Event) {
	t := ev.EventType()
	if !isSticky(t) {
		m.dropped.Add(1)
		m.logger.Debug("subscriber full, event dropped", "type", t)
		return
	}
	if _, ok := sub.pending[t]; ok {
		m.dropped.Add(1)
		m.logger.Debug("subscriber full, state event superseded", "type", t)
	}
	sub.pending[t] = ev
}

// flushPending retries held-back state events for every subscriber.
func (m *Monitor) flushPending() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, sub := range m.subs {
		sub.flush()
	}
}
