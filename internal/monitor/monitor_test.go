package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/medwatch/internal/evaluator"
	"github.com/nerrad567/medwatch/internal/liveness"
	"github.com/nerrad567/medwatch/internal/profile"
	"github.com/nerrad567/medwatch/internal/telemetry"
)

// fakeLink is an in-memory Link.
type fakeLink struct {
	mu          sync.Mutex
	events      chan telemetry.Event
	connected   bool
	connects    int
	disconnects int
	commands    []string
}

func newFakeLink() *fakeLink {
	return &fakeLink{events: make(chan telemetry.Event, 64)}
}

func (f *fakeLink) Events() <-chan telemetry.Event { return f.events }

func (f *fakeLink) Connect() {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
}

func (f *fakeLink) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeLink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeLink) PublishCommand(cmd string) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
}

func (f *fakeLink) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeLink) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func newTestMonitor(t *testing.T, link *fakeLink) (*Monitor, <-chan Event) {
	t.Helper()
	m := New(link, Config{
		CheckInterval:     time.Hour,
		ReconnectInterval: time.Hour,
		Liveness:          liveness.Config{DataTimeout: 10 * time.Second, MaxAttempts: 3},
		Profile:           profile.Vaccine,
	})
	return m, m.Subscribe(256)
}

// collect drains everything currently buffered.
func collect(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func ofType[T Event](events []Event) []T {
	var out []T
	for _, ev := range events {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

func reading(ch telemetry.Channel, v float64, at time.Time) telemetry.Event {
	return telemetry.Event{
		Kind:    telemetry.EventReading,
		At:      at,
		Reading: telemetry.Reading{Channel: ch, Value: v, ObservedAt: at},
	}
}

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func TestMonitor_ReadingPairClassified(t *testing.T) {
	m, sub := newTestMonitor(t, newFakeLink())

	m.handleLinkEvent(telemetry.Event{Kind: telemetry.EventConnected, At: t0})
	m.handleLinkEvent(reading(telemetry.Temperature, 5, t0))

	// Half a pair: no classification yet.
	events := collect(sub)
	if got := ofType[ClassificationEvent](events); len(got) != 0 {
		t.Fatalf("classification before pair complete: %+v", got)
	}
	if got := ofType[ReadingEvent](events); len(got) != 1 || got[0].Channel != "temperature" {
		t.Errorf("ReadingEvents = %+v, want one temperature", got)
	}

	m.handleLinkEvent(reading(telemetry.Humidity, 40, t0.Add(time.Second)))
	events = collect(sub)

	cls := ofType[ClassificationEvent](events)
	if len(cls) != 1 {
		t.Fatalf("ClassificationEvents = %d, want 1", len(cls))
	}
	c := cls[0]
	if c.Result.Tier != evaluator.TierOK || c.Result.Stability != 100 || c.Indeterminate {
		t.Errorf("classification = %+v, want OK/100", c)
	}
	if c.ProfileName != "Vacinas" || c.Alert != "" {
		t.Errorf("classification profile/alert = %q/%q", c.ProfileName, c.Alert)
	}

	hist := ofType[HistoryEvent](events)
	if len(hist) != 1 || len(hist[0].Points) != 1 {
		t.Fatalf("HistoryEvents = %+v, want one with one point", hist)
	}
	if p := hist[0].Points[0]; p.Temp != 5 || p.Hum != 40 {
		t.Errorf("history point = %+v, want 5/40", p)
	}

	// Every further reading extends the window and reclassifies.
	m.handleLinkEvent(reading(telemetry.Temperature, 1, t0.Add(2*time.Second)))
	events = collect(sub)
	cls = ofType[ClassificationEvent](events)
	if len(cls) != 1 || cls[0].Result.Tier != evaluator.TierCritical || cls[0].Alert == "" {
		t.Errorf("classification after cold reading = %+v, want CRITICAL with alert", cls)
	}
	if m.hist.Len() != 2 {
		t.Errorf("history Len() = %d, want 2", m.hist.Len())
	}
}

func TestMonitor_LivenessTransitions(t *testing.T) {
	link := newFakeLink()
	m, sub := newTestMonitor(t, link)

	link.setConnected(true)
	m.handleLinkEvent(telemetry.Event{Kind: telemetry.EventConnected})
	m.handleLinkEvent(reading(telemetry.Temperature, 5, t0))
	m.handleCheck(t0.Add(5 * time.Second))
	m.handleCheck(t0.Add(11 * time.Second))
	m.handleCheck(t0.Add(14 * time.Second))
	m.handleCheck(t0.Add(17 * time.Second))

	var states []liveness.State
	for _, ev := range ofType[LinkStatusEvent](collect(sub)) {
		states = append(states, ev.State)
	}
	want := []liveness.State{
		liveness.StateConnectedAwaitingData,
		liveness.StateConnectedLive,
		liveness.StateConnectedStale,
	}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestMonitor_MalformedPayloadLeavesLivenessAlone(t *testing.T) {
	link := newFakeLink()
	m, _ := newTestMonitor(t, link)
	m.handleLinkEvent(telemetry.Event{Kind: telemetry.EventConnected})

	// The link discards "abc" before it becomes an event; nothing
	// reaches the monitor, so last_data_at stays unset.
	if _, ok := m.sup.LastDataAt(); ok {
		t.Error("LastDataAt set without a reading")
	}
	if m.sup.State() != liveness.StateConnectedAwaitingData {
		t.Errorf("State() = %s, want awaiting data", m.sup.State())
	}
}

func TestMonitor_ReconnectUntilExhausted(t *testing.T) {
	link := newFakeLink()
	m, sub := newTestMonitor(t, link)

	m.handleLinkEvent(telemetry.Event{Kind: telemetry.EventConnected})
	m.handleLinkEvent(telemetry.Event{
		Kind:     telemetry.EventError,
		Category: telemetry.CategoryServerUnavailable,
		Reason:   "server unavailable",
	})
	m.handleLinkEvent(telemetry.Event{Kind: telemetry.EventDisconnected, Reason: "server unavailable"})

	if m.reconnect == nil {
		t.Fatal("reconnect timer not started after disconnect")
	}

	for i := 0; i < 10; i++ {
		m.handleReconnectDue()
	}

	if got := link.connectCount(); got != 3 {
		t.Errorf("Connect calls = %d, want 3", got)
	}
	if m.reconnect != nil {
		t.Error("reconnect timer still running after exhaustion")
	}
	if m.sup.State() != liveness.StateReconnectFailed {
		t.Errorf("State() = %s, want reconnect-failed", m.sup.State())
	}

	events := collect(sub)
	if errs := ofType[LinkErrorEvent](events); len(errs) != 1 || errs[0].Category != "server unavailable" {
		t.Errorf("LinkErrorEvents = %+v", errs)
	}
	attempts := ofType[ReconnectEvent](events)
	if len(attempts) != 3 || attempts[2].Attempt != 3 || attempts[2].MaxAttempts != 3 {
		t.Errorf("ReconnectEvents = %+v, want attempts 1..3 of 3", attempts)
	}
	failed := 0
	for _, ev := range ofType[LinkStatusEvent](events) {
		if ev.State == liveness.StateReconnectFailed {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("reconnect-failed status events = %d, want 1", failed)
	}

	// Ticks do not revive the link.
	m.handleCheck(t0)
	if got := link.connectCount(); got != 3 {
		t.Errorf("Connect calls after tick = %d, want 3", got)
	}
}

func TestMonitor_SelectUnknownProfile(t *testing.T) {
	m, sub := newTestMonitor(t, newFakeLink())
	m.handleLinkEvent(reading(telemetry.Temperature, 5, t0))
	m.handleLinkEvent(reading(telemetry.Humidity, 40, t0))
	collect(sub)

	m.profileID = "sangue"
	m.announceProfile()
	m.evaluate()

	events := collect(sub)
	sel := ofType[ProfileSelectedEvent](events)
	if len(sel) != 1 || sel[0].Known {
		t.Errorf("ProfileSelectedEvents = %+v, want one unknown", sel)
	}
	cls := ofType[ClassificationEvent](events)
	if len(cls) != 1 || !cls[0].Indeterminate || cls[0].Result.Tier != "" {
		t.Errorf("ClassificationEvents = %+v, want one indeterminate", cls)
	}
}

func TestMonitor_RunLifecycle(t *testing.T) {
	link := newFakeLink()
	m, sub := newTestMonitor(t, link)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitFor(t, "initial connect", func() bool { return link.connectCount() == 1 })

	link.events <- telemetry.Event{Kind: telemetry.EventConnected}
	link.events <- reading(telemetry.Temperature, 2.5, t0)
	link.events <- reading(telemetry.Humidity, 40, t0)

	var tiers []evaluator.Tier
	deadline := time.After(2 * time.Second)
	for len(tiers) < 2 {
		select {
		case ev := <-sub:
			c, ok := ev.(ClassificationEvent)
			if !ok {
				continue
			}
			tiers = append(tiers, c.Result.Tier)
			if len(tiers) == 1 {
				if err := m.SelectProfile(profile.Reagent); err != nil {
					t.Fatalf("SelectProfile() error = %v", err)
				}
				if err := m.SendCommand("LIGAR"); err != nil {
					t.Fatalf("SendCommand() error = %v", err)
				}
			}
		case <-deadline:
			t.Fatalf("classifications = %v, want 2", tiers)
		}
	}
	// vacina at 2.5°C is WARN; reagente at 2.5°C is CRITICAL.
	if tiers[0] != evaluator.TierWarn || tiers[1] != evaluator.TierCritical {
		t.Errorf("tiers = %v, want [WARN CRITICAL]", tiers)
	}

	waitFor(t, "command published", func() bool {
		link.mu.Lock()
		defer link.mu.Unlock()
		return len(link.commands) == 1
	})

	if err := m.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if link.disconnects != 1 {
		t.Errorf("Disconnect calls = %d, want 1", link.disconnects)
	}
	if len(link.commands) != 1 || link.commands[0] != "LIGAR" {
		t.Errorf("commands = %v, want [LIGAR]", link.commands)
	}

	// Subscriber channel is closed after shutdown.
	for range sub {
	}

	if err := m.Restart(); !errors.Is(err, ErrStopped) {
		t.Errorf("Restart() after stop error = %v, want ErrStopped", err)
	}
}

func TestMonitor_RestartAfterExhaustion(t *testing.T) {
	link := newFakeLink()
	m, sub := newTestMonitor(t, link)
	m.cfg.ReconnectInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx) //nolint:errcheck // lifecycle covered by TestMonitor_RunLifecycle

	link.events <- telemetry.Event{Kind: telemetry.EventDisconnected}

	waitForState(t, sub, liveness.StateReconnectFailed)
	connects := link.connectCount()

	if err := m.Restart(); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	waitForState(t, sub, liveness.StateConnecting)

	waitFor(t, "restart connect", func() bool { return link.connectCount() == connects+1 })
}

func TestMonitor_SlowSubscriberDoesNotBlock(t *testing.T) {
	link := newFakeLink()
	m := New(link, Config{Profile: profile.Vaccine})
	_ = m.Subscribe(1)

	for i := 0; i < 20; i++ {
		m.handleLinkEvent(reading(telemetry.Temperature, float64(i), t0))
	}

	if m.Dropped() == 0 {
		t.Error("Dropped() = 0, want events dropped for a full subscriber")
	}
}

func TestMonitor_FullSubscriberKeepsLatestState(t *testing.T) {
	link := newFakeLink()
	m := New(link, Config{Profile: profile.Vaccine, ReconnectInterval: time.Hour})
	defer m.stopReconnectTimer()
	sub := m.Subscribe(1)

	m.handleLinkEvent(telemetry.Event{Kind: telemetry.EventConnected, At: t0})
	m.handleLinkEvent(reading(telemetry.Temperature, 5, t0))
	m.handleLinkEvent(reading(telemetry.Humidity, 40, t0.Add(time.Second)))
	m.handleLinkEvent(telemetry.Event{Kind: telemetry.EventDisconnected, Reason: "EOF"})

	if s, ok := (<-sub).(LinkStatusEvent); !ok || s.State != liveness.StateConnectedAwaitingData {
		t.Fatalf("first event = %+v, want awaiting-data status", s)
	}

	// The superseded connected-live status is gone; the latest is not.
	m.handleCheck(t0.Add(2 * time.Second))
	s, ok := (<-sub).(LinkStatusEvent)
	if !ok || s.State != liveness.StateDisconnected || s.Reason != "EOF" {
		t.Fatalf("held status = %+v, want disconnected", s)
	}

	m.handleCheck(t0.Add(3 * time.Second))
	c, ok := (<-sub).(ClassificationEvent)
	if !ok || c.Result.Tier != evaluator.TierOK {
		t.Fatalf("held classification = %+v, want OK", c)
	}

	m.handleCheck(t0.Add(4 * time.Second))
	if rest := collect(sub); len(rest) != 0 {
		t.Errorf("unexpected events after flush: %+v", rest)
	}
	// Two readings, one history window and the superseded status.
	if got := m.Dropped(); got != 4 {
		t.Errorf("Dropped() = %d, want 4", got)
	}
}

func waitForState(t *testing.T, sub <-chan Event, want liveness.State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub:
			if s, ok := ev.(LinkStatusEvent); ok && s.State == want {
				return
			}
		case <-deadline:
			t.Fatalf("no %s status event", want)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
