package liveness

import (
	"time"
)

// State is the link health as shown to operators.
type State string

// Link health states.
const (
	StateConnecting            State = "connecting"
	StateConnectedAwaitingData State = "connected-awaiting-data"
	StateConnectedLive         State = "connected-live"
	StateConnectedStale        State = "connected-stale"
	StateDisconnected          State = "disconnected"
	StateReconnectFailed       State = "reconnect-failed"
)

// Connected reports whether the state implies a live broker session.
func (s State) Connected() bool {
	switch s {
	case StateConnectedAwaitingData, StateConnectedLive, StateConnectedStale:
		return true
	default:
		return false
	}
}

// Default supervision settings.
const (
	DefaultDataTimeout = 10 * time.Second
	DefaultMaxAttempts = 10
)

// Config holds supervision settings.
type Config struct {
	// DataTimeout is how long a connected device may stay silent before
	// the link is reported stale.
	DataTimeout time.Duration

	// MaxAttempts is the reconnect ceiling. The attempt that exceeds it
	// is not made; the Supervisor enters ReconnectFailed instead.
	// Zero disables automatic reconnection.
	MaxAttempts int
}

// TimerOp tells the caller what to do with the reconnect timer.
type TimerOp int

// Timer operations.
const (
	TimerKeep TimerOp = iota
	TimerStart
	TimerStop
)

// Action is the outcome of feeding one input to the Supervisor.
type Action struct {
	// Changed is true when State differs from Previous.
	Changed  bool
	Previous State
	State    State

	// Reconnect asks the caller to start a connection attempt.
	Reconnect bool

	// Timer is the reconnect timer operation to apply.
	Timer TimerOp
}

// Snapshot is a copy of the supervisor's state for reporting.
type Snapshot struct {
	State       State      `json:"state"`
	Attempts    int        `json:"reconnect_attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastDataAt  *time.Time `json:"last_data_at,omitempty"`
	TimerActive bool       `json:"reconnect_timer_active"`
	LastError   string     `json:"last_error,omitempty"`
}

// Supervisor tracks link health and reconnect attempts.
//
// Thread Safety: not safe for concurrent use. It is owned by the
// monitor loop.
type Supervisor struct {
	cfg Config

	state       State
	lastDataAt  time.Time
	hasData     bool
	attempts    int
	timerActive bool
	lastError   string
}

// New returns a Supervisor in StateConnecting.
func New(cfg Config) *Supervisor {
	if cfg.DataTimeout <= 0 {
		cfg.DataTimeout = DefaultDataTimeout
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Supervisor{cfg: cfg, state: StateConnecting}
}

// State returns the current state.
func (s *Supervisor) State() State { return s.state }

// Attempts returns the reconnect attempts made since the last success.
func (s *Supervisor) Attempts() int { return s.attempts }

// MaxAttempts returns the configured reconnect ceiling.
func (s *Supervisor) MaxAttempts() int { return s.cfg.MaxAttempts }

// TimerActive reports whether the reconnect timer should be running.
func (s *Supervisor) TimerActive() bool { return s.timerActive }

// LastDataAt returns when the last reading arrived, if ever.
func (s *Supervisor) LastDataAt() (time.Time, bool) {
	return s.lastDataAt, s.hasData
}

// IdleFor returns how long the device has been silent, or 0 if it has
// never reported.
func (s *Supervisor) IdleFor(now time.Time) time.Duration {
	if !s.hasData {
		return 0
	}
	return now.Sub(s.lastDataAt)
}

// Snapshot returns a copy of the current state.
func (s *Supervisor) Snapshot() Snapshot {
	snap := Snapshot{
		State:       s.state,
		Attempts:    s.attempts,
		MaxAttempts: s.cfg.MaxAttempts,
		TimerActive: s.timerActive,
		LastError:   s.lastError,
	}
	if s.hasData {
		t := s.lastDataAt
		snap.LastDataAt = &t
	}
	return snap
}

// HandleConnected records a successful connection. Attempts reset to 0
// and the reconnect timer stops. A reading that beat the connect
// notification leaves the state at connected-live.
func (s *Supervisor) HandleConnected() Action {
	s.attempts = 0
	s.lastError = ""
	next := StateConnectedAwaitingData
	if s.state == StateConnectedLive {
		next = StateConnectedLive
	}
	a := s.transition(next)
	a.Timer = s.stopTimer()
	return a
}

// HandleReading records that data arrived at now.
func (s *Supervisor) HandleReading(now time.Time) Action {
	s.lastDataAt = now
	s.hasData = true
	if s.state == StateReconnectFailed {
		return s.unchanged()
	}
	return s.transition(StateConnectedLive)
}

// HandleDisconnected records loss of the session and arms the
// reconnect timer if it is not already running.
func (s *Supervisor) HandleDisconnected() Action {
	if s.state == StateReconnectFailed {
		return s.unchanged()
	}
	a := s.transition(StateDisconnected)
	a.Timer = s.startTimer()
	return a
}

// HandleError records a transport error. It takes the disconnect path.
func (s *Supervisor) HandleError(reason string) Action {
	s.lastError = reason
	return s.HandleDisconnected()
}

// Tick is the periodic health check.
//
// A link that is down moves to Disconnected whatever the timer is doing,
// and the timer is armed if idle. A connected link whose last reading is
// older than DataTimeout moves to ConnectedStale once; further ticks
// while stale report no change. A connected link that has never
// delivered data stays as it is.
func (s *Supervisor) Tick(now time.Time, linkConnected bool) Action {
	if s.state == StateReconnectFailed {
		return s.unchanged()
	}

	if !linkConnected {
		a := s.transition(StateDisconnected)
		a.Timer = s.startTimer()
		return a
	}

	switch s.state {
	case StateConnectedLive, StateConnectedAwaitingData:
		if s.hasData && now.Sub(s.lastDataAt) > s.cfg.DataTimeout {
			return s.transition(StateConnectedStale)
		}
	}
	return s.unchanged()
}

// ReconnectDue is called when the reconnect timer fires. It counts the
// attempt and either asks for a Connect or, past the ceiling, gives up.
func (s *Supervisor) ReconnectDue() Action {
	if !s.timerActive || s.state == StateReconnectFailed {
		return s.unchanged()
	}
	s.attempts++
	if s.attempts > s.cfg.MaxAttempts {
		a := s.transition(StateReconnectFailed)
		a.Timer = s.stopTimer()
		return a
	}
	a := s.unchanged()
	a.Reconnect = true
	return a
}

// Restart leaves any state, including ReconnectFailed, and asks for a
// fresh connection attempt with the attempt counter cleared.
func (s *Supervisor) Restart() Action {
	s.attempts = 0
	s.lastError = ""
	a := s.transition(StateConnecting)
	a.Timer = s.stopTimer()
	a.Reconnect = true
	return a
}

func (s *Supervisor) transition(to State) Action {
	a := Action{Previous: s.state, State: to, Changed: s.state != to}
	s.state = to
	return a
}

func (s *Supervisor) unchanged() Action {
	return Action{Previous: s.state, State: s.state}
}

func (s *Supervisor) startTimer() TimerOp {
	if s.timerActive {
		return TimerKeep
	}
	s.timerActive = true
	return TimerStart
}

func (s *Supervisor) stopTimer() TimerOp {
	if !s.timerActive {
		return TimerKeep
	}
	s.timerActive = false
	return TimerStop
}
