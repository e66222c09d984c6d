package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/medwatch/internal/infrastructure/mqtt"
)

// defaultEventBuffer is the Events channel capacity when none is configured.
const defaultEventBuffer = 256

// Transport is the broker client the Link drives.
// *mqtt.Client satisfies it; tests use a fake.
type Transport interface {
	// Connect starts a non-blocking connection attempt. It returns false
	// when an attempt is already outstanding or the session is up.
	Connect() bool

	// Close tears the session down without firing the disconnect callback.
	Close() error

	// IsConnected reports the last known session state without blocking.
	IsConnected() bool

	// AddSubscription records a subscription to be made on every connect.
	AddSubscription(topic string, qos byte, handler mqtt.MessageHandler) error

	// PublishAsync hands a message to the transport without waiting.
	PublishAsync(topic string, payload []byte, qos byte) error

	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	SetOnConnectFailed(callback func(err error))
}

// Logger defines the logging interface for the link.
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

// Config holds Link settings.
type Config struct {
	// Namespace is the device topic root, e.g. "climatizador".
	Namespace string

	// QoS is used for subscriptions and command publishes.
	QoS byte

	// Buffer is the Events channel capacity.
	Buffer int
}

// Link owns the single broker session to the sensor device.
type Link struct {
	transport Transport
	topics    mqtt.Topics
	qos       byte
	logger    Logger
	now       func() time.Time

	events chan Event

	// stopped is set by Disconnect; callbacks drop their events while set.
	stopped atomic.Bool

	quit      chan struct{}
	closeOnce sync.Once
}

// NewLink wires a Link to transport and registers the temperature and
// humidity subscriptions. No connection is attempted until Connect.
func NewLink(transport Transport, cfg Config) (*Link, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultEventBuffer
	}

	l := &Link{
		transport: transport,
		topics:    mqtt.NewTopics(cfg.Namespace),
		qos:       cfg.QoS,
		logger:    noopLogger{},
		now:       time.Now,
		events:    make(chan Event, cfg.Buffer),
		quit:      make(chan struct{}),
	}

	if err := transport.AddSubscription(l.topics.Temperature(), cfg.QoS, l.handlerFor(Temperature)); err != nil {
		return nil, fmt.Errorf("subscribing to temperature: %w", err)
	}
	if err := transport.AddSubscription(l.topics.Humidity(), cfg.QoS, l.handlerFor(Humidity)); err != nil {
		return nil, fmt.Errorf("subscribing to humidity: %w", err)
	}

	transport.SetOnConnect(l.handleConnect)
	transport.SetOnDisconnect(l.handleDisconnect)
	transport.SetOnConnectFailed(l.handleConnectFailed)

	return l, nil
}

// SetLogger sets the logger for the link.
func (l *Link) SetLogger(logger Logger) {
	l.logger = logger
}

// Topics returns the topic builders in use.
func (l *Link) Topics() mqtt.Topics {
	return l.topics
}

// Events returns the channel on which link events are delivered, in the
// order the transport produced them.
func (l *Link) Events() <-chan Event {
	return l.events
}

// Connect starts a connection attempt. It is a no-op while an attempt is
// outstanding or the session is up. The outcome arrives as an
// EventConnected, or as an EventError followed by EventDisconnected.
func (l *Link) Connect() {
	l.stopped.Store(false)
	if l.transport.Connect() {
		l.logger.Debug("connection attempt started", "namespace", l.topics.Namespace())
	}
}

// Disconnect tears down the session and discards any events still
// queued. It is safe to call repeatedly. Connect may be called again.
func (l *Link) Disconnect() {
	l.stopped.Store(true)
	if err := l.transport.Close(); err != nil {
		l.logger.Warn("closing transport", "error", err)
	}
	l.drain()
}

// Close disconnects and releases any callback blocked on a full event
// buffer. The Link must not be used afterwards.
func (l *Link) Close() {
	l.Disconnect()
	l.closeOnce.Do(func() { close(l.quit) })
	l.drain()
}

func (l *Link) drain() {
	for {
		select {
		case <-l.events:
		default:
			return
		}
	}
}

// IsConnected reports the last known session state without blocking.
func (l *Link) IsConnected() bool {
	return l.transport.IsConnected()
}

// PublishCommand publishes cmd on the command topic without waiting.
// Commands issued while disconnected are dropped, not queued.
func (l *Link) PublishCommand(cmd string) {
	if !l.transport.IsConnected() {
		l.logger.Debug("command dropped, link down", "command", cmd)
		return
	}
	if err := l.transport.PublishAsync(l.topics.Command(), []byte(cmd), l.qos); err != nil {
		l.logger.Debug("command dropped", "command", cmd, "error", err)
	}
}

func (l *Link) handleConnect() {
	l.emit(Event{Kind: EventConnected})
}

func (l *Link) handleDisconnect(err error) {
	ev := Event{Kind: EventDisconnected, Category: CategoryConnectionLost, Err: err}
	if err != nil {
		ev.Reason = err.Error()
	}
	l.emit(ev)
}

func (l *Link) handleConnectFailed(err error) {
	category := Categorize(err)
	reason := string(category)
	if err != nil {
		reason = fmt.Sprintf("%s: %v", category, err)
	}
	l.emit(Event{Kind: EventError, Category: category, Reason: reason, Err: err})
	l.emit(Event{Kind: EventDisconnected, Category: category, Reason: reason, Err: err})
}

// handlerFor returns the message handler for one channel.
func (l *Link) handlerFor(ch Channel) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		v, err := ParseValue(payload)
		if err != nil {
			l.logger.Debug("discarding payload", "topic", topic, "channel", ch.String())
			return nil
		}
		l.emit(Event{Kind: EventReading, Reading: Reading{Channel: ch, Value: v}})
		return nil
	}
}

// emit stamps and enqueues an event. It blocks while the buffer is full
// so that no event is lost or reordered, unless the Link is closed.
func (l *Link) emit(ev Event) {
	if l.stopped.Load() {
		return
	}
	ev.At = l.now()
	if ev.Kind == EventReading {
		ev.Reading.ObservedAt = ev.At
	}
	select {
	case l.events <- ev:
	case <-l.quit:
	}
}

// ParseValue parses a telemetry payload: one finite decimal number,
// surrounding whitespace ignored.
func ParseValue(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" || strings.ContainsAny(s, "xX_") {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPayload, s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPayload, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrMalformedPayload, s)
	}
	return v, nil
}
