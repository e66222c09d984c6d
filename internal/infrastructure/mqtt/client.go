package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/medwatch/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with medwatch-specific functionality.
//
// It provides non-blocking connection attempts, message publishing and
// subscription handling. It never reconnects on its own; the caller
// decides when to try again.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on every successful connect.
type Client struct {
	client   pahomqtt.Client
	options  *pahomqtt.ClientOptions
	cfg      config.MQTTConfig
	clientID string

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// connecting is set while a connection attempt is outstanding.
	connecting atomic.Bool

	// Callbacks for connection events (optional).
	onConnect       func()
	onDisconnect    func(err error)
	onConnectFailed func(err error)
	callbackMu      sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on the paho router goroutine and should not block.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// ClientFactory builds the underlying paho client. Tests substitute a fake.
type ClientFactory func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Option configures a Client.
type Option func(*Client, *ClientFactory)

// WithClientFactory replaces pahomqtt.NewClient.
func WithClientFactory(factory ClientFactory) Option {
	return func(_ *Client, f *ClientFactory) {
		*f = factory
	}
}

// New creates a Client for the configured broker without connecting.
//
// Call Connect to start a connection attempt. The client ID is
// generated once here and reused across reconnects.
func New(cfg config.MQTTConfig, opts ...Option) *Client {
	c := &Client{
		cfg:           cfg,
		clientID:      newClientID(cfg.Broker.ClientIDPrefix),
		subscriptions: make(map[string]subscription),
	}

	factory := ClientFactory(pahomqtt.NewClient)
	for _, opt := range opts {
		opt(c, &factory)
	}

	c.options = buildClientOptions(cfg, c.clientID)

	// Set up connection callbacks
	c.options.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = factory(c.options)
	return c
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// Connect starts a connection attempt and returns immediately.
//
// It is a no-op while an attempt is outstanding or the session is up.
// The outcome is reported through the OnConnect or OnConnectFailed
// callback. Refusals are categorized into ErrBadProtocol,
// ErrIdentifierRejected, ErrServerUnavailable, ErrBadCredentials,
// ErrNotAuthorized, or ErrConnectionFailed for anything else.
//
// Returns:
//   - bool: true if a new attempt was started
func (c *Client) Connect() bool {
	if c.IsConnected() {
		return false
	}
	if !c.connecting.CompareAndSwap(false, true) {
		return false
	}

	go c.attempt()
	return true
}

// attempt runs one connection attempt to completion.
func (c *Client) attempt() {
	defer c.connecting.Store(false)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout + defaultPublishTimeout) {
		c.handleConnectFailed(fmt.Errorf("%w: connect: %w", ErrConnectionFailed, ErrTimeout))
		return
	}
	if err := token.Error(); err != nil {
		c.handleConnectFailed(categorizeConnectError(err, token))
	}
}

// IsConnecting reports whether a connection attempt is outstanding.
func (c *Client) IsConnecting() bool {
	return c.connecting.Load()
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	// Notify before resubscribing so retained messages arrive after it.
	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}

	c.restoreSubscriptions()
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	// Notify callback if set
	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// handleConnectFailed is called when a connection attempt does not succeed.
func (c *Client) handleConnectFailed(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection attempt failed", "client_id", c.clientID, "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onConnectFailed
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after connect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		if !token.WaitTimeout(defaultPublishTimeout) {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT subscribe timed out", "topic", sub.topic)
			}
			continue
		}
		if err := token.Error(); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT subscribe failed", "topic", sub.topic, "error", err)
			}
		}
	}
}

// Close disconnects from the MQTT broker.
//
// Close does not fire the OnDisconnect callback. The client may be
// connected again afterwards.
//
// Returns:
//   - error: Always nil (connection already closed is not an error)
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	// Disconnect with quiesce period for pending operations
	if c.client.IsConnectionOpen() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		if c.IsConnecting() {
			return fmt.Errorf("%w: connection attempt in progress", ErrNotConnected)
		}
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
//
// This reflects the last known state and never blocks on the network.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// It runs before tracked subscriptions are restored, so it always precedes
// any message delivered on the new session.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when an established
// connection is lost. The error parameter describes why.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnConnectFailed sets a callback to be invoked when a connection
// attempt is refused or times out.
func (c *Client) SetOnConnectFailed(callback func(err error)) {
	c.callbackMu.Lock()
	c.onConnectFailed = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
