package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/medwatch/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:           "broker.test",
			Port:           8883,
			TLS:            true,
			ClientIDPrefix: "medwatch-test",
		},
		Auth: config.MQTTAuthConfig{
			Username: "sensor",
			Password: "secret",
		},
		QoS:       0,
		Namespace: "climatizador",
	}
}

// newTestClient returns a Client backed by a fake paho client.
func newTestClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fake := newFakePaho()
	c := New(testConfig(), WithClientFactory(fake.factory))
	return c, fake
}

// waitFor polls cond until it holds or the deadline passes.
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

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	c, fake := newTestClient(t)

	connected := make(chan struct{}, 1)
	c.SetOnConnect(func() { connected <- struct{}{} })

	if !c.Connect() {
		t.Fatal("Connect() = false, want true for first attempt")
	}

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect callback not invoked")
	}

	if !c.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if got := fake.connectCount(); got != 1 {
		t.Errorf("paho Connect calls = %d, want 1", got)
	}
}

func TestConnect_IdempotentWhileConnected(t *testing.T) {
	c, fake := newTestClient(t)
	c.Connect()
	waitFor(t, "connect", c.IsConnected)
	waitFor(t, "attempt to finish", func() bool { return !c.IsConnecting() })

	if c.Connect() {
		t.Error("Connect() = true while connected, want false")
	}
	if got := fake.connectCount(); got != 1 {
		t.Errorf("paho Connect calls = %d, want 1", got)
	}
}

func TestConnect_IdempotentWhileConnecting(t *testing.T) {
	c, fake := newTestClient(t)
	gate := make(chan struct{})
	fake.gate = gate

	if !c.Connect() {
		t.Fatal("first Connect() = false, want true")
	}
	for i := 0; i < 5; i++ {
		if c.Connect() {
			t.Errorf("Connect() #%d = true while attempt outstanding, want false", i+2)
		}
	}
	close(gate)

	waitFor(t, "connect", c.IsConnected)
	if got := fake.connectCount(); got != 1 {
		t.Errorf("paho Connect calls = %d, want 1", got)
	}
}

func TestConnect_RefusalCategories(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code byte
		want error
	}{
		{"bad protocol", packets.ErrorRefusedBadProtocolVersion, packets.ErrRefusedBadProtocolVersion, ErrBadProtocol},
		{"identifier rejected", packets.ErrorRefusedIDRejected, packets.ErrRefusedIDRejected, ErrIdentifierRejected},
		{"server unavailable", packets.ErrorRefusedServerUnavailable, packets.ErrRefusedServerUnavailable, ErrServerUnavailable},
		{"bad credentials", packets.ErrorRefusedBadUsernameOrPassword, packets.ErrRefusedBadUsernameOrPassword, ErrBadCredentials},
		{"not authorized", packets.ErrorRefusedNotAuthorised, packets.ErrRefusedNotAuthorised, ErrNotAuthorized},
		{"code only", errors.New("refused"), packets.ErrRefusedBadUsernameOrPassword, ErrBadCredentials},
		{"network error", errors.New("dial tcp: connection refused"), 0, ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newTestClient(t)
			fake.connectErr = tt.err
			fake.connectCode = tt.code

			failed := make(chan error, 1)
			c.SetOnConnectFailed(func(err error) { failed <- err })
			c.SetOnConnect(func() { t.Error("OnConnect called for refused connection") })

			c.Connect()

			select {
			case err := <-failed:
				if !errors.Is(err, tt.want) {
					t.Errorf("OnConnectFailed error = %v, want %v", err, tt.want)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("OnConnectFailed callback not invoked")
			}

			if c.IsConnected() {
				t.Error("IsConnected() = true after refusal, want false")
			}
		})
	}
}

func TestConnect_Timeout(t *testing.T) {
	c, fake := newTestClient(t)
	fake.connectHang = true

	failed := make(chan error, 1)
	c.SetOnConnectFailed(func(err error) { failed <- err })
	c.Connect()

	select {
	case err := <-failed:
		if !errors.Is(err, ErrTimeout) || !errors.Is(err, ErrConnectionFailed) {
			t.Errorf("OnConnectFailed error = %v, want ErrConnectionFailed wrapping ErrTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnectFailed callback not invoked")
	}
}

func TestConnect_RetryAfterFailure(t *testing.T) {
	c, fake := newTestClient(t)
	fake.connectErr = packets.ErrorRefusedServerUnavailable

	var failures atomic.Int32
	c.SetOnConnectFailed(func(error) { failures.Add(1) })
	c.Connect()
	waitFor(t, "failure", func() bool { return failures.Load() == 1 })
	waitFor(t, "attempt to finish", func() bool { return !c.IsConnecting() })

	fake.mu.Lock()
	fake.connectErr = nil
	fake.mu.Unlock()

	if !c.Connect() {
		t.Fatal("Connect() after failure = false, want true")
	}
	waitFor(t, "connect", c.IsConnected)
}

func TestConnectionLost(t *testing.T) {
	c, fake := newTestClient(t)
	c.Connect()
	waitFor(t, "connect", c.IsConnected)

	lost := make(chan error, 1)
	c.SetOnDisconnect(func(err error) { lost <- err })

	fake.drop(errors.New("EOF"))

	select {
	case err := <-lost:
		if err == nil || err.Error() != "EOF" {
			t.Errorf("OnDisconnect error = %v, want EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect callback not invoked")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
}

func TestClose(t *testing.T) {
	c, fake := newTestClient(t)
	c.Connect()
	waitFor(t, "connect", c.IsConnected)

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if fake.disconnects != 1 {
		t.Errorf("paho Disconnect calls = %d, want 1", fake.disconnects)
	}

	// Closing twice is harmless.
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestClientID(t *testing.T) {
	c, fake := newTestClient(t)

	id := c.ClientID()
	if !strings.HasPrefix(id, "medwatch-test-") {
		t.Errorf("ClientID() = %q, want prefix medwatch-test-", id)
	}
	if len(id) != len("medwatch-test-")+clientIDSuffixLen {
		t.Errorf("ClientID() = %q, want %d-char suffix", id, clientIDSuffixLen)
	}
	if fake.opts.ClientID != id {
		t.Errorf("options ClientID = %q, want %q", fake.opts.ClientID, id)
	}

	other := New(testConfig(), WithClientFactory(newFakePaho().factory))
	if other.ClientID() == id {
		t.Error("two clients share a client ID")
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.InsecureSkipVerify = true
	cfg.KeepAlive = 30

	opts := buildClientOptions(cfg, "id-1")

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.test:8883" {
		t.Errorf("Servers = %v, want ssl://broker.test:8883", opts.Servers)
	}
	if opts.AutoReconnect {
		t.Error("AutoReconnect = true, want false")
	}
	if opts.Username != "sensor" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want sensor/secret", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil || !opts.TLSConfig.InsecureSkipVerify {
		t.Error("TLSConfig.InsecureSkipVerify not applied")
	}
	if opts.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", opts.KeepAlive)
	}

	cfg.Broker.TLS = false
	opts = buildClientOptions(cfg, "id-1")
	if opts.Servers[0].Scheme != "tcp" {
		t.Errorf("scheme = %q, want tcp", opts.Servers[0].Scheme)
	}
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	c, _ := newTestClient(t)

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() before connect = %v, want ErrNotConnected", err)
	}

	c.Connect()
	waitFor(t, "connect", c.IsConnected)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestHealthCheck_WhileConnecting(t *testing.T) {
	c, fake := newTestClient(t)
	gate := make(chan struct{})
	fake.gate = gate

	c.Connect()
	err := c.HealthCheck(context.Background())
	close(gate)

	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("HealthCheck() while connecting = %v, want ErrNotConnected", err)
	}
	if !strings.Contains(err.Error(), "in progress") {
		t.Errorf("HealthCheck() error = %q, want attempt in progress", err)
	}
	waitFor(t, "connect", c.IsConnected)
}

// =============================================================================
// Subscription Tests
// =============================================================================

func TestAddSubscription_RestoredOnConnect(t *testing.T) {
	c, fake := newTestClient(t)
	topics := NewTopics("climatizador")

	got := make(chan string, 1)
	handler := func(_ string, payload []byte) error {
		got <- string(payload)
		return nil
	}
	if err := c.AddSubscription(topics.Temperature(), 0, handler); err != nil {
		t.Fatalf("AddSubscription() error = %v", err)
	}
	if !c.HasSubscription(topics.Temperature()) {
		t.Error("HasSubscription() = false after AddSubscription")
	}

	// Nothing reaches the broker until connected.
	if fake.deliver(topics.Temperature(), []byte("5")) {
		t.Fatal("handler registered with broker before connect")
	}

	c.Connect()
	waitFor(t, "restore", func() bool { return fake.hasSubscriber(topics.Temperature()) })

	if !fake.deliver(topics.Temperature(), []byte("5.5")) {
		t.Fatal("subscription not restored on connect")
	}
	if v := <-got; v != "5.5" {
		t.Errorf("payload = %q, want 5.5", v)
	}

	// Reconnect restores again.
	fake.drop(errors.New("EOF"))
	fake.mu.Lock()
	fake.subscribed = make(map[string]pahomqtt.MessageHandler)
	fake.mu.Unlock()
	waitFor(t, "attempt to finish", func() bool { return !c.IsConnecting() })
	c.Connect()
	waitFor(t, "restore after reconnect", func() bool { return fake.hasSubscriber(topics.Temperature()) })
	if !fake.deliver(topics.Temperature(), []byte("6")) {
		t.Fatal("subscription not restored on reconnect")
	}
}

func TestConnect_CallbackPrecedesRetainedMessage(t *testing.T) {
	c, fake := newTestClient(t)
	topics := NewTopics("climatizador")
	fake.retained = map[string][]byte{topics.Temperature(): []byte("4.2")}

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(what string) {
		mu.Lock()
		order = append(order, what)
		mu.Unlock()
	}
	c.SetOnConnect(func() { record("connected") })
	err := c.AddSubscription(topics.Temperature(), 0, func(string, []byte) error {
		record("reading")
		return nil
	})
	if err != nil {
		t.Fatalf("AddSubscription() error = %v", err)
	}

	c.Connect()
	waitFor(t, "retained reading", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "connected" || order[1] != "reading" {
		t.Errorf("callback order = %v, want [connected reading]", order)
	}
}

func TestAddSubscription_Validation(t *testing.T) {
	c, _ := newTestClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.AddSubscription("", 0, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.AddSubscription("a/b", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3 error = %v, want ErrInvalidQoS", err)
	}
	if err := c.AddSubscription("a/b", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestSubscribe_RequiresConnection(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.Subscribe("a/b", 0, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_HandlerPanicRecovered(t *testing.T) {
	c, fake := newTestClient(t)
	c.Connect()
	waitFor(t, "connect", c.IsConnected)

	if err := c.Subscribe("a/b", 0, func(string, []byte) error { panic("boom") }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Must not propagate the panic.
	fake.deliver("a/b", []byte("x"))
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish(t *testing.T) {
	c, fake := newTestClient(t)

	if err := c.Publish("climatizador/comando", []byte("LIGAR"), 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() before connect = %v, want ErrNotConnected", err)
	}

	c.Connect()
	waitFor(t, "connect", c.IsConnected)

	if err := c.PublishString("climatizador/comando", "LIGAR", 0, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}
	if err := c.PublishAsync("climatizador/comando", []byte("DESLIGAR"), 0); err != nil {
		t.Fatalf("PublishAsync() error = %v", err)
	}

	got := fake.publishedCopy()
	if len(got) != 2 {
		t.Fatalf("published %d messages, want 2", len(got))
	}
	if string(got[0].payload) != "LIGAR" || string(got[1].payload) != "DESLIGAR" {
		t.Errorf("payloads = %q, %q", got[0].payload, got[1].payload)
	}
}

func TestPublish_Validation(t *testing.T) {
	c, _ := newTestClient(t)
	c.Connect()
	waitFor(t, "connect", c.IsConnected)

	if err := c.Publish("", []byte("x"), 0, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("a", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3 error = %v, want ErrInvalidQoS", err)
	}
	big := make([]byte, maxPayloadSize+1)
	if err := c.PublishAsync("a", big, 0); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload error = %v, want ErrPublishFailed", err)
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopics(t *testing.T) {
	tests := []struct {
		namespace string
		wantTemp  string
		wantHum   string
		wantCmd   string
	}{
		{"climatizador", "climatizador/temperatura", "climatizador/umidade", "climatizador/comando"},
		{"/farmacia/camara1/", "farmacia/camara1/temperatura", "farmacia/camara1/umidade", "farmacia/camara1/comando"},
	}

	for _, tt := range tests {
		t.Run(tt.namespace, func(t *testing.T) {
			topics := NewTopics(tt.namespace)
			if got := topics.Temperature(); got != tt.wantTemp {
				t.Errorf("Temperature() = %q, want %q", got, tt.wantTemp)
			}
			if got := topics.Humidity(); got != tt.wantHum {
				t.Errorf("Humidity() = %q, want %q", got, tt.wantHum)
			}
			if got := topics.Command(); got != tt.wantCmd {
				t.Errorf("Command() = %q, want %q", got, tt.wantCmd)
			}
		})
	}
}
