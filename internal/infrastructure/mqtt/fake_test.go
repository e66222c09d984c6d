package mqtt

import (
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a completed pahomqtt.Token.
type fakeToken struct {
	err  error
	code byte
	done chan struct{}
	hang bool
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { return !t.hang }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.hang }

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

func (t *fakeToken) ReturnCode() byte { return t.code }

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakePaho implements pahomqtt.Client without a network.
type fakePaho struct {
	mu          sync.Mutex
	opts        *pahomqtt.ClientOptions
	connectErr  error
	connectCode byte
	connectHang bool
	connected   bool
	connects    int
	disconnects int
	subscribed  map[string]pahomqtt.MessageHandler
	published   []published
	gate        chan struct{}

	// retained payloads are delivered as soon as a topic is subscribed.
	retained map[string][]byte
}

func newFakePaho() *fakePaho {
	return &fakePaho{subscribed: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) factory(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	f.opts = opts
	return f
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	f.connects++
	err := f.connectErr
	code := f.connectCode
	hang := f.connectHang
	if hang {
		f.mu.Unlock()
		tok := newFakeToken(nil)
		tok.hang = true
		return tok
	}
	if err == nil {
		f.connected = true
	}
	f.mu.Unlock()

	if err == nil && f.opts.OnConnect != nil {
		f.opts.OnConnect(f)
	}
	tok := newFakeToken(err)
	tok.code = code
	return tok
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnects++
	f.mu.Unlock()
}

// drop simulates a lost connection.
func (f *fakePaho) drop(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.opts.OnConnectionLost(f, err)
}

func (f *fakePaho) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	f.published = append(f.published, published{topic: topic, qos: qos, payload: b})
	return newFakeToken(nil)
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	f.subscribed[topic] = callback
	payload, ok := f.retained[topic]
	f.mu.Unlock()

	if ok {
		callback(f, fakeMessage{topic: topic, payload: payload})
	}
	return newFakeToken(nil)
}

func (f *fakePaho) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		f.Subscribe(topic, qos, callback)
	}
	return newFakeToken(nil)
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.subscribed, topic)
	}
	return newFakeToken(nil)
}

func (f *fakePaho) AddRoute(topic string, callback pahomqtt.MessageHandler) {
	f.Subscribe(topic, 0, callback)
}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver invokes the handler subscribed to topic.
func (f *fakePaho) deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	handler := f.subscribed[topic]
	f.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(f, fakeMessage{topic: topic, payload: payload})
	return true
}

// hasSubscriber reports whether a handler is registered for topic.
func (f *fakePaho) hasSubscriber(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[topic] != nil
}

func (f *fakePaho) publishedCopy() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.published))
	copy(out, f.published)
	return out
}

func (f *fakePaho) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}
