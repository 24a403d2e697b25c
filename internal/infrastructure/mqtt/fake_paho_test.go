package mqtt

import (
	"errors"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/config"
)

// fakeToken completes immediately unless gate is set, in which case it
// completes when gate is closed.
type fakeToken struct {
	pahomqtt.Token
	gate chan struct{}
	err  error
}

func (t *fakeToken) WaitTimeout(time.Duration) bool {
	if t.gate != nil {
		<-t.gate
	}
	return true
}

func (t *fakeToken) Error() error { return t.err }

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

type fakePublish struct {
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

// fakePaho records calls and delivers messages without a broker.
type fakePaho struct {
	pahomqtt.Client

	mu           sync.Mutex
	connected    bool
	published    []fakePublish
	callbacks    map[string]pahomqtt.MessageHandler
	subscribes   []string
	unsubscribes []string
	subscribeErr error

	// subscribeGate, when set, holds every SUBSCRIBE until closed.
	subscribeGate chan struct{}
	subscribing   chan string
}

func newFakePaho() *fakePaho {
	return &fakePaho{
		connected:   true,
		callbacks:   make(map[string]pahomqtt.MessageHandler),
		subscribing: make(chan string, 16),
	}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakePaho) Disconnect(uint) { f.setConnected(false) }

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, fakePublish{topic: topic, qos: qos, retained: retained, payload: payload})
	return &fakeToken{}
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	f.subscribes = append(f.subscribes, topic)
	err, gate := f.subscribeErr, f.subscribeGate
	if err == nil {
		f.callbacks[topic] = callback
	}
	f.mu.Unlock()

	select {
	case f.subscribing <- topic:
	default:
	}
	return &fakeToken{gate: gate, err: err}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		f.unsubscribes = append(f.unsubscribes, t)
		delete(f.callbacks, t)
	}
	return &fakeToken{}
}

func (f *fakePaho) deliver(filter, topic string, payload []byte) {
	f.mu.Lock()
	cb, ok := f.callbacks[filter]
	f.mu.Unlock()
	if ok {
		cb(f, &fakeMessage{topic: topic, payload: payload})
	}
}

func (f *fakePaho) counts() (subscribes, unsubscribes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes), len(f.unsubscribes)
}

func newFakeClient() (*Client, *fakePaho) {
	fake := newFakePaho()
	c := newClient(config.MQTTConfig{QoS: 1, Broker: config.MQTTBrokerConfig{ClientID: "grayswitch-test"}})
	c.paho = fake
	c.up.Store(true)
	return c, fake
}

// tracked reports how many handlers the client holds for a filter.
func (c *Client) tracked(topic string) int {
	c.filtersMu.Lock()
	defer c.filtersMu.Unlock()
	if f, ok := c.filters[topic]; ok {
		return len(f.handlers)
	}
	return 0
}

var errBoom = errors.New("boom")

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
