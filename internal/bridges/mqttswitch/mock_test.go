package mqttswitch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-switch/internal/entity"
)

// published is one recorded Publish call.
type published struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// MockTransport records publishes and lets tests inject feedback.
type MockTransport struct {
	mu           sync.Mutex
	published    []published
	handlers     map[string]func(topic string, payload []byte)
	subscribeQoS map[string]byte
	unsubscribes map[string]int

	PublishErr   error
	SubscribeErr error
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		handlers:     make(map[string]func(string, []byte)),
		subscribeQoS: make(map[string]byte),
		unsubscribes: make(map[string]int),
	}
}

func (m *MockTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, published{Topic: topic, Payload: string(payload), QoS: qos, Retained: retained})
	return m.PublishErr
}

func (m *MockTransport) Subscribe(topic string, qos byte, handler func(string, []byte)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	m.handlers[topic] = handler
	m.subscribeQoS[topic] = qos
	return &mockSubscription{transport: m, topic: topic}, nil
}

// SimulateMessage delivers payload to the handler subscribed on topic.
func (m *MockTransport) SimulateMessage(topic, payload string) {
	m.mu.Lock()
	handler := m.handlers[topic]
	m.mu.Unlock()
	if handler != nil {
		handler(topic, []byte(payload))
	}
}

func (m *MockTransport) Published() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]published, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockTransport) Subscribed(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[topic]
	return ok
}

func (m *MockTransport) SubscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

func (m *MockTransport) Unsubscribes(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubscribes[topic]
}

type mockSubscription struct {
	transport *MockTransport
	topic     string
}

// Unsubscribe counts every call so tests can assert Close releases once.
func (s *mockSubscription) Unsubscribe() error {
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	s.transport.unsubscribes[s.topic]++
	delete(s.transport.handlers, s.topic)
	return nil
}

// recorder collects notifications.
type recorder struct {
	mu      sync.Mutex
	changes []entity.StateChange
}

func (r *recorder) Notify(change entity.StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *recorder) Changes() []entity.StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.StateChange, len(r.changes))
	copy(out, r.changes)
	return out
}

func (r *recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

type logEntry struct {
	Level string
	Msg   string
	Args  []any
}

// testLogger captures log calls.
type testLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *testLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{Level: level, Msg: msg, Args: args})
}

func (l *testLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *testLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *testLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *testLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *testLogger) Entries(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

var errBrokerDown = errors.New("broker down")

// uniqueName keeps metric label sets apart between tests.
var nameSeq struct {
	sync.Mutex
	n int
}

func uniqueName(prefix string) string {
	nameSeq.Lock()
	defer nameSeq.Unlock()
	nameSeq.n++
	return fmt.Sprintf("%s %d", prefix, nameSeq.n)
}
