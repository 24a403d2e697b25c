package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-switch/internal/bridges/mqttswitch"
	"github.com/nerrad567/gray-logic-switch/internal/entity"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-switch/migrations"
)

// fakeTransport records publishes and delivers feedback synchronously.
type fakeTransport struct {
	mu         sync.Mutex
	published  []string
	handlers   map[string]func(string, []byte)
	publishErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[string]func(string, []byte){}}
}

func (f *fakeTransport) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, topic+"="+string(payload))
	return f.publishErr
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler func(string, []byte)) (mqttswitch.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return fakeSub{}, nil
}

func (f *fakeTransport) feedback(topic, payload string) {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	h(topic, []byte(payload))
}

func (f *fakeTransport) Published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

type fakeSub struct{}

func (fakeSub) Unsubscribe() error { return nil }

type fakeCheck struct{ err error }

func (c fakeCheck) HealthCheck(context.Context) error { return c.err }

type testEnv struct {
	srv       *Server
	registry  *entity.Registry
	transport *fakeTransport
	history   *entity.SQLiteHistoryRepository
}

// newTestEnv builds a server with two switches: "porch" follows feedback on
// home/porch/state, "garden" is optimistic.
func newTestEnv(t *testing.T, checks map[string]HealthChecker) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{Path: database.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(ctx, migrations.FS))

	history := entity.NewSQLiteHistoryRepository(db.DB)
	registry := entity.NewRegistry()
	registry.AddObserver(entity.NewHistoryRecorder(history, nil))
	transport := newFakeTransport()

	for _, cfg := range []mqttswitch.Config{
		{ID: "porch", Name: "Porch Light", StateTopic: "home/porch/state", CommandTopic: "home/porch/set"},
		{ID: "garden", Name: "Garden Pump", CommandTopic: "home/garden/set"},
	} {
		sw, err := mqttswitch.New(cfg, mqttswitch.Options{Transport: transport, Notifier: registry.Notify})
		require.NoError(t, err)
		require.NoError(t, registry.Add(sw))
	}
	t.Cleanup(func() { registry.Close() }) //nolint:errcheck // Test cleanup

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1"},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   logging.Discard(),
		Registry: registry,
		History:  history,
		Checks:   checks,
		Version:  "test",
	})
	require.NoError(t, err)

	return &testEnv{srv: srv, registry: registry, transport: transport, history: history}
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{Registry: entity.NewRegistry()})
	assert.Error(t, err)

	_, err = New(Deps{Logger: logging.Discard()})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, map[string]HealthChecker{"mqtt": fakeCheck{}})

	rec := env.do(t, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, float64(2), body["switches"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealth_Degraded(t *testing.T) {
	env := newTestEnv(t, map[string]HealthChecker{
		"mqtt":     fakeCheck{err: errors.New("not connected")},
		"database": fakeCheck{},
	})

	rec := env.do(t, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "not connected", checks["mqtt"])
	assert.Equal(t, "ok", checks["database"])
}

func TestRequestID_Propagated(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestListSwitches(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/switches")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Switches []entity.Snapshot `json:"switches"`
		Count    int               `json:"count"`
	}](t, rec)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Switches, 2)
	assert.Equal(t, "garden", body.Switches[0].ID)
	assert.Equal(t, "porch", body.Switches[1].ID)
	assert.Equal(t, "off", body.Switches[1].State)
	assert.False(t, body.Switches[1].ShouldPoll)
}

func TestGetSwitch(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/switches/porch")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[entity.Snapshot](t, rec)
	assert.Equal(t, "Porch Light", snap.Name)

	rec = env.do(t, http.MethodGet, "/api/v1/switches/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, decode[Error](t, rec).Code)
}

func TestSwitchCommand_WaitsForFeedback(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/switches/porch/on")
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decode[CommandResponse](t, rec)
	assert.Equal(t, "turn_on", resp.Command)
	assert.False(t, resp.Switch.On, "state follows feedback, not the command")
	assert.Equal(t, []string{"home/porch/set=ON"}, env.transport.Published())

	env.transport.feedback("home/porch/state", "ON")

	snap := decode[entity.Snapshot](t, env.do(t, http.MethodGet, "/api/v1/switches/porch"))
	assert.True(t, snap.On)
}

func TestSwitchCommand_Optimistic(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/switches/garden/on")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, decode[CommandResponse](t, rec).Switch.On)

	rec = env.do(t, http.MethodPost, "/api/v1/switches/garden/off")
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[CommandResponse](t, rec)
	assert.Equal(t, "turn_off", resp.Command)
	assert.False(t, resp.Switch.On)
}

func TestSwitchCommand_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/switches/missing/on")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.transport.publishErr = errors.New("not connected")
	rec = env.do(t, http.MethodPost, "/api/v1/switches/porch/on")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, ErrCodeBadGateway, decode[Error](t, rec).Code)

	env.transport.publishErr = nil
	sw, err := env.registry.Get("porch")
	require.NoError(t, err)
	require.NoError(t, sw.Close())

	rec = env.do(t, http.MethodPost, "/api/v1/switches/porch/off")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSwitchCommand_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/switches/porch/on")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSwitchHistory(t *testing.T) {
	env := newTestEnv(t, nil)

	env.transport.feedback("home/porch/state", "ON")
	env.transport.feedback("home/porch/state", "OFF")
	env.transport.feedback("home/porch/state", "OFF")

	rec := env.do(t, http.MethodGet, "/api/v1/switches/porch/history")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		EntityID string               `json:"entity_id"`
		History  []entity.HistoryEntry `json:"history"`
		Count    int                  `json:"count"`
	}](t, rec)
	assert.Equal(t, "porch", body.EntityID)
	require.Equal(t, 3, body.Count)
	assert.False(t, body.History[0].On, "newest first")
	assert.True(t, body.History[2].On)
	assert.Equal(t, entity.SourceFeedback, body.History[0].Source)

	rec = env.do(t, http.MethodGet, "/api/v1/switches/porch/history?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["count"])
}

func TestSwitchHistory_Empty(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/switches/garden/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, mustJSON(t, decode[map[string]any](t, rec)["history"]))
}

func TestSwitchHistory_BadLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, q := range []string{"0", "-3", "abc"} {
		rec := env.do(t, http.MethodGet, "/api/v1/switches/porch/history?limit="+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", q)
	}
}

func TestParseHistoryLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "", want: 50},
		{raw: "10", want: 10},
		{raw: "200", want: 200},
		{raw: "500", want: 200},
		{raw: "0", wantErr: true},
		{raw: "x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseHistoryLimit(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestSwitchHistory_Disabled(t *testing.T) {
	registry := entity.NewRegistry()
	srv, err := New(Deps{Logger: logging.Discard(), Registry: registry})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/switches/x/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/v1/switches/garden/on")

	rec := env.do(t, http.MethodGet, "/api/v1/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[SystemMetrics](t, rec)
	assert.Equal(t, SwitchMetrics{Total: 2, On: 1, Off: 1}, m.Switches)
	assert.Equal(t, "test", m.Version)

	rec = env.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "grayswitch_commands_total")
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)
	env.srv.cfg.CORS.AllowedOrigins = []string{"http://panel.local"}

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/switches", nil)
	req.Header.Set("Origin", "http://panel.local")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://panel.local", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/switches", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)

	h := env.srv.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	require.Eventually(t, func() bool { return env.srv.hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
	return conn
}

func TestWebSocket_StateChangedPushed(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env)

	env.transport.feedback("home/porch/state", "ON")

	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, EventSwitchStateChanged, event.Type)
	assert.NotEmpty(t, event.Timestamp)
	assert.Equal(t, "porch", event.Payload.EntityID)
	assert.True(t, event.Payload.On)
	assert.Equal(t, "on", event.Payload.State)
	assert.Equal(t, entity.SourceFeedback, event.Payload.Source)
}

func TestWebSocket_ClientMessagesIgnored(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialWS(t, env)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	rec := env.do(t, http.MethodPost, "/api/v1/switches/garden/on")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "garden", event.Payload.EntityID)
	assert.Equal(t, entity.SourceOptimistic, event.Payload.Source)
}

func TestHub_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(logging.Discard())
	client := &wsClient{id: "slow", outbox: make(chan []byte, 1), done: make(chan struct{})}
	hub.add(client)

	hub.OnStateChange(entity.StateChange{EntityID: "a", On: true})
	assert.Len(t, client.outbox, 1)

	hub.OnStateChange(entity.StateChange{EntityID: "a"})
	assert.Len(t, client.outbox, 1, "full outbox drops the event")

	hub.remove(client)
	assert.Zero(t, hub.ClientCount())
	assert.False(t, client.offer([]byte("late")), "stopped client accepts nothing")
	hub.OnStateChange(entity.StateChange{EntityID: "a"})
}

func TestHub_RunDisconnectsOnCancel(t *testing.T) {
	hub := NewHub(logging.Discard())
	client := &wsClient{id: "c", outbox: make(chan []byte, 1), done: make(chan struct{})}
	hub.add(client)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(finished)
	}()
	cancel()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Zero(t, hub.ClientCount())
	select {
	case <-client.done:
	default:
		t.Error("client not stopped")
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
