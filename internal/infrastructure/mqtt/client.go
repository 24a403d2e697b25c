package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	tokenTimeout   = 5 * time.Second
	keepAlive      = 60 * time.Second

	// quiesceMillis is how long paho may finish in-flight work on Disconnect.
	quiesceMillis = 1000

	maxQoS         = 2
	maxPayloadSize = 1 << 20
)

// Logger receives handler failures and connection loss.
// *logging.Logger and *slog.Logger both satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is the service's single broker connection. Switches share it
// through Subscribe and Publish; one broker subscription is held per topic
// filter no matter how many switches listen on it.
//
// The session is clean, so the Client re-subscribes every tracked filter
// itself after paho reconnects. All methods are safe for concurrent use.
type Client struct {
	paho     pahomqtt.Client
	clientID string
	qos      byte

	up atomic.Bool

	filtersMu sync.Mutex
	filters   map[string]*filter
	handlerID uint64

	hooksMu      sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)

	logger   Logger
	loggerMu sync.RWMutex
}

// Connect dials the broker described by cfg and waits for the first
// CONNACK. The broker is told to announce the service offline if the
// connection drops without Close.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts := pahoOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), connectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// OnConnect fires on paho's goroutine; don't make callers race it.
	c.up.Store(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{
		clientID: cfg.Broker.ClientID,
		qos:      byte(cfg.QoS), //nolint:gosec // validated 0..2
		filters:  make(map[string]*filter),
	}
}

// await waits for a paho token, converting a timeout into an error.
func await(token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timeout after %v", timeout)
	}
	return token.Error()
}

// connected runs on every (re)connect.
func (c *Client) connected() {
	c.up.Store(true)
	c.resubscribe()
	c.announce(statusOnline, "")

	c.hooksMu.RLock()
	hook := c.onConnect
	c.hooksMu.RUnlock()
	if hook != nil {
		hook()
	}
}

// lost runs when paho reports the connection gone.
func (c *Client) lost(err error) {
	c.up.Store(false)
	c.logWarn("MQTT connection lost", "error", err)

	c.hooksMu.RLock()
	hook := c.onDisconnect
	c.hooksMu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// Close announces a graceful shutdown on the status topic and disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		_ = await(c.paho.Publish(Topics{}.SystemStatus(), c.qos, true,
			statusPayload(statusOffline, c.clientID, "graceful_shutdown")), tokenTimeout)
	}
	c.paho.Disconnect(quiesceMillis)
	c.up.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected is false for a nil Client.
func (c *Client) IsConnected() bool {
	return c != nil && c.paho != nil && c.up.Load() && c.paho.IsConnected()
}

// SetOnConnect registers fn to run after every successful (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.hooksMu.Lock()
	c.onConnect = fn
	c.hooksMu.Unlock()
}

// SetOnDisconnect registers fn to run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hooksMu.Lock()
	c.onDisconnect = fn
	c.hooksMu.Unlock()
}

// SetLogger sets where handler errors and panics are reported.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) logWarn(msg string, args ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, args...)
	}
}
