package mqttswitch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-switch/internal/entity"
)

// Logger is the structured logger the bridge writes to.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds the collaborators for a switch.
type Options struct {
	// Transport is required.
	Transport Transport

	// Notifier receives every state change. Optional.
	Notifier entity.Notifier

	// Logger is optional.
	Logger Logger

	// Now overrides the clock used for StateChange timestamps. Optional.
	Now func() time.Time
}

// Bridge is a binary switch driven over MQTT.
//
// Commands are published to the command topic. When a state topic is
// configured, the switch follows feedback published there; otherwise it
// runs optimistically and assumes each command succeeded.
//
// Thread Safety: All methods are safe for concurrent use. State changes and
// their notifications are serialised, so observers see them in the order
// they were applied.
type Bridge struct {
	cfg        Config
	optimistic bool
	format     StateFormat
	interpret  Interpreter

	transport Transport
	notify    entity.Notifier
	now       func() time.Time
	sub       Subscription

	// writeMu serialises set-and-notify. stateMu guards state alone so that
	// a notifier may call IsOn while writeMu is held.
	writeMu sync.Mutex
	stateMu sync.RWMutex
	state   bool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	logger   Logger
	loggerMu sync.RWMutex
}

var _ entity.OnOffEntity = (*Bridge)(nil)

// New validates cfg, resolves its payload interpreter and subscribes to the
// state topic if one is configured.
//
// A missing command topic is logged and returned as ErrMissingCommandTopic;
// no subscription is made in that case.
func New(cfg Config, opts Options) (*Bridge, error) {
	cfg = cfg.WithDefaults()

	b := &Bridge{
		cfg:       cfg,
		transport: opts.Transport,
		notify:    opts.Notifier,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if b.now == nil {
		b.now = time.Now
	}

	if strings.TrimSpace(cfg.CommandTopic) == "" {
		b.logError("missing required variable: command_topic", ErrMissingCommandTopic, "name", cfg.Name)
		return nil, ErrMissingCommandTopic
	}
	if opts.Transport == nil {
		return nil, ErrNilTransport
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQoS, cfg.QoS)
	}

	interp, format, err := NewInterpreter(cfg.StateFormat)
	if err != nil {
		return nil, fmt.Errorf("switch %q: %w", cfg.ID, err)
	}
	if format.Unknown {
		b.logWarn("unrecognised state_format, comparing raw payloads",
			"entity_id", cfg.ID,
			"state_format", cfg.StateFormat,
		)
	}
	b.format = format
	b.interpret = interp

	b.optimistic = cfg.Optimistic || cfg.StateTopic == ""

	if cfg.StateTopic != "" {
		sub, err := opts.Transport.Subscribe(cfg.StateTopic, cfg.QoS, b.handleFeedback)
		if err != nil {
			return nil, fmt.Errorf("switch %q: subscribing to %s: %w", cfg.ID, cfg.StateTopic, err)
		}
		b.sub = sub
	}

	b.logDebug("switch created",
		"entity_id", cfg.ID,
		"command_topic", cfg.CommandTopic,
		"state_topic", cfg.StateTopic,
		"optimistic", b.optimistic,
		"state_format", format.Kind.String(),
	)

	return b, nil
}

// ID returns the registry identifier.
func (b *Bridge) ID() string {
	return b.cfg.ID
}

// Name returns the display name.
func (b *Bridge) Name() string {
	return b.cfg.Name
}

// IsOn returns the last known state.
func (b *Bridge) IsOn() bool {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// ShouldPoll is always false: state arrives by push.
func (b *Bridge) ShouldPoll() bool {
	return false
}

// Optimistic reports whether commands update state locally.
func (b *Bridge) Optimistic() bool {
	return b.optimistic
}

// Config returns the effective configuration, defaults applied.
func (b *Bridge) Config() Config {
	return b.cfg
}

// Format returns the resolved state format.
func (b *Bridge) Format() StateFormat {
	return b.format
}

// TurnOn publishes payload_on to the command topic.
func (b *Bridge) TurnOn(ctx context.Context) error {
	return b.command(ctx, true)
}

// TurnOff publishes payload_off to the command topic.
func (b *Bridge) TurnOff(ctx context.Context) error {
	return b.command(ctx, false)
}

// command publishes the canonical payload. In optimistic mode the state is
// set even when the publish fails; the error is still returned.
//
// ctx is not consulted: a command that reached the switch is always sent.
func (b *Bridge) command(_ context.Context, on bool) error {
	if b.closed.Load() {
		return ErrClosed
	}

	payload, name := b.cfg.PayloadOff, "turn_off"
	if on {
		payload, name = b.cfg.PayloadOn, "turn_on"
	}

	commandsTotal.WithLabelValues(b.cfg.ID, name).Inc()

	var pubErr error
	if err := b.transport.Publish(b.cfg.CommandTopic, []byte(payload), b.cfg.QoS, b.cfg.Retain); err != nil {
		pubErr = fmt.Errorf("%w: %w", ErrPublishFailed, err)
		b.logError("publishing switch command", err,
			"entity_id", b.cfg.ID,
			"topic", b.cfg.CommandTopic,
		)
	}

	if b.optimistic {
		b.setState(on, entity.SourceOptimistic)
	}

	return pubErr
}

// handleFeedback interprets a state topic message. Payloads matching
// neither canonical value are ignored.
func (b *Bridge) handleFeedback(_ string, payload []byte) {
	if b.closed.Load() {
		return
	}

	value, ok := b.interpret(payload)
	if !ok {
		feedbackTotal.WithLabelValues(b.cfg.ID, outcomeUnparsable).Inc()
		return
	}

	switch value {
	case b.cfg.PayloadOn:
		feedbackTotal.WithLabelValues(b.cfg.ID, outcomeOn).Inc()
		b.setState(true, entity.SourceFeedback)
	case b.cfg.PayloadOff:
		feedbackTotal.WithLabelValues(b.cfg.ID, outcomeOff).Inc()
		b.setState(false, entity.SourceFeedback)
	default:
		feedbackTotal.WithLabelValues(b.cfg.ID, outcomeIgnored).Inc()
	}
}

// setState stores on and notifies, holding writeMu across both.
func (b *Bridge) setState(on bool, source string) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.stateMu.Lock()
	b.state = on
	b.stateMu.Unlock()

	// The series appears with the first known state and is never deleted, so
	// a rejected duplicate can not disturb the registered switch's value.
	stateGauge.WithLabelValues(b.cfg.ID).Set(boolGauge(on))

	if b.notify != nil {
		b.notify(entity.StateChange{
			EntityID:  b.cfg.ID,
			Name:      b.cfg.Name,
			On:        on,
			Source:    source,
			Timestamp: b.now().UTC(),
		})
	}
}

// Close releases the feedback subscription. Only the first call does
// anything; later calls return the first call's result.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		if b.sub != nil {
			b.closeErr = b.sub.Unsubscribe()
		}
	})
	return b.closeErr
}

// SetLogger replaces the logger.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
