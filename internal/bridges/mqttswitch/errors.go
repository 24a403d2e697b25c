package mqttswitch

import "errors"

// Domain errors for the MQTT switch bridge.
var (
	// ErrMissingCommandTopic is the one fatal configuration error: a switch
	// without a command topic is never created.
	ErrMissingCommandTopic = errors.New("mqttswitch: missing required variable: command_topic")

	// ErrInvalidStateFormat is returned when state_format names a known
	// scheme with an unusable argument (empty JSON path, bad expression).
	ErrInvalidStateFormat = errors.New("mqttswitch: invalid state_format")

	// ErrNilTransport is returned when New is called without a transport.
	ErrNilTransport = errors.New("mqttswitch: transport is required")

	// ErrInvalidQoS is returned for QoS levels other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqttswitch: invalid QoS level (must be 0, 1, or 2)")

	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("mqttswitch: switch closed")

	// ErrPublishFailed wraps transport errors from TurnOn/TurnOff.
	ErrPublishFailed = errors.New("mqttswitch: command publish failed")
)
