package mqttswitch

import "github.com/nerrad567/gray-logic-switch/internal/infrastructure/config"

// Defaults applied to a switch configuration.
const (
	DefaultName       = config.DefaultSwitchName
	DefaultQoS        = 0
	DefaultPayloadOn  = "ON"
	DefaultPayloadOff = "OFF"
)

// Config describes one switch.
type Config struct {
	// ID identifies the switch in the host registry. Defaults to a slug of Name.
	ID   string
	Name string

	// StateTopic is optional; without it the switch is always optimistic.
	StateTopic string

	// CommandTopic is required.
	CommandTopic string

	QoS        byte
	PayloadOn  string
	PayloadOff string
	Optimistic bool

	// Retain marks command publishes as retained.
	Retain bool

	// StateFormat selects the feedback payload interpreter: "" (raw),
	// "json:<dotted.path>" or "expr:<expression>".
	StateFormat string
}

// WithDefaults returns a copy with empty fields filled in.
// Optimistic is not touched here; New forces it when StateTopic is empty.
func (c Config) WithDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.PayloadOn == "" {
		c.PayloadOn = DefaultPayloadOn
	}
	if c.PayloadOff == "" {
		c.PayloadOff = DefaultPayloadOff
	}
	if c.ID == "" {
		c.ID = config.GenerateSlug(c.Name)
	}
	return c
}

// FromSwitchConfig converts a YAML switch entry to a bridge Config.
// Out-of-range QoS values are caught by config validation before this runs.
func FromSwitchConfig(sc config.SwitchConfig) Config {
	return Config{
		ID:           sc.ID,
		Name:         sc.Name,
		StateTopic:   sc.StateTopic,
		CommandTopic: sc.CommandTopic,
		QoS:          byte(sc.QoS), //nolint:gosec // validated to 0..2
		PayloadOn:    sc.PayloadOn,
		PayloadOff:   sc.PayloadOff,
		Optimistic:   sc.Optimistic,
		Retain:       sc.Retain,
		StateFormat:  sc.StateFormat,
	}
}
