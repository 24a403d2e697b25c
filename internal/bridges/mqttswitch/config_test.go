package mqttswitch

import "github.com/nerrad567/gray-logic-switch/internal/infrastructure/config"

func configSwitch() config.SwitchConfig {
	return config.SwitchConfig{
		ID:           "porch",
		Name:         "Porch Light",
		StateTopic:   "home/porch/state",
		CommandTopic: "home/porch/set",
		QoS:          1,
		PayloadOn:    "1",
		PayloadOff:   "0",
		Optimistic:   true,
		Retain:       true,
		StateFormat:  "json:power",
	}
}
