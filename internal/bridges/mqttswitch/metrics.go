package mqttswitch

import "github.com/prometheus/client_golang/prometheus"

// Feedback outcomes recorded in feedbackTotal.
const (
	outcomeOn         = "on"
	outcomeOff        = "off"
	outcomeIgnored    = "ignored"
	outcomeUnparsable = "unparsable"
)

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grayswitch_commands_total",
			Help: "Commands published to switch command topics, by entity and command.",
		},
		[]string{"entity", "command"},
	)

	feedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grayswitch_feedback_total",
			Help: "Feedback messages received on switch state topics, by entity and outcome.",
		},
		[]string{"entity", "outcome"},
	)

	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grayswitch_state",
			Help: "Current switch state (1 = on, 0 = off).",
		},
		[]string{"entity"},
	)
)

func init() { prometheus.MustRegister(commandsTotal, feedbackTotal, stateGauge) }

func boolGauge(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
