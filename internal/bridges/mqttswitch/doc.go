// Package mqttswitch implements a binary switch controlled over MQTT.
//
// A switch publishes a fixed payload to its command topic for each on/off
// command and, when a state topic is configured, follows the device's
// feedback published there. Without a state topic it runs optimistically.
//
// Feedback payloads are reduced to a comparison value by an Interpreter
// chosen once from state_format:
//
//	""              raw payload
//	"json:a.b.0"    a field of a JSON document
//	"expr:<code>"   an expression over payload and its decoded JSON value
//
// The comparison value is matched against payload_on and payload_off.
// Anything else, including undecodable payloads, leaves the state alone.
//
// Usage:
//
//	sw, err := mqttswitch.New(mqttswitch.Config{
//	    Name:         "Porch Light",
//	    StateTopic:   "home/switch/1/state",
//	    CommandTopic: "home/switch/1/set",
//	}, mqttswitch.Options{
//	    Transport: mqttswitch.NewClientTransport(client),
//	    Notifier:  registry.Notify,
//	    Logger:    log,
//	})
//	if err != nil {
//	    return err
//	}
//	defer sw.Close()
package mqttswitch
