package mqttswitch

import "github.com/nerrad567/gray-logic-switch/internal/infrastructure/mqtt"

// Transport is the pub/sub collaborator a switch talks through.
type Transport interface {
	// Publish sends payload to topic. Delivery beyond the broker is not confirmed.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers handler for topic and returns a handle that
	// releases it.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) (Subscription, error)
}

// Subscription releases a feedback handler.
type Subscription interface {
	Unsubscribe() error
}

// ClientTransport adapts the shared MQTT client to Transport.
type ClientTransport struct {
	Client *mqtt.Client
}

// NewClientTransport wraps client.
func NewClientTransport(client *mqtt.Client) *ClientTransport {
	return &ClientTransport{Client: client}
}

// Publish forwards to the MQTT client.
func (t *ClientTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return t.Client.Publish(topic, payload, qos, retained)
}

// Subscribe forwards to the MQTT client. Feedback handlers never fail, so
// the adapter always reports success to the client's dispatcher.
func (t *ClientTransport) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) (Subscription, error) {
	sub, err := t.Client.Subscribe(topic, qos, func(topic string, payload []byte) error {
		handler(topic, payload)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}
