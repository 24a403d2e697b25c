package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler receives messages for a subscribed filter. It runs on
// paho's delivery goroutine and should return quickly; an error is logged.
type MessageHandler func(topic string, payload []byte) error

// filter is one broker subscription and the handlers sharing it.
//
// ready is closed once the first broker SUBSCRIBE for the filter resolves;
// err then holds its outcome. Callers that join while it is in flight wait
// on ready so that a failure is reported to every one of them.
type filter struct {
	qos      byte
	handlers map[uint64]MessageHandler
	ready    chan struct{}
	err      error
}

// Subscription releases one handler registered with Subscribe.
type Subscription struct {
	c    *Client
	name string
	id   uint64

	once sync.Once
	err  error
}

// Unsubscribe detaches the handler. The broker subscription goes with the
// last handler on the filter. Repeated calls return the first result.
func (s *Subscription) Unsubscribe() error {
	s.once.Do(func() { s.err = s.c.release(s.name, s.id) })
	return s.err
}

// Publish sends payload and waits for paho to hand it off (QoS 0) or for
// the broker acknowledgement (QoS 1 and 2), bounded by a 5 second timeout.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %d byte payload over the %d byte limit", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}

	if err := await(c.paho.Publish(topic, qos, retained, payload), tokenTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// Subscribe attaches handler to topic, which may contain + and # wildcards.
// If the filter is already subscribed the handler joins it and qos is
// ignored. The filter is re-subscribed automatically after a reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) (*Subscription, error) {
	switch {
	case topic == "":
		return nil, ErrInvalidTopic
	case qos > maxQoS:
		return nil, ErrInvalidQoS
	case handler == nil:
		return nil, fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	case !c.IsConnected():
		return nil, ErrNotConnected
	}

	c.filtersMu.Lock()
	c.handlerID++
	id := c.handlerID
	f, joined := c.filters[topic]
	if !joined {
		f = &filter{qos: qos, handlers: make(map[uint64]MessageHandler), ready: make(chan struct{})}
		c.filters[topic] = f
	}
	f.handlers[id] = handler
	c.filtersMu.Unlock()

	if joined {
		<-f.ready
		if f.err != nil {
			return nil, f.err
		}
		return &Subscription{c: c, name: topic, id: id}, nil
	}

	if err := await(c.paho.Subscribe(topic, qos, c.dispatch(topic)), tokenTimeout); err != nil {
		f.err = fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
		c.filtersMu.Lock()
		if c.filters[topic] == f {
			delete(c.filters, topic)
		}
		c.filtersMu.Unlock()
		close(f.ready)
		return nil, f.err
	}
	close(f.ready)
	return &Subscription{c: c, name: topic, id: id}, nil
}

func (c *Client) release(topic string, id uint64) error {
	c.filtersMu.Lock()
	f, ok := c.filters[topic]
	last := false
	if ok {
		delete(f.handlers, id)
		if len(f.handlers) == 0 {
			delete(c.filters, topic)
			last = true
		}
	}
	c.filtersMu.Unlock()

	// A dropped clean session already forgot the filter at the broker.
	if !last || !c.IsConnected() {
		return nil
	}
	if err := await(c.paho.Unsubscribe(topic), tokenTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

// resubscribe restores every tracked filter after a reconnect. Failures are
// left for the next reconnect to retry.
func (c *Client) resubscribe() {
	c.filtersMu.Lock()
	defer c.filtersMu.Unlock()
	for topic, f := range c.filters {
		c.paho.Subscribe(topic, f.qos, c.dispatch(topic))
	}
}

// dispatch fans one delivery out to the handlers on a filter, isolating
// each one from the others' panics.
func (c *Client) dispatch(topic string) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.filtersMu.Lock()
		var handlers []MessageHandler
		if f, ok := c.filters[topic]; ok {
			handlers = make([]MessageHandler, 0, len(f.handlers))
			for _, h := range f.handlers {
				handlers = append(handlers, h)
			}
		}
		c.filtersMu.Unlock()

		for _, h := range handlers {
			c.run(h, msg.Topic(), msg.Payload())
		}
	}
}

func (c *Client) run(h MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("MQTT handler panic recovered", "topic", topic, "panic", r)
		}
	}()
	if err := h(topic, payload); err != nil {
		c.logWarn("MQTT handler returned error", "topic", topic, "error", err)
	}
}
