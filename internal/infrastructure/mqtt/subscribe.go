package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// SensorHandler receives one inbound sensor message. The sensor ID and kind
// have already been taken from the topic.
type SensorHandler func(sensorID, kind string, payload []byte) error

// ForSensors adapts h to the wildcard subscription of one message kind.
// A topic outside the sensor namespace, or carrying another kind, fails
// with ErrInvalidTopic and never reaches h.
func (t Topics) ForSensors(kind string, h SensorHandler) MessageHandler {
	return func(topic string, payload []byte) error {
		sensorID, got, ok := t.ParseSensor(topic)
		if !ok || got != kind {
			return fmt.Errorf("%w: unexpected sensor topic %s", ErrInvalidTopic, topic)
		}
		return h(sensorID, kind, payload)
	}
}

// SubscribeSensors subscribes h to one message kind from every sensor and
// returns the wildcard topic it subscribed to, for a later Unsubscribe.
//
// Example:
//
//	topic, err := client.SubscribeSensors(mqtt.KindReading, 1,
//	    func(sensorID, kind string, payload []byte) error {
//	        return decode(sensorID, payload)
//	    })
func (c *Client) SubscribeSensors(kind string, qos byte, h SensorHandler) (string, error) {
	if h == nil {
		return "", fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	topic := c.topics.AllSensor(kind)
	if err := c.Subscribe(topic, qos, c.topics.ForSensors(kind, h)); err != nil {
		return "", err
	}
	return topic, nil
}

// Subscribe registers a handler for a topic pattern. Wildcards are allowed.
// The subscription is tracked and restored after a reconnect; a failed
// subscribe is not tracked.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	if err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed); err != nil {
		c.forget(topic)
		return err
	}
	return nil
}

// Unsubscribe drops a subscription. Messages already in flight may still
// be delivered.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)
	return await(c.client.Unsubscribe(topic), ErrUnsubscribeFailed)
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// await waits for a broker acknowledgement and wraps any failure in failed.
func await(token pahomqtt.Token, failed error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", failed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", failed, err)
	}
	return nil
}
