// Package mqtt provides the broker connection of the weather service.
//
// The decoder that turns radio packets into measurements publishes sensor
// metadata, readings and liveness under the service prefix; entity states
// go back out as retained messages on the same broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and subscription restore
//   - Publishing with QoS and payload size checks
//   - Wildcard subscriptions with panic-safe handlers
//   - A retained service status topic with a Last Will for crash detection
//
// # Topics
//
// See Topics for the hierarchy. The prefix comes from mqtt.topic_prefix
// and defaults to "graylogic/weather".
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic, err := client.SubscribeSensors(mqtt.KindReading, 1,
//	    func(sensorID, kind string, payload []byte) error {
//	        return handleReading(sensorID, payload)
//	    })
package mqtt
