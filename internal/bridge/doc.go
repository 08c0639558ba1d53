// Package bridge connects the entity core to MQTT.
//
// Inbound, it subscribes to the sensor topics published by the radio
// decoder, validates each payload against an embedded JSON schema and
// turns it into sensor events:
//
//	{prefix}/sensor/{id}/added    -> sensor.Added
//	{prefix}/sensor/{id}/reading  -> one sensor.Updated per measurement
//	{prefix}/sensor/{id}/status   -> sensor.StatusChanged
//
// A reading's low_battery flag becomes an extra Updated event for the
// synthetic "battery" measurement.
//
// Outbound, StatePublisher implements entity.Sink and publishes every
// entity change as a retained JSON message on {prefix}/entity/{id}/state.
package bridge
