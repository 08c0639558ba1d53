package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "graylogic/weather"

// Inbound sensor message kinds.
const (
	KindAdded   = "added"
	KindReading = "reading"
	KindStatus  = "status"
)

// Topics builds the service's topic names under one prefix:
//
//	{prefix}/sensor/{sensor_id}/added     sensor metadata (inbound)
//	{prefix}/sensor/{sensor_id}/reading   decoded readings (inbound)
//	{prefix}/sensor/{sensor_id}/status    sensor liveness (inbound)
//	{prefix}/entity/{entity_id}/state     entity state (outbound, retained)
//	{prefix}/service/status               service online/offline (retained)
type Topics struct {
	prefix string
}

// NewTopics creates a builder. An empty prefix selects DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// Sensor returns the topic of one inbound message kind for a sensor.
func (t Topics) Sensor(sensorID, kind string) string {
	return t.prefix + "/sensor/" + sensorID + "/" + kind
}

// AllSensor returns the wildcard subscription for one message kind.
func (t Topics) AllSensor(kind string) string {
	return t.prefix + "/sensor/+/" + kind
}

// EntityState returns the retained state topic of an entity.
func (t Topics) EntityState(entityID string) string {
	return t.prefix + "/entity/" + entityID + "/state"
}

// Status returns the retained service status topic.
func (t Topics) Status() string {
	return t.prefix + "/service/status"
}

// ParseSensor splits an inbound sensor topic into sensor ID and kind.
func (t Topics) ParseSensor(topic string) (sensorID, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix+"/sensor/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	switch parts[1] {
	case KindAdded, KindReading, KindStatus:
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}
