package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementEntity is the InfluxDB measurement entity values are written to.
const MeasurementEntity = "entity_value"

// EntityValue is one entity state change.
type EntityValue struct {
	EntityID  string
	SensorID  string
	Key       string
	Value     any
	Available bool
	At        time.Time
}

// entityPoint converts an entity value into a point. Numbers become the
// "value" field, booleans the "flag" field. Availability is always written
// so gaps are visible. Strings and nulls carry no numeric field.
func entityPoint(v EntityValue) *write.Point {
	fields := map[string]interface{}{
		"available": v.Available,
	}
	switch val := v.Value.(type) {
	case float64:
		fields["value"] = val
	case bool:
		fields["flag"] = val
	case int:
		fields["value"] = float64(val)
	case int64:
		fields["value"] = float64(val)
	}

	at := v.At
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(
		MeasurementEntity,
		map[string]string{
			"entity_id": v.EntityID,
			"sensor_id": v.SensorID,
			"key":       v.Key,
		},
		fields,
		at,
	)
}

// WriteEntityValue records an entity state change. Non-blocking.
func (c *Client) WriteEntityValue(v EntityValue) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(entityPoint(v))
}

// WritePoint writes a custom point with full control over tags and fields.
// A zero timestamp means now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
