// Package influxdb writes entity telemetry to InfluxDB v2.
//
// Every entity state change with a numeric or boolean value becomes one
// point in the "entity_value" measurement, tagged by entity, sensor and
// key. Writes are batched and non-blocking; the service keeps running when
// InfluxDB is slow or down.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry switched off
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write", "error", err) })
//	client.WriteEntityValue(influxdb.EntityValue{EntityID: "08AABBCCDDEE-rain", Value: 12.5, Available: true})
package influxdb
