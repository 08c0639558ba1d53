// Package sensor holds the static description of weather sensors and the
// events the decoder emits about them.
//
// A Sensor owns an immutable list of Measurements. Each Measurement has a
// MeasurementType from a closed enumeration; Describe maps a type to a
// fresh Descriptor carrying presentation metadata (device class, unit,
// icon, enum options, binary flag).
//
// The Registry caches sensors in front of a SQLite Repository and keeps
// the runtime liveness (Status) of each sensor in memory:
//
//	reg := sensor.NewRegistry(sensor.NewSQLiteRepository(db.DB))
//	if err := reg.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	st := reg.Status("08AABBCCDDEE")
package sensor
