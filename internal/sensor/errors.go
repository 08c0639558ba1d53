package sensor

import "errors"

// Domain errors for the sensor package.
//
//	if errors.Is(err, sensor.ErrSensorNotFound) {
//	    // handle not found case
//	}
var (
	// ErrSensorNotFound is returned when a sensor ID does not exist.
	ErrSensorNotFound = errors.New("sensor: not found")

	// ErrSensorExists is returned when creating a sensor with an ID that already exists.
	ErrSensorExists = errors.New("sensor: already exists")

	// ErrInvalidSensor is returned when sensor validation fails.
	ErrInvalidSensor = errors.New("sensor: invalid")

	// ErrUnknownMeasurementType is returned for a type outside the closed enumeration.
	ErrUnknownMeasurementType = errors.New("sensor: unknown measurement type")

	// ErrMeasurementNotFound is returned when a sensor has no measurement with the given ID.
	ErrMeasurementNotFound = errors.New("sensor: measurement not found")
)
