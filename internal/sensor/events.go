package sensor

import "time"

// Added announces a newly discovered sensor together with its static
// measurement metadata.
type Added struct {
	Sensor Sensor
}

// Updated carries one decoded measurement value.
type Updated struct {
	SensorID      string
	MeasurementID string
	Value         any

	// PriorValue is the previous reading of a cumulative counter when the
	// decoder reports one. Nil when absent.
	PriorValue *float64

	Timestamp time.Time
	IsError   bool
	ErrorText string

	// ByEvent is true when the transmission was triggered by a state change
	// rather than the regular schedule.
	ByEvent bool
}

// StatusChanged reports sensor liveness. UpdatePeriod of zero leaves the
// stored period untouched.
type StatusChanged struct {
	SensorID     string
	Online       bool
	UpdatePeriod time.Duration
}
