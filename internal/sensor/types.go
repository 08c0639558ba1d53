package sensor

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Measurement is the immutable description of one physical quantity
// reported by a sensor. Its value travels separately in Updated events.
type Measurement struct {
	ID                 string          `json:"id"`
	Type               MeasurementType `json:"type"`
	Name               string          `json:"name"`
	Unit               string          `json:"unit,omitempty"`
	Prefix             string          `json:"prefix,omitempty"`
	SupportsPriorValue bool            `json:"supports_prior_value,omitempty"`
}

// Key is the slug used in entity IDs: lower case with spaces and slashes
// replaced by underscores.
func (m Measurement) Key() string {
	return Slug(m.Name)
}

// Descriptor returns the presentation record for this measurement. A unit
// reported by the decoder overrides the type's default.
func (m Measurement) Descriptor() Descriptor {
	d, _ := Describe(m.Type, m.Prefix)
	if m.Unit != "" && !d.Binary && !d.IsEnum() {
		d.Unit = m.Unit
	}
	return d
}

// BatteryMeasurement returns the synthetic low battery flag every sensor
// carries in addition to its own measurements.
func BatteryMeasurement() Measurement {
	return Measurement{ID: BatteryMeasurementID, Type: TypeLowBattery, Name: "Battery"}
}

// RainingKey is the entity key of the derived "raining now" flag.
const RainingKey = "is_raining"

// reservedKeys are entity keys taken by entities the engine derives from a
// sensor's measurements. The window keys are the defaults; deployments that
// configure other windows are checked when the sensor is built.
var reservedKeys = map[string]bool{
	BatteryMeasurementID: true,
	RainingKey:           true,
	"last_rain":          true,
	"last_hour_rain":     true,
	"last_day_rain":      true,
}

// IsReservedKey reports whether key belongs to a derived entity.
func IsReservedKey(key string) bool {
	return reservedKeys[key]
}

// Slug converts a display name into an identifier fragment.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "/", "_").Replace(s)
}

// Sensor is the static metadata of a discovered sensor.
type Sensor struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Model        string        `json:"model,omitempty"`
	Measurements []Measurement `json:"measurements"`

	// UpdatePeriod is the nominal transmission period. Zero means the
	// sensor only pushes on events.
	UpdatePeriod time.Duration `json:"update_period"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Measurement looks up a measurement by ID.
func (s *Sensor) Measurement(id string) (Measurement, bool) {
	for _, m := range s.Measurements {
		if m.ID == id {
			return m, true
		}
	}
	return Measurement{}, false
}

// FirstOfType returns the first measurement of the given type.
func (s *Sensor) FirstOfType(t MeasurementType) (Measurement, bool) {
	for _, m := range s.Measurements {
		if m.Type == t {
			return m, true
		}
	}
	return Measurement{}, false
}

// DeepCopy returns an independent copy of the sensor.
func (s *Sensor) DeepCopy() *Sensor {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Measurements = slices.Clone(s.Measurements)
	return &cp
}

// Validate checks the sensor metadata.
func (s *Sensor) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidSensor)
	}
	if s.UpdatePeriod < 0 {
		return fmt.Errorf("%w: update period must not be negative", ErrInvalidSensor)
	}

	seenID := make(map[string]bool, len(s.Measurements))
	seenKey := make(map[string]bool, len(s.Measurements))
	for _, m := range s.Measurements {
		if m.ID == "" {
			return fmt.Errorf("%w: measurement id is required", ErrInvalidSensor)
		}
		if m.ID == BatteryMeasurementID || m.Type == TypeLowBattery {
			return fmt.Errorf("%w: measurement %q is reserved", ErrInvalidSensor, m.ID)
		}
		if _, ok := Describe(m.Type, m.Prefix); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownMeasurementType, m.Type)
		}
		if m.Key() == "" {
			return fmt.Errorf("%w: measurement %q has no name", ErrInvalidSensor, m.ID)
		}
		if reservedKeys[m.Key()] {
			return fmt.Errorf("%w: measurement name %q is reserved", ErrInvalidSensor, m.Name)
		}
		if seenID[m.ID] {
			return fmt.Errorf("%w: duplicate measurement id %q", ErrInvalidSensor, m.ID)
		}
		if seenKey[m.Key()] {
			return fmt.Errorf("%w: duplicate measurement name %q", ErrInvalidSensor, m.Name)
		}
		seenID[m.ID] = true
		seenKey[m.Key()] = true
	}
	return nil
}

// Status is the sensor-level liveness information.
type Status struct {
	Online       bool          `json:"online"`
	UpdatePeriod time.Duration `json:"update_period"`
	// Known is false until a status has been reported or derived.
	Known bool `json:"known"`
}
