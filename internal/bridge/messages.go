package bridge

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/entity"
	"github.com/nerrad567/gray-logic-weather/internal/sensor"
)

// AddedMessage announces a sensor and its measurements.
// Topic: {prefix}/sensor/{sensor_id}/added
type AddedMessage struct {
	Name  string `json:"name"`
	Model string `json:"model,omitempty"`

	// UpdatePeriod is the nominal transmission period in seconds.
	UpdatePeriod float64 `json:"update_period,omitempty"`

	Measurements []MeasurementInfo `json:"measurements"`
}

// MeasurementInfo is the static description of one measurement.
type MeasurementInfo struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Name               string `json:"name"`
	Unit               string `json:"unit,omitempty"`
	Prefix             string `json:"prefix,omitempty"`
	SupportsPriorValue bool   `json:"supports_prior_value,omitempty"`
}

// ReadingMessage carries one decoded radio packet.
// Topic: {prefix}/sensor/{sensor_id}/reading
type ReadingMessage struct {
	// Timestamp is RFC 3339 text or epoch seconds. Absent means "now".
	Timestamp any  `json:"timestamp,omitempty"`
	ByEvent   bool `json:"by_event,omitempty"`

	// LowBattery is nil when the packet carries no battery flag.
	LowBattery *bool `json:"low_battery,omitempty"`

	Measurements []MeasurementValue `json:"measurements"`
}

// MeasurementValue is one measurement inside a reading.
type MeasurementValue struct {
	ID         string   `json:"id"`
	Value      any      `json:"value"`
	PriorValue *float64 `json:"prior_value,omitempty"`
	Error      bool     `json:"error,omitempty"`
	ErrorText  string   `json:"error_text,omitempty"`
}

// StatusMessage reports sensor liveness.
// Topic: {prefix}/sensor/{sensor_id}/status
type StatusMessage struct {
	Online       bool    `json:"online"`
	UpdatePeriod float64 `json:"update_period,omitempty"`
}

// StateMessage is published for every entity change.
// Topic: {prefix}/entity/{entity_id}/state
// QoS: 1, Retained: Yes
type StateMessage struct {
	EntityID   string         `json:"entity_id"`
	SensorID   string         `json:"sensor_id"`
	Name       string         `json:"name"`
	Kind       entity.Kind    `json:"kind"`
	Value      any            `json:"value"`
	Available  bool           `json:"available"`
	Provenance string         `json:"provenance"`
	LastUpdate *time.Time     `json:"last_update,omitempty"`
	Unit       string         `json:"unit,omitempty"`
	Device     string         `json:"device_class,omitempty"`
	StateClass string         `json:"state_class,omitempty"`
	Icon       string         `json:"icon,omitempty"`
	Options    []string       `json:"options,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`

	// Timestamp is when the message was built (UTC).
	Timestamp time.Time `json:"timestamp"`
}

// NewStateMessage builds the outbound message for an entity state.
func NewStateMessage(s entity.State, now time.Time) StateMessage {
	msg := StateMessage{
		EntityID:   s.EntityID,
		SensorID:   s.SensorID,
		Name:       s.Name,
		Kind:       s.Kind,
		Value:      s.Value,
		Available:  s.Available,
		Provenance: s.Provenance.String(),
		Unit:       s.Descriptor.Unit,
		Device:     s.Descriptor.DeviceClass,
		StateClass: s.Descriptor.StateClass,
		Icon:       s.Descriptor.Icon,
		Options:    s.Descriptor.Options,
		Attributes: s.Attributes,
		Timestamp:  now.UTC(),
	}
	if !s.LastUpdate.IsZero() {
		last := s.LastUpdate.UTC()
		msg.LastUpdate = &last
	}
	return msg
}

// toSensor converts an added message into sensor metadata.
func (m AddedMessage) toSensor(sensorID string) *sensor.Sensor {
	s := &sensor.Sensor{
		ID:           sensorID,
		Name:         m.Name,
		Model:        m.Model,
		UpdatePeriod: seconds(m.UpdatePeriod),
		Measurements: make([]sensor.Measurement, 0, len(m.Measurements)),
	}
	if s.Name == "" {
		s.Name = sensorID
	}
	for _, mi := range m.Measurements {
		s.Measurements = append(s.Measurements, sensor.Measurement{
			ID:                 mi.ID,
			Type:               sensor.MeasurementType(mi.Type),
			Name:               mi.Name,
			Unit:               mi.Unit,
			Prefix:             mi.Prefix,
			SupportsPriorValue: mi.SupportsPriorValue,
		})
	}
	return s
}

// toUpdates fans a reading out into one event per measurement, followed by
// the battery flag when present. now stands in for a missing timestamp.
func (m ReadingMessage) toUpdates(sensorID string, now time.Time) ([]sensor.Updated, error) {
	ts := now
	if m.Timestamp != nil {
		parsed, err := parseTimestamp(m.Timestamp)
		if err != nil {
			return nil, err
		}
		ts = parsed
	}

	updates := make([]sensor.Updated, 0, len(m.Measurements)+1)
	for _, mv := range m.Measurements {
		updates = append(updates, sensor.Updated{
			SensorID:      sensorID,
			MeasurementID: mv.ID,
			Value:         mv.Value,
			PriorValue:    mv.PriorValue,
			Timestamp:     ts,
			IsError:       mv.Error,
			ErrorText:     mv.ErrorText,
			ByEvent:       m.ByEvent,
		})
	}
	if m.LowBattery != nil {
		updates = append(updates, sensor.Updated{
			SensorID:      sensorID,
			MeasurementID: sensor.BatteryMeasurementID,
			Value:         *m.LowBattery,
			Timestamp:     ts,
			ByEvent:       m.ByEvent,
		})
	}
	return updates, nil
}

func (m StatusMessage) toStatus(sensorID string) sensor.StatusChanged {
	return sensor.StatusChanged{
		SensorID:     sensorID,
		Online:       m.Online,
		UpdatePeriod: seconds(m.UpdatePeriod),
	}
}

func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrInvalidPayload, t)
		}
		return parsed.UTC(), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return time.Time{}, fmt.Errorf("%w: timestamp %v", ErrInvalidPayload, t)
		}
		sec, frac := math.Modf(t)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: timestamp of type %T", ErrInvalidPayload, v)
	}
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
