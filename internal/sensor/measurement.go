package sensor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MeasurementType is the closed enumeration of physical quantities a sensor
// can report.
type MeasurementType string

// Measurement types reported by the decoder.
const (
	TypeTemperature   MeasurementType = "temperature"
	TypeHumidity      MeasurementType = "humidity"
	TypeCO2           MeasurementType = "co2"
	TypeAirPressure   MeasurementType = "air_pressure"
	TypeRain          MeasurementType = "rain"
	TypeTimeSpan      MeasurementType = "time_span"
	TypeWindSpeed     MeasurementType = "wind_speed"
	TypeGust          MeasurementType = "gust"
	TypeWindDirection MeasurementType = "wind_direction"
	TypeKeyPressed    MeasurementType = "key_pressed"
	TypeKeyPressType  MeasurementType = "key_press_type"
	TypeWetness       MeasurementType = "wetness"
	TypeAlarm         MeasurementType = "alarm"
	TypeDoorWindow    MeasurementType = "door_window"

	// TypeLowBattery is the synthetic per-sensor battery flag. The decoder
	// reports it alongside readings rather than as a measurement of its own.
	TypeLowBattery MeasurementType = "low_battery"
)

// BatteryMeasurementID is the measurement ID under which the low battery
// flag travels through the update path.
const BatteryMeasurementID = "battery"

// AllMeasurementTypes lists every member of the enumeration.
var AllMeasurementTypes = []MeasurementType{
	TypeTemperature, TypeHumidity, TypeCO2, TypeAirPressure, TypeRain,
	TypeTimeSpan, TypeWindSpeed, TypeGust, TypeWindDirection, TypeKeyPressed,
	TypeKeyPressType, TypeWetness, TypeAlarm, TypeDoorWindow, TypeLowBattery,
}

// State classes.
const (
	StateClassMeasurement     = "measurement"
	StateClassTotalIncreasing = "total_increasing"
)

// Descriptor is the immutable presentation record for one measurement type.
// Every call to Describe returns a fresh value; there is no shared template.
type Descriptor struct {
	Type        MeasurementType `json:"type"`
	DeviceClass string          `json:"device_class,omitempty"`
	StateClass  string          `json:"state_class,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Icon        string          `json:"icon,omitempty"`
	Binary      bool            `json:"binary"`
	Diagnostic  bool            `json:"diagnostic,omitempty"`
	Options     []string        `json:"options,omitempty"`
}

// Describe returns the descriptor for t. prefix is the measurement's
// location prefix ("Pool", "Indoor", ...) and only affects temperature icons.
func Describe(t MeasurementType, prefix string) (Descriptor, bool) {
	switch t {
	case TypeTemperature:
		icon := ""
		switch {
		case prefix == "Pool":
			icon = "mdi:pool-thermometer"
		case prefix != "":
			icon = "mdi:home-thermometer"
		}
		return Descriptor{Type: t, DeviceClass: "temperature", StateClass: StateClassMeasurement, Unit: "°C", Icon: icon}, true
	case TypeHumidity:
		return Descriptor{Type: t, DeviceClass: "humidity", StateClass: StateClassMeasurement, Unit: "%"}, true
	case TypeCO2:
		return Descriptor{Type: t, DeviceClass: "carbon_dioxide", StateClass: StateClassMeasurement, Unit: "ppm"}, true
	case TypeAirPressure:
		return Descriptor{Type: t, DeviceClass: "pressure", StateClass: StateClassMeasurement, Unit: "hPa"}, true
	case TypeRain:
		return Descriptor{Type: t, StateClass: StateClassTotalIncreasing, Unit: "mm", Icon: "mdi:water"}, true
	case TypeTimeSpan:
		return Descriptor{Type: t, DeviceClass: "duration", Unit: "s", Icon: "mdi:timer"}, true
	case TypeWindSpeed, TypeGust:
		return Descriptor{Type: t, DeviceClass: "wind_speed", StateClass: StateClassMeasurement, Unit: "m/s", Icon: "mdi:weather-windy"}, true
	case TypeWindDirection:
		return Descriptor{Type: t, StateClass: StateClassMeasurement, Unit: "°", Icon: "mdi:windsock"}, true
	case TypeKeyPressed:
		return Descriptor{
			Type: t, DeviceClass: "enum", Icon: "mdi:button-pointer",
			Options: []string{"none", "green", "orange", "red", "yellow"},
		}, true
	case TypeKeyPressType:
		return Descriptor{
			Type: t, DeviceClass: "enum", Icon: "mdi:button-pointer",
			Options: []string{"none", "short", "double", "long"},
		}, true
	case TypeWetness:
		return Descriptor{Type: t, DeviceClass: "moisture", Binary: true}, true
	case TypeAlarm:
		return Descriptor{Type: t, DeviceClass: "smoke", Binary: true}, true
	case TypeDoorWindow:
		return Descriptor{Type: t, DeviceClass: "door", Binary: true}, true
	case TypeLowBattery:
		return Descriptor{Type: t, DeviceClass: "battery", Binary: true, Diagnostic: true}, true
	default:
		return Descriptor{}, false
	}
}

// IsEnum reports whether values are presented as one of Options.
func (d Descriptor) IsEnum() bool {
	return len(d.Options) > 0
}

// Normalize converts a decoded value into the representation entities hold:
// option strings for enum types, bool for binary types and float64 for
// everything numeric. Values that cannot be converted yield an error.
func (d Descriptor) Normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch {
	case d.IsEnum():
		return d.normalizeEnum(value)
	case d.Binary:
		return normalizeBool(value)
	default:
		f, ok := ToFloat(value)
		if !ok {
			return nil, fmt.Errorf("%s: non-numeric value %v", d.Type, value)
		}
		return f, nil
	}
}

func (d Descriptor) normalizeEnum(value any) (any, error) {
	if s, ok := value.(string); ok {
		for _, opt := range d.Options {
			if strings.EqualFold(opt, s) {
				return opt, nil
			}
		}
		if f, ok := ToFloat(s); ok {
			value = f
		} else {
			return nil, fmt.Errorf("%s: unknown option %q", d.Type, s)
		}
	}

	f, ok := ToFloat(value)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported value %v", d.Type, value)
	}
	idx := int(f)
	if float64(idx) != f || idx < 0 || idx >= len(d.Options) {
		return nil, fmt.Errorf("%s: option index %v out of range", d.Type, value)
	}
	return d.Options[idx], nil
}

func normalizeBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "on", "true", "1", "yes":
			return true, nil
		case "off", "false", "0", "no":
			return false, nil
		}
		return nil, fmt.Errorf("non-boolean value %q", v)
	default:
		f, ok := ToFloat(value)
		if !ok {
			return nil, fmt.Errorf("non-boolean value %v", value)
		}
		return f != 0, nil
	}
}

// ToFloat converts JSON-ish numbers and numeric strings to float64.
// NaN and infinities are rejected: they cannot be persisted or published.
func ToFloat(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
