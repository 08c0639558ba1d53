package sensor

import (
	"errors"
	"testing"
	"time"
)

func rainSensor() *Sensor {
	return &Sensor{
		ID:           "08AABBCCDDEE",
		Name:         "Rain gauge",
		Model:        "MA10650",
		UpdatePeriod: 7 * time.Minute,
		Measurements: []Measurement{
			{ID: "t1", Type: TypeTemperature, Name: "Temperature"},
			{ID: "r1", Type: TypeRain, Name: "Rain", SupportsPriorValue: true},
			{ID: "s1", Type: TypeTimeSpan, Name: "Time Span"},
		},
	}
}

func TestSensor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Sensor)
		wantErr error
	}{
		{"valid", func(*Sensor) {}, nil},
		{"missing id", func(s *Sensor) { s.ID = "" }, ErrInvalidSensor},
		{"negative period", func(s *Sensor) { s.UpdatePeriod = -time.Second }, ErrInvalidSensor},
		{"unknown type", func(s *Sensor) { s.Measurements[0].Type = "uv" }, ErrUnknownMeasurementType},
		{"duplicate id", func(s *Sensor) { s.Measurements[1].ID = "t1" }, ErrInvalidSensor},
		{"duplicate name", func(s *Sensor) { s.Measurements[1].Name = "temperature" }, ErrInvalidSensor},
		{"reserved id", func(s *Sensor) { s.Measurements[0].ID = BatteryMeasurementID }, ErrInvalidSensor},
		{"empty name", func(s *Sensor) { s.Measurements[0].Name = " " }, ErrInvalidSensor},
		{"battery name", func(s *Sensor) { s.Measurements[0].Name = "Battery" }, ErrInvalidSensor},
		{"raining name", func(s *Sensor) { s.Measurements[2].Name = "Is Raining" }, ErrInvalidSensor},
		{"window name", func(s *Sensor) { s.Measurements[0].Name = "Last Hour Rain" }, ErrInvalidSensor},
		{"last rain name", func(s *Sensor) { s.Measurements[0].Name = "last/rain" }, ErrInvalidSensor},
		{"day window name", func(s *Sensor) { s.Measurements[0].Name = "Last Day Rain" }, ErrInvalidSensor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := rainSensor()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsReservedKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"battery", true},
		{RainingKey, true},
		{"last_rain", true},
		{"last_hour_rain", true},
		{"last_day_rain", true},
		{"rain", false},
		{"temperature", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := IsReservedKey(tt.key); got != tt.want {
				t.Errorf("IsReservedKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestSensor_Lookups(t *testing.T) {
	s := rainSensor()

	if m, ok := s.Measurement("r1"); !ok || m.Type != TypeRain {
		t.Errorf("Measurement(r1) = %+v, %v", m, ok)
	}
	if _, ok := s.Measurement("nope"); ok {
		t.Error("Measurement(nope) should not be found")
	}
	if m, ok := s.FirstOfType(TypeTimeSpan); !ok || m.ID != "s1" {
		t.Errorf("FirstOfType(time_span) = %+v, %v", m, ok)
	}
}

func TestSensor_DeepCopy(t *testing.T) {
	s := rainSensor()
	cp := s.DeepCopy()
	cp.Measurements[0].Name = "changed"

	if s.Measurements[0].Name != "Temperature" {
		t.Error("DeepCopy shares measurement slice")
	}
	var nilSensor *Sensor
	if nilSensor.DeepCopy() != nil {
		t.Error("DeepCopy(nil) should be nil")
	}
}
