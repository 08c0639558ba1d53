package entity

import (
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/persist"
	"github.com/nerrad567/gray-logic-weather/internal/sensor"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func rainMeasurement() sensor.Measurement {
	return sensor.Measurement{ID: "r1", Type: sensor.TypeRain, Name: "Rain", SupportsPriorValue: true}
}

func tempMeasurement() sensor.Measurement {
	return sensor.Measurement{ID: "t1", Type: sensor.TypeTemperature, Name: "Temperature"}
}

func fptr(f float64) *float64 { return &f }

func TestNewDirect(t *testing.T) {
	e := NewDirect("08AABBCCDDEE", sensor.Measurement{ID: "x", Type: sensor.TypeWindDirection, Name: "Wind Direction"})

	if e.ID() != "08AABBCCDDEE-wind_direction" {
		t.Errorf("ID() = %q", e.ID())
	}
	if e.Kind() != KindDirect || e.MeasurementID() != "x" {
		t.Errorf("Kind/MeasurementID = %s/%s", e.Kind(), e.MeasurementID())
	}
	if e.Provenance() != ProvenanceUnknown || e.Value() != nil || !e.LastUpdate().IsZero() {
		t.Error("new entity should hold no value")
	}

	battery := NewDirect("08AABBCCDDEE", sensor.BatteryMeasurement())
	if battery.ID() != "08AABBCCDDEE-battery" || !battery.Descriptor().Binary {
		t.Errorf("battery entity = %s binary=%v", battery.ID(), battery.Descriptor().Binary)
	}
}

func TestOnLiveUpdate_Idempotent(t *testing.T) {
	e := NewDirect("s1", rainMeasurement())
	r := Reading{Value: 12.5, PriorValue: fptr(10), Timestamp: t0}

	if !e.OnLiveUpdate(r) {
		t.Fatal("first update should change the entity")
	}
	before := e.Snapshot()

	// The replay carries no prior; it must not be derived from the
	// current value either.
	if e.OnLiveUpdate(Reading{Value: 12.5, Timestamp: t0}) {
		t.Error("identical replay reported a change")
	}
	after := e.Snapshot()

	if after.State != before.State || !after.LastUpdated.Equal(before.LastUpdated) {
		t.Errorf("replay changed value: %v -> %v", before.State, after.State)
	}
	if *after.PriorValue != 10 {
		t.Errorf("replay changed prior to %v", *after.PriorValue)
	}
}

func TestOnLiveUpdate_DecodeError(t *testing.T) {
	e := NewDirect("s1", tempMeasurement())
	e.OnLiveUpdate(Reading{Value: 21.5, Timestamp: t0})

	if !e.OnLiveUpdate(Reading{Value: 99.0, Timestamp: t0.Add(time.Minute), IsError: true}) {
		t.Fatal("error reading should change the entity")
	}
	if e.Value() != nil {
		t.Errorf("Value() = %v, want nil", e.Value())
	}
	if !e.LastUpdate().Equal(t0.Add(time.Minute)) {
		t.Errorf("LastUpdate() = %v, timestamp must still advance", e.LastUpdate())
	}
	if e.Provenance() != ProvenanceLive {
		t.Errorf("Provenance() = %v", e.Provenance())
	}
	if snap := e.Snapshot(); snap.Error != defaultErrorText {
		t.Errorf("Error = %q", snap.Error)
	}

	// A clean reading clears the error.
	e.OnLiveUpdate(Reading{Value: 22.0, Timestamp: t0.Add(2 * time.Minute)})
	if snap := e.Snapshot(); snap.Error != "" || snap.State != 22.0 {
		t.Errorf("after recovery = %+v", snap)
	}
}

func TestOnLiveUpdate_Normalization(t *testing.T) {
	tests := []struct {
		name    string
		m       sensor.Measurement
		value   any
		want    any
		wantErr bool
	}{
		{"numeric string", tempMeasurement(), "21.5", 21.5, false},
		{"enum index", sensor.Measurement{ID: "k", Type: sensor.TypeKeyPressType, Name: "Press"}, 2, "double", false},
		{"binary", sensor.Measurement{ID: "w", Type: sensor.TypeWetness, Name: "Wet"}, 1, true, false},
		{"garbage", tempMeasurement(), "warm", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewDirect("s1", tt.m)
			e.OnLiveUpdate(Reading{Value: tt.value, Timestamp: t0})
			if e.Value() != tt.want {
				t.Errorf("Value() = %v, want %v", e.Value(), tt.want)
			}
			if got := e.Snapshot().Error != ""; got != tt.wantErr {
				t.Errorf("error set = %v, want %v", got, tt.wantErr)
			}
		})
	}
}

func TestOnLiveUpdate_PriorCarry(t *testing.T) {
	e := NewDirect("s1", rainMeasurement())

	e.OnLiveUpdate(Reading{Value: 10.0, Timestamp: t0})
	if e.Snapshot().PriorValue != nil {
		t.Error("first reading has nothing to carry")
	}

	e.OnLiveUpdate(Reading{Value: 12.5, Timestamp: t0.Add(time.Hour)})
	if p := e.Snapshot().PriorValue; p == nil || *p != 10 {
		t.Errorf("PriorValue = %v, want 10", p)
	}

	e.OnLiveUpdate(Reading{Value: 13.0, PriorValue: fptr(12.0), Timestamp: t0.Add(2 * time.Hour)})
	if p := e.Snapshot().PriorValue; *p != 12 {
		t.Errorf("reported prior should win, got %v", *p)
	}

	temp := NewDirect("s1", tempMeasurement())
	temp.OnLiveUpdate(Reading{Value: 1.0, Timestamp: t0})
	temp.OnLiveUpdate(Reading{Value: 2.0, Timestamp: t0.Add(time.Minute)})
	if temp.Snapshot().PriorValue != nil {
		t.Error("prior carried for a measurement without prior support")
	}
}

func TestProvenanceOrdering(t *testing.T) {
	snap := persist.Snapshot{State: 5.0, LastUpdated: t0}

	t.Run("restore then live", func(t *testing.T) {
		e := NewDirect("s1", tempMeasurement())
		if !e.OnRestore(snap, t0) {
			t.Fatal("OnRestore() refused first snapshot")
		}
		if e.Provenance() != ProvenanceRestored || e.Value() != 5.0 {
			t.Fatalf("after restore = %v/%v", e.Provenance(), e.Value())
		}
		e.OnLiveUpdate(Reading{Value: 6.0, Timestamp: t0.Add(time.Minute)})
		if e.Provenance() != ProvenanceLive || e.Value() != 6.0 {
			t.Errorf("after live = %v/%v", e.Provenance(), e.Value())
		}
	})

	t.Run("live then restore", func(t *testing.T) {
		e := NewDirect("s1", tempMeasurement())
		e.OnLiveUpdate(Reading{Value: 6.0, Timestamp: t0})
		if e.OnRestore(snap, t0) {
			t.Error("restore must not overwrite live data")
		}
		if e.Value() != 6.0 {
			t.Errorf("Value() = %v", e.Value())
		}
	})

	t.Run("restore only once", func(t *testing.T) {
		e := NewDirect("s1", tempMeasurement())
		e.OnRestore(snap, t0)
		if e.OnRestore(persist.Snapshot{State: 7.0, LastUpdated: t0}, t0) {
			t.Error("second restore accepted")
		}
	})

	t.Run("empty snapshot stays unknown", func(t *testing.T) {
		e := NewDirect("s1", tempMeasurement())
		if e.OnRestore(persist.Snapshot{}, t0) {
			t.Error("empty snapshot adopted")
		}
		if e.Provenance() != ProvenanceUnknown {
			t.Errorf("Provenance() = %v", e.Provenance())
		}
	})
}

func TestProvenance_MarshalText(t *testing.T) {
	for p, want := range map[Provenance]string{
		ProvenanceUnknown:  "unknown",
		ProvenanceRestored: "restored",
		ProvenanceLive:     "live",
	} {
		b, _ := p.MarshalText()
		if string(b) != want {
			t.Errorf("MarshalText(%d) = %s, want %s", p, b, want)
		}
	}
}
