package engine

import (
	"fmt"

	"github.com/nerrad567/gray-logic-weather/internal/entity"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-weather/internal/sensor"
)

// RainingKey is the entity key of the "raining now" flag.
const RainingKey = sensor.RainingKey

// link is a base -> dependent edge between two entity IDs.
type link struct {
	base      string
	dependent string
}

// entitySet builds every entity a sensor exposes, in creation order, and
// the edges between them:
//
//   - one direct entity per measurement
//   - the low battery flag
//   - one rain window per configured window when the sensor counts rain
//   - the raining flag when it also reports a rain duration
func entitySet(s sensor.Sensor, cfg config.EntitiesConfig) ([]*entity.Entity, []link) {
	entities := make([]*entity.Entity, 0, len(s.Measurements)+len(cfg.RainWindows)+2)
	for _, m := range s.Measurements {
		entities = append(entities, entity.NewDirect(s.ID, m))
	}
	entities = append(entities, entity.NewDirect(s.ID, sensor.BatteryMeasurement()))

	rain, ok := s.FirstOfType(sensor.TypeRain)
	if !ok {
		return entities, nil
	}

	var links []link
	rainID := entity.ID(s.ID, rain.Key())
	windowDesc := rain.Descriptor()
	windowDesc.StateClass = sensor.StateClassMeasurement

	for _, w := range cfg.RainWindows {
		name := w.Name
		if name == "" {
			name = w.Key
		}
		e := entity.NewCalculated(s.ID, w.Key, name, windowDesc, entity.NewRainWindow(w.Duration))
		entities = append(entities, e)
		links = append(links, link{base: rainID, dependent: e.ID()})
	}

	if span, ok := s.FirstOfType(sensor.TypeTimeSpan); ok {
		desc, _ := sensor.Describe(sensor.TypeWetness, "")
		desc.Icon = "mdi:weather-pouring"

		window := cfg.RainingWindow
		if window <= 0 {
			window = entity.DefaultRainingWindow
		}
		e := entity.NewCalculated(s.ID, RainingKey, "Raining", desc, entity.NewRainingNow(window))
		entities = append(entities, e)
		links = append(links, link{base: entity.ID(s.ID, span.Key()), dependent: e.ID()})
	}

	return entities, links
}

// checkKeys rejects a sensor whose measurement names collide with the keys
// of the configured rain windows.
func checkKeys(s sensor.Sensor, cfg config.EntitiesConfig) error {
	for _, m := range s.Measurements {
		for _, w := range cfg.RainWindows {
			if m.Key() == w.Key {
				return fmt.Errorf("%w: measurement name %q is reserved", sensor.ErrInvalidSensor, m.Name)
			}
		}
	}
	return nil
}

// sameMeasurements reports whether two sensors expose the same entity set.
func sameMeasurements(a, b sensor.Sensor) bool {
	if len(a.Measurements) != len(b.Measurements) {
		return false
	}
	for i := range a.Measurements {
		if a.Measurements[i] != b.Measurements[i] {
			return false
		}
	}
	return true
}
