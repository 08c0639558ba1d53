package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-weather/internal/entity"
	"github.com/nerrad567/gray-logic-weather/internal/sensor"
)

// sensorView is a sensor together with its liveness.
type sensorView struct {
	sensor.Sensor
	Status sensor.Status `json:"status"`
}

// sensorDetail adds the entity states derived from the sensor.
type sensorDetail struct {
	sensorView
	Entities []entity.State `json:"entities"`
}

// handleListSensors returns every registered sensor ordered by ID.
func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	reg := s.engine.Registry()
	sensors := reg.List()
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })

	views := make([]sensorView, 0, len(sensors))
	for _, sn := range sensors {
		views = append(views, sensorView{Sensor: sn, Status: reg.Status(sn.ID)})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sensors": views,
		"count":   len(views),
	})
}

// handleGetSensor returns one sensor and the current state of its entities.
func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reg := s.engine.Registry()

	sn, err := reg.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sensor.ErrSensorNotFound) {
			writeNotFound(w, "sensor not found")
			return
		}
		s.logger.Error("failed to get sensor", "sensor_id", id, "error", err)
		writeInternalError(w, "failed to get sensor")
		return
	}

	states := s.engine.Store().StatesBySensor(id)
	sortStates(states)

	writeJSON(w, http.StatusOK, sensorDetail{
		sensorView: sensorView{Sensor: *sn, Status: reg.Status(id)},
		Entities:   states,
	})
}

func sortStates(states []entity.State) {
	sort.Slice(states, func(i, j int) bool { return states[i].EntityID < states[j].EntityID })
}
