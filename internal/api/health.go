package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the database probe in the health endpoint.
const healthCheckTimeout = 2 * time.Second

// Component status values reported by the health endpoint.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusDisabled  = "disabled"
)

// handleHealth returns the health status of the core and its collaborators.
// The database is critical; MQTT and InfluxDB only degrade the service.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	overall := statusHealthy
	components := map[string]string{}

	switch {
	case s.db == nil:
		components["database"] = statusDisabled
	case s.db.HealthCheck(ctx) != nil:
		components["database"] = statusUnhealthy
		overall = statusUnhealthy
	default:
		components["database"] = statusHealthy
	}

	for name, conn := range map[string]ConnectionStatus{"mqtt": s.mqtt, "influxdb": s.influx} {
		switch {
		case conn == nil:
			components[name] = statusDisabled
		case conn.IsConnected():
			components[name] = statusHealthy
		default:
			components[name] = statusUnhealthy
			if overall == statusHealthy {
				overall = statusDegraded
			}
		}
	}

	code := http.StatusOK
	if overall == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":         overall,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"components":     components,
	})
}
