package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/bridge"
	"github.com/nerrad567/gray-logic-weather/internal/engine"
)

// MetricsResponse is the JSON response for GET /api/v1/metrics.
type MetricsResponse struct {
	Timestamp time.Time        `json:"timestamp"`
	Uptime    int64            `json:"uptime_seconds"`
	Runtime   RuntimeMetrics   `json:"runtime"`
	Database  *DatabaseMetrics `json:"database,omitempty"`
	MQTT      ConnectionMetric `json:"mqtt"`
	InfluxDB  ConnectionMetric `json:"influxdb"`
	Bridge    *bridge.Metrics  `json:"bridge,omitempty"`
	Engine    engine.Stats     `json:"engine"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines   int    `json:"goroutines"`
	HeapAllocMB  uint64 `json:"heap_alloc_mb"`
	HeapSysMB    uint64 `json:"heap_sys_mb"`
	GCPauseTotMs uint64 `json:"gc_pause_total_ms"`
	NumGC        uint32 `json:"num_gc"`
}

// DatabaseMetrics contains connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
	WaitDurationMs  int64 `json:"wait_duration_ms"`
}

// ConnectionMetric reports an outbound connection.
type ConnectionMetric struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// handleMetrics returns a snapshot of system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.collectMetrics())
}

func (s *Server) collectMetrics() MetricsResponse {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := MetricsResponse{
		Timestamp: time.Now().UTC(),
		Uptime:    int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:   runtime.NumGoroutine(),
			HeapAllocMB:  mem.HeapAlloc / 1024 / 1024,
			HeapSysMB:    mem.HeapSys / 1024 / 1024,
			GCPauseTotMs: mem.PauseTotalNs / 1_000_000,
			NumGC:        mem.NumGC,
		},
		MQTT:     connectionMetric(s.mqtt),
		InfluxDB: connectionMetric(s.influx),
		Engine:   s.engine.Stats(),
	}

	if s.db != nil {
		st := s.db.Stats()
		resp.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
			WaitDurationMs:  st.WaitDuration.Milliseconds(),
		}
	}

	if s.bridge != nil {
		m := s.bridge.GetMetrics()
		resp.Bridge = &m
	}

	return resp
}

func connectionMetric(c ConnectionStatus) ConnectionMetric {
	if c == nil {
		return ConnectionMetric{}
	}
	return ConnectionMetric{Enabled: true, Connected: c.IsConnected()}
}
