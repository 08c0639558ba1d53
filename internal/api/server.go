// Package api provides the read-only HTTP API of the weather core.
//
// It exposes sensors, entity state, entity history and service metrics to
// dashboards and diagnostics tools.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/bridge"
	"github.com/nerrad567/gray-logic-weather/internal/engine"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionStatus reports whether an outbound connection is up.
// *mqtt.Client and *influxdb.Client satisfy it.
type ConnectionStatus interface {
	IsConnected() bool
}

// BridgeMetrics provides MQTT ingress counters. *bridge.Bridge satisfies it.
type BridgeMetrics interface {
	GetMetrics() bridge.Metrics
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	Logger *logging.Logger
	Engine *engine.Engine

	// Optional collaborators, reported by health and metrics.
	DB       *database.DB
	MQTT     ConnectionStatus
	InfluxDB ConnectionStatus
	Bridge   BridgeMetrics

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	engine    *engine.Engine
	db        *database.DB
	mqtt      ConnectionStatus
	influx    ConnectionStatus
	bridge    BridgeMetrics
	version   string
	startTime time.Time
	server    *http.Server
	router    http.Handler
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		engine:    deps.Engine,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		bridge:    deps.Bridge,
		version:   deps.Version,
		startTime: time.Now(),
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in a background goroutine. A bind
// failure is returned immediately. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
