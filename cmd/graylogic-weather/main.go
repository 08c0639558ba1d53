// Gray Logic Weather - weather sensor entity core
//
// This is the main entry point for the weather core. It consumes decoded
// weather sensor events from MQTT, maintains entity state with derived
// rain statistics and availability, and publishes entity state back to
// MQTT for home automation clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-weather/migrations"

	"github.com/nerrad567/gray-logic-weather/internal/api"
	"github.com/nerrad567/gray-logic-weather/internal/bridge"
	"github.com/nerrad567/gray-logic-weather/internal/engine"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-weather/internal/persist"
	"github.com/nerrad567/gray-logic-weather/internal/sensor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Deferred cleanups run in reverse order: the bridge stops consuming before
// the engine writes its final checkpoint, and the database closes last.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Weather",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry := sensor.NewRegistry(sensor.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	influxClient, err := connectInfluxDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	opts := engine.Options{
		Registry:  registry,
		Snapshots: persist.NewSQLiteSnapshotRepository(db.DB),
		History:   persist.NewSQLiteHistoryRepository(db.DB),
		Publisher: bridge.NewStatePublisher(mqttClient, mqttClient.Topics(), log),
		Config:    cfg.Entities,
		Logger:    log,
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
	}
	eng, err := engine.New(opts)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	if startErr := eng.Start(ctx); startErr != nil {
		return fmt.Errorf("starting engine: %w", startErr)
	}
	defer func() {
		log.Info("stopping engine")
		eng.Stop()
	}()

	br, err := bridge.NewBridge(bridge.Options{
		MQTTClient: mqttClient,
		Topics:     mqttClient.Topics(),
		Handler:    eng,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := br.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		br.Stop()
	}()

	deps := api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Engine:  eng,
		DB:      db,
		MQTT:    mqttClient,
		Bridge:  br,
		Version: version,
	}
	if influxClient != nil {
		deps.InfluxDB = influxClient
	}
	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"sensors", registry.Count(),
		"entities", eng.Store().Len(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInfluxDB returns nil without error when InfluxDB is disabled.
func connectInfluxDB(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // disabled is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
