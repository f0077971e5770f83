// Rachio Bridge - cloud irrigation valve bridge
//
// This is the main entry point for the bridge. It discovers irrigation
// valves from the Rachio cloud, registers them as local devices, and
// exposes on/off control over MQTT and a local REST/WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/WVandergrift/rachio-bridge/migrations"

	"github.com/WVandergrift/rachio-bridge/internal/api"
	"github.com/WVandergrift/rachio-bridge/internal/bridge"
	"github.com/WVandergrift/rachio-bridge/internal/device"
	"github.com/WVandergrift/rachio-bridge/internal/discovery"
	"github.com/WVandergrift/rachio-bridge/internal/infrastructure/config"
	"github.com/WVandergrift/rachio-bridge/internal/infrastructure/database"
	"github.com/WVandergrift/rachio-bridge/internal/infrastructure/influxdb"
	"github.com/WVandergrift/rachio-bridge/internal/infrastructure/logging"
	"github.com/WVandergrift/rachio-bridge/internal/infrastructure/mqtt"
	"github.com/WVandergrift/rachio-bridge/internal/rachio"
	"github.com/WVandergrift/rachio-bridge/internal/valve"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Rachio Bridge",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and run migrations
	db, err := database.Open(database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Device registry over SQLite, cache warmed from disk
	repo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(repo)
	registry.SetLogger(log)
	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}
	log.Info("device registry loaded", "devices", registry.Count())

	// Vendor cloud client and credential store. The config key is a
	// bootstrap value; a credential saved via the settings API wins.
	rachioClient := rachio.NewClient(cfg.Rachio.APIURL, cfg.GetRequestTimeout())

	creds := discovery.NewCredentialStore(db.DB)
	if credErr := creds.Load(ctx, cfg.Rachio.APIKey); credErr != nil {
		return fmt.Errorf("loading credential: %w", credErr)
	}

	// Discovery pipeline. The facade provider routes commands through
	// the service (which binds the current credential), and the
	// reconciler releases facades for removed devices. That loop is
	// closed with a late-bound releaser.
	orchestrator := discovery.NewOrchestrator(rachioClient)
	orchestrator.SetLogger(log)

	var provider *valve.Provider
	reconciler := discovery.NewReconciler(registry, discovery.ReleaserFunc(func(valveID string) {
		provider.Release(valveID)
	}))
	reconciler.SetLogger(log)

	service := discovery.NewService(orchestrator, reconciler, creds, rachioClient, registry)
	service.SetLogger(log)
	provider = valve.NewProvider(service)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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

		valveBridge, bridgeErr := bridge.New(bridge.Options{
			MQTT:     mqttClient,
			Provider: provider,
			Registry: registry,
			Logger:   log,
			QoS:      byte(cfg.MQTT.QoS),
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		if startErr := valveBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			valveBridge.Stop()
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional) for operational telemetry
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		service.SetTelemetry(influxClient)

		// Track registry size over time
		influxClient.RegistrySize(registry.Count())
		registry.Subscribe(func(device.Event) {
			influxClient.RegistrySize(registry.Count())
		})

		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the local REST/WebSocket API
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Registry: registry,
		Provider: provider,
		Service:  service,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Initial discovery run with whatever credential we have. Cloud
	// outages at boot are not fatal; the registry keeps serving the
	// last known devices and the next sync retries.
	go service.Sync(ctx)

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, InfluxDB, MQTT bridge, MQTT, database.

	log.Info("Rachio Bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RACHIOBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RACHIOBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
