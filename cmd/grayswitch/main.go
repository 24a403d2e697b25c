// Gray Logic Switch - MQTT on/off switch service
//
// This is the main entry point for the switch service. It loads the
// configured switches, drives them over MQTT, records their state history
// and exposes them through a small REST and WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-switch/internal/api"
	"github.com/nerrad567/gray-logic-switch/internal/bridges/mqttswitch"
	"github.com/nerrad567/gray-logic-switch/internal/entity"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/statecache"
	"github.com/nerrad567/gray-logic-switch/migrations"
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

// Observer queue sizes and maintenance intervals.
const (
	observerQueueSize    = 512
	historyPruneInterval = time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic Switch",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded",
		"path", configPath,
		"site_id", cfg.Site.ID,
		"site_name", cfg.Site.Name,
		"switches", len(cfg.Switches),
	)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database and state history
	db, err := database.Open(ctx, cfg.Database)
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	historyRepo := entity.NewSQLiteHistoryRepository(db.DB)

	// MQTT
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
	mqttClient.SetLogger(log.Component("mqtt"))
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

	// InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Redis state mirror (optional)
	var stateCache *statecache.Cache
	if cfg.Redis.Enabled {
		stateCache, err = statecache.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := stateCache.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		stateCache.SetLogger(log.Component("statecache"))
		log.Info("Redis connected", "addr", cfg.Redis.Addr)
	} else {
		log.Info("Redis disabled")
	}

	// Entity registry and state observers. Everything doing I/O runs behind
	// a queue: notifications fire on paho's delivery goroutine.
	registry := entity.NewRegistry()
	registry.SetLogger(log.Component("registry"))

	observers := map[string]entity.Observer{
		"history":   entity.NewHistoryRecorder(historyRepo, log.Component("history")),
		"republish": newStateRepublisher(mqttClient, byte(cfg.MQTT.QoS), log.Component("republish")), //nolint:gosec // validated 0..2
	}
	if influxClient != nil {
		observers["influxdb"] = influxClient
	}
	if stateCache != nil {
		observers["redis"] = stateCache
	}
	for name, o := range observers {
		q := entity.NewQueuedObserver(name, o, observerQueueSize, log)
		registry.AddObserver(q)
		defer q.Stop()
	}

	// Switches
	transport := mqttswitch.NewClientTransport(mqttClient)
	created := buildSwitches(cfg.Switches, transport, registry, log)
	defer func() {
		log.Info("closing switches")
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("error closing switches", "error", closeErr)
		}
	}()
	log.Info("switches initialised", "configured", len(cfg.Switches), "created", created)

	if stateCache != nil {
		ids := switchIDs(registry)
		removed, cacheErr := stateCache.RemoveAllExcept(ctx, ids)
		if cacheErr != nil {
			log.Warn("pruning stale Redis state failed", "error", cacheErr)
		} else if len(removed) > 0 {
			log.Info("removed stale switch state from Redis", "ids", removed)
		}
		logLastKnownStates(ctx, stateCache, ids, log.Component("statecache"))
	}

	if retention := cfg.Database.HistoryRetention(); retention > 0 {
		go pruneHistoryLoop(ctx, historyRepo, retention, historyPruneInterval, log)
	}

	// API (optional)
	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		if stateCache != nil {
			checks["redis"] = stateCache
		}

		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log.Component("api"),
			Registry: registry,
			History:  historyRepo,
			MQTT:     mqttClient,
			Checks:   checks,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient, stateCache); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API, switches (releasing
	// their subscriptions), observer queues, Redis, InfluxDB, MQTT, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYSWITCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYSWITCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// Optional clients may be nil.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, stateCache *statecache.Cache) error {
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

	if stateCache != nil {
		if err := stateCache.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	return nil
}
