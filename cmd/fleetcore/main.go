// Fleet Core - Device Integration & Reconciliation Engine
//
// This is the main entry point for the Fleet Core application. Fleet Core
// sits between a workforce management product and fleets of physical
// access-control devices (door controllers, face terminals, card readers),
// keeping the people on each device in step with the employee directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/accessgrid/fleet-core/internal/adapter"
	"github.com/accessgrid/fleet-core/internal/api"
	"github.com/accessgrid/fleet-core/internal/device"
	"github.com/accessgrid/fleet-core/internal/directory"
	"github.com/accessgrid/fleet-core/internal/infrastructure/config"
	"github.com/accessgrid/fleet-core/internal/infrastructure/database"
	"github.com/accessgrid/fleet-core/internal/infrastructure/influxdb"
	"github.com/accessgrid/fleet-core/internal/infrastructure/logging"
	"github.com/accessgrid/fleet-core/internal/infrastructure/mqtt"
	"github.com/accessgrid/fleet-core/internal/reconcile"
	"github.com/accessgrid/fleet-core/internal/secrets"
	"github.com/accessgrid/fleet-core/internal/webhook"
	"github.com/accessgrid/fleet-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
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
	log.Info("starting Fleet Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx, migrations.Files()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Credential sealing
	box, err := secrets.NewBox(cfg.EncryptionKeyBytes())
	if err != nil {
		return fmt.Errorf("initialising credential store: %w", err)
	}

	// Device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo)
	registry.SetLogger(log)

	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised")

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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Command executor: the single path to physical devices
	executor := adapter.NewExecutor(registry, adapter.NewRegistry(), box,
		time.Duration(cfg.Sync.CommandTimeout)*time.Second)
	executor.SetLogger(log)
	if influxClient != nil {
		executor.SetMetrics(influxClient)
	}

	// Reconciliation engine
	ledger := reconcile.NewSQLiteRepository(db.DB)
	engine := reconcile.NewEngine(
		registry,
		directory.NewSQLiteDirectory(db.DB),
		ledger,
		executor,
		time.Duration(cfg.Sync.RetryBackoffInitial)*time.Second,
		time.Duration(cfg.Sync.RetryBackoffMax)*time.Second,
	)
	engine.SetLogger(log)
	if mqttClient != nil {
		engine.SetPublisher(mqttClient)
	}
	if influxClient != nil {
		engine.SetMetrics(influxClient)
	}

	// Webhook management and event ingestion
	webhookRepo := webhook.NewSQLiteRepository(db.DB)
	eventRepo := webhook.NewSQLiteEventRepository(db.DB)

	manager := webhook.NewManager(executor, webhookRepo)
	manager.SetLogger(log)

	processor := webhook.NewProcessor(registry, webhookRepo, eventRepo)
	processor.SetLogger(log)
	if mqttClient != nil {
		processor.SetPublisher(mqttClient)
	}
	if influxClient != nil {
		processor.SetMetrics(influxClient)
	}

	// Configuration templates
	templateRepo := device.NewSQLiteTemplateRepository(db.DB)
	templates := device.NewTemplates(deviceRepo,
		device.NewSQLiteConfigurationRepository(db.DB), templateRepo, executor)
	templates.SetLogger(log)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:         cfg.API,
		Security:       cfg.Security,
		Logger:         log,
		Registry:       registry,
		Executor:       executor,
		Engine:         engine,
		Webhooks:       manager,
		Processor:      processor,
		Templates:      templates,
		TemplateRepo:   templateRepo,
		Events:         eventRepo,
		Box:            box,
		MQTT:           mqttClient,
		DB:             db.DB,
		OrganizationID: cfg.Fleet.OrganizationID,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Fleet Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FLEETCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLEETCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
// MQTT and InfluxDB are skipped when disabled.
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
