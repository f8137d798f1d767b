// beamcore - Beamline Device Control Service
//
// beamcore connects an EPICS channel-access gateway to a device
// inventory, evaluates composite device states from raw process
// variables, and exposes the beamline over a REST/WebSocket API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/openbeamline/beamcore/migrations"

	"github.com/openbeamline/beamcore/internal/api"
	"github.com/openbeamline/beamcore/internal/beamline"
	"github.com/openbeamline/beamcore/internal/device"
	"github.com/openbeamline/beamcore/internal/epics"
	"github.com/openbeamline/beamcore/internal/infrastructure/config"
	"github.com/openbeamline/beamcore/internal/infrastructure/database"
	"github.com/openbeamline/beamcore/internal/infrastructure/influxdb"
	"github.com/openbeamline/beamcore/internal/infrastructure/logging"
	"github.com/openbeamline/beamcore/internal/infrastructure/mqtt"
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
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting beamcore",
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
	log.Info("configuration loaded", "path", configPath, "facility", cfg.Facility.ID)

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
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	deviceRegistry := device.NewRegistry(deviceRepo)
	deviceRegistry.SetLogger(log)

	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	devices, err := deviceRegistry.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	log.Info("device registry initialised", "devices", len(devices))

	historyRepo := device.NewSQLiteStateHistory(db.DB)

	// Connect the PV transport
	conn, mqttClient, err := connectTransport(cfg, log)
	if err != nil {
		return fmt.Errorf("connecting PV transport: %w", err)
	}
	defer func() {
		log.Info("closing PV transport")
		if closeErr := conn.Close(); closeErr != nil {
			log.Error("error closing PV transport", "error", closeErr)
		}
		if mqttClient != nil {
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}
	}()

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

	// The websocket hub is built before the beamline manager so state
	// transitions can be broadcast from the first monitor update.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Build the beamline: one positioner per inventory row.
	mgrOpts := beamline.ManagerOptions{
		PollRate:    cfg.EPICS.GetPollRate(),
		MoveTimeout: cfg.EPICS.GetMoveTimeout(),
		History:     historyRepo,
		Sinks:       []beamline.TransitionSink{hub},
		Logger:      log.With("component", "beamline"),
	}
	if influxClient != nil {
		mgrOpts.Archiver = influxClient
	}
	manager, err := beamline.NewManager(conn, deviceRegistry, mgrOpts)
	if err != nil {
		return fmt.Errorf("creating beamline manager: %w", err)
	}
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting beamline: %w", err)
	}
	defer func() {
		log.Info("stopping beamline")
		manager.Close()
	}()
	log.Info("beamline started", "devices", len(manager.Devices()))

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log.With("component", "api"),
		Registry:    deviceRegistry,
		Beamline:    manager,
		History:     historyRepo,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

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
	// 2. Beamline manager
	// 3. InfluxDB (if enabled)
	// 4. PV transport / MQTT
	// 5. Database

	log.Info("beamcore stopped")
	return nil
}

// connectTransport builds the PV connection selected by config.
//
// The "gateway" transport mirrors PVs over an MQTT channel-access
// gateway; "sim" runs an in-process soft IOC for development without
// accelerator infrastructure. The returned MQTT client is nil for the
// sim transport.
func connectTransport(cfg *config.Config, log *logging.Logger) (epics.Conn, *mqtt.Client, error) {
	switch cfg.EPICS.Transport {
	case "sim":
		log.Info("PV transport: in-process soft IOC")
		return epics.NewSoftIOC(), nil, nil

	case "gateway":
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
		}
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

		gw, err := epics.NewGateway(mqttClient, byte(cfg.MQTT.QoS))
		if err != nil {
			_ = mqttClient.Close()
			return nil, nil, fmt.Errorf("starting channel-access gateway: %w", err)
		}
		log.Info("PV transport: MQTT channel-access gateway")
		return gw, mqttClient, nil

	default:
		return nil, nil, fmt.Errorf("unknown PV transport %q", cfg.EPICS.Transport)
	}
}

// getConfigPath returns the configuration file path.
// Uses BEAMCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BEAMCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (nil for the sim transport)
//   - influxClient: InfluxDB client to check (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
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
			if errors.Is(err, influxdb.ErrDisabled) {
				return nil
			}
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
