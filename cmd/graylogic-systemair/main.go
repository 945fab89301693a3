// Gray Logic SystemAir - IAM ventilation unit bridge
//
// This is the main entry point for the SystemAir bridge. It keeps one
// SystemAir IAM module in sync with a local register mirror and exposes it:
//   - over MQTT, using the Gray Logic bridge topic scheme
//   - over a REST and WebSocket API
//   - as InfluxDB telemetry (optional)
//   - as a SQLite sync history (optional)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-systemair/internal/api"
	bridge "github.com/nerrad567/gray-logic-systemair/internal/bridges/systemair"
	"github.com/nerrad567/gray-logic-systemair/internal/coordinator"
	"github.com/nerrad567/gray-logic-systemair/internal/history"
	"github.com/nerrad567/gray-logic-systemair/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-systemair/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-systemair/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-systemair/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-systemair/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-systemair/internal/systemair"
	"github.com/nerrad567/gray-logic-systemair/internal/telemetry"
	"github.com/nerrad567/gray-logic-systemair/migrations"
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

// pruneInterval is how often old sync history rows are deleted.
const pruneInterval = 6 * time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic SystemAir bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Sync history (optional)
	var historyRepo *history.SQLiteRepository
	if cfg.History.Enabled {
		db, dbErr := openDatabase(ctx, cfg, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		historyRepo = history.NewSQLiteRepository(db.DB)
		go pruneHistoryLoop(ctx, historyRepo, cfg.GetHistoryRetention(), log)
	} else {
		log.Info("sync history disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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

	// The unit must answer a probe before anything is built on top of it.
	unitLog := log.Component("systemair")
	unit, err := setupUnit(ctx, cfg, unitLog)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := unit.Close(); closeErr != nil {
			log.Error("error closing unit transport", "error", closeErr)
		}
	}()

	coord, err := coordinator.New(coordinator.Options{
		Name:         cfg.Unit.ID,
		Interval:     cfg.GetPollInterval(),
		CycleTimeout: cfg.GetRequestTimeout() * 2,
		Syncer:       unit,
		Logger:       log.Component("coordinator"),
	})
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	defer func() {
		log.Info("stopping coordinator")
		coord.Stop()
	}()

	if historyRepo != nil {
		coord.Subscribe(history.NewRecorder(historyRepo, cfg.Unit.ID, log.Component("history")))
	}
	if influxClient != nil {
		coord.Subscribe(telemetry.NewRecorder(influxClient, unit.State().Table(), cfg.Unit.ID))
	}

	// MQTT bridge (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		var b *bridge.Bridge
		mqttClient, b, err = startBridge(ctx, cfg, unit, coord, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			b.Stop()
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// REST + WebSocket API (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = startAPI(ctx, cfg, unit, coord, historyRepo, log)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := firstRefresh(ctx, coord, cfg.GetSetupRetryInterval(), log); err != nil {
		return err
	}
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}

	if err := healthCheck(ctx, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, MQTT bridge, coordinator,
	// unit transport, InfluxDB, database.
	log.Info("Gray Logic SystemAir bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SYSTEMAIR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SYSTEMAIR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads path, falling back to built-in defaults when the file
// does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default()
	}
	return config.Load(path)
}

func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")
	return db, nil
}

// pruneHistoryLoop deletes rows older than retention until ctx ends.
// A zero retention keeps everything.
func pruneHistoryLoop(ctx context.Context, repo *history.SQLiteRepository, retention time.Duration, log *logging.Logger) {
	if retention <= 0 {
		return
	}

	prune := func() {
		n, err := repo.PruneHistory(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("pruning sync history failed", "error", err)
			}
			return
		}
		if n > 0 {
			log.Info("pruned sync history", "rows", n)
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// setupUnit probes the unit until it answers. A failed probe closes the
// unit, so every attempt builds a fresh one.
func setupUnit(ctx context.Context, cfg *config.Config, log *logging.Logger) (*systemair.Unit, error) {
	retry := cfg.GetSetupRetryInterval()
	for {
		unit := systemair.NewUnit(systemair.UnitOptions{
			Host:    cfg.Unit.Host,
			Timeout: cfg.GetRequestTimeout(),
			Logger:  log,
		})

		err := systemair.Setup(ctx, unit)
		if err == nil {
			log.Info("unit answered probe", "host", cfg.Unit.Host)
			return unit, nil
		}
		log.Warn("unit not ready, retrying", "host", cfg.Unit.Host, "retry_in", retry, "error", err)

		if err := sleepCtx(ctx, retry); err != nil {
			return nil, fmt.Errorf("unit setup: %w", err)
		}
	}
}

// firstRefresh runs the mandatory first cycle, retrying until it succeeds.
func firstRefresh(ctx context.Context, coord *coordinator.Coordinator, retry time.Duration, log *logging.Logger) error {
	for {
		err := coord.FirstRefresh(ctx)
		if err == nil {
			return nil
		}
		log.Warn("first refresh failed, retrying", "retry_in", retry, "error", err)

		if err := sleepCtx(ctx, retry); err != nil {
			return fmt.Errorf("first refresh: %w", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// startBridge connects to the broker with an offline last will and starts
// the SystemAir bridge.
func startBridge(ctx context.Context, cfg *config.Config, unit *systemair.Unit, coord *coordinator.Coordinator, log *logging.Logger) (*mqtt.Client, *bridge.Bridge, error) {
	client, err := mqtt.Connect(ctx, cfg.MQTT, &mqtt.Will{
		Topic:    bridge.HealthTopic(),
		Payload:  bridge.LWTPayload(),
		QoS:      1,
		Retained: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}

	mqttLog := log.Component("mqtt")
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() {
		mqttLog.Info("MQTT connected")
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	b, err := bridge.NewBridge(bridge.BridgeOptions{
		UnitID:     cfg.Unit.ID,
		Address:    cfg.Unit.Host,
		Version:    version,
		MQTTClient: client,
		Unit:       unit,
		Poller:     coord,
		Logger:     log.Component("bridge"),
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}
	coord.Subscribe(b)

	if err := b.Start(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}
	return client, b, nil
}

func startAPI(ctx context.Context, cfg *config.Config, unit *systemair.Unit, coord *coordinator.Coordinator, repo *history.SQLiteRepository, log *logging.Logger) (*api.Server, error) {
	deps := api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		UnitID:  cfg.Unit.ID,
		Host:    cfg.Unit.Host,
		Unit:    unit,
		Poller:  coord,
		Version: version,
	}
	// A nil *SQLiteRepository in the interface would not compare equal to nil.
	if repo != nil {
		deps.History = repo
	}

	srv, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	coord.Subscribe(srv)

	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return srv, nil
}

// healthCheck verifies the enabled infrastructure is up. Nil clients are skipped.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
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
	if apiServer != nil {
		if err := apiServer.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}
	return nil
}
