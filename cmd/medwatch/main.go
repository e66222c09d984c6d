// medwatch - cold-chain storage monitor
//
// medwatch watches a climate controller that publishes temperature and
// humidity over MQTT, classifies each reading pair against the selected
// storage profile and shows the result on a terminal dashboard. An
// optional HTTP/WebSocket API and a SQLite transition journal can run
// alongside it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/nerrad567/medwatch/internal/api"
	"github.com/nerrad567/medwatch/internal/dashboard"
	"github.com/nerrad567/medwatch/internal/infrastructure/config"
	"github.com/nerrad567/medwatch/internal/infrastructure/database"
	"github.com/nerrad567/medwatch/internal/infrastructure/logging"
	"github.com/nerrad567/medwatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/medwatch/internal/journal"
	"github.com/nerrad567/medwatch/internal/liveness"
	"github.com/nerrad567/medwatch/internal/monitor"
	"github.com/nerrad567/medwatch/internal/telemetry"
	"github.com/nerrad567/medwatch/migrations"
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

// Monitor subscriber buffers.
const (
	dashboardBuffer = 256
	apiBuffer       = 256
	journalBuffer   = 1024
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
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting medwatch",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"profile", cfg.Profile.Default,
	)
	if cfg.UI.Enabled && !strings.EqualFold(cfg.Logging.Output, "file") {
		log.Warn("dashboard enabled with terminal logging; set logging.output to file to keep the screen clean")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Broker link
	mqttClient := mqtt.New(cfg.MQTT)
	mqttClient.SetLogger(log)

	link, err := telemetry.NewLink(mqttClient, telemetry.Config{
		Namespace: cfg.MQTT.Namespace,
		QoS:       byte(cfg.MQTT.QoS),
	})
	if err != nil {
		return fmt.Errorf("creating telemetry link: %w", err)
	}
	link.SetLogger(log)
	defer link.Close()
	log.Info("telemetry link ready",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
		"namespace", cfg.MQTT.Namespace,
	)

	mon := monitor.New(link, monitor.Config{
		CheckInterval:     cfg.CheckInterval(),
		ReconnectInterval: cfg.ReconnectInterval(),
		Liveness: liveness.Config{
			DataTimeout: cfg.DataTimeout(),
			MaxAttempts: cfg.Liveness.MaxAttempts,
		},
		HistoryCapacity: cfg.History.Capacity,
		Profile:         cfg.Profile.Default,
	})
	mon.SetLogger(log)

	checks := map[string]api.HealthChecker{"broker": mqttClient}

	// Journal (optional)
	var journalRepo journal.Repository
	if cfg.Journal.Enabled {
		db, dbErr := openJournal(ctx, cfg, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		journalRepo = journal.NewSQLiteRepository(db.DB)
		checks["database"] = db
	} else {
		log.Info("journal disabled")
	}

	// Background workers stop before the database closes.
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	if journalRepo != nil {
		recorder, recErr := journal.NewRecorder(journalRepo)
		if recErr != nil {
			return fmt.Errorf("creating journal recorder: %w", recErr)
		}
		recorder.SetLogger(log)
		recorder.SetOnError(func(err error) {
			log.Error("journal write failed", "error", err)
		})

		events := mon.Subscribe(journalBuffer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Run(ctx, events)
		}()
	}

	// API server (optional)
	if cfg.API.Enabled {
		server, srvErr := api.New(api.Deps{
			Config:         cfg.API,
			WS:             cfg.WebSocket,
			Logger:         log,
			Controller:     mon,
			Events:         mon.Subscribe(apiBuffer),
			Journal:        journalRepo,
			Checks:         checks,
			InitialProfile: cfg.Profile.Default,
			Version:        version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		if hcErr := server.HealthCheck(ctx); hcErr != nil {
			return fmt.Errorf("API health check: %w", hcErr)
		}
	} else {
		log.Info("API server disabled")
	}

	var uiEvents <-chan monitor.Event
	if cfg.UI.Enabled {
		uiEvents = mon.Subscribe(dashboardBuffer)
	}

	monErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		monErr <- mon.Run(ctx)
	}()

	if cfg.UI.Enabled {
		for key := range cfg.UI.Commands {
			if dashboard.Reserved(key) {
				log.Warn("command key is reserved by the dashboard and will be ignored", "key", key)
			}
		}
		uiErr := dashboard.Run(ctx, uiEvents, mon, dashboard.Options{
			Mode:     dashboard.ParseMode(cfg.UI.ChartMode),
			Commands: cfg.UI.Commands,
			Profile:  cfg.Profile.Default,
		})
		cancel()
		if uiErr != nil {
			return uiErr
		}
	} else {
		log.Info("dashboard disabled, waiting for shutdown signal")
		<-ctx.Done()
	}

	if err := <-monErr; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("monitor: %w", err)
	}
	if dropped := mon.Dropped(); dropped > 0 {
		log.Info("events dropped for slow subscribers", "count", dropped)
	}

	log.Info("medwatch stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MEDWATCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MEDWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openJournal opens the database, applies the embedded migrations and
// checks the connection answers.
func openJournal(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reading migration status: %w", err)
	}
	schema := "none"
	if len(applied) > 0 {
		schema = applied[len(applied)-1].Version
	}
	log.Info("database ready",
		"path", db.Path(),
		"schema_version", schema,
		"pending_migrations", len(pending),
	)
	return db, nil
}
