// Pulse Core - studio heart-rate telemetry
//
// This is the main entry point. It opens the radio channels, fans every
// reading out to the live cache, SQLite, MQTT and InfluxDB, and records
// lessons for scoring.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/pulse-core/internal/api"
	"github.com/nerrad567/pulse-core/internal/bridges/ant"
	"github.com/nerrad567/pulse-core/internal/infrastructure/config"
	"github.com/nerrad567/pulse-core/internal/infrastructure/database"
	"github.com/nerrad567/pulse-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/pulse-core/internal/infrastructure/logging"
	"github.com/nerrad567/pulse-core/internal/infrastructure/metrics"
	"github.com/nerrad567/pulse-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/pulse-core/internal/ingest"
	"github.com/nerrad567/pulse-core/internal/lesson"
	"github.com/nerrad567/pulse-core/internal/process"
	"github.com/nerrad567/pulse-core/internal/roster"
	"github.com/nerrad567/pulse-core/internal/scoring"
	"github.com/nerrad567/pulse-core/internal/studio"
	"github.com/nerrad567/pulse-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// simulateInterval is the sample period of the fake driver.
	simulateInterval = time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
// Deferred cleanup runs in reverse order of construction.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Pulse Core",
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
		"studio", cfg.Studio.ID,
	)

	policy, err := scoring.NewPolicy(cfg.Scoring.ZoneThresholds, cfg.Scoring.ZoneWeights)
	if err != nil {
		return fmt.Errorf("building scoring policy: %w", err)
	}

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
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	m := metrics.New()
	checks := []api.Check{{Name: "database", Checker: db, Required: true}}

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
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		checks = append(checks, api.Check{Name: "mqtt", Checker: mqttClient})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

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
		influxClient.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		checks = append(checks, api.Check{Name: "influxdb", Checker: influxClient})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Roster
	registry := roster.NewRegistry(roster.NewRepository(db.DB))
	registry.SetLogger(log.Component("roster"))
	if refreshErr := registry.Refresh(ctx); refreshErr != nil {
		return fmt.Errorf("loading device links: %w", refreshErr)
	}
	log.Info("roster loaded", "links", registry.Len())

	// Ingest pipeline and lesson gate
	sessions := lesson.NewSessionRepository(db.DB)
	results := lesson.NewResultRepository(db.DB)
	samples := lesson.NewSampleRepository(db.DB)
	current := ingest.NewCurrentRepository(db.DB)

	pipeOpts := ingest.Options{
		Identities: registry,
		History:    samples,
		Current:    current,
		Metrics:    m,
		Workers:    cfg.Ingest.Workers,
		QueueSize:  cfg.Ingest.QueueSize,
	}
	gateOpts := lesson.GateOptions{
		Sessions:     sessions,
		Results:      results,
		Samples:      samples,
		Links:        registry,
		Engine:       scoring.NewEngine(policy),
		Metrics:      m,
		DrainTimeout: cfg.Ingest.DrainTimeout,
	}
	if mqttClient != nil {
		pipeOpts.Publisher = mqttClient
		gateOpts.Publisher = mqttClient
	}
	if influxClient != nil {
		pipeOpts.TimeSeries = influxClient
		gateOpts.TimeSeries = influxClient
	}

	pipeline := ingest.NewPipeline(pipeOpts)
	pipeline.SetLogger(log.Component("ingest"))
	gateOpts.Drainer = pipeline
	gateOpts.Cache = pipeline.Cache()

	gate := lesson.NewGate(gateOpts)
	gate.SetLogger(log.Component("lesson"))
	pipeline.SetSessionState(gate)

	if _, restoreErr := gate.Restore(ctx); restoreErr != nil {
		return fmt.Errorf("restoring active lesson: %w", restoreErr)
	}
	pipeline.Start(ctx)
	defer func() {
		log.Info("stopping ingest pipeline")
		pipeline.Stop()
	}()

	svc, err := studio.New(studio.Deps{
		Cache:    pipeline.Cache(),
		Current:  current,
		Gate:     gate,
		Sessions: sessions,
		Results:  results,
		Roster:   registry,
	})
	if err != nil {
		return fmt.Errorf("creating studio service: %w", err)
	}
	logLessonStatus(ctx, svc, log)

	// Radio agent (mqtt driver only)
	var supervisor *process.Supervisor
	if cfg.Radio.Driver == config.DriverMQTT && cfg.Radio.Agent.Managed {
		supervisor = process.NewSupervisor(process.ConfigFromAgent(cfg.Radio.Agent))
		supervisor.SetLogger(log.Component("radio-agent"))
		if startErr := supervisor.Start(ctx); startErr != nil {
			return fmt.Errorf("starting radio agent: %w", startErr)
		}
		defer func() {
			log.Info("stopping radio agent")
			if stopErr := supervisor.Stop(); stopErr != nil {
				log.Error("error stopping radio agent", "error", stopErr)
			}
		}()
	}

	// Radio channels
	var transport ant.Transport
	if mqttClient != nil {
		transport = mqttClient
	}
	driver, simulate, err := newDriver(cfg, transport, log.Component("radio-driver"))
	if err != nil {
		return err
	}
	manager := ant.NewManager(driver, pipeline, ant.ConfigFromRadio(cfg.Radio))
	manager.SetLogger(log.Component("radio"))
	manager.SetMetrics(m)
	if startErr := manager.Start(ctx); startErr != nil {
		return fmt.Errorf("starting radio channels: %w", startErr)
	}
	defer func() {
		log.Info("stopping radio channels")
		if stopErr := manager.Stop(); stopErr != nil {
			log.Error("error stopping radio channels", "error", stopErr)
		}
	}()
	if simulate != nil {
		go simulate.Simulate(ctx, simulateInterval)
	}
	log.Info("radio channels started",
		"driver", cfg.Radio.Driver,
		"channels", len(manager.States()),
	)

	if mqttClient != nil {
		reporter := ant.NewHealthReporter(manager, mqttClient, cfg.Radio.HealthInterval)
		reporter.SetLogger(log.Component("radio-health"))
		reporter.Start(ctx)
		defer reporter.Stop()
	}

	if cfg.Ops.Enabled {
		deps := api.Deps{
			Config:  cfg.Ops,
			Logger:  log.Component("ops"),
			Metrics: m,
			Checks:  checks,
			Radio:   manager,
			Lessons: gate,
			Version: version,
		}
		if supervisor != nil {
			deps.Agent = supervisor
		}
		srv, srvErr := api.New(deps)
		if srvErr != nil {
			return fmt.Errorf("creating ops server: %w", srvErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting ops server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing ops server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// newDriver builds the radio driver named by radio.driver. The fake driver
// is returned a second time so run can drive its simulation.
func newDriver(cfg *config.Config, transport ant.Transport, log *logging.Logger) (ant.Driver, *ant.FakeDriver, error) {
	switch cfg.Radio.Driver {
	case config.DriverFake:
		fake := ant.NewFakeDriver()
		return fake, fake, nil
	case config.DriverMQTT:
		if transport == nil {
			return nil, nil, errors.New("radio driver mqtt requires an MQTT connection")
		}
		drv := ant.NewMQTTDriver(transport, byte(cfg.MQTT.QoS)) // #nosec G115 -- qos validated 0..2
		drv.SetLogger(log)
		return drv, nil, nil
	case config.DriverBLE:
		drv := ant.NewBLEDriver(cfg.Radio.BLE.ScanWindow, cfg.Radio.BLE.ScanPause)
		drv.SetLogger(log)
		return drv, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown radio driver %q", cfg.Radio.Driver)
	}
}

func logLessonStatus(ctx context.Context, svc *studio.Service, log *logging.Logger) {
	status, err := svc.GetSessionStatus(ctx)
	if err != nil {
		log.Warn("reading lesson status", "error", err)
		return
	}
	if status.Session == nil {
		log.Info("no lessons recorded yet")
		return
	}
	log.Info("lesson status",
		"session_id", status.Session.ID,
		"active", status.Active,
		"duration_minutes", status.DurationMinutes,
	)
}

// getConfigPath returns PULSE_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("PULSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
