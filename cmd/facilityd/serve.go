package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/facility-core/internal/api"
	"github.com/nerrad567/facility-core/internal/auth"
	"github.com/nerrad567/facility-core/internal/hierarchy"
	"github.com/nerrad567/facility-core/internal/infrastructure/config"
	"github.com/nerrad567/facility-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/facility-core/internal/infrastructure/logging"
	"github.com/nerrad567/facility-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/facility-core/internal/infrastructure/objectstore"
	"github.com/nerrad567/facility-core/internal/infrastructure/redisstream"
	"github.com/nerrad567/facility-core/internal/ingest"
	"github.com/nerrad567/facility-core/internal/telemetry"
)

// serve wires every component and blocks until ctx is cancelled. Deferred
// closes run in reverse start order.
func serve(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting facilityd", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "hierarchy_root", cfg.Hierarchy.Root)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	topology, err := hierarchy.NewTopology(hierarchy.Kind(cfg.Hierarchy.Root))
	if err != nil {
		return err
	}

	store, err := objectstore.New(cfg.Media)
	if err != nil {
		return err
	}
	if store.Enabled() {
		log.Info("object storage enabled", "endpoint", cfg.Media.Endpoint, "bucket", cfg.Media.Bucket)
	} else {
		log.Info("object storage disabled, image uploads will fail")
	}

	svc := hierarchy.NewService(db, hierarchy.Options{
		Topology: topology,
		Images:   store,
		Logger:   log.With("component", "hierarchy"),
	})
	repo := telemetry.NewRepository(db)
	ingestor := telemetry.NewIngestor(svc.Devices, svc.Stats, repo, telemetry.WithLogger(log.With("component", "telemetry")))
	checks := map[string]api.HealthChecker{"database": db}

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
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		ingestor.AddSink(telemetry.MQTTSink(mqttClient))
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected", "broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port))
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
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
		ingestor.AddSink(telemetry.InfluxSink(influxClient))
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if cfg.Redis.Enabled {
		publisher, err := redisstream.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		ingestor.AddSink(telemetry.StreamSink(publisher))
		checks["redis"] = publisher
		log.Info("Redis stream publisher ready", "addr", cfg.Redis.Addr, "stream", publisher.Stream())
	}

	authSvc := auth.NewService(auth.NewUserRepository(db), auth.NewIssuer(cfg.Security.JWT))

	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Webhook:   cfg.Webhook,
		Logger:    log.With("component", "api"),
		Hierarchy: svc,
		Events:    telemetry.NewEvents(svc.Resolver, repo),
		Ingester:  ingestor,
		Auth:      authSvc,
		Checks:    checks,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	ingestor.AddSink(srv.Hub())

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if mqttClient != nil {
		sub := ingest.NewSubscriber(mqttClient, cfg.MQTT.IngestTopic, ingestor, log.With("component", "ingest"))
		if err := sub.Start(ctx); err != nil {
			return err
		}
		defer sub.Stop() //nolint:errcheck // Broker may already be gone at shutdown
		log.Info("MQTT ingestion subscribed", "topic", sub.Topic())
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Poller.Enabled {
		poller := ingest.NewPoller(cfg.Poller, ingestor, log.With("component", "poller"))
		g.Go(func() error {
			poller.Run(gctx)
			return nil
		})
		log.Info("sensor poller started", "url", cfg.Poller.URL, "interval", poller.Interval())
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("facilityd stopped")
	return nil
}

// Compile-time checks that the infrastructure clients satisfy the
// interfaces their consumers declare.
var (
	_ telemetry.ReadingWriter   = (*influxdb.Client)(nil)
	_ telemetry.StreamPublisher = (*redisstream.Publisher)(nil)
	_ telemetry.JSONPublisher   = (*mqtt.Client)(nil)
	_ ingest.MQTTClient         = (*mqtt.Client)(nil)
	_ hierarchy.ImageStore      = (*objectstore.Store)(nil)
	_ api.HealthChecker         = (*mqtt.Client)(nil)
	_ api.HealthChecker         = (*influxdb.Client)(nil)
	_ api.HealthChecker         = (*redisstream.Publisher)(nil)
)
