package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"todaride/internal/app"
	"todaride/internal/config"
	"todaride/internal/events"
	"todaride/internal/handler"
	"todaride/internal/logging"
	"todaride/internal/maps"
	internalRedis "todaride/internal/redis"
	"todaride/internal/repository"
	"todaride/internal/repository/memory"
	"todaride/internal/repository/postgres"
	"todaride/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	log := logging.New(cfg.Log)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.WithError(err).Warn("failed to initialize New Relic")
		} else {
			log.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	// Storage.
	var store repository.Store
	var db *sql.DB
	if cfg.Database.Driver == "memory" {
		store = memory.NewStore()
		log.Warn("using in-memory store; data is lost on exit")
	} else {
		db, err = app.NewDatabase(ctx, cfg.Database, nrApp)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to database")
		}
		defer db.Close()
		log.Info("connected to PostgreSQL")

		if cfg.Database.AutoMigrate {
			if err := app.ApplyMigrations(ctx, db, cfg.Database.MigrationsDir); err != nil {
				log.WithError(err).Fatal("failed to apply migrations")
			}
			log.WithField("dir", cfg.Database.MigrationsDir).Info("migrations applied")
		}
		store = postgres.NewStore(db)
	}

	// Redis is optional. Without it idempotent replay and the nearby
	// lookup are disabled.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = app.NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info("connected to Redis")
	}

	// Event sinks.
	sinks := []events.Sink{{Name: "log", Publisher: events.NewLogPublisher(log)}}
	var kafkaPublisher *events.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		sinks = append(sinks, events.Sink{Name: "kafka", Publisher: kafkaPublisher})
		log.WithField("topic", cfg.Kafka.Topic).Info("kafka event stream enabled")
	}
	if redisClient != nil {
		sinks = append(sinks,
			events.Sink{Name: "redis_pubsub", Publisher: internalRedis.NewEventPublisher(redisClient, "events")},
			events.Sink{Name: "redis_geo", Publisher: internalRedis.NewLocationIndex(redisClient)},
		)
	}
	publisher := events.NewMulti(log, sinks...)

	// Routing.
	var router service.Router = maps.NewHaversineRouter()
	if cfg.Maps.GoogleAPIKey != "" {
		google, err := maps.NewGoogleRouter(cfg.Maps.GoogleAPIKey, cfg.Maps.Timeout)
		if err != nil {
			log.WithError(err).Fatal("failed to create Google Maps client")
		}
		router = google
	} else {
		log.Warn("GOOGLE_MAPS_API_KEY not set; using straight-line routing")
	}

	// Services.
	var lease service.Lease
	if redisClient != nil {
		lease = internalRedis.NewLockStore(redisClient)
	}
	dispatcher := service.NewDispatcher(store, publisher, log, cfg.Presence.MaxAge)
	sweeper := service.NewPresenceSweeper(store, service.NewSweepGate(cfg.Presence.SweepInterval), lease, publisher, log, cfg.Presence.MaxAge)
	rideService := service.NewRideService(store, router, service.NewFareEstimator(cfg.Fare), dispatcher, publisher, log)
	presenceService := service.NewPresenceService(store, dispatcher, sweeper, publisher, log, cfg.Presence.MinHeartbeatInterval)
	queueService := service.NewQueueService(store, publisher, log)

	server := wireServer(cfg, log, redisClient, nrApp, rideService, presenceService, queueService)

	runCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go sweeper.Run(runCtx, cfg.Presence.SweepInterval)

	// Start server in goroutine.
	go func() {
		log.WithField("port", cfg.Server.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	stopBackground()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.WithError(err).Warn("failed to flush kafka writer")
		}
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	log.Info("server exited")
}

// wireServer wires the HTTP layer and returns the server.
func wireServer(
	cfg *config.Config,
	log logrus.FieldLogger,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	rideService *service.RideService,
	presenceService *service.PresenceService,
	queueService *service.QueueService,
) *http.Server {
	var finder internalRedis.LocationFinder
	if redisClient != nil {
		finder = internalRedis.NewLocationIndex(redisClient)
	}

	// Initialize handlers.
	rideHandler := handler.NewRideHandler(rideService)
	presenceHandler := handler.NewPresenceHandler(presenceService, finder)
	queueHandler := handler.NewQueueHandler(queueService)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		RideHandler:     rideHandler,
		PresenceHandler: presenceHandler,
		QueueHandler:    queueHandler,
		JWTSecret:       []byte(cfg.Auth.JWTSecret),
		JWTIssuer:       cfg.Auth.Issuer,
		RedisClient:     redisClient,
		NewRelicApp:     nrApp,
	})

	log.WithField("routes", len(router.Routes())).Debug("router ready")

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
