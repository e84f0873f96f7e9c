package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/firethorn/config"
	"github.com/Ramsey-B/firethorn/internal/database"
	"github.com/Ramsey-B/firethorn/internal/middleware"
	detectionrepo "github.com/Ramsey-B/firethorn/internal/repositories/detection"
	incidentrepo "github.com/Ramsey-B/firethorn/internal/repositories/incident"
	jobrunrepo "github.com/Ramsey-B/firethorn/internal/repositories/jobrun"
	"github.com/Ramsey-B/firethorn/internal/startup"
	"github.com/Ramsey-B/firethorn/internal/tracing"
	"github.com/Ramsey-B/firethorn/pkg/assignment"
	"github.com/Ramsey-B/firethorn/pkg/clustering"
	"github.com/Ramsey-B/firethorn/pkg/events"
	"github.com/Ramsey-B/firethorn/pkg/feed"
	"github.com/Ramsey-B/firethorn/pkg/ingest"
	"github.com/Ramsey-B/firethorn/pkg/kafka"
	"github.com/Ramsey-B/firethorn/pkg/lifecycle"
	"github.com/Ramsey-B/firethorn/pkg/queue"
	"github.com/Ramsey-B/firethorn/pkg/redis"
	"github.com/Ramsey-B/firethorn/pkg/routes"
	"github.com/Ramsey-B/firethorn/pkg/routes/health"
	"github.com/Ramsey-B/firethorn/pkg/scheduler"
)

const version = "1.0.0"

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := tracing.Init(ctx, cfg.AppName, cfg.TracingEndpoint)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize tracing")
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	encoder := json.NewEncoder(os.Stdout)
	if cfg.PrettyLogs {
		encoder.SetIndent("", "  ")
	}
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		_ = encoder.Encode(msg)
	})
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	// Postgres
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode)

	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer sqlxDB.Close()

	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	driver, err := postgres.WithInstance(sqlxDB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	db := database.NewDatabaseInstance(sqlxDB, logger)

	// Redis
	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	streams := redis.NewStreams(redisClient)
	locker := redis.NewLocker(redisClient, "")
	dlq := redis.NewDeadLetterQueue(redisClient, "", logger)
	limiter := redis.NewRateLimiter(redisClient, "")

	// Kafka (optional)
	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
	}
	emitter := events.NewEmitter(producer, logger)

	// Repositories
	detections := detectionrepo.NewRepository(db, logger)
	incidents := incidentrepo.NewRepository(db, logger)
	jobRuns := jobrunrepo.NewRepository(db, logger)

	// Domain services
	engine := clustering.NewEngine(detections, clustering.EngineConfig{
		RadiusMeters: cfg.ClusterRadiusMeters,
		ExpiryHours:  int(cfg.ClusterExpiryHours),
	}, logger)

	ingestService := ingest.NewService(detections, logger).WithEvents(emitter)

	orchestrator := assignment.NewOrchestrator(engine, detections, incidents, locker, assignment.Config{
		RadiusMeters:     cfg.ClusterRadiusMeters,
		ExpiryHours:      int(cfg.ClusterExpiryHours),
		BatchSize:        cfg.ClusterBatchSize,
		OperationTimeout: time.Duration(cfg.AssignmentTimeoutSeconds) * time.Second,
	}, logger).WithEvents(emitter)

	lifecycleService := lifecycle.NewService(incidents, detections, lifecycle.Config{
		InactivityHours:        int(cfg.IncidentInactivityHours),
		RetentionDays:          int(cfg.IncidentRetentionDays),
		DetectionRetentionDays: int(cfg.DetectionRetentionDays),
	}, logger).WithEvents(emitter)

	feedClient := feed.NewClient(feed.Config{
		BaseURL:  cfg.FirmsBaseURL,
		MapKey:   cfg.FirmsMapKey,
		Source:   cfg.FirmsSource,
		Area:     cfg.FirmsArea,
		DayRange: cfg.FirmsDayRange,
	}, limiter, logger)

	// Queue
	publisher := queue.NewPublisher(streams, redisClient, cfg.JobStream, logger)

	processor := queue.NewProcessor(streams, dlq, jobRuns, queue.ProcessorConfig{
		Stream:        cfg.JobStream,
		ConsumerGroup: cfg.JobConsumerGroup,
		WorkerCount:   cfg.JobWorkerCount,
		MaxRetries:    cfg.JobMaxRetries,
	}, logger)

	if err := queue.RegisterHandlers(processor,
		queue.NewFetchHandler(feedClient, ingestService, logger),
		queue.NewClusterHandler(orchestrator, logger),
		queue.NewCleanupHandler(lifecycleService, publisher, logger),
		queue.NewDeletionHandler(lifecycleService, logger),
	); err != nil {
		return err
	}

	sched := scheduler.NewScheduler(publisher, locker, scheduler.Config{
		FetchInterval:    time.Duration(cfg.FetchIntervalMinutes) * time.Minute,
		ClusterInterval:  time.Duration(cfg.ClusterIntervalMinutes) * time.Minute,
		CleanupInterval:  time.Duration(cfg.CleanupIntervalMinutes) * time.Minute,
		FetchSource:      cfg.FirmsSource,
		FetchDayRange:    cfg.FirmsDayRange,
		ClusterBatchSize: cfg.ClusterBatchSize,
	}, logger)

	// Dependency injection for route handlers
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}
	if err := ectoinject.RegisterInstance[*config.Config](container, cfg); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*detectionrepo.Repository](container, detections); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*incidentrepo.Repository](container, incidents); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*jobrunrepo.Repository](container, jobRuns); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*queue.Publisher](container, publisher); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*redis.DeadLetterQueue](container, dlq); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*redis.Streams](container, streams); err != nil {
		return err
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{AllowOrigins: cfg.AllowOrigins}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	checker := health.NewChecker(sqlxDB, redisClient, version)
	checker.RegisterRoutes(e)
	routes.Register(e)

	// Startup ordering: queue processor and scheduler come up after the
	// stores, HTTP last so readiness reflects a working pipeline.
	boot := startup.NewStartup(logger, 5)
	boot.AddDependency(&dependency{
		name: "queue-processor",
		start: func(ctx context.Context) error {
			return processor.Start(ctx)
		},
		stop: func(ctx context.Context) error {
			return processor.Stop(ctx)
		},
	})
	boot.AddDependency(&dependency{
		name:      "scheduler",
		dependsOn: []string{"queue-processor"},
		start: func(ctx context.Context) error {
			return sched.Start(ctx)
		},
		stop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
	boot.AddDependency(&dependency{
		name:      "http-server",
		dependsOn: []string{"queue-processor", "scheduler"},
		start: func(ctx context.Context) error {
			go func() {
				if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server stopped unexpectedly")
				}
			}()
			checker.SetReady(true)
			return nil
		},
		stop: func(ctx context.Context) error {
			checker.SetReady(false)
			return e.Shutdown(ctx)
		},
	})

	if err := boot.Start(ctx); err != nil {
		return err
	}

	logger.WithContext(ctx).Infof("%s listening on :%d", cfg.AppName, cfg.Port)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Infof("Received signal %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return boot.Stop(shutdownCtx)
}

// dependency adapts closures to the startup dependency interface.
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string {
	return d.name
}

func (d *dependency) DependsOn() []string {
	return d.dependsOn
}

func (d *dependency) Start(ctx context.Context) error {
	return d.start(ctx)
}

func (d *dependency) Stop(ctx context.Context) error {
	return d.stop(ctx)
}
