package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	billingapp "github.com/waterbill/backend/internal/application/billing"
	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/infrastructure/cache"
	"github.com/waterbill/backend/internal/infrastructure/config"
	"github.com/waterbill/backend/internal/infrastructure/event"
	"github.com/waterbill/backend/internal/infrastructure/lock"
	"github.com/waterbill/backend/internal/infrastructure/logger"
	"github.com/waterbill/backend/internal/infrastructure/persistence"
	"github.com/waterbill/backend/internal/infrastructure/scheduler"
	"github.com/waterbill/backend/internal/infrastructure/storage"
	"github.com/waterbill/backend/internal/infrastructure/telemetry"
	"github.com/waterbill/backend/internal/interfaces/http/handler"
	"github.com/waterbill/backend/internal/interfaces/http/middleware"
	"github.com/waterbill/backend/internal/interfaces/http/router"
	"github.com/waterbill/backend/internal/interfaces/messaging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// OpenTelemetry: traces, metrics, logs
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer shutdown(log, "tracer provider", tracerProvider.Shutdown)

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer shutdown(log, "meter provider", meterProvider.Shutdown)

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer shutdown(log, "logger provider", loggerProvider.Shutdown)

	if loggerProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: loggerProvider,
			Level:          zapcore.InfoLevel,
		})
		log = telemetry.NewBridgedLogger(log.Core(), otelCore, zap.AddCaller())
	}

	log.Info("Starting Waterbill",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
	)

	// Database with zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.ParseGormLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:  cfg.Telemetry.Enabled && cfg.Telemetry.DBTracing,
		DBSystem: db.Driver(),
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	// Postgres schema is owned by cmd/migrate; sqlite is used for local runs only
	if db.Driver() == "sqlite" {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate sqlite schema", zap.Error(err))
		}
	}
	log.Info("Database connected successfully", zap.String("driver", db.Driver()))

	// Repositories
	meterRepo := persistence.NewGormMeterRepository(db.DB)
	readingRepo := persistence.NewGormReadingRepository(db.DB)
	billRepo := persistence.NewGormBillRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	transactor := persistence.NewGormTransactor(db)

	// Keyed locking: Redis across replicas, in-process otherwise
	var locker billingapp.KeyedLocker = lock.NewMemoryLocker()
	if cfg.Redis.Enabled {
		redisLocker, err := lock.NewRedisLocker(lock.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.LockTTL,
			Retry:    cfg.Redis.LockRetry,
		}, log)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer func() {
			if err := redisLocker.Close(); err != nil {
				log.Error("Error closing redis locker", zap.Error(err))
			}
		}()
		locker = redisLocker
		log.Info("Redis locker enabled", zap.String("host", cfg.Redis.Host))
	}

	// Event publishing
	var publishers []shared.EventPublisher
	publishers = append(publishers, event.NewLogPublisher(log))
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := event.NewKafkaPublisher(cfg.Kafka, log)
		if err != nil {
			log.Fatal("Failed to create kafka publisher", zap.Error(err))
		}
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				log.Error("Error closing kafka publisher", zap.Error(err))
			}
		}()
		publishers = append(publishers, kafkaPublisher)
		log.Info("Kafka publisher enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	billingMetrics, err := telemetry.NewBillingMetrics(meterProvider.Meter(telemetry.TracerName), log)
	if err != nil {
		log.Fatal("Failed to create billing metrics", zap.Error(err))
	}

	// Application services
	tariff, err := cfg.Billing.Tariff()
	if err != nil {
		log.Fatal("Invalid tariff configuration", zap.Error(err))
	}
	deps := billingapp.Dependencies{
		Locker:  locker,
		Events:  event.NewFanoutPublisher(publishers...),
		Metrics: billingMetrics,
		Logger:  log,
		Clock:   shared.SystemClock,
	}
	billingService := billingapp.NewBillingService(readingRepo, billRepo, billingapp.BillingServiceConfig{
		Tariff:    tariff,
		GraceDays: cfg.Billing.DueDateGraceDays,
	}, deps)
	readingService := billingapp.NewReadingService(readingRepo, meterRepo, transactor, deps)
	paymentService := billingapp.NewPaymentService(billRepo, paymentRepo, transactor, cfg.Billing.CurrencyCode(), deps)
	customerService := billingapp.NewCustomerService(customerRepo, deps)
	meterService := billingapp.NewMeterService(meterRepo, customerRepo, deps)

	// Billing commands arrive over Kafka
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if cfg.Kafka.ConsumerEnabled {
		var dedup shared.IdempotencyStore
		if cfg.Redis.Enabled {
			redisStore, err := cache.NewRedisStore(cache.RedisConfig{
				Host:     cfg.Redis.Host,
				Port:     cfg.Redis.Port,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err != nil {
				log.Fatal("Failed to connect deduplication store", zap.Error(err))
			}
			dedup = redisStore
		} else {
			dedup = cache.NewMemoryStore()
		}
		defer func() {
			if err := dedup.Close(); err != nil {
				log.Error("Error closing deduplication store", zap.Error(err))
			}
		}()

		commandHandler := messaging.NewCommandHandler(customerService, meterService, readingService, billingService, paymentService, log)
		consumer, err := messaging.NewConsumer(cfg.Kafka, commandHandler, log,
			messaging.WithDeduplication(dedup, cfg.Kafka.DedupTTL))
		if err != nil {
			log.Fatal("Failed to create command consumer", zap.Error(err))
		}
		consumerDone := make(chan struct{})
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(consumerCtx); err != nil {
				log.Error("Command consumer stopped", zap.Error(err))
			}
		}()
		defer func() {
			stopConsumer()
			if err := consumer.Close(); err != nil {
				log.Error("Error closing command consumer", zap.Error(err))
			}
			<-consumerDone
		}()
		log.Info("Command consumer enabled",
			zap.String("group", cfg.Kafka.ConsumerGroup),
			zap.String("topic", cfg.Kafka.CommandsTopic),
		)
	}

	// Overdue sweep schedule
	sweepScheduler := scheduler.NewOverdueSweepScheduler(
		scheduler.OverdueSweepConfigFrom(cfg.Scheduler), billingService, log)
	if err := sweepScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start overdue sweep scheduler", zap.Error(err))
	}
	defer func() {
		if !sweepScheduler.IsRunning() {
			return
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.SweepTimeout)
		defer cancel()
		if err := sweepScheduler.Stop(stopCtx); err != nil {
			log.Error("Error stopping overdue sweep scheduler", zap.Error(err))
		}
	}()

	// Archive for uploaded reading files
	var importArchive handler.ImportArchive
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3Archive(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create import archive", zap.Error(err))
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := archive.EnsureBucket(bucketCtx); err != nil {
			log.Warn("Import archive bucket check failed", zap.Error(err))
		}
		cancel()
		importArchive = archive
		log.Info("Import archive enabled", zap.String("bucket", archive.Bucket()))
	}

	// Ops HTTP surface
	tracingConfig := middleware.DefaultTracingConfig()
	tracingConfig.ServiceName = cfg.Telemetry.ServiceName
	tracingConfig.Enabled = tracerProvider.IsEnabled()
	engine := router.NewEngine(router.EngineConfig{
		Production: cfg.App.Env == "production",
		Tracing:    tracingConfig,
	}, log)
	router.NewRouter(engine).
		Register(handler.NewHealthHandler(cfg.App.Name, db)).
		Register(handler.NewOpsHandler(sweepScheduler, billingService)).
		Register(handler.NewReadingImportHandler(readingService, 0, importArchive)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func shutdown(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error("Error shutting down "+name, zap.Error(err))
	}
}
