package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/firesafe-notify/internal/config"
	"github.com/kursadbilgin/firesafe-notify/internal/credential"
	"github.com/kursadbilgin/firesafe-notify/internal/gateway"
	"github.com/kursadbilgin/firesafe-notify/internal/handler"
	"github.com/kursadbilgin/firesafe-notify/internal/infra/postgresql"
	"github.com/kursadbilgin/firesafe-notify/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/firesafe-notify/internal/infra/redis"
	"github.com/kursadbilgin/firesafe-notify/internal/observability"
	"github.com/kursadbilgin/firesafe-notify/internal/queue"
	"github.com/kursadbilgin/firesafe-notify/internal/repository"
	"github.com/kursadbilgin/firesafe-notify/internal/service"
	"github.com/kursadbilgin/firesafe-notify/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal("failed to read .env file: ", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.TraceSampleRatio)
	if err != nil {
		logger.Fatal("tracing initialization failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer broker.Close()

	metrics := observability.NewMetrics()

	var usage repository.UsageCounterStore
	switch cfg.UsageBackend {
	case config.UsageBackendRedis:
		usage, err = infraredis.NewUsageCounter(rdb)
		if err != nil {
			logger.Fatal("redis usage counter init failed", zap.Error(err))
		}
	default:
		usage = repository.NewGormUsageCounter(db)
	}

	// Both stay nil interfaces when the gateway is not configured so the
	// dispatcher reports every request as disabled.
	var (
		credentials service.CredentialSource
		sender      service.MessageSender
	)
	if cfg.GatewayConfigured() {
		client, err := gateway.NewClient(cfg.SMSGatewayURL, cfg.SMSUsername, cfg.SMSPassword, cfg.SMSGatewayTimeout)
		if err != nil {
			logger.Fatal("sms gateway client init failed", zap.Error(err))
		}
		manager, err := credential.NewManager(client, cfg.SMSGatewayTimeout, logger)
		if err != nil {
			logger.Fatal("credential manager init failed", zap.Error(err))
		}
		manager.SetMetrics(metrics)
		credentials = manager
		sender = client
	} else {
		logger.Warn("sms gateway credentials missing, notifications are disabled")
	}

	settings := service.NewStoredSettings(repository.NewGormSettingsRepo(db), cfg.DefaultSettings(), cfg.GatewayConfigured())

	filter, err := service.NewRecipientFilter(repository.NewGormPreferenceRepo(db), logger)
	if err != nil {
		logger.Fatal("recipient filter init failed", zap.Error(err))
	}

	quota, err := service.NewQuotaGuard(usage, cfg.Location(), logger)
	if err != nil {
		logger.Fatal("quota guard init failed", zap.Error(err))
	}

	deliveries := repository.NewGormDeliveryRepo(db)
	dispatcher, err := service.NewDispatcher(settings, filter, quota, credentials, sender, deliveries, cfg.SMSCountryCode, logger)
	if err != nil {
		logger.Fatal("dispatcher init failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	throttle, err := infraredis.NewGatewayThrottle(rdb, cfg.SMSRateLimitPerSec)
	if err != nil {
		logger.Fatal("gateway throttle init failed", zap.Error(err))
	}
	dispatcher.SetThrottle(throttle)

	scheduler, err := service.NewScheduler(
		repository.NewGormEquipmentRepo(db),
		dispatcher,
		settings,
		cfg.SchedulerCron,
		cfg.SchedulerSendInterval,
		cfg.Location(),
		logger,
	)
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}
	scheduler.SetMetrics(metrics)

	publisher := queue.NewRabbitMQPublisher(broker)
	consumer := queue.NewRabbitMQConsumer(broker, cfg.EventConsumerPrefetch, logger)
	events, err := service.NewEventService(consumer, dispatcher, logger)
	if err != nil {
		logger.Fatal("event service init failed", zap.Error(err))
	}
	events.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb, broker)
	if err := handler.RegisterNotificationRoutes(app, dispatcher, publisher); err != nil {
		logger.Fatal("notification routes init failed", zap.Error(err))
	}
	if err := handler.RegisterAdminRoutes(app, handler.AdminDeps{
		Scheduler:  scheduler,
		Usage:      quota,
		Deliveries: deliveries,
		Settings:   settings,
	}); err != nil {
		logger.Fatal("admin routes init failed", zap.Error(err))
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("firesafe-notify api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	g.Go(func() error {
		return scheduler.Start(groupCtx)
	})

	g.Go(func() error {
		return events.Start(groupCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("firesafe-notify stopped with error", zap.Error(err))
		return
	}
	logger.Info("firesafe-notify stopped")
}
