package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/opencampus/delivery-engine/internal/config"
	"github.com/opencampus/delivery-engine/internal/content"
	"github.com/opencampus/delivery-engine/internal/handler"
	"github.com/opencampus/delivery-engine/internal/infra/postgresql"
	"github.com/opencampus/delivery-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/opencampus/delivery-engine/internal/infra/redis"
	"github.com/opencampus/delivery-engine/internal/observability"
	"github.com/opencampus/delivery-engine/internal/preference"
	"github.com/opencampus/delivery-engine/internal/provider"
	"github.com/opencampus/delivery-engine/internal/repository"
	"github.com/opencampus/delivery-engine/internal/service"
	"github.com/opencampus/delivery-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
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

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	deliveryRepo := repository.NewGormDeliveryRepo(db)
	inAppRepo := repository.NewGormInAppRepo(db)

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	emailSender, pushSender, inAppSink, err := buildProviders(cfg, inAppRepo, logger)
	if err != nil {
		logger.Fatal("provider initialization failed", zap.Error(err))
	}

	renderer := content.NewCatalogRenderer()
	queueService, err := service.NewQueueService(deliveryRepo, preference.AllowAll{}, renderer, cfg.DefaultMaxRetries, logger)
	if err != nil {
		logger.Fatal("queue service initialization failed", zap.Error(err))
	}

	inAppService, err := service.NewInAppService(inAppRepo, logger)
	if err != nil {
		logger.Fatal("in-app service initialization failed", zap.Error(err))
	}

	statusService, err := service.NewStatusService(deliveryRepo, logger)
	if err != nil {
		logger.Fatal("status service initialization failed", zap.Error(err))
	}

	analyticsService, err := service.NewAnalyticsService(deliveryRepo, logger)
	if err != nil {
		logger.Fatal("analytics service initialization failed", zap.Error(err))
	}

	dispatcher, err := service.NewDispatcher(deliveryRepo, emailSender, pushSender, inAppSink, limiter, cfg.BaseRetryDelay, logger)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	jobs, err := service.NewDispatchJobs(deliveryRepo, dispatcher, service.JobsConfig{
		PromoteInterval: cfg.PromoteInterval,
		PendingInterval: cfg.PendingInterval,
		RetryInterval:   cfg.RetryInterval,
		ExpireInterval:  cfg.ExpireInterval,
		PurgeInterval:   cfg.PurgeInterval,
		PromoteLookback: cfg.PromoteLookback,
		PendingMaxAge:   cfg.PendingMaxAge,
		RetentionPeriod: cfg.RetentionPeriod,
		BatchSize:       cfg.DispatchBatchSize,
		Parallelism:     cfg.DispatchParallel,
	}, logger)
	if err != nil {
		logger.Fatal("dispatch jobs initialization failed", zap.Error(err))
	}
	jobs.SetMetrics(metrics)

	scheduler := service.NewScheduler(logger, metrics)
	if err := jobs.Register(scheduler); err != nil {
		logger.Fatal("job registration failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "delivery-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterDeliveryRoutes(app, queueService, statusService); err != nil {
		logger.Fatal("delivery route registration failed", zap.Error(err))
	}
	if err := handler.RegisterInboxRoutes(app, inAppService); err != nil {
		logger.Fatal("inbox route registration failed", zap.Error(err))
	}
	if err := handler.RegisterAnalyticsRoutes(app, analyticsService); err != nil {
		logger.Fatal("analytics route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Start(groupCtx)
	})
	g.Go(func() error {
		logger.Info("delivery-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("delivery-engine terminated", zap.Error(err))
	}
	logger.Info("delivery-engine stopped")
}

func buildProviders(cfg *config.Config, inAppRepo repository.InAppRepository, logger *zap.Logger) (provider.EmailSender, provider.PushSender, provider.InAppSink, error) {
	var emailSender provider.EmailSender
	if cfg.SMTPHost != "" {
		sender, err := provider.NewSMTPEmailSender(provider.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Password: cfg.SMTPPassword,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		emailSender = sender
	} else {
		logger.Warn("SMTP_HOST is not set, email deliveries will fail")
	}

	var pushSender provider.PushSender
	if cfg.PushGatewayURL != "" {
		sender, err := provider.NewPushGatewaySender(cfg.PushGatewayURL)
		if err != nil {
			return nil, nil, nil, err
		}
		pushSender = sender
	} else {
		logger.Warn("PUSH_GATEWAY_URL is not set, push deliveries will fail")
	}

	inAppSink, err := provider.NewStoreInAppSink(inAppRepo)
	if err != nil {
		return nil, nil, nil, err
	}

	return emailSender, pushSender, inAppSink, nil
}
