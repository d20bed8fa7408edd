package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/campusflow/campus-queue/internal/api/http"
	"github.com/campusflow/campus-queue/internal/api/http/handlers"
	"github.com/campusflow/campus-queue/internal/auth"
	"github.com/campusflow/campus-queue/internal/config"
	"github.com/campusflow/campus-queue/internal/events"
	"github.com/campusflow/campus-queue/internal/observability"
	"github.com/campusflow/campus-queue/internal/persistence"
	"github.com/campusflow/campus-queue/internal/realtime"
	"github.com/campusflow/campus-queue/internal/service"
	"github.com/campusflow/campus-queue/internal/store"
	"github.com/campusflow/campus-queue/internal/store/memory"
	pgstore "github.com/campusflow/campus-queue/internal/store/postgres"
	"github.com/campusflow/campus-queue/internal/worker"
)

const (
	shutdownTimeout          = 10 * time.Second
	notificationQueueSize    = 256
	defaultHubBufferFallback = 32
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.SetupTracing(ctx, cfg.Tracing, cfg.App.Name, logger)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var (
		queueStore store.Store
		userStore  store.UserStore
	)
	if pg.Enabled() {
		s := pgstore.NewStore(pg.PoolHandle())
		queueStore, userStore = s, s
	} else {
		s := memory.New()
		queueStore, userStore = s, s
	}
	queueStore = store.WithTracing(queueStore, otel.Tracer(store.TracerName))

	metrics := observability.NewMetrics()
	hubBuffer := cfg.Realtime.ClientBuffer
	if hubBuffer <= 0 {
		hubBuffer = defaultHubBufferFallback
	}
	hub := realtime.NewHub(hubBuffer, logger, metrics)

	notifyDispatcher := events.NewDispatcher(logger)
	notificationService := service.NewNotificationService(notifyDispatcher, logger, cfg.Notification)
	notificationService.RegisterHandlers()
	notifyWorker := worker.NewNotificationWorker(notifyDispatcher, notificationQueueSize, logger)

	var (
		relay        *events.RedisRelay
		blacklist    auth.TokenBlacklist
		realtimeSink events.Broadcaster = hub
	)
	if redis.Enabled() {
		relay = events.NewRedisRelay(redis.Client, cfg.Redis.EventsChannel, hub, logger)
		realtimeSink = relay
		blacklist = auth.NewRedisBlacklist(redis.Client)
	} else {
		blacklist = auth.NewMemoryBlacklist()
	}
	dispatcher := events.NewDispatcher(logger, realtimeSink, notifyWorker)

	deps := service.Dependencies{
		Store:       queueStore,
		Users:       userStore,
		Broadcaster: dispatcher,
		Logger:      logger,
		Metrics:     metrics,
		Queue:       cfg.Queue,
		Crowd:       cfg.Crowd,
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(cfg.Auth, deps, tokens, blacklist)
	queueService := service.NewQueueService(deps)
	emergencyService := service.NewEmergencyService(deps)
	staffService := service.NewStaffService(cfg.Auth, deps)

	if err := authService.BootstrapAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		logger.Fatal("failed to bootstrap admin", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:     cfg.App.RequestTimeout(),
		CORSOrigins: cfg.App.CORSOrigins,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(queueService),
		Staff:          handlers.NewStaffHandler(queueService, staffService),
		Emergencies:    handlers.NewEmergencyHandler(emergencyService),
		Admin:          handlers.NewAdminHandler(staffService),
		Events:         handlers.NewEventsHandler(hub, cfg.Realtime.Heartbeat),
		AuthMiddleware: auth.NewMiddleware(authService.TokenManager(), userStore, blacklist, logger),
		JoinLimiter:    httptransport.JoinRateLimiter(cfg.RateLimit),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		return notifyWorker.Run(gctx)
	})
	if relay != nil {
		g.Go(func() error {
			return worker.RunEventRelay(gctx, relay, worker.DefaultRelayBackoff, logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hub.Close()
		err := app.ShutdownWithTimeout(shutdownTimeout)

		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if terr := shutdownTracing(flushCtx); terr != nil {
			logger.Warn("tracer shutdown failed", zap.Error(terr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
	}
}
