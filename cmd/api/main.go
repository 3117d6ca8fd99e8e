package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-rooms/internal/access"
	"github.com/spec-kit/ticket-rooms/internal/allocator"
	httptransport "github.com/spec-kit/ticket-rooms/internal/api/http"
	"github.com/spec-kit/ticket-rooms/internal/api/http/handlers"
	"github.com/spec-kit/ticket-rooms/internal/auth"
	"github.com/spec-kit/ticket-rooms/internal/config"
	"github.com/spec-kit/ticket-rooms/internal/events"
	"github.com/spec-kit/ticket-rooms/internal/observability"
	"github.com/spec-kit/ticket-rooms/internal/persistence"
	"github.com/spec-kit/ticket-rooms/internal/platform/memory"
	"github.com/spec-kit/ticket-rooms/internal/repository"
	"github.com/spec-kit/ticket-rooms/internal/service"
	"github.com/spec-kit/ticket-rooms/internal/transcript"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	if current, err := redis.Current(ctx, cfg.Ticketing.CounterKey); err == nil {
		logger.Info("ticket counter loaded", zap.Int64("value", current))
	}

	var ticketRepo repository.TicketRepository
	if pool := pg.PoolHandle(); pool != nil {
		ticketRepo = repository.NewTicketRepository(pool)
	} else {
		ticketRepo = repository.NewMemoryTicketRepository()
	}

	// The real gateway adapter plugs in here; the in-memory provider keeps
	// local runs and development self-contained.
	provider := memory.New()
	provider.AddCategory(cfg.Ticketing.CategoryID)
	provider.AddRole(cfg.Ticketing.StaffRoleName)
	provider.AddChannel(cfg.Ticketing.LogChannelID, "ticket-logs")
	provider.AddChannel(cfg.Ticketing.IntakeChannelID, "open-a-ticket")
	stores := provider.Stores()
	logger.Info("platform adapter ready",
		zap.String("category", cfg.Ticketing.CategoryID),
		zap.String("naming_policy", string(cfg.Ticketing.Naming)),
		zap.String("visibility_flag", string(cfg.Ticketing.Visibility)))

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	auditService := service.NewAuditService(dispatcher, stores.Messages, cfg.Ticketing.LogChannelID, logger)
	auditService.RegisterHandlers()

	lifecycle := service.NewLifecycleService(cfg.Ticketing, service.LifecycleDependencies{
		TicketRepo:  ticketRepo,
		Channels:    stores.Channels,
		Messages:    stores.Messages,
		Provisioner: access.NewProvisioner(stores.Permissions, cfg.Ticketing, logger),
		Allocator:   allocator.New(redis, cfg.Ticketing),
		Recorder:    transcript.NewRecorder(stores.Messages, cfg.Ticketing.HistoryPageSize),
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
	})

	authService := auth.NewService(cfg.Auth)
	authMiddleware := auth.NewMiddleware(authService.TokenManager())

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(lifecycle),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
