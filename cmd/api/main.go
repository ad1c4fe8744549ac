package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/helpdeskpro/helpdesk-backend/internal/api/http"
	"github.com/helpdeskpro/helpdesk-backend/internal/api/http/handlers"
	"github.com/helpdeskpro/helpdesk-backend/internal/auth"
	"github.com/helpdeskpro/helpdesk-backend/internal/cache"
	"github.com/helpdeskpro/helpdesk-backend/internal/config"
	"github.com/helpdeskpro/helpdesk-backend/internal/events"
	"github.com/helpdeskpro/helpdesk-backend/internal/observability"
	"github.com/helpdeskpro/helpdesk-backend/internal/persistence"
	"github.com/helpdeskpro/helpdesk-backend/internal/repository"
	"github.com/helpdeskpro/helpdesk-backend/internal/service"
	"github.com/helpdeskpro/helpdesk-backend/internal/worker"
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

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	breachCache := cache.NewBreachCache(redis.Client, cfg.SLA.SnapshotTTL())

	authService := service.NewAuthService(cfg.Auth, userRepo)
	userService := service.NewUserService(userRepo)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		UserRepo:    userRepo,
		HistoryRepo: historyRepo,
		Dispatcher:  dispatcher,
	})

	monitor := worker.NewSLAMonitor(ticketService, breachCache, dispatcher, logger, cfg.SLA.MonitorInterval())
	go monitor.Run(ctx)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)
	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, breachCache, metrics),
		Users:          handlers.NewUsersHandler(authService, userService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
