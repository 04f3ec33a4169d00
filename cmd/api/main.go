package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/approval-service/internal/api/http"
	"github.com/spec-kit/approval-service/internal/api/http/handlers"
	"github.com/spec-kit/approval-service/internal/auth"
	"github.com/spec-kit/approval-service/internal/config"
	"github.com/spec-kit/approval-service/internal/events"
	"github.com/spec-kit/approval-service/internal/observability"
	"github.com/spec-kit/approval-service/internal/persistence"
	"github.com/spec-kit/approval-service/internal/repository"
	"github.com/spec-kit/approval-service/internal/service"
	"github.com/spec-kit/approval-service/internal/worker"
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
	departmentRepo := repository.NewDepartmentRepository(pool)
	templateRepo := repository.NewFormTemplateRepository(pool)
	stepRepo := repository.NewWorkflowStepRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	approvalRepo := repository.NewApprovalRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	txManager := repository.NewTxManager(pool)

	dispatcher := events.NewInMemoryDispatcher()
	statsCache := service.NewStatsCache(redis.Client, logger)

	authService := service.NewAuthService(*cfg, userRepo)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	approvalService := service.NewApprovalService(service.ApprovalDependencies{
		ApprovalRepo: approvalRepo,
		StepRepo:     stepRepo,
		TicketRepo:   ticketRepo,
		UserRepo:     userRepo,
		HistoryRepo:  historyRepo,
		TxManager:    txManager,
		StatsCache:   statsCache,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		TemplateRepo:   templateRepo,
		StepRepo:       stepRepo,
		DepartmentRepo: departmentRepo,
		ApprovalRepo:   approvalRepo,
		HistoryRepo:    historyRepo,
		Engine:         approvalService,
		TxManager:      txManager,
		Dispatcher:     dispatcher,
	})
	templateService := service.NewTemplateService(service.TemplateDependencies{
		TemplateRepo:   templateRepo,
		StepRepo:       stepRepo,
		DepartmentRepo: departmentRepo,
		TxManager:      txManager,
	})
	notificationService := service.NewNotificationService(notificationRepo, dispatcher, logger)
	worker.StartNotificationWorker(notificationService)

	metrics := observability.NewMetrics()
	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService, notificationService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Approvals:      handlers.NewApprovalsHandler(approvalService),
		Templates:      handlers.NewTemplatesHandler(templateService),
		Departments:    handlers.NewDepartmentsHandler(departmentRepo),
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
