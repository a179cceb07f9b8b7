package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/project-service/internal/api/http"
	"github.com/spec-kit/project-service/internal/api/http/handlers"
	"github.com/spec-kit/project-service/internal/auth"
	"github.com/spec-kit/project-service/internal/cache"
	"github.com/spec-kit/project-service/internal/config"
	"github.com/spec-kit/project-service/internal/domain"
	"github.com/spec-kit/project-service/internal/events"
	"github.com/spec-kit/project-service/internal/observability"
	"github.com/spec-kit/project-service/internal/persistence"
	"github.com/spec-kit/project-service/internal/repository"
	"github.com/spec-kit/project-service/internal/service"
	"github.com/spec-kit/project-service/internal/worker"
	apperrors "github.com/spec-kit/project-service/pkg/util/errorutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
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
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	dependencies := map[string]handlers.Pinger{}
	if pg.Enabled() {
		dependencies["postgres"] = pg
	}

	var store cache.Store = cache.NewMemoryStore()
	if cfg.Auth.MembershipCacheBackend == config.CacheBackendRedis {
		redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redis.Close()
		store = cache.NewRedisStore(redis.Client, cfg.Auth.MembershipCacheRedisKeyPrefix)
		dependencies["redis"] = redis
	}

	repos := repository.NewRepositories(pg.PoolHandle())
	membershipCache := cache.NewMembershipCache(store, service.NewMembershipAggregator(repos.Memberships), cfg.Auth.MembershipCacheTTL(), logger)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger, metrics))

	authService, err := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:       repos.Users,
		CredentialRepo: repos.Credentials,
		Memberships:    membershipCache,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("failed to init auth service", zap.Error(err))
	}

	accounts := service.NewAccountService(service.AccountDependencies{
		UserRepo:       repos.Users,
		CredentialRepo: repos.Credentials,
		TeamRepo:       repos.Teams,
		MembershipRepo: repos.Memberships,
		Hasher:         authService.Hasher(),
		Cache:          membershipCache,
		Logger:         logger,
	})
	if err := bootstrapAdmin(ctx, accounts, cfg.Auth); err != nil {
		logger.Fatal("failed to provision bootstrap admin", zap.Error(err))
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Metrics:        handlers.NewMetricsHandler(metrics),
		Auth:           handlers.NewAuthHandler(authService, membershipCache, logger),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager()),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

// bootstrapAdmin provisions the configured admin account when it is missing.
func bootstrapAdmin(ctx context.Context, accounts *service.AccountService, cfg config.AuthConfig) error {
	if cfg.BootstrapAdminEmail == "" {
		return nil
	}
	_, err := accounts.Provision(ctx, service.ProvisionInput{
		Name:     "Administrator",
		Email:    cfg.BootstrapAdminEmail,
		Password: cfg.BootstrapAdminPassword,
		Role:     domain.UserRoleAdmin,
		Status:   domain.UserStatusActive,
	})
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) && domainErr.Code == apperrors.CodeConflict {
		return nil
	}
	return err
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
