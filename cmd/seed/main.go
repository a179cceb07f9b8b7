// Command seed provisions an account with its credential and team memberships
// directly in Postgres.
//
//	seed -name "Alice" -email alice@example.com -password 'Secret123!' \
//	     -role Developer -teams "Platform:TeamLead,Mobile:Member"
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/project-service/internal/auth"
	"github.com/spec-kit/project-service/internal/cache"
	"github.com/spec-kit/project-service/internal/config"
	"github.com/spec-kit/project-service/internal/domain"
	"github.com/spec-kit/project-service/internal/observability"
	"github.com/spec-kit/project-service/internal/persistence"
	"github.com/spec-kit/project-service/internal/repository"
	"github.com/spec-kit/project-service/internal/service"
)

func main() {
	var (
		name     = flag.String("name", "", "display name")
		email    = flag.String("email", "", "login email")
		password = flag.String("password", os.Getenv("SEED_PASSWORD"), "password (defaults to $SEED_PASSWORD)")
		role     = flag.String("role", string(domain.UserRoleDeveloper), "account role: Admin, ProjectManager, Developer or Viewer")
		status   = flag.String("status", string(domain.UserStatusActive), "account status: Active, Inactive or Suspended")
		teams    = flag.String("teams", "", "comma separated team:role pairs, e.g. Platform:TeamLead,Mobile:Member")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Postgres.DSN == "" {
		log.Fatal("POSTGRES_DSN is required to seed accounts")
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	assignments, err := parseTeams(*teams)
	if err != nil {
		logger.Fatal("invalid -teams", zap.Error(err))
	}

	ctx := context.Background()
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

	hasher, err := auth.NewPasswordHasher(cfg.Auth.PasswordAlgorithm, cfg.Auth.PasswordIterations)
	if err != nil {
		logger.Fatal("failed to init hasher", zap.Error(err))
	}

	repos := repository.NewRepositories(pg.PoolHandle())
	var invalidator service.MembershipInvalidator
	if cfg.Auth.MembershipCacheBackend == config.CacheBackendRedis {
		redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redis.Close()
		invalidator = cache.NewMembershipCache(
			cache.NewRedisStore(redis.Client, cfg.Auth.MembershipCacheRedisKeyPrefix),
			service.NewMembershipAggregator(repos.Memberships),
			cfg.Auth.MembershipCacheTTL(),
			logger)
	}

	accounts := service.NewAccountService(service.AccountDependencies{
		UserRepo:       repos.Users,
		CredentialRepo: repos.Credentials,
		TeamRepo:       repos.Teams,
		MembershipRepo: repos.Memberships,
		Hasher:         hasher,
		Cache:          invalidator,
		Logger:         logger,
	})

	user, err := accounts.Provision(ctx, service.ProvisionInput{
		Name:     *name,
		Email:    *email,
		Password: *password,
		Role:     domain.UserRole(*role),
		Status:   domain.UserStatus(*status),
		Teams:    assignments,
	})
	if err != nil {
		logger.Fatal("failed to provision account", zap.Error(err))
	}
	fmt.Println(user.ID)
}

func parseTeams(raw string) ([]service.TeamAssignment, error) {
	var assignments []service.TeamAssignment
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		team, role, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%q is not team:role", pair)
		}
		assignments = append(assignments, service.TeamAssignment{
			TeamName: strings.TrimSpace(team),
			Role:     domain.TeamRole(strings.TrimSpace(role)),
		})
	}
	return assignments, nil
}
