// Package app assembles the portal's services from configuration. It is
// shared by the API server and portalctl.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/clock"
	"github.com/spec-kit/grievance-portal/internal/config"
	"github.com/spec-kit/grievance-portal/internal/events"
	"github.com/spec-kit/grievance-portal/internal/lifecycle"
	"github.com/spec-kit/grievance-portal/internal/observability"
	"github.com/spec-kit/grievance-portal/internal/persistence"
	"github.com/spec-kit/grievance-portal/internal/repository"
	"github.com/spec-kit/grievance-portal/internal/service"
	"github.com/spec-kit/grievance-portal/internal/sla"
)

// Services is the wired application.
type Services struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Postgres  *persistence.Postgres
	Redis     *persistence.Redis
	Employees repository.EmployeeRepository
	Issues    *service.IssueService
	Auth      *service.AuthService
	Actors    *service.ActorDirectory
}

// New connects to the stores and builds every service. Close releases
// the connections.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	workClock, err := cfg.Policy.Clock()
	if err != nil {
		return nil, fmt.Errorf("business calendar: %w", err)
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	rdb := persistence.NewRedis(cfg.Redis, logger)

	pool := pg.PoolHandle()
	issueRepo := repository.NewIssueRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	employeeRepo := repository.NewEmployeeRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewNotificationService(dispatcher, logger, cfg.Notification).RegisterHandlers()

	actors := service.NewActorDirectory(employeeRepo, rdb.Cmdable(), cfg.Redis.ActorCacheTTL(), logger)
	issues := service.NewIssueService(service.IssueDependencies{
		IssueRepo:    issueRepo,
		AuditRepo:    auditRepo,
		CommentRepo:  commentRepo,
		EmployeeRepo: employeeRepo,
		Names:        actors,
		Machine:      lifecycle.NewMachine(cfg.Policy.Lifecycle()),
		Evaluator:    sla.NewEvaluator(workClock),
		Clock:        clock.System{},
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		MaxRetries:   cfg.Issue.MaxRetries,
	})
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		EmployeeRepo: employeeRepo,
		Logger:       logger,
	})

	return &Services{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Postgres:  pg,
		Redis:     rdb,
		Employees: employeeRepo,
		Issues:    issues,
		Auth:      authService,
		Actors:    actors,
	}, nil
}

// Migrate applies pending SQL migrations from dir.
func (s *Services) Migrate(ctx context.Context, dir string) (int, error) {
	return persistence.RunMigrations(ctx, s.Postgres.PoolHandle(), dir, s.Logger)
}

// Close releases store connections.
func (s *Services) Close() {
	s.Redis.Close()
	s.Postgres.Close()
}
