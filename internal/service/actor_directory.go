package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/repository"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util/errorutil"
)

// ActorDirectory resolves employee display names through a redis cache
// backed by the employee repository.
type ActorDirectory struct {
	employees repository.EmployeeRepository
	cache     redis.Cmdable
	ttl       time.Duration
	logger    *zap.Logger
}

// NewActorDirectory builds the directory. cache may be nil.
func NewActorDirectory(employees repository.EmployeeRepository, cache redis.Cmdable, ttl time.Duration, logger *zap.Logger) *ActorDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ActorDirectory{employees: employees, cache: cache, ttl: ttl, logger: logger}
}

func actorNameKey(id int64) string {
	return fmt.Sprintf("actor:name:%d", id)
}

// ResolveActorName returns the employee's name. Failures come back as a
// LOOKUP_DEGRADED error so callers can fall back to a placeholder.
func (d *ActorDirectory) ResolveActorName(ctx context.Context, employeeID int64) (string, error) {
	key := actorNameKey(employeeID)
	if d.cache != nil {
		name, err := d.cache.Get(ctx, key).Result()
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, redis.Nil) {
			d.logger.Debug("actor cache read failed", zap.Int64("employee_id", employeeID), zap.Error(err))
		}
	}

	employee, err := d.employees.GetByID(ctx, employeeID)
	if err != nil {
		return "", apperrors.NewLookupDegraded(err, map[string]any{"employee_id": employeeID})
	}
	if d.cache != nil {
		if err := d.cache.Set(ctx, key, employee.Name, d.ttl).Err(); err != nil {
			d.logger.Debug("actor cache write failed", zap.Int64("employee_id", employeeID), zap.Error(err))
		}
	}
	return employee.Name, nil
}
