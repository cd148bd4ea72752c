package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/auth"
	"github.com/spec-kit/grievance-portal/internal/config"
	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/repository"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util/errorutil"
)

// AuthService coordinates employee login and account provisioning.
type AuthService struct {
	employees  repository.EmployeeRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	EmployeeRepo repository.EmployeeRepository
	Logger       *zap.Logger
}

// RegisterEmployeeInput describes a new portal account.
type RegisterEmployeeInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.EmployeeRole
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		employees:  deps.EmployeeRepo,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		logger:     logger,
	}
}

// TokenManager exposes the JWT manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// Login authenticates an employee and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Employee, domain.Token, error) {
	employee, err := s.employees.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.Token{}, apperrors.NewUnauthorized(auth.ErrInvalidCredentials.Error())
		}
		return nil, domain.Token{}, apperrors.NewInternalError(err)
	}
	if err := auth.CheckPassword(employee.PasswordHash, password); err != nil {
		return nil, domain.Token{}, apperrors.NewUnauthorized(err.Error())
	}
	if !employee.Active {
		return nil, domain.Token{}, apperrors.NewUnauthorized("employee inactive")
	}
	token, err := s.tokenMgr.Issue(employee)
	if err != nil {
		return nil, domain.Token{}, apperrors.NewInternalError(err)
	}
	s.logger.Info("employee logged in", zap.Int64("employee_id", employee.ID), zap.String("token_id", token.ID))
	return employee, token, nil
}

// RegisterEmployee provisions an account. Used by operators, not exposed
// over HTTP.
func (s *AuthService) RegisterEmployee(ctx context.Context, input RegisterEmployeeInput) (*domain.Employee, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name required", nil)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(input.Email))
	if err != nil {
		return nil, apperrors.NewValidationError("invalid email", map[string]any{"email": input.Email})
	}
	role := domain.EmployeeRole(strings.ToUpper(string(input.Role)))
	switch role {
	case domain.EmployeeRoleEmployee, domain.EmployeeRoleAgent, domain.EmployeeRoleManager, domain.EmployeeRoleAdmin:
	case "":
		role = domain.EmployeeRoleEmployee
	default:
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": input.Role})
	}

	email := strings.ToLower(addr.Address)
	if _, err := s.employees.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewInternalError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	employee := &domain.Employee{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.employees.Create(ctx, employee); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return employee, nil
}
