package dto

import (
	"time"

	"github.com/spec-kit/grievance-portal/internal/domain"
)

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// EmployeeResponse is the public view of an employee.
type EmployeeResponse struct {
	ID    int64               `json:"id"`
	Name  string              `json:"name"`
	Email string              `json:"email"`
	Role  domain.EmployeeRole `json:"role"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string           `json:"token"`
	TokenType string           `json:"token_type"`
	ExpiresAt time.Time        `json:"expires_at"`
	Employee  EmployeeResponse `json:"employee"`
}
