package domain

import "time"

// EmployeeRole enumerates portal roles.
type EmployeeRole string

const (
	EmployeeRoleEmployee EmployeeRole = "EMPLOYEE"
	EmployeeRoleAgent    EmployeeRole = "AGENT"
	EmployeeRoleManager  EmployeeRole = "MANAGER"
	EmployeeRoleAdmin    EmployeeRole = "ADMIN"
)

// IsStaff reports whether the role may triage issues.
func (r EmployeeRole) IsStaff() bool {
	return r == EmployeeRoleAgent || r == EmployeeRoleManager || r == EmployeeRoleAdmin
}

// IsPrivileged reports whether the role sees every private thread.
func (r EmployeeRole) IsPrivileged() bool {
	return r == EmployeeRoleManager || r == EmployeeRoleAdmin
}

// Employee models anyone who can sign in to the portal.
type Employee struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         EmployeeRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
