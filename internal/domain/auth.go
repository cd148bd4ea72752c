package domain

import "time"

// Token is an issued bearer token and its metadata. ID is the JWT id.
type Token struct {
	ID         string
	Value      string
	EmployeeID int64
	Role       EmployeeRole
	ExpiresAt  time.Time
	IssuedAt   time.Time
}
