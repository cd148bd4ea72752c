package domain

import "time"

// AuditAction captures what happened in an audit entry.
type AuditAction string

const (
	AuditActionCreated              AuditAction = "created"
	AuditActionStatusChanged        AuditAction = "status_changed"
	AuditActionAssigned             AuditAction = "assigned"
	AuditActionReopened             AuditAction = "reopened"
	AuditActionEscalated            AuditAction = "escalated"
	AuditActionPriorityChanged      AuditAction = "priority_changed"
	AuditActionRecategorized        AuditAction = "recategorized"
	AuditActionCommentAdded         AuditAction = "comment_added"
	AuditActionInternalCommentAdded AuditAction = "internal_comment_added"
)

// AuditEntry is an immutable audit trail entry.
type AuditEntry struct {
	ID             int64
	IssueID        int64
	Action         AuditAction
	EmployeeID     int64
	PreviousStatus *IssueStatus
	NewStatus      *IssueStatus
	Details        map[string]any
	CreatedAt      time.Time
}
