package dto

import (
	"time"

	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/sla"
)

// CreateIssueRequest payload.
type CreateIssueRequest struct {
	TypeID      int64  `json:"type_id"`
	SubTypeID   int64  `json:"sub_type_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// ChangeStatusRequest payload. ExpectedVersion may also arrive as If-Match.
type ChangeStatusRequest struct {
	Status          string `json:"status"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// AssignRequest payload.
type AssignRequest struct {
	AssigneeID      int64  `json:"assignee_id"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// ReopenRequest payload.
type ReopenRequest struct {
	Reason          string `json:"reason"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// EscalateRequest payload.
type EscalateRequest struct {
	Reason          string `json:"reason"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// ChangePriorityRequest payload.
type ChangePriorityRequest struct {
	Priority        string `json:"priority"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// RecategorizeRequest payload.
type RecategorizeRequest struct {
	TypeID          int64  `json:"type_id"`
	SubTypeID       int64  `json:"sub_type_id"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// CommentRequest payload for public comments.
type CommentRequest struct {
	Content string `json:"content"`
}

// InternalCommentRequest payload for the private thread.
type InternalCommentRequest struct {
	Content     string `json:"content"`
	RecipientID *int64 `json:"recipient_id"`
}

// IssueResponse is the full issue record.
type IssueResponse struct {
	ID                 int64                `json:"id"`
	TypeID             int64                `json:"type_id"`
	SubTypeID          int64                `json:"sub_type_id"`
	MappedTypeID       *int64               `json:"mapped_type_id"`
	MappedSubTypeID    *int64               `json:"mapped_sub_type_id"`
	Title              string               `json:"title"`
	Description        string               `json:"description"`
	Status             domain.IssueStatus   `json:"status"`
	Priority           domain.IssuePriority `json:"priority"`
	EscalationLevel    int                  `json:"escalation_level"`
	LastEscalatedAt    *time.Time           `json:"last_escalated_at"`
	EmployeeID         int64                `json:"employee_id"`
	AssignedTo         *int64               `json:"assigned_to"`
	AssignedBy         *int64               `json:"assigned_by"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
	LastStatusChangeAt time.Time            `json:"last_status_change_at"`
	ClosedAt           *time.Time           `json:"closed_at"`
	ReopenableUntil    *time.Time           `json:"reopenable_until"`
	PreviouslyClosedAt []time.Time          `json:"previously_closed_at"`
	Version            int64                `json:"version"`
	SLA                *SLAResponse         `json:"sla,omitempty"`
}

// SLAResponse reports SLA state in working hours.
type SLAResponse struct {
	Status         sla.Status `json:"status"`
	Deadline       time.Time  `json:"deadline"`
	RemainingHours float64    `json:"remaining_hours"`
	TierHours      float64    `json:"tier_hours"`
}

// CommentResponse is a stored public or internal comment.
type CommentResponse struct {
	ID          int64     `json:"id"`
	IssueID     int64     `json:"issue_id"`
	EmployeeID  int64     `json:"employee_id"`
	RecipientID *int64    `json:"recipient_id,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActorResponse names who acted.
type ActorResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TimelineEventResponse is one timeline entry. Fields not relevant to the
// entry type are omitted.
type TimelineEventResponse struct {
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Actor     ActorResponse `json:"actor"`

	Title    string `json:"title,omitempty"`
	Priority string `json:"priority,omitempty"`

	Assignee           *ActorResponse `json:"assignee,omitempty"`
	PreviousAssigneeID *int64         `json:"previous_assignee_id,omitempty"`

	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status,omitempty"`
	Reopened       bool   `json:"reopened,omitempty"`
	Reason         string `json:"reason,omitempty"`

	CommentID   *int64 `json:"comment_id,omitempty"`
	RecipientID *int64 `json:"recipient_id,omitempty"`
	Content     string `json:"content,omitempty"`
}

// TimelineResponse is the assembled history of an issue.
type TimelineResponse struct {
	Order           string                  `json:"order"`
	Events          []TimelineEventResponse `json:"events"`
	Comments        []TimelineEventResponse `json:"comments"`
	PrivateComments []TimelineEventResponse `json:"private_comments,omitempty"`
	PrivateVisible  bool                    `json:"private_visible"`
	Warnings        []TimelineWarning       `json:"warnings,omitempty"`
}

// TimelineWarning flags a degraded part of the timeline.
type TimelineWarning struct {
	Code     string  `json:"code"`
	ActorIDs []int64 `json:"actor_ids"`
}

// SweepResponse summarises an SLA sweep.
type SweepResponse struct {
	Scanned   int `json:"scanned"`
	Escalated int `json:"escalated"`
	Failed    int `json:"failed"`
}
