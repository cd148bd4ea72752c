package events

import (
	"time"

	"github.com/spec-kit/grievance-portal/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIssueCreated       EventType = "issue_created"
	EventIssueStatusChanged EventType = "issue_status_changed"
	EventIssueAssigned      EventType = "issue_assigned"
	EventIssueReopened      EventType = "issue_reopened"
	EventIssueEscalated     EventType = "issue_escalated"
	EventIssueCommentAdded  EventType = "issue_comment_added"
)

// Event represents a domain event emitted by services. ActorID is zero
// for system actions.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	IssueID   int64     `json:"issue_id"`
	ActorID   int64     `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// IssueCreatedPayload payload.
type IssueCreatedPayload struct {
	Priority domain.IssuePriority `json:"priority"`
	Title    string               `json:"title"`
}

// IssueStatusChangedPayload payload.
type IssueStatusChangedPayload struct {
	OldStatus domain.IssueStatus `json:"old_status"`
	NewStatus domain.IssueStatus `json:"new_status"`
}

// IssueAssignedPayload payload.
type IssueAssignedPayload struct {
	AssigneeID         int64  `json:"assignee_id"`
	PreviousAssigneeID *int64 `json:"previous_assignee_id,omitempty"`
}

// IssueReopenedPayload payload.
type IssueReopenedPayload struct {
	Reason         string             `json:"reason"`
	PreviousStatus domain.IssueStatus `json:"previous_status"`
}

// IssueEscalatedPayload payload.
type IssueEscalatedPayload struct {
	Level    int                  `json:"level"`
	Priority domain.IssuePriority `json:"priority"`
	Trigger  string               `json:"trigger"`
}

// IssueCommentAddedPayload payload.
type IssueCommentAddedPayload struct {
	CommentID   int64  `json:"comment_id"`
	Internal    bool   `json:"internal"`
	BodyPreview string `json:"body_preview"`
}
