package timeline

import (
	"time"

	"github.com/spec-kit/grievance-portal/internal/domain"
)

// Kind names an event variant.
type Kind string

const (
	KindCreation       Kind = "creation"
	KindAssignment     Kind = "assignment"
	KindStatus         Kind = "status"
	KindComment        Kind = "comment"
	KindPrivateComment Kind = "private_comment"
)

// Actor is the attributed author of an event.
type Actor struct {
	ID   int64
	Name string
}

// Event is one entry of an issue timeline. The set of implementations is
// closed to this package.
type Event interface {
	Kind() Kind
	At() time.Time
	By() Actor
	sealed()
}

// Header carries the fields shared by every event.
type Header struct {
	OccurredAt time.Time
	Actor      Actor
}

func (h Header) At() time.Time { return h.OccurredAt }
func (h Header) By() Actor      { return h.Actor }

type CreationEvent struct {
	Header
	Title    string
	Priority domain.IssuePriority
}

type AssignmentEvent struct {
	Header
	Assignee           Actor
	PreviousAssigneeID *int64
}

// StatusEvent covers both staff status changes and reopens.
type StatusEvent struct {
	Header
	PreviousStatus domain.IssueStatus
	NewStatus      domain.IssueStatus
	Reopened       bool
	Reason         string
}

type CommentEvent struct {
	Header
	CommentID int64
	Content   string
}

type PrivateCommentEvent struct {
	Header
	CommentID   int64
	RecipientID *int64
	Content     string
}

func (CreationEvent) Kind() Kind       { return KindCreation }
func (AssignmentEvent) Kind() Kind     { return KindAssignment }
func (StatusEvent) Kind() Kind         { return KindStatus }
func (CommentEvent) Kind() Kind        { return KindComment }
func (PrivateCommentEvent) Kind() Kind { return KindPrivateComment }

func (CreationEvent) sealed()       {}
func (AssignmentEvent) sealed()     {}
func (StatusEvent) sealed()         {}
func (CommentEvent) sealed()        {}
func (PrivateCommentEvent) sealed() {}
