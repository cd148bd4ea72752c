package domain

import (
	"strings"
	"time"
)

// IssueStatus enumerates lifecycle states for issues.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusClosed     IssueStatus = "closed"
)

// Transient labels accepted on input; never persisted.
const (
	statusLabelPending   = "pending"
	statusLabelEscalated = "escalated"
)

// IssuePriority enumerates SLA urgency.
type IssuePriority string

const (
	IssuePriorityLow      IssuePriority = "low"
	IssuePriorityMedium   IssuePriority = "medium"
	IssuePriorityHigh     IssuePriority = "high"
	IssuePriorityCritical IssuePriority = "critical"
)

const priorityLabelUrgent = "urgent"

// IsTerminal reports whether the status counts as finished work.
func (s IssueStatus) IsTerminal() bool {
	return s == IssueStatusResolved || s == IssueStatusClosed
}

// Valid reports whether s is one of the four stored statuses.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusClosed:
		return true
	}
	return false
}

// ParseStatusLabel resolves a requested status label. The transient
// labels map onto stored statuses: "pending" is open, "escalated" is
// in_progress with escalate set.
func ParseStatusLabel(raw string) (status IssueStatus, escalate bool, ok bool) {
	label := strings.ToLower(strings.TrimSpace(raw))
	switch label {
	case statusLabelPending:
		return IssueStatusOpen, false, true
	case statusLabelEscalated:
		return IssueStatusInProgress, true, true
	}
	status = IssueStatus(label)
	return status, false, status.Valid()
}

// Valid reports whether p is a stored priority.
func (p IssuePriority) Valid() bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh, IssuePriorityCritical:
		return true
	}
	return false
}

// ParsePriority accepts stored priorities plus the "urgent" alias.
func ParsePriority(raw string) (IssuePriority, bool) {
	label := strings.ToLower(strings.TrimSpace(raw))
	if label == priorityLabelUrgent {
		return IssuePriorityCritical, true
	}
	p := IssuePriority(label)
	return p, p.Valid()
}

// Issue is the aggregate root for a filed grievance.
type Issue struct {
	ID              int64
	TypeID          int64
	SubTypeID       int64
	MappedTypeID    *int64
	MappedSubTypeID *int64
	Title           string
	Description     string
	Status          IssueStatus
	Priority        IssuePriority
	EscalationLevel int
	LastEscalatedAt *time.Time
	EmployeeID      int64
	AssignedTo      *int64
	AssignedBy      *int64

	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastStatusChangeAt time.Time
	ClosedAt           *time.Time
	ReopenableUntil    *time.Time
	PreviouslyClosedAt []time.Time

	Version int64
}

// Clone returns a deep copy so transitions never alias the caller's record.
func (i Issue) Clone() Issue {
	out := i
	out.MappedTypeID = cloneInt64(i.MappedTypeID)
	out.MappedSubTypeID = cloneInt64(i.MappedSubTypeID)
	out.AssignedTo = cloneInt64(i.AssignedTo)
	out.AssignedBy = cloneInt64(i.AssignedBy)
	out.LastEscalatedAt = cloneTime(i.LastEscalatedAt)
	out.ClosedAt = cloneTime(i.ClosedAt)
	out.ReopenableUntil = cloneTime(i.ReopenableUntil)
	if i.PreviouslyClosedAt != nil {
		out.PreviouslyClosedAt = make([]time.Time, len(i.PreviouslyClosedAt))
		copy(out.PreviouslyClosedAt, i.PreviouslyClosedAt)
	}
	return out
}

// IsAssignee reports whether employeeID currently owns the issue.
func (i Issue) IsAssignee(employeeID int64) bool {
	return i.AssignedTo != nil && *i.AssignedTo == employeeID
}

// IsAssigner reports whether employeeID made the current assignment.
func (i Issue) IsAssigner(employeeID int64) bool {
	return i.AssignedBy != nil && *i.AssignedBy == employeeID
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
