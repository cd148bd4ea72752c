package domain

import "time"

// Comment is a public message on an issue thread.
type Comment struct {
	ID         int64
	IssueID    int64
	EmployeeID int64
	Content    string
	CreatedAt  time.Time
}

// InternalComment is a staff-only message. It is stored apart from
// Comment so the two threads are never filtered out of one list.
type InternalComment struct {
	ID          int64
	IssueID     int64
	EmployeeID  int64
	RecipientID *int64
	Content     string
	CreatedAt   time.Time
}
