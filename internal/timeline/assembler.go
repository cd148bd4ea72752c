// Package timeline rebuilds the display history of one issue from its
// creation record, audit trail and comment threads.
package timeline

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/domain"
)

const (
	// UnknownUserName replaces names that could not be resolved.
	UnknownUserName = "Unknown User"
	// SystemName labels events recorded without a human actor.
	SystemName = "System"
)

// NameResolver turns employee ids into display names.
type NameResolver interface {
	ResolveActorName(ctx context.Context, employeeID int64) (string, error)
}

// Order selects the direction of the merged sequence.
type Order string

const (
	OrderDesc Order = "desc"
	OrderAsc  Order = "asc"
)

// ParseOrder accepts "asc" or "desc"; empty means desc.
func ParseOrder(raw string) (Order, bool) {
	switch Order(raw) {
	case "", OrderDesc:
		return OrderDesc, true
	case OrderAsc:
		return OrderAsc, true
	}
	return "", false
}

// Viewer is the employee asking for the timeline.
type Viewer struct {
	ID         int64
	Privileged bool
}

// Input is the raw material for one assembly.
type Input struct {
	Issue    domain.Issue
	Audit    []domain.AuditEntry
	Comments []domain.Comment
	Internal []domain.InternalComment
}

// Result is an assembled timeline.
type Result struct {
	Events   []Event
	Comments []CommentEvent
	Private  []PrivateCommentEvent
	// PrivateVisible reports whether the viewer may see the private thread.
	PrivateVisible bool
	// Degraded lists actor ids whose names fell back to UnknownUserName.
	Degraded []int64
}

// Assembler builds timelines. Safe for concurrent use.
type Assembler struct {
	names  NameResolver
	logger *zap.Logger
}

func NewAssembler(names NameResolver, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{names: names, logger: logger}
}

// CanViewPrivate reports whether viewer may read the private thread of
// issue.
func CanViewPrivate(issue domain.Issue, viewer Viewer) bool {
	return viewer.Privileged || issue.IsAssignee(viewer.ID) || issue.IsAssigner(viewer.ID)
}

// Assemble merges every source into one sequence. It never fails: names
// that cannot be resolved degrade to UnknownUserName.
func (a *Assembler) Assemble(ctx context.Context, in Input, viewer Viewer, order Order) Result {
	names := &nameCache{resolver: a.names, resolved: map[int64]string{}}
	issue := in.Issue

	events := []Event{CreationEvent{
		Header:   names.header(ctx, issue.EmployeeID, issue.CreatedAt),
		Title:    issue.Title,
		Priority: issue.Priority,
	}}

	audit := slices.Clone(in.Audit)
	slices.SortStableFunc(audit, func(x, y domain.AuditEntry) int {
		return compareAt(x.CreatedAt, x.ID, y.CreatedAt, y.ID)
	})
	for _, entry := range audit {
		if ev, ok := auditEvent(ctx, names, entry); ok {
			events = append(events, ev)
		}
	}

	comments := slices.Clone(in.Comments)
	slices.SortStableFunc(comments, func(x, y domain.Comment) int {
		return compareAt(x.CreatedAt, x.ID, y.CreatedAt, y.ID)
	})
	result := Result{Comments: make([]CommentEvent, 0, len(comments))}
	for _, c := range comments {
		ev := CommentEvent{Header: names.header(ctx, c.EmployeeID, c.CreatedAt), CommentID: c.ID, Content: c.Content}
		result.Comments = append(result.Comments, ev)
		events = append(events, ev)
	}

	result.PrivateVisible = CanViewPrivate(issue, viewer)
	result.Private = []PrivateCommentEvent{}
	if result.PrivateVisible {
		internal := slices.Clone(in.Internal)
		slices.SortStableFunc(internal, func(x, y domain.InternalComment) int {
			return compareAt(x.CreatedAt, x.ID, y.CreatedAt, y.ID)
		})
		for _, c := range internal {
			if !betweenAssigneeAndAssigner(issue, c) {
				continue
			}
			ev := PrivateCommentEvent{
				Header:      names.header(ctx, c.EmployeeID, c.CreatedAt),
				CommentID:   c.ID,
				RecipientID: c.RecipientID,
				Content:     c.Content,
			}
			result.Private = append(result.Private, ev)
			events = append(events, ev)
		}
	}

	sortByTime(events, order)
	sortByTime(result.Comments, order)
	sortByTime(result.Private, order)
	result.Events = events
	result.Degraded = names.degradedIDs()

	if len(result.Degraded) > 0 {
		a.logger.Warn("timeline actor lookup degraded",
			zap.Int64("issue_id", issue.ID),
			zap.Int64s("employee_ids", result.Degraded))
	}
	return result
}

func auditEvent(ctx context.Context, names *nameCache, entry domain.AuditEntry) (Event, bool) {
	switch entry.Action {
	case domain.AuditActionAssigned:
		assigneeID, ok := detailInt64(entry.Details, "assignee_id")
		if !ok {
			return nil, false
		}
		ev := AssignmentEvent{
			Header:   names.header(ctx, entry.EmployeeID, entry.CreatedAt),
			Assignee: Actor{ID: assigneeID, Name: names.name(ctx, assigneeID)},
		}
		if prev, ok := detailInt64(entry.Details, "previous_assignee_id"); ok {
			ev.PreviousAssigneeID = &prev
		}
		return ev, true
	case domain.AuditActionStatusChanged, domain.AuditActionReopened:
		ev := StatusEvent{
			Header:   names.header(ctx, entry.EmployeeID, entry.CreatedAt),
			Reopened: entry.Action == domain.AuditActionReopened,
		}
		if entry.PreviousStatus != nil {
			ev.PreviousStatus = *entry.PreviousStatus
		}
		if entry.NewStatus != nil {
			ev.NewStatus = *entry.NewStatus
		}
		if reason, ok := entry.Details["reason"].(string); ok {
			ev.Reason = reason
		}
		return ev, true
	}
	return nil, false
}

// betweenAssigneeAndAssigner keeps messages written by one side of the
// current assignment and, when addressed, sent to the other side.
func betweenAssigneeAndAssigner(issue domain.Issue, c domain.InternalComment) bool {
	if issue.AssignedTo == nil {
		return false
	}
	var other *int64
	switch {
	case issue.IsAssignee(c.EmployeeID):
		other = issue.AssignedBy
	case issue.IsAssigner(c.EmployeeID):
		other = issue.AssignedTo
	default:
		return false
	}
	if c.RecipientID == nil {
		return true
	}
	return other != nil && *other == *c.RecipientID
}

type timed interface{ At() time.Time }

// sortByTime orders by timestamp only. The sort is stable, so equal
// timestamps keep the order in which events were collected.
func sortByTime[E timed](events []E, order Order) {
	slices.SortStableFunc(events, func(x, y E) int {
		c := x.At().Compare(y.At())
		if order == OrderAsc {
			return c
		}
		return -c
	})
}

func compareAt(ta time.Time, ida int64, tb time.Time, idb int64) int {
	if c := ta.Compare(tb); c != 0 {
		return c
	}
	return cmp.Compare(ida, idb)
}

// detailInt64 reads an id from audit details, which hold int64 values
// when built in memory and float64 or json.Number after a JSONB round trip.
func detailInt64(details map[string]any, key string) (int64, bool) {
	switch v := details[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

type nameCache struct {
	resolver NameResolver
	resolved map[int64]string
	degraded []int64
}

func (n *nameCache) header(ctx context.Context, employeeID int64, at time.Time) Header {
	return Header{OccurredAt: at, Actor: Actor{ID: employeeID, Name: n.name(ctx, employeeID)}}
}

func (n *nameCache) name(ctx context.Context, employeeID int64) string {
	if employeeID == 0 {
		return SystemName
	}
	if name, ok := n.resolved[employeeID]; ok {
		return name
	}
	name := UnknownUserName
	if n.resolver != nil {
		if got, err := n.resolver.ResolveActorName(ctx, employeeID); err == nil && got != "" {
			name = got
		}
	}
	if name == UnknownUserName {
		n.degraded = append(n.degraded, employeeID)
	}
	n.resolved[employeeID] = name
	return name
}

func (n *nameCache) degradedIDs() []int64 {
	if len(n.degraded) == 0 {
		return nil
	}
	out := slices.Clone(n.degraded)
	slices.Sort(out)
	return out
}
