// Package lifecycle owns issue status, reopen, assignment and escalation
// rules. Every operation validates fully before building a new issue
// value, so a failed call never leaves a partial change behind.
package lifecycle

import (
	"strings"
	"time"

	"github.com/spec-kit/grievance-portal/internal/domain"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util/errorutil"
)

const (
	// DefaultReopenWindow is how long a finished issue can be reopened.
	DefaultReopenWindow = 30 * 24 * time.Hour
	// DefaultEscalationThreshold is the level at which priority is forced
	// to critical.
	DefaultEscalationThreshold = 1
)

// Escalation triggers recorded in audit details.
const (
	TriggerManual    = "manual"
	TriggerSLABreach = "sla_breach"
)

// Config holds the business constants of the machine.
type Config struct {
	ReopenWindow        time.Duration
	EscalationThreshold int
}

// Transition is the result of a successful operation: the new issue
// value and the audit entries that describe it.
type Transition struct {
	Issue domain.Issue
	Audit []domain.AuditEntry
}

// Machine applies lifecycle rules. It holds no mutable state.
type Machine struct {
	reopenWindow        time.Duration
	escalationThreshold int
}

// NewMachine builds a machine, applying defaults for zero values.
func NewMachine(cfg Config) *Machine {
	m := &Machine{
		reopenWindow:        cfg.ReopenWindow,
		escalationThreshold: cfg.EscalationThreshold,
	}
	if m.reopenWindow <= 0 {
		m.reopenWindow = DefaultReopenWindow
	}
	if m.escalationThreshold <= 0 {
		m.escalationThreshold = DefaultEscalationThreshold
	}
	return m
}

// ReopenWindow returns the configured reopen window.
func (m *Machine) ReopenWindow() time.Duration {
	return m.reopenWindow
}

// Create builds a new open issue with its creation audit entry.
func (m *Machine) Create(issue domain.Issue, now time.Time) (Transition, error) {
	if issue.EmployeeID <= 0 {
		return Transition{}, apperrors.NewValidationError("employee_id required", nil)
	}
	if strings.TrimSpace(issue.Title) == "" {
		return Transition{}, apperrors.NewValidationError("title required", nil)
	}
	if issue.TypeID <= 0 || issue.SubTypeID <= 0 {
		return Transition{}, apperrors.NewValidationError("type_id and sub_type_id required", nil)
	}
	priority := domain.IssuePriorityMedium
	if issue.Priority != "" {
		p, ok := domain.ParsePriority(string(issue.Priority))
		if !ok {
			return Transition{}, apperrors.NewValidationError("unknown priority", map[string]any{"priority": issue.Priority})
		}
		priority = p
	}

	next := domain.Issue{
		TypeID:             issue.TypeID,
		SubTypeID:          issue.SubTypeID,
		Title:              strings.TrimSpace(issue.Title),
		Description:        strings.TrimSpace(issue.Description),
		Status:             domain.IssueStatusOpen,
		Priority:           priority,
		EmployeeID:         issue.EmployeeID,
		CreatedAt:          now,
		UpdatedAt:          now,
		LastStatusChangeAt: now,
		PreviouslyClosedAt: []time.Time{},
	}
	status := domain.IssueStatusOpen
	return Transition{
		Issue: next,
		Audit: []domain.AuditEntry{{
			Action:     domain.AuditActionCreated,
			EmployeeID: issue.EmployeeID,
			NewStatus:  &status,
			Details:    map[string]any{"priority": priority},
			CreatedAt:  now,
		}},
	}, nil
}

// ChangeStatus applies a staff status change. Leaving resolved or closed
// for an open state is only possible through Reopen.
func (m *Machine) ChangeStatus(issue domain.Issue, label string, actorID int64, now time.Time) (Transition, error) {
	target, escalate, ok := domain.ParseStatusLabel(label)
	if !ok {
		return Transition{}, apperrors.NewValidationError("unknown status", map[string]any{"status": label})
	}
	from := issue.Status
	if from == target && escalate {
		next := issue.Clone()
		next.UpdatedAt = now
		return m.escalate(Transition{Issue: next}, actorID, "status set to escalated", TriggerManual, now), nil
	}
	if from == target {
		return Transition{}, apperrors.NewIllegalTransition("issue already has this status", map[string]any{"status": from})
	}
	if from.IsTerminal() && !target.IsTerminal() {
		return Transition{}, apperrors.NewIllegalTransition("finished issues return to open only through reopen",
			map[string]any{"from": from, "to": target})
	}

	next := issue.Clone()
	next.Status = target
	next.LastStatusChangeAt = now
	next.UpdatedAt = now
	if target.IsTerminal() && !from.IsTerminal() {
		closedAt := now
		until := now.Add(m.reopenWindow)
		next.ClosedAt = &closedAt
		next.ReopenableUntil = &until
		next.PreviouslyClosedAt = append(next.PreviouslyClosedAt, closedAt)
	}

	prev := from
	audit := []domain.AuditEntry{{
		IssueID:        issue.ID,
		Action:         domain.AuditActionStatusChanged,
		EmployeeID:     actorID,
		PreviousStatus: &prev,
		NewStatus:      &target,
		Details:        map[string]any{"label": strings.ToLower(strings.TrimSpace(label))},
		CreatedAt:      now,
	}}
	if next.ClosedAt != nil && target.IsTerminal() {
		audit[0].Details["reopenable_until"] = *next.ReopenableUntil
	}

	tr := Transition{Issue: next, Audit: audit}
	if escalate {
		tr = m.escalate(tr, actorID, "status set to escalated", TriggerManual, now)
	}
	return tr, nil
}

// Reopen returns a resolved or closed issue to open while the reopen
// window is still running.
func (m *Machine) Reopen(issue domain.Issue, reason string, actorID int64, now time.Time) (Transition, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Transition{}, apperrors.NewValidationError("reopen reason required", nil)
	}
	if !issue.Status.IsTerminal() {
		return Transition{}, apperrors.NewNotReopenable(map[string]any{"status": issue.Status})
	}
	if issue.ReopenableUntil == nil || now.After(*issue.ReopenableUntil) {
		details := map[string]any{}
		if issue.ReopenableUntil != nil {
			details["reopenable_until"] = *issue.ReopenableUntil
		}
		return Transition{}, apperrors.NewReopenWindowExpired(details)
	}

	next := issue.Clone()
	if next.ClosedAt != nil && !containsInstant(next.PreviouslyClosedAt, *next.ClosedAt) {
		next.PreviouslyClosedAt = append(next.PreviouslyClosedAt, *next.ClosedAt)
	}
	next.ClosedAt = nil
	next.ReopenableUntil = nil
	next.Status = domain.IssueStatusOpen
	next.LastStatusChangeAt = now
	next.UpdatedAt = now

	prev := issue.Status
	open := domain.IssueStatusOpen
	return Transition{
		Issue: next,
		Audit: []domain.AuditEntry{{
			IssueID:        issue.ID,
			Action:         domain.AuditActionReopened,
			EmployeeID:     actorID,
			PreviousStatus: &prev,
			NewStatus:      &open,
			Details:        map[string]any{"reason": reason},
			CreatedAt:      now,
		}},
	}, nil
}

// Assign hands the issue to assigneeID. Finished issues may still be
// reassigned ahead of a reopen.
func (m *Machine) Assign(issue domain.Issue, assigneeID, actorID int64, now time.Time) (Transition, error) {
	if assigneeID <= 0 {
		return Transition{}, apperrors.NewValidationError("assignee_id required", nil)
	}
	if issue.IsAssignee(assigneeID) {
		return Transition{}, apperrors.NewValidationError("issue already assigned to this employee",
			map[string]any{"assignee_id": assigneeID})
	}

	next := issue.Clone()
	assignee, assigner := assigneeID, actorID
	next.AssignedTo = &assignee
	next.AssignedBy = &assigner
	next.UpdatedAt = now

	details := map[string]any{"assignee_id": assigneeID}
	if issue.AssignedTo != nil {
		details["previous_assignee_id"] = *issue.AssignedTo
	}
	return Transition{
		Issue: next,
		Audit: []domain.AuditEntry{{
			IssueID:    issue.ID,
			Action:     domain.AuditActionAssigned,
			EmployeeID: actorID,
			Details:    details,
			CreatedAt:  now,
		}},
	}, nil
}

// Escalate raises the escalation level on staff request.
func (m *Machine) Escalate(issue domain.Issue, reason string, actorID int64, now time.Time) (Transition, error) {
	if issue.Status.IsTerminal() {
		return Transition{}, apperrors.NewIllegalTransition("finished issues cannot be escalated",
			map[string]any{"status": issue.Status})
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual escalation"
	}
	next := issue.Clone()
	next.UpdatedAt = now
	return m.escalate(Transition{Issue: next}, actorID, reason, TriggerManual, now), nil
}

// EscalateForBreach escalates an issue whose SLA deadline has passed,
// at most once per breach episode: nothing happens if an escalation was
// already recorded at or after the deadline. The bool reports whether an
// escalation was applied.
func (m *Machine) EscalateForBreach(issue domain.Issue, deadline, now time.Time) (Transition, bool) {
	if issue.Status.IsTerminal() || !now.After(deadline) {
		return Transition{}, false
	}
	if issue.LastEscalatedAt != nil && !issue.LastEscalatedAt.Before(deadline) {
		return Transition{}, false
	}
	next := issue.Clone()
	next.UpdatedAt = now
	tr := m.escalate(Transition{Issue: next}, 0, "sla deadline breached", TriggerSLABreach, now)
	tr.Audit[len(tr.Audit)-1].Details["deadline"] = deadline
	return tr, true
}

// ChangePriority sets a new priority. Escalation level is left alone.
func (m *Machine) ChangePriority(issue domain.Issue, raw string, actorID int64, now time.Time) (Transition, error) {
	priority, ok := domain.ParsePriority(raw)
	if !ok {
		return Transition{}, apperrors.NewValidationError("unknown priority", map[string]any{"priority": raw})
	}
	if priority == issue.Priority {
		return Transition{}, apperrors.NewValidationError("issue already has this priority", map[string]any{"priority": priority})
	}
	next := issue.Clone()
	next.Priority = priority
	next.UpdatedAt = now
	return Transition{
		Issue: next,
		Audit: []domain.AuditEntry{{
			IssueID:    issue.ID,
			Action:     domain.AuditActionPriorityChanged,
			EmployeeID: actorID,
			Details:    map[string]any{"previous_priority": issue.Priority, "priority": priority},
			CreatedAt:  now,
		}},
	}, nil
}

// Recategorize maps an issue filed under a generic type onto a specific
// type and sub-type. The original classification is kept.
func (m *Machine) Recategorize(issue domain.Issue, typeID, subTypeID, actorID int64, now time.Time) (Transition, error) {
	if typeID <= 0 || subTypeID <= 0 {
		return Transition{}, apperrors.NewValidationError("type_id and sub_type_id required", nil)
	}
	next := issue.Clone()
	mappedType, mappedSub := typeID, subTypeID
	next.MappedTypeID = &mappedType
	next.MappedSubTypeID = &mappedSub
	next.UpdatedAt = now
	return Transition{
		Issue: next,
		Audit: []domain.AuditEntry{{
			IssueID:    issue.ID,
			Action:     domain.AuditActionRecategorized,
			EmployeeID: actorID,
			Details: map[string]any{
				"type_id":            issue.TypeID,
				"sub_type_id":        issue.SubTypeID,
				"mapped_type_id":     typeID,
				"mapped_sub_type_id": subTypeID,
			},
			CreatedAt: now,
		}},
	}, nil
}

func (m *Machine) escalate(tr Transition, actorID int64, reason, trigger string, now time.Time) Transition {
	next := tr.Issue
	escalatedAt := now
	next.EscalationLevel++
	next.LastEscalatedAt = &escalatedAt

	details := map[string]any{
		"reason":           reason,
		"trigger":          trigger,
		"escalation_level": next.EscalationLevel,
	}
	if next.EscalationLevel >= m.escalationThreshold && next.Priority != domain.IssuePriorityCritical {
		details["previous_priority"] = next.Priority
		details["priority"] = domain.IssuePriorityCritical
		next.Priority = domain.IssuePriorityCritical
	}
	tr.Issue = next
	tr.Audit = append(tr.Audit, domain.AuditEntry{
		IssueID:    next.ID,
		Action:     domain.AuditActionEscalated,
		EmployeeID: actorID,
		Details:    details,
		CreatedAt:  now,
	})
	return tr
}

func containsInstant(list []time.Time, t time.Time) bool {
	for _, v := range list {
		if v.Equal(t) {
			return true
		}
	}
	return false
}
