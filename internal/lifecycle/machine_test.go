package lifecycle

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/grievance-portal/internal/domain"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util/errorutil"
)

const (
	creatorID  int64 = 10
	agentID    int64 = 20
	managerID  int64 = 30
	otherAgent int64 = 40
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func openIssue(t *testing.T, m *Machine) domain.Issue {
	t.Helper()
	tr, err := m.Create(domain.Issue{
		EmployeeID: creatorID,
		TypeID:     1,
		SubTypeID:  2,
		Title:      "  Broken badge reader  ",
		Priority:   "high",
	}, t0)
	require.NoError(t, err)
	tr.Issue.ID = 7
	tr.Issue.Version = 1
	return tr.Issue
}

func closedIssue(t *testing.T, m *Machine, at time.Time) domain.Issue {
	t.Helper()
	tr, err := m.ChangeStatus(openIssue(t, m), "closed", agentID, at)
	require.NoError(t, err)
	return tr.Issue
}

func TestCreate(t *testing.T) {
	m := NewMachine(Config{})
	tr, err := m.Create(domain.Issue{EmployeeID: creatorID, TypeID: 1, SubTypeID: 2, Title: " Leak ", Priority: "urgent"}, t0)
	require.NoError(t, err)

	assert.Equal(t, domain.IssueStatusOpen, tr.Issue.Status)
	assert.Equal(t, domain.IssuePriorityCritical, tr.Issue.Priority)
	assert.Equal(t, "Leak", tr.Issue.Title)
	assert.Zero(t, tr.Issue.EscalationLevel)
	assert.Nil(t, tr.Issue.ClosedAt)
	assert.Empty(t, tr.Issue.PreviouslyClosedAt)
	require.Len(t, tr.Audit, 1)
	assert.Equal(t, domain.AuditActionCreated, tr.Audit[0].Action)
}

func TestCreateValidation(t *testing.T) {
	m := NewMachine(Config{})
	tests := []struct {
		name  string
		issue domain.Issue
	}{
		{"missing creator", domain.Issue{TypeID: 1, SubTypeID: 1, Title: "x"}},
		{"missing title", domain.Issue{EmployeeID: 1, TypeID: 1, SubTypeID: 1, Title: "   "}},
		{"missing type", domain.Issue{EmployeeID: 1, Title: "x"}},
		{"bad priority", domain.Issue{EmployeeID: 1, TypeID: 1, SubTypeID: 1, Title: "x", Priority: "meh"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(tt.issue, t0)
			assert.True(t, apperrors.Is(err, apperrors.CodeValidation), "got %v", err)
		})
	}
}

func TestChangeStatusIntoClosedSetsClosure(t *testing.T) {
	m := NewMachine(Config{})
	issue := openIssue(t, m)
	at := t0.Add(3 * time.Hour)

	tr, err := m.ChangeStatus(issue, "closed", agentID, at)
	require.NoError(t, err)

	next := tr.Issue
	assert.Equal(t, domain.IssueStatusClosed, next.Status)
	require.NotNil(t, next.ClosedAt)
	assert.Equal(t, at, *next.ClosedAt)
	require.NotNil(t, next.ReopenableUntil)
	assert.Equal(t, at.Add(30*24*time.Hour), *next.ReopenableUntil)
	assert.Equal(t, []time.Time{at}, next.PreviouslyClosedAt)
	assert.Equal(t, at, next.LastStatusChangeAt)

	require.Len(t, tr.Audit, 1)
	entry := tr.Audit[0]
	assert.Equal(t, domain.AuditActionStatusChanged, entry.Action)
	assert.Equal(t, domain.IssueStatusOpen, *entry.PreviousStatus)
	assert.Equal(t, domain.IssueStatusClosed, *entry.NewStatus)
	assert.Equal(t, agentID, entry.EmployeeID)
}

func TestChangeStatusRules(t *testing.T) {
	m := NewMachine(Config{})

	tests := []struct {
		name  string
		setup func(t *testing.T) domain.Issue
		label string
		code  string
	}{
		{"unknown label", func(t *testing.T) domain.Issue { return openIssue(t, m) }, "archived", apperrors.CodeValidation},
		{"same status", func(t *testing.T) domain.Issue { return openIssue(t, m) }, "open", apperrors.CodeIllegalTransition},
		{"pending alias is open", func(t *testing.T) domain.Issue { return openIssue(t, m) }, "pending", apperrors.CodeIllegalTransition},
		{"closed to open", func(t *testing.T) domain.Issue { return closedIssue(t, m, t0) }, "open", apperrors.CodeIllegalTransition},
		{"closed to in progress", func(t *testing.T) domain.Issue { return closedIssue(t, m, t0) }, "in_progress", apperrors.CodeIllegalTransition},
		{"closed to escalated", func(t *testing.T) domain.Issue { return closedIssue(t, m, t0) }, "escalated", apperrors.CodeIllegalTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := tt.setup(t)
			before := issue.Clone()
			_, err := m.ChangeStatus(issue, tt.label, agentID, t0.Add(time.Hour))
			assert.True(t, apperrors.Is(err, tt.code), "got %v", err)
			assert.Equal(t, before, issue)
		})
	}
}

func TestChangeStatusLateralMoves(t *testing.T) {
	m := NewMachine(Config{})
	issue := openIssue(t, m)

	tr, err := m.ChangeStatus(issue, "IN_PROGRESS", agentID, t0.Add(time.Minute))
	require.NoError(t, err)
	tr, err = m.ChangeStatus(tr.Issue, "open", agentID, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusOpen, tr.Issue.Status)
	assert.Nil(t, tr.Issue.ClosedAt)
}

func TestResolvedToClosedKeepsOriginalClosure(t *testing.T) {
	m := NewMachine(Config{})
	resolvedAt := t0.Add(time.Hour)
	tr, err := m.ChangeStatus(openIssue(t, m), "resolved", agentID, resolvedAt)
	require.NoError(t, err)

	tr, err = m.ChangeStatus(tr.Issue, "closed", managerID, resolvedAt.Add(48*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, domain.IssueStatusClosed, tr.Issue.Status)
	assert.Equal(t, resolvedAt, *tr.Issue.ClosedAt)
	assert.Equal(t, resolvedAt.Add(DefaultReopenWindow), *tr.Issue.ReopenableUntil)
	assert.Len(t, tr.Issue.PreviouslyClosedAt, 1)
}

func TestEscalatedLabelEscalates(t *testing.T) {
	m := NewMachine(Config{})
	tr, err := m.ChangeStatus(openIssue(t, m), "Escalated", agentID, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, domain.IssueStatusInProgress, tr.Issue.Status)
	assert.Equal(t, 1, tr.Issue.EscalationLevel)
	assert.Equal(t, domain.IssuePriorityCritical, tr.Issue.Priority)
	require.Len(t, tr.Audit, 2)
	assert.Equal(t, domain.AuditActionStatusChanged, tr.Audit[0].Action)
	assert.Equal(t, domain.AuditActionEscalated, tr.Audit[1].Action)
}

func TestEscalatedLabelOnInProgressIssueOnlyEscalates(t *testing.T) {
	m := NewMachine(Config{})
	issue := openIssue(t, m)
	issue.Priority = domain.IssuePriorityLow
	tr, err := m.ChangeStatus(issue, "in_progress", agentID, t0.Add(time.Minute))
	require.NoError(t, err)
	changedAt := tr.Issue.LastStatusChangeAt

	tr, err = m.ChangeStatus(tr.Issue, "escalated", agentID, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, domain.IssueStatusInProgress, tr.Issue.Status)
	assert.Equal(t, changedAt, tr.Issue.LastStatusChangeAt)
	assert.Equal(t, 1, tr.Issue.EscalationLevel)
	assert.Equal(t, domain.IssuePriorityCritical, tr.Issue.Priority)
	require.Len(t, tr.Audit, 1)
	assert.Equal(t, domain.AuditActionEscalated, tr.Audit[0].Action)
}

func TestReopen(t *testing.T) {
	m := NewMachine(Config{})
	closedAt := t0.Add(time.Hour)
	issue := closedIssue(t, m, closedAt)

	tr, err := m.Reopen(issue, "  still broken ", creatorID, closedAt.Add(24*time.Hour))
	require.NoError(t, err)

	next := tr.Issue
	assert.Equal(t, domain.IssueStatusOpen, next.Status)
	assert.Nil(t, next.ClosedAt)
	assert.Nil(t, next.ReopenableUntil)
	assert.Equal(t, []time.Time{closedAt}, next.PreviouslyClosedAt)
	require.Len(t, tr.Audit, 1)
	assert.Equal(t, domain.AuditActionReopened, tr.Audit[0].Action)
	assert.Equal(t, "still broken", tr.Audit[0].Details["reason"])
	assert.Equal(t, domain.IssueStatusClosed, *tr.Audit[0].PreviousStatus)
}

func TestReopenFailuresLeaveIssueUnchanged(t *testing.T) {
	m := NewMachine(Config{})
	closedAt := t0.Add(time.Hour)
	until := closedAt.Add(DefaultReopenWindow)

	tests := []struct {
		name   string
		issue  func(t *testing.T) domain.Issue
		reason string
		now    time.Time
		code   string
	}{
		{"empty reason", func(t *testing.T) domain.Issue { return closedIssue(t, m, closedAt) }, "  ", closedAt.Add(time.Hour), apperrors.CodeValidation},
		{"open issue", func(t *testing.T) domain.Issue { return openIssue(t, m) }, "why", closedAt, apperrors.CodeNotReopenable},
		{"in progress issue", func(t *testing.T) domain.Issue {
			tr, err := m.ChangeStatus(openIssue(t, m), "in_progress", agentID, closedAt)
			require.NoError(t, err)
			return tr.Issue
		}, "why", closedAt, apperrors.CodeNotReopenable},
		{"one second after window", func(t *testing.T) domain.Issue { return closedIssue(t, m, closedAt) }, "why", until.Add(time.Second), apperrors.CodeReopenWindowExpired},
		{"missing window", func(t *testing.T) domain.Issue {
			issue := closedIssue(t, m, closedAt)
			issue.ReopenableUntil = nil
			return issue
		}, "why", closedAt, apperrors.CodeReopenWindowExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := tt.issue(t)
			before := issue.Clone()
			_, err := m.Reopen(issue, tt.reason, creatorID, tt.now)
			assert.True(t, apperrors.Is(err, tt.code), "got %v", err)
			assert.Equal(t, before, issue)
		})
	}
}

func TestReopenAtWindowEdgeSucceeds(t *testing.T) {
	m := NewMachine(Config{ReopenWindow: 72 * time.Hour})
	closedAt := t0.Add(time.Hour)
	issue := closedIssue(t, m, closedAt)

	_, err := m.Reopen(issue, "edge", creatorID, closedAt.Add(72*time.Hour))
	assert.NoError(t, err)
	_, err = m.Reopen(issue, "edge", creatorID, closedAt.Add(72*time.Hour+time.Second))
	assert.True(t, apperrors.Is(err, apperrors.CodeReopenWindowExpired))
}

func TestTwoClosuresRecordTwoEntries(t *testing.T) {
	m := NewMachine(Config{})
	first := t0.Add(time.Hour)
	second := t0.Add(10 * time.Hour)

	issue := closedIssue(t, m, first)
	tr, err := m.Reopen(issue, "not fixed", creatorID, first.Add(time.Hour))
	require.NoError(t, err)
	tr, err = m.ChangeStatus(tr.Issue, "closed", agentID, second)
	require.NoError(t, err)

	assert.Equal(t, []time.Time{first, second}, tr.Issue.PreviouslyClosedAt)
	assert.Equal(t, second, *tr.Issue.ClosedAt)
}

func TestReopenRecordsLegacyClosure(t *testing.T) {
	m := NewMachine(Config{})
	closedAt := t0.Add(time.Hour)
	until := closedAt.Add(time.Hour)
	issue := domain.Issue{ID: 3, Status: domain.IssueStatusResolved, ClosedAt: &closedAt, ReopenableUntil: &until}

	tr, err := m.Reopen(issue, "legacy", creatorID, closedAt)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{closedAt}, tr.Issue.PreviouslyClosedAt)
}

func TestAssign(t *testing.T) {
	m := NewMachine(Config{})
	issue := openIssue(t, m)

	tr, err := m.Assign(issue, agentID, managerID, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, tr.Issue.IsAssignee(agentID))
	assert.True(t, tr.Issue.IsAssigner(managerID))
	assert.Nil(t, issue.AssignedTo)

	tr, err = m.Assign(tr.Issue, otherAgent, managerID, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, agentID, tr.Audit[0].Details["previous_assignee_id"])

	_, err = m.Assign(tr.Issue, otherAgent, managerID, t0.Add(3*time.Minute))
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
	_, err = m.Assign(tr.Issue, 0, managerID, t0.Add(3*time.Minute))
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestAssignClosedIssue(t *testing.T) {
	m := NewMachine(Config{})
	tr, err := m.Assign(closedIssue(t, m, t0), agentID, managerID, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusClosed, tr.Issue.Status)
}

func TestEscalateThreshold(t *testing.T) {
	m := NewMachine(Config{EscalationThreshold: 2})
	issue := openIssue(t, m)

	tr, err := m.Escalate(issue, "", managerID, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Issue.EscalationLevel)
	assert.Equal(t, domain.IssuePriorityHigh, tr.Issue.Priority)

	tr, err = m.Escalate(tr.Issue, "director asked", managerID, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, tr.Issue.EscalationLevel)
	assert.Equal(t, domain.IssuePriorityCritical, tr.Issue.Priority)
	assert.Equal(t, "director asked", tr.Audit[0].Details["reason"])

	_, err = m.Escalate(closedIssue(t, m, t0), "late", managerID, t0.Add(time.Hour))
	assert.True(t, apperrors.Is(err, apperrors.CodeIllegalTransition))
}

func TestEscalateForBreachOncePerEpisode(t *testing.T) {
	m := NewMachine(Config{})
	issue := openIssue(t, m)
	deadline := t0.Add(24 * time.Hour)

	_, ok := m.EscalateForBreach(issue, deadline, deadline)
	assert.False(t, ok, "not yet breached at the deadline itself")

	tr, ok := m.EscalateForBreach(issue, deadline, deadline.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, 1, tr.Issue.EscalationLevel)
	assert.Equal(t, domain.IssuePriorityCritical, tr.Issue.Priority)
	assert.Equal(t, TriggerSLABreach, tr.Audit[0].Details["trigger"])
	assert.Equal(t, int64(0), tr.Audit[0].EmployeeID)

	for _, later := range []time.Duration{time.Hour, 24 * time.Hour, 30 * 24 * time.Hour} {
		_, again := m.EscalateForBreach(tr.Issue, deadline, deadline.Add(later))
		assert.False(t, again)
	}

	// A new, later deadline is a new episode.
	_, ok = m.EscalateForBreach(tr.Issue, deadline.Add(48*time.Hour), deadline.Add(49*time.Hour))
	assert.True(t, ok)
}

func TestEscalateForBreachSkipsFinishedIssues(t *testing.T) {
	m := NewMachine(Config{})
	issue := closedIssue(t, m, t0)
	_, ok := m.EscalateForBreach(issue, t0, t0.Add(365*24*time.Hour))
	assert.False(t, ok)
}

func TestChangePriorityAndRecategorize(t *testing.T) {
	m := NewMachine(Config{})
	issue := openIssue(t, m)

	tr, err := m.ChangePriority(issue, "low", agentID, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.IssuePriorityLow, tr.Issue.Priority)
	_, err = m.ChangePriority(tr.Issue, "low", agentID, t0.Add(time.Hour))
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	tr, err = m.Recategorize(tr.Issue, 5, 9, agentID, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(5), *tr.Issue.MappedTypeID)
	assert.Equal(t, int64(9), *tr.Issue.MappedSubTypeID)
	assert.Equal(t, int64(1), tr.Issue.TypeID)
}

func TestEscalationLevelNeverDecreases(t *testing.T) {
	m := NewMachine(Config{EscalationThreshold: 3})
	rng := rand.New(rand.NewSource(7))
	issue := openIssue(t, m)
	now := t0

	for i := 0; i < 400; i++ {
		now = now.Add(time.Duration(rng.Intn(300)+1) * time.Minute)
		var (
			tr  Transition
			err error
			ok  = true
		)
		switch rng.Intn(7) {
		case 0:
			tr, err = m.ChangeStatus(issue, []string{"open", "in_progress", "resolved", "closed", "pending", "escalated"}[rng.Intn(6)], agentID, now)
		case 1:
			tr, err = m.Reopen(issue, "again", creatorID, now)
		case 2:
			tr, err = m.Assign(issue, int64(rng.Intn(3)+20), managerID, now)
		case 3:
			tr, err = m.Escalate(issue, "poke", managerID, now)
		case 4:
			tr, ok = m.EscalateForBreach(issue, now.Add(-time.Duration(rng.Intn(100))*time.Hour), now)
		case 5:
			tr, err = m.ChangePriority(issue, []string{"low", "medium", "high", "urgent"}[rng.Intn(4)], agentID, now)
		case 6:
			tr, err = m.Recategorize(issue, 3, 4, agentID, now)
		}
		if err != nil || !ok {
			continue
		}
		require.GreaterOrEqual(t, tr.Issue.EscalationLevel, issue.EscalationLevel)
		require.Equal(t, tr.Issue.ClosedAt != nil, tr.Issue.Status.IsTerminal(), "closedAt invariant at step %d", i)
		issue = tr.Issue
	}
}
