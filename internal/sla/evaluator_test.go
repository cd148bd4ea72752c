package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/workhours"
)

// 2024-03-04 is a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2024, 3, 4, hour, minute, 0, 0, time.UTC)
}

func newIssue(priority domain.IssuePriority, createdAt time.Time) domain.Issue {
	return domain.Issue{
		ID:        1,
		Status:    domain.IssueStatusOpen,
		Priority:  priority,
		CreatedAt: createdAt,
	}
}

func TestTier(t *testing.T) {
	tests := []struct {
		priority domain.IssuePriority
		hours    float64
	}{
		{domain.IssuePriorityCritical, 4},
		{"urgent", 4},
		{domain.IssuePriorityHigh, 24},
		{domain.IssuePriorityMedium, 72},
		{domain.IssuePriorityLow, 168},
		{"whatever", 72},
		{"", 72},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			assert.Equal(t, tt.hours, Tier(tt.priority).Hours())
		})
	}
}

// Days are 09:00-18:00, 9 working hours each: 0.5 + 9 + 9 + 5.5.
func TestDeadlineFridayEvening(t *testing.T) {
	e := NewEvaluator(workhours.Default())
	created := time.Date(2024, 3, 1, 17, 30, 0, 0, time.UTC)

	got := e.Deadline(newIssue(domain.IssuePriorityHigh, created))
	assert.Equal(t, time.Date(2024, 3, 6, 14, 30, 0, 0, time.UTC), got)
}

func TestStatusTransitionsOverTime(t *testing.T) {
	e := NewEvaluator(workhours.Default())
	// Critical: 4h tier, deadline 13:00, warning once 48 minutes or less remain.
	issue := newIssue(domain.IssuePriorityCritical, monday(9, 0))

	tests := []struct {
		name string
		now  time.Time
		want Status
	}{
		{"fresh", monday(9, 5), StatusMet},
		{"just before warning", monday(12, 11), StatusMet},
		{"warning boundary", monday(12, 12), StatusWarning},
		{"at deadline", monday(13, 0), StatusWarning},
		{"one second late", monday(13, 0).Add(time.Second), StatusBreached},
		{"next week", monday(13, 0).AddDate(0, 0, 7), StatusBreached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Status(issue, tt.now))
		})
	}
}

func TestStatusTerminalAlwaysMet(t *testing.T) {
	e := NewEvaluator(nil)
	created := monday(9, 0)

	for _, status := range []domain.IssueStatus{domain.IssueStatusResolved, domain.IssueStatusClosed} {
		issue := newIssue(domain.IssuePriorityCritical, created)
		issue.Status = status
		for _, offset := range []time.Duration{0, time.Hour, 24 * time.Hour, 365 * 24 * time.Hour, 50 * 365 * 24 * time.Hour} {
			assert.Equal(t, StatusMet, e.Status(issue, created.Add(offset)), "status=%s offset=%s", status, offset)
			assert.Equal(t, StatusMet, e.Evaluate(issue, created.Add(offset)).Status)
		}
	}
}

func TestRemainingSigned(t *testing.T) {
	e := NewEvaluator(workhours.Default())
	issue := newIssue(domain.IssuePriorityCritical, monday(9, 0))

	assert.Equal(t, 3*time.Hour, e.Remaining(issue, monday(10, 0)))
	assert.Equal(t, time.Duration(0), e.Remaining(issue, monday(13, 0)))
	// Overdue counts working time only: 13:00-18:00 Monday plus 1h Tuesday.
	assert.Equal(t, -6*time.Hour, e.Remaining(issue, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)))
}

func TestRemainingFrozenAtClosure(t *testing.T) {
	e := NewEvaluator(workhours.Default())
	issue := newIssue(domain.IssuePriorityCritical, monday(9, 0))
	closedAt := monday(11, 30)
	issue.Status = domain.IssueStatusResolved
	issue.ClosedAt = &closedAt

	report := e.Evaluate(issue, monday(9, 0).AddDate(0, 1, 0))
	assert.Equal(t, StatusMet, report.Status)
	assert.Equal(t, 90*time.Minute, report.Remaining)
	assert.Equal(t, 1.5, report.RemainingHours)
	assert.Equal(t, 4.0, report.TierHours)
}

func TestEvaluateMatchesIndividualCalls(t *testing.T) {
	e := NewEvaluator(workhours.Default())
	issue := newIssue(domain.IssuePriorityHigh, monday(16, 45))
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

	report := e.Evaluate(issue, now)
	assert.Equal(t, e.Status(issue, now), report.Status)
	assert.Equal(t, e.Deadline(issue), report.Deadline)
	assert.Equal(t, e.Remaining(issue, now), report.Remaining)
	assert.False(t, e.Breached(issue, now))
}
