// Package sla evaluates issues against their priority's working-time
// resolution target.
package sla

import (
	"time"

	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/workhours"
)

// Status is the SLA state of an issue at an instant.
type Status string

const (
	StatusMet      Status = "met"
	StatusWarning  Status = "warning"
	StatusBreached Status = "breached"
)

// Resolution targets in working hours. Fixed business policy.
var tierHours = map[domain.IssuePriority]int{
	domain.IssuePriorityCritical: 4,
	domain.IssuePriorityHigh:     24,
	domain.IssuePriorityMedium:   72,
	domain.IssuePriorityLow:      168,
}

// warningFraction is the tail of the tier window reported as a warning.
const warningFraction = 0.2

// Report is the display shape of an SLA evaluation.
type Report struct {
	Status         Status
	Deadline       time.Time
	Remaining      time.Duration
	RemainingHours float64
	TierHours      float64
}

// Evaluator computes deadlines and SLA status. It never mutates issues
// and is safe for concurrent use.
type Evaluator struct {
	clock *workhours.Clock
}

// NewEvaluator builds an evaluator over the given business calendar.
func NewEvaluator(clock *workhours.Clock) *Evaluator {
	if clock == nil {
		clock = workhours.Default()
	}
	return &Evaluator{clock: clock}
}

// Tier returns the working-time allowance for a priority. Unknown
// priorities fall back to the medium tier.
func Tier(p domain.IssuePriority) time.Duration {
	if normalized, ok := domain.ParsePriority(string(p)); ok {
		p = normalized
	}
	hours, ok := tierHours[p]
	if !ok {
		hours = tierHours[domain.IssuePriorityMedium]
	}
	return time.Duration(hours) * time.Hour
}

// Deadline is CreatedAt advanced by the priority tier in working time.
func (e *Evaluator) Deadline(issue domain.Issue) time.Time {
	return e.clock.AddWorkingDuration(issue.CreatedAt, Tier(issue.Priority))
}

// Status reports the SLA state at now. Resolved and closed issues are
// always met.
func (e *Evaluator) Status(issue domain.Issue, now time.Time) Status {
	if issue.Status.IsTerminal() {
		return StatusMet
	}
	return e.statusAt(issue, e.Deadline(issue), now)
}

func (e *Evaluator) statusAt(issue domain.Issue, deadline, now time.Time) Status {
	if now.After(deadline) {
		return StatusBreached
	}
	remaining := e.clock.WorkingDuration(now, deadline)
	threshold := time.Duration(float64(Tier(issue.Priority)) * warningFraction)
	if remaining <= threshold {
		return StatusWarning
	}
	return StatusMet
}

// Remaining returns signed working time to the deadline: positive while
// time remains, negative by the overdue amount. For finished issues the
// figure is frozen at ClosedAt when known.
func (e *Evaluator) Remaining(issue domain.Issue, now time.Time) time.Duration {
	return e.remainingAt(e.Deadline(issue), e.referenceInstant(issue, now))
}

func (e *Evaluator) remainingAt(deadline, at time.Time) time.Duration {
	if at.After(deadline) {
		return -e.clock.WorkingDuration(deadline, at)
	}
	return e.clock.WorkingDuration(at, deadline)
}

func (e *Evaluator) referenceInstant(issue domain.Issue, now time.Time) time.Time {
	if issue.Status.IsTerminal() && issue.ClosedAt != nil {
		return *issue.ClosedAt
	}
	return now
}

// Breached reports whether a non-terminal issue is past its deadline.
func (e *Evaluator) Breached(issue domain.Issue, now time.Time) bool {
	return e.Status(issue, now) == StatusBreached
}

// Evaluate computes the full report in one pass.
func (e *Evaluator) Evaluate(issue domain.Issue, now time.Time) Report {
	deadline := e.Deadline(issue)
	remaining := e.remainingAt(deadline, e.referenceInstant(issue, now))
	status := StatusMet
	if !issue.Status.IsTerminal() {
		status = e.statusAt(issue, deadline, now)
	}
	return Report{
		Status:         status,
		Deadline:       deadline,
		Remaining:      remaining,
		RemainingHours: workhours.RoundHours(remaining),
		TierHours:      Tier(issue.Priority).Hours(),
	}
}
