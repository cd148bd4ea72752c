package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/clock"
	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/events"
	"github.com/spec-kit/grievance-portal/internal/lifecycle"
	"github.com/spec-kit/grievance-portal/internal/observability"
	"github.com/spec-kit/grievance-portal/internal/repository"
	"github.com/spec-kit/grievance-portal/internal/sla"
	"github.com/spec-kit/grievance-portal/internal/timeline"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util/errorutil"
)

// DefaultMaxRetries bounds re-reads after losing a version race.
const DefaultMaxRetries = 3

// Actor is the employee performing an operation.
type Actor struct {
	ID   int64
	Role domain.EmployeeRole
}

// IssueService coordinates issue workflows: it loads records, applies
// lifecycle rules and persists the result under a version check.
type IssueService struct {
	issues     repository.IssueRepository
	audit      repository.AuditRepository
	comments   repository.CommentRepository
	employees  repository.EmployeeRepository
	machine    *lifecycle.Machine
	evaluator  *sla.Evaluator
	assembler  *timeline.Assembler
	clock      clock.Clock
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	maxRetries int
}

// IssueDependencies bundles collaborators for the issue service.
type IssueDependencies struct {
	IssueRepo    repository.IssueRepository
	AuditRepo    repository.AuditRepository
	CommentRepo  repository.CommentRepository
	EmployeeRepo repository.EmployeeRepository
	Names        timeline.NameResolver
	Machine      *lifecycle.Machine
	Evaluator    *sla.Evaluator
	Clock        clock.Clock
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	MaxRetries   int
}

// CreateIssueInput describes issue creation payload.
type CreateIssueInput struct {
	TypeID      int64
	SubTypeID   int64
	Title       string
	Description string
	Priority    string
}

// ChangeStatusInput requests a status change. ExpectedVersion, when set,
// must match the stored version.
type ChangeStatusInput struct {
	Status          string
	ExpectedVersion *int64
}

// AssignInput requests an assignment.
type AssignInput struct {
	AssigneeID      int64
	ExpectedVersion *int64
}

// ReopenInput requests a reopen.
type ReopenInput struct {
	Reason          string
	ExpectedVersion *int64
}

// EscalateInput requests a manual escalation.
type EscalateInput struct {
	Reason          string
	ExpectedVersion *int64
}

// ChangePriorityInput requests a priority change.
type ChangePriorityInput struct {
	Priority        string
	ExpectedVersion *int64
}

// RecategorizeInput maps the issue onto another type.
type RecategorizeInput struct {
	TypeID          int64
	SubTypeID       int64
	ExpectedVersion *int64
}

// InternalCommentInput describes a private message. RecipientID defaults
// to the other side of the assignment.
type InternalCommentInput struct {
	Content     string
	RecipientID *int64
}

// IssueDetails is an issue with its current SLA evaluation.
type IssueDetails struct {
	Issue domain.Issue
	SLA   sla.Report
}

// SweepResult summarises one SLA sweep.
type SweepResult struct {
	Scanned   int
	Escalated int
	Failed    int
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	machine := deps.Machine
	if machine == nil {
		machine = lifecycle.NewMachine(lifecycle.Config{})
	}
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = sla.NewEvaluator(nil)
	}
	retries := deps.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	return &IssueService{
		issues:     deps.IssueRepo,
		audit:      deps.AuditRepo,
		comments:   deps.CommentRepo,
		employees:  deps.EmployeeRepo,
		machine:    machine,
		evaluator:  evaluator,
		assembler:  timeline.NewAssembler(deps.Names, logger),
		clock:      clk,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		maxRetries: retries,
	}
}

// CreateIssue files a new issue on behalf of actor.
func (s *IssueService) CreateIssue(ctx context.Context, actor Actor, input CreateIssueInput) (*domain.Issue, error) {
	tr, err := s.machine.Create(domain.Issue{
		EmployeeID:  actor.ID,
		TypeID:      input.TypeID,
		SubTypeID:   input.SubTypeID,
		Title:       input.Title,
		Description: input.Description,
		Priority:    domain.IssuePriority(input.Priority),
	}, s.clock.Now())
	if err != nil {
		return nil, err
	}
	issue := tr.Issue
	if err := s.issues.Create(ctx, &issue, tr.Audit); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.metrics.RecordTransition("create")
	s.publishAudit(ctx, issue, tr.Audit)
	return &issue, nil
}

// GetIssue returns the issue and its SLA report.
func (s *IssueService) GetIssue(ctx context.Context, actor Actor, issueID int64) (*IssueDetails, error) {
	issue, err := s.load(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if !canView(*issue, actor) {
		return nil, apperrors.NewForbidden("issue not visible to caller")
	}
	return &IssueDetails{Issue: *issue, SLA: s.evaluator.Evaluate(*issue, s.clock.Now())}, nil
}

// ChangeStatus applies a staff status change.
func (s *IssueService) ChangeStatus(ctx context.Context, actor Actor, issueID int64, input ChangeStatusInput) (*domain.Issue, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "status", issueID, input.ExpectedVersion, func(issue domain.Issue, now time.Time) (lifecycle.Transition, error) {
		return s.machine.ChangeStatus(issue, input.Status, actor.ID, now)
	})
}

// Assign hands the issue to an active staff member.
func (s *IssueService) Assign(ctx context.Context, actor Actor, issueID int64, input AssignInput) (*domain.Issue, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if input.AssigneeID <= 0 {
		return nil, apperrors.NewValidationError("assignee_id required", nil)
	}
	assignee, err := s.employees.GetByID(ctx, input.AssigneeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("assignee", map[string]any{"assignee_id": input.AssigneeID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !assignee.Active || !assignee.Role.IsStaff() {
		return nil, apperrors.NewValidationError("assignee must be active staff", map[string]any{"assignee_id": input.AssigneeID})
	}
	return s.mutate(ctx, "assign", issueID, input.ExpectedVersion, func(issue domain.Issue, now time.Time) (lifecycle.Transition, error) {
		return s.machine.Assign(issue, input.AssigneeID, actor.ID, now)
	})
}

// Reopen returns a finished issue to open. The filer and staff may reopen.
func (s *IssueService) Reopen(ctx context.Context, actor Actor, issueID int64, input ReopenInput) (*domain.Issue, error) {
	return s.mutate(ctx, "reopen", issueID, input.ExpectedVersion, func(issue domain.Issue, now time.Time) (lifecycle.Transition, error) {
		if !canView(issue, actor) {
			return lifecycle.Transition{}, apperrors.NewForbidden("only the filer or staff may reopen")
		}
		return s.machine.Reopen(issue, input.Reason, actor.ID, now)
	})
}

// Escalate raises the escalation level on staff request.
func (s *IssueService) Escalate(ctx context.Context, actor Actor, issueID int64, input EscalateInput) (*domain.Issue, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "escalate", issueID, input.ExpectedVersion, func(issue domain.Issue, now time.Time) (lifecycle.Transition, error) {
		return s.machine.Escalate(issue, input.Reason, actor.ID, now)
	})
}

// ChangePriority sets a new priority.
func (s *IssueService) ChangePriority(ctx context.Context, actor Actor, issueID int64, input ChangePriorityInput) (*domain.Issue, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "priority", issueID, input.ExpectedVersion, func(issue domain.Issue, now time.Time) (lifecycle.Transition, error) {
		return s.machine.ChangePriority(issue, input.Priority, actor.ID, now)
	})
}

// Recategorize maps the issue onto a specific type and sub-type.
func (s *IssueService) Recategorize(ctx context.Context, actor Actor, issueID int64, input RecategorizeInput) (*domain.Issue, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "recategorize", issueID, input.ExpectedVersion, func(issue domain.Issue, now time.Time) (lifecycle.Transition, error) {
		return s.machine.Recategorize(issue, input.TypeID, input.SubTypeID, actor.ID, now)
	})
}

// GetSLAStatus evaluates the issue at the given instant, or now when at
// is zero.
func (s *IssueService) GetSLAStatus(ctx context.Context, actor Actor, issueID int64, at time.Time) (sla.Report, error) {
	issue, err := s.load(ctx, issueID)
	if err != nil {
		return sla.Report{}, err
	}
	if !canView(*issue, actor) {
		return sla.Report{}, apperrors.NewForbidden("issue not visible to caller")
	}
	if at.IsZero() {
		at = s.clock.Now()
	}
	return s.evaluator.Evaluate(*issue, at), nil
}

// GetTimeline assembles the issue history as seen by actor. Internal
// comments are only loaded for viewers allowed to see them.
func (s *IssueService) GetTimeline(ctx context.Context, actor Actor, issueID int64, order timeline.Order) (timeline.Result, error) {
	issue, err := s.load(ctx, issueID)
	if err != nil {
		return timeline.Result{}, err
	}
	if !canView(*issue, actor) {
		return timeline.Result{}, apperrors.NewForbidden("issue not visible to caller")
	}

	audit, err := s.audit.ListByIssue(ctx, issueID)
	if err != nil {
		return timeline.Result{}, apperrors.NewInternalError(err)
	}
	comments, err := s.comments.ListByIssue(ctx, issueID)
	if err != nil {
		return timeline.Result{}, apperrors.NewInternalError(err)
	}

	viewer := timeline.Viewer{ID: actor.ID, Privileged: actor.Role.IsPrivileged()}
	input := timeline.Input{Issue: *issue, Audit: audit, Comments: comments}
	if timeline.CanViewPrivate(*issue, viewer) {
		internal, err := s.comments.ListInternalByIssue(ctx, issueID)
		if err != nil {
			return timeline.Result{}, apperrors.NewInternalError(err)
		}
		input.Internal = internal
	}
	return s.assembler.Assemble(ctx, input, viewer, order), nil
}

// AddComment posts to the public thread.
func (s *IssueService) AddComment(ctx context.Context, actor Actor, issueID int64, content string) (*domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("content required", nil)
	}
	issue, err := s.load(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if !canView(*issue, actor) {
		return nil, apperrors.NewForbidden("issue not visible to caller")
	}

	comment := &domain.Comment{IssueID: issueID, EmployeeID: actor.ID, Content: content, CreatedAt: s.clock.Now()}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.recordComment(ctx, domain.AuditActionCommentAdded, comment.ID, issueID, actor.ID, comment.CreatedAt)
	s.publish(ctx, events.EventIssueCommentAdded, issueID, actor.ID, events.IssueCommentAddedPayload{
		CommentID:   comment.ID,
		BodyPreview: preview(content),
	})
	return comment, nil
}

// AddInternalComment posts to the private assignee/assigner thread. Only
// the current assignee or assigner may write there.
func (s *IssueService) AddInternalComment(ctx context.Context, actor Actor, issueID int64, input InternalCommentInput) (*domain.InternalComment, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apperrors.NewValidationError("content required", nil)
	}
	issue, err := s.load(ctx, issueID)
	if err != nil {
		return nil, err
	}

	var other *int64
	switch {
	case issue.IsAssignee(actor.ID):
		other = issue.AssignedBy
	case issue.IsAssigner(actor.ID):
		other = issue.AssignedTo
	default:
		return nil, apperrors.NewForbidden("only the assignee or assigner may post internal comments")
	}
	recipient := input.RecipientID
	if recipient == nil {
		recipient = other
	} else if other == nil || *other != *recipient {
		return nil, apperrors.NewValidationError("recipient must be the other side of the assignment",
			map[string]any{"recipient_id": *recipient})
	}

	comment := &domain.InternalComment{
		IssueID:     issueID,
		EmployeeID:  actor.ID,
		RecipientID: recipient,
		Content:     content,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.comments.CreateInternal(ctx, comment); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.recordComment(ctx, domain.AuditActionInternalCommentAdded, comment.ID, issueID, actor.ID, comment.CreatedAt)
	s.publish(ctx, events.EventIssueCommentAdded, issueID, actor.ID, events.IssueCommentAddedPayload{
		CommentID: comment.ID,
		Internal:  true,
	})
	return comment, nil
}

const defaultSweepPage = 500

var errNoBreach = errors.New("no breach to escalate")

// SweepBreaches escalates active issues past their SLA deadline, once per
// breach episode. Active issues are read in pages of limit until none are
// left. Per-issue failures are logged and counted, not returned.
func (s *IssueService) SweepBreaches(ctx context.Context, limit int) (SweepResult, error) {
	if limit <= 0 {
		limit = defaultSweepPage
	}
	var (
		result SweepResult
		cursor int64
	)
	for {
		page, err := s.issues.ListActive(ctx, cursor, limit)
		if err != nil {
			return result, apperrors.NewInternalError(err)
		}
		for _, candidate := range page {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Scanned++
			s.sweepOne(ctx, candidate, &result)
		}
		if len(page) < limit {
			return result, nil
		}
		cursor = page[len(page)-1].ID
	}
}

func (s *IssueService) sweepOne(ctx context.Context, candidate domain.Issue, result *SweepResult) {
	deadline := s.evaluator.Deadline(candidate)
	if _, due := s.machine.EscalateForBreach(candidate, deadline, s.clock.Now()); !due {
		return
	}

	_, err := s.mutate(ctx, "sla_escalate", candidate.ID, nil, func(issue domain.Issue, now time.Time) (lifecycle.Transition, error) {
		tr, ok := s.machine.EscalateForBreach(issue, s.evaluator.Deadline(issue), now)
		if !ok {
			return lifecycle.Transition{}, errNoBreach
		}
		return tr, nil
	})
	switch {
	case err == nil:
		result.Escalated++
		s.metrics.RecordEscalation()
		s.logger.Info("sla breach escalated",
			zap.Int64("issue_id", candidate.ID),
			zap.Time("deadline", deadline))
	case errors.Is(err, errNoBreach):
	default:
		result.Failed++
		s.logger.Warn("sla escalation failed", zap.Int64("issue_id", candidate.ID), zap.Error(err))
	}
}

type applyFunc func(issue domain.Issue, now time.Time) (lifecycle.Transition, error)

// mutate runs the optimistic read-modify-write loop. A lost race is
// retried from a fresh read up to maxRetries times, unless the caller
// pinned a version, in which case it fails at once.
func (s *IssueService) mutate(ctx context.Context, op string, issueID int64, expected *int64, apply applyFunc) (*domain.Issue, error) {
	for attempt := 0; ; attempt++ {
		current, err := s.load(ctx, issueID)
		if err != nil {
			return nil, err
		}
		if expected != nil && current.Version != *expected {
			s.metrics.RecordConflict()
			return nil, apperrors.NewVersionConflict(map[string]any{
				"expected_version": *expected,
				"current_version":  current.Version,
			})
		}

		tr, err := apply(*current, s.clock.Now())
		if err != nil {
			return nil, err
		}
		next := tr.Issue
		err = s.issues.Save(ctx, &next, current.Version, tr.Audit)
		if err == nil {
			s.metrics.RecordTransition(op)
			s.publishAudit(ctx, next, tr.Audit)
			return &next, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("issue", map[string]any{"issue_id": issueID})
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, apperrors.NewInternalError(err)
		}
		if expected != nil || attempt >= s.maxRetries {
			s.metrics.RecordConflict()
			s.logger.Warn("issue write gave up after version conflicts",
				zap.String("operation", op),
				zap.Int64("issue_id", issueID),
				zap.Int("attempts", attempt+1))
			return nil, apperrors.NewVersionConflict(map[string]any{"issue_id": issueID})
		}
		s.metrics.RecordRetry()
		s.logger.Debug("issue version conflict; retrying",
			zap.String("operation", op),
			zap.Int64("issue_id", issueID),
			zap.Int("attempt", attempt+1))
	}
}

func (s *IssueService) load(ctx context.Context, issueID int64) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("issue", map[string]any{"issue_id": issueID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return issue, nil
}

// recordComment appends the comment's audit entry. The comment itself is
// already stored, so a failure here is logged rather than returned.
func (s *IssueService) recordComment(ctx context.Context, action domain.AuditAction, commentID, issueID, actorID int64, at time.Time) {
	entry := &domain.AuditEntry{
		IssueID:    issueID,
		Action:     action,
		EmployeeID: actorID,
		Details:    map[string]any{"comment_id": commentID},
		CreatedAt:  at,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("append comment audit", zap.Int64("issue_id", issueID), zap.Error(err))
	}
}

func (s *IssueService) publishAudit(ctx context.Context, issue domain.Issue, audit []domain.AuditEntry) {
	for _, entry := range audit {
		switch entry.Action {
		case domain.AuditActionCreated:
			s.publish(ctx, events.EventIssueCreated, issue.ID, entry.EmployeeID, events.IssueCreatedPayload{
				Priority: issue.Priority,
				Title:    issue.Title,
			})
		case domain.AuditActionStatusChanged:
			s.publish(ctx, events.EventIssueStatusChanged, issue.ID, entry.EmployeeID, events.IssueStatusChangedPayload{
				OldStatus: derefStatus(entry.PreviousStatus),
				NewStatus: derefStatus(entry.NewStatus),
			})
		case domain.AuditActionAssigned:
			payload := events.IssueAssignedPayload{}
			if issue.AssignedTo != nil {
				payload.AssigneeID = *issue.AssignedTo
			}
			if prev, ok := entry.Details["previous_assignee_id"].(int64); ok {
				payload.PreviousAssigneeID = &prev
			}
			s.publish(ctx, events.EventIssueAssigned, issue.ID, entry.EmployeeID, payload)
		case domain.AuditActionReopened:
			reason, _ := entry.Details["reason"].(string)
			s.publish(ctx, events.EventIssueReopened, issue.ID, entry.EmployeeID, events.IssueReopenedPayload{
				Reason:         reason,
				PreviousStatus: derefStatus(entry.PreviousStatus),
			})
		case domain.AuditActionEscalated:
			trigger, _ := entry.Details["trigger"].(string)
			s.publish(ctx, events.EventIssueEscalated, issue.ID, entry.EmployeeID, events.IssueEscalatedPayload{
				Level:    issue.EscalationLevel,
				Priority: issue.Priority,
				Trigger:  trigger,
			})
		}
	}
}

func (s *IssueService) publish(ctx context.Context, eventType events.EventType, issueID, actorID int64, payload any) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		IssueID:   issueID,
		ActorID:   actorID,
		Timestamp: s.clock.Now(),
		Payload:   payload,
	})
	if err != nil {
		s.logger.Warn("publish event failed",
			zap.String("event_type", string(eventType)),
			zap.Int64("issue_id", issueID),
			zap.Error(err))
	}
}

func canView(issue domain.Issue, actor Actor) bool {
	return actor.Role.IsStaff() || issue.EmployeeID == actor.ID
}

func requireStaff(actor Actor) error {
	if !actor.Role.IsStaff() {
		return apperrors.NewForbidden("staff role required")
	}
	return nil
}

func derefStatus(s *domain.IssueStatus) domain.IssueStatus {
	if s == nil {
		return ""
	}
	return *s
}

func preview(body string) string {
	const limit = 120
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "..."
}
