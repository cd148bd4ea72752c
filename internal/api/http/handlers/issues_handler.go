package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/grievance-portal/internal/api/dto"
	"github.com/spec-kit/grievance-portal/internal/auth"
	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/service"
	"github.com/spec-kit/grievance-portal/internal/sla"
	"github.com/spec-kit/grievance-portal/internal/timeline"
	apperrors "github.com/spec-kit/grievance-portal/pkg/util/errorutil"
)

// IssueOperations is the issue workflow surface served over HTTP.
type IssueOperations interface {
	CreateIssue(ctx context.Context, actor service.Actor, input service.CreateIssueInput) (*domain.Issue, error)
	GetIssue(ctx context.Context, actor service.Actor, issueID int64) (*service.IssueDetails, error)
	ChangeStatus(ctx context.Context, actor service.Actor, issueID int64, input service.ChangeStatusInput) (*domain.Issue, error)
	Assign(ctx context.Context, actor service.Actor, issueID int64, input service.AssignInput) (*domain.Issue, error)
	Reopen(ctx context.Context, actor service.Actor, issueID int64, input service.ReopenInput) (*domain.Issue, error)
	Escalate(ctx context.Context, actor service.Actor, issueID int64, input service.EscalateInput) (*domain.Issue, error)
	ChangePriority(ctx context.Context, actor service.Actor, issueID int64, input service.ChangePriorityInput) (*domain.Issue, error)
	Recategorize(ctx context.Context, actor service.Actor, issueID int64, input service.RecategorizeInput) (*domain.Issue, error)
	GetSLAStatus(ctx context.Context, actor service.Actor, issueID int64, at time.Time) (sla.Report, error)
	GetTimeline(ctx context.Context, actor service.Actor, issueID int64, order timeline.Order) (timeline.Result, error)
	AddComment(ctx context.Context, actor service.Actor, issueID int64, content string) (*domain.Comment, error)
	AddInternalComment(ctx context.Context, actor service.Actor, issueID int64, input service.InternalCommentInput) (*domain.InternalComment, error)
	SweepBreaches(ctx context.Context, limit int) (service.SweepResult, error)
}

// IssuesHandler serves the issue endpoints.
type IssuesHandler struct {
	service IssueOperations
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(issues IssueOperations) *IssuesHandler {
	return &IssuesHandler{service: issues}
}

// CreateIssue POST /issues.
func (h *IssuesHandler) CreateIssue(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issue, err := h.service.CreateIssue(c.UserContext(), actor, service.CreateIssueInput{
		TypeID:      req.TypeID,
		SubTypeID:   req.SubTypeID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return writeIssue(c, fiber.StatusCreated, issue)
}

// GetIssue GET /issues/:id.
func (h *IssuesHandler) GetIssue(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := issueID(c)
	if err != nil {
		return err
	}
	details, err := h.service.GetIssue(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	resp := issueResponse(&details.Issue)
	report := slaResponse(details.SLA)
	resp.SLA = &report
	c.Set(fiber.HeaderETag, etag(details.Issue.Version))
	return c.JSON(fiber.Map{"data": resp})
}

// ChangeStatus POST /issues/:id/status.
func (h *IssuesHandler) ChangeStatus(c *fiber.Ctx) error {
	var req dto.ChangeStatusRequest
	return h.mutate(c, &req, func(ctx context.Context, actor service.Actor, id int64, version *int64) (*domain.Issue, error) {
		if strings.TrimSpace(req.Status) == "" {
			return nil, apperrors.NewValidationError("status required", nil)
		}
		return h.service.ChangeStatus(ctx, actor, id, service.ChangeStatusInput{Status: req.Status, ExpectedVersion: version})
	}, func() *int64 { return req.ExpectedVersion })
}

// Assign POST /issues/:id/assign.
func (h *IssuesHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignRequest
	return h.mutate(c, &req, func(ctx context.Context, actor service.Actor, id int64, version *int64) (*domain.Issue, error) {
		return h.service.Assign(ctx, actor, id, service.AssignInput{AssigneeID: req.AssigneeID, ExpectedVersion: version})
	}, func() *int64 { return req.ExpectedVersion })
}

// Reopen POST /issues/:id/reopen.
func (h *IssuesHandler) Reopen(c *fiber.Ctx) error {
	var req dto.ReopenRequest
	return h.mutate(c, &req, func(ctx context.Context, actor service.Actor, id int64, version *int64) (*domain.Issue, error) {
		return h.service.Reopen(ctx, actor, id, service.ReopenInput{Reason: req.Reason, ExpectedVersion: version})
	}, func() *int64 { return req.ExpectedVersion })
}

// Escalate POST /issues/:id/escalate.
func (h *IssuesHandler) Escalate(c *fiber.Ctx) error {
	var req dto.EscalateRequest
	return h.mutate(c, &req, func(ctx context.Context, actor service.Actor, id int64, version *int64) (*domain.Issue, error) {
		return h.service.Escalate(ctx, actor, id, service.EscalateInput{Reason: req.Reason, ExpectedVersion: version})
	}, func() *int64 { return req.ExpectedVersion })
}

// ChangePriority POST /issues/:id/priority.
func (h *IssuesHandler) ChangePriority(c *fiber.Ctx) error {
	var req dto.ChangePriorityRequest
	return h.mutate(c, &req, func(ctx context.Context, actor service.Actor, id int64, version *int64) (*domain.Issue, error) {
		return h.service.ChangePriority(ctx, actor, id, service.ChangePriorityInput{Priority: req.Priority, ExpectedVersion: version})
	}, func() *int64 { return req.ExpectedVersion })
}

// Recategorize POST /issues/:id/recategorize.
func (h *IssuesHandler) Recategorize(c *fiber.Ctx) error {
	var req dto.RecategorizeRequest
	return h.mutate(c, &req, func(ctx context.Context, actor service.Actor, id int64, version *int64) (*domain.Issue, error) {
		return h.service.Recategorize(ctx, actor, id, service.RecategorizeInput{
			TypeID:          req.TypeID,
			SubTypeID:       req.SubTypeID,
			ExpectedVersion: version,
		})
	}, func() *int64 { return req.ExpectedVersion })
}

// GetSLA GET /issues/:id/sla. An optional ?at=RFC3339 evaluates at that instant.
func (h *IssuesHandler) GetSLA(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := issueID(c)
	if err != nil {
		return err
	}
	var at time.Time
	if raw := c.Query("at"); raw != "" {
		at, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.NewValidationError("at must be RFC3339", map[string]any{"at": raw})
		}
	}
	report, err := h.service.GetSLAStatus(c.UserContext(), actor, id, at)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaResponse(report)})
}

// GetTimeline GET /issues/:id/timeline?order=asc|desc.
func (h *IssuesHandler) GetTimeline(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := issueID(c)
	if err != nil {
		return err
	}
	order, ok := timeline.ParseOrder(strings.ToLower(c.Query("order")))
	if !ok {
		return apperrors.NewValidationError("order must be asc or desc", map[string]any{"order": c.Query("order")})
	}
	result, err := h.service.GetTimeline(c.UserContext(), actor, id, order)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": timelineResponse(result, order)})
}

// AddComment POST /issues/:id/comments.
func (h *IssuesHandler) AddComment(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := issueID(c)
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	comment, err := h.service.AddComment(c.UserContext(), actor, id, req.Content)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.CommentResponse{
		ID:         comment.ID,
		IssueID:    comment.IssueID,
		EmployeeID: comment.EmployeeID,
		Content:    comment.Content,
		CreatedAt:  comment.CreatedAt,
	}})
}

// AddInternalComment POST /issues/:id/internal-comments.
func (h *IssuesHandler) AddInternalComment(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := issueID(c)
	if err != nil {
		return err
	}
	var req dto.InternalCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	comment, err := h.service.AddInternalComment(c.UserContext(), actor, id, service.InternalCommentInput{
		Content:     req.Content,
		RecipientID: req.RecipientID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.CommentResponse{
		ID:          comment.ID,
		IssueID:     comment.IssueID,
		EmployeeID:  comment.EmployeeID,
		RecipientID: comment.RecipientID,
		Content:     comment.Content,
		CreatedAt:   comment.CreatedAt,
	}})
}

// SweepBreaches POST /admin/sla/sweep runs one breach sweep on demand.
func (h *IssuesHandler) SweepBreaches(c *fiber.Ctx) error {
	limit := parseInt(c.Query("limit"), 500)
	result, err := h.service.SweepBreaches(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{
		Scanned:   result.Scanned,
		Escalated: result.Escalated,
		Failed:    result.Failed,
	}})
}

type mutation func(ctx context.Context, actor service.Actor, issueID int64, expectedVersion *int64) (*domain.Issue, error)

// mutate parses the body into req, resolves the expected version from
// If-Match or the body, and runs op.
func (h *IssuesHandler) mutate(c *fiber.Ctx, req any, op mutation, bodyVersion func() *int64) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := issueID(c)
	if err != nil {
		return err
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	version, err := expectedVersion(c.Get(fiber.HeaderIfMatch), bodyVersion())
	if err != nil {
		return err
	}
	issue, err := op(c.UserContext(), actor, id, version)
	if err != nil {
		return err
	}
	return writeIssue(c, fiber.StatusOK, issue)
}

func currentActor(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return service.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return service.Actor{ID: principal.ID(), Role: principal.Role()}, nil
}

func issueID(c *fiber.Ctx) (int64, error) {
	raw := c.Params("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid issue id", map[string]any{"id": raw})
	}
	return id, nil
}

// expectedVersion reads an If-Match header ("3", "\"3\"" or W/"3") and
// reconciles it with a version sent in the body.
func expectedVersion(header string, body *int64) (*int64, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return body, nil
	}
	raw := strings.Trim(strings.TrimPrefix(header, "W/"), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, apperrors.NewValidationError("If-Match must carry an issue version", map[string]any{"if_match": header})
	}
	if body != nil && *body != v {
		return nil, apperrors.NewValidationError("If-Match and expected_version disagree",
			map[string]any{"if_match": v, "expected_version": *body})
	}
	return &v, nil
}

func etag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func writeIssue(c *fiber.Ctx, status int, issue *domain.Issue) error {
	c.Set(fiber.HeaderETag, etag(issue.Version))
	return c.Status(status).JSON(fiber.Map{"data": issueResponse(issue)})
}

func issueResponse(issue *domain.Issue) dto.IssueResponse {
	closed := issue.PreviouslyClosedAt
	if closed == nil {
		closed = []time.Time{}
	}
	return dto.IssueResponse{
		ID:                 issue.ID,
		TypeID:             issue.TypeID,
		SubTypeID:          issue.SubTypeID,
		MappedTypeID:       issue.MappedTypeID,
		MappedSubTypeID:    issue.MappedSubTypeID,
		Title:              issue.Title,
		Description:        issue.Description,
		Status:             issue.Status,
		Priority:           issue.Priority,
		EscalationLevel:    issue.EscalationLevel,
		LastEscalatedAt:    issue.LastEscalatedAt,
		EmployeeID:         issue.EmployeeID,
		AssignedTo:         issue.AssignedTo,
		AssignedBy:         issue.AssignedBy,
		CreatedAt:          issue.CreatedAt,
		UpdatedAt:          issue.UpdatedAt,
		LastStatusChangeAt: issue.LastStatusChangeAt,
		ClosedAt:           issue.ClosedAt,
		ReopenableUntil:    issue.ReopenableUntil,
		PreviouslyClosedAt: closed,
		Version:            issue.Version,
	}
}

func slaResponse(report sla.Report) dto.SLAResponse {
	return dto.SLAResponse{
		Status:         report.Status,
		Deadline:       report.Deadline,
		RemainingHours: report.RemainingHours,
		TierHours:      report.TierHours,
	}
}

func timelineResponse(result timeline.Result, order timeline.Order) dto.TimelineResponse {
	resp := dto.TimelineResponse{
		Order:          string(order),
		Events:         make([]dto.TimelineEventResponse, 0, len(result.Events)),
		Comments:       make([]dto.TimelineEventResponse, 0, len(result.Comments)),
		PrivateVisible: result.PrivateVisible,
	}
	for _, e := range result.Events {
		resp.Events = append(resp.Events, timelineEvent(e))
	}
	for _, e := range result.Comments {
		resp.Comments = append(resp.Comments, timelineEvent(e))
	}
	if result.PrivateVisible {
		resp.PrivateComments = make([]dto.TimelineEventResponse, 0, len(result.Private))
		for _, e := range result.Private {
			resp.PrivateComments = append(resp.PrivateComments, timelineEvent(e))
		}
	}
	if len(result.Degraded) > 0 {
		resp.Warnings = []dto.TimelineWarning{{Code: apperrors.CodeLookupDegraded, ActorIDs: result.Degraded}}
	}
	return resp
}

func timelineEvent(e timeline.Event) dto.TimelineEventResponse {
	by := e.By()
	out := dto.TimelineEventResponse{
		Type:      string(e.Kind()),
		Timestamp: e.At(),
		Actor:     dto.ActorResponse{ID: by.ID, Name: by.Name},
	}
	switch ev := e.(type) {
	case timeline.CreationEvent:
		out.Title = ev.Title
		out.Priority = string(ev.Priority)
	case timeline.AssignmentEvent:
		out.Assignee = &dto.ActorResponse{ID: ev.Assignee.ID, Name: ev.Assignee.Name}
		out.PreviousAssigneeID = ev.PreviousAssigneeID
	case timeline.StatusEvent:
		out.PreviousStatus = string(ev.PreviousStatus)
		out.NewStatus = string(ev.NewStatus)
		out.Reopened = ev.Reopened
		out.Reason = ev.Reason
	case timeline.CommentEvent:
		id := ev.CommentID
		out.CommentID = &id
		out.Content = ev.Content
	case timeline.PrivateCommentEvent:
		id := ev.CommentID
		out.CommentID = &id
		out.RecipientID = ev.RecipientID
		out.Content = ev.Content
	}
	return out
}
