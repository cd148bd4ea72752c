package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/config"
	"github.com/spec-kit/grievance-portal/internal/events"
)

// NotificationService fans issue events out to the email and webhook
// stubs. Delivery itself is out of process.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventIssueCreated, n.notifyAll)
	n.dispatcher.Subscribe(events.EventIssueStatusChanged, n.notifyWebhook)
	n.dispatcher.Subscribe(events.EventIssueAssigned, n.notifyAll)
	n.dispatcher.Subscribe(events.EventIssueReopened, n.notifyAll)
	n.dispatcher.Subscribe(events.EventIssueEscalated, n.notifyAll)
	n.dispatcher.Subscribe(events.EventIssueCommentAdded, n.handleCommentAdded)
}

func (n *NotificationService) notifyAll(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.Int64("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) notifyWebhook(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.Int64("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

// Internal comments never leave the process.
func (n *NotificationService) handleCommentAdded(ctx context.Context, event events.Event) error {
	if payload, ok := event.Payload.(events.IssueCommentAddedPayload); ok && payload.Internal {
		n.logger.Debug("internal comment added", zap.Int64("issue_id", event.IssueID))
		return nil
	}
	return n.notifyAll(ctx, event)
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.Int64("issue_id", event.IssueID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.Int64("issue_id", event.IssueID),
		zap.String("event_type", string(event.Type)))
}
