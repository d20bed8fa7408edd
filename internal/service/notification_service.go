package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/config"
	"github.com/campusflow/campus-queue/internal/events"
)

// NotificationService relays requester-facing events to the push transport.
// Delivery itself is a stub that logs what would be sent.
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
	n.dispatcher.Subscribe(events.EventTicketYourTurn, n.handleYourTurn)
	n.dispatcher.Subscribe(events.EventEmergencyYourTurn, n.handleYourTurn)
	n.dispatcher.Subscribe(events.EventTicketServed, n.handleServed)
	n.dispatcher.Subscribe(events.EventEmergencyServed, n.handleServed)
	n.dispatcher.Subscribe(events.EventEmergencyApproved, n.handleEmergencyReviewed)
	n.dispatcher.Subscribe(events.EventEmergencyRejected, n.handleEmergencyReviewed)
}

func (n *NotificationService) handleYourTurn(ctx context.Context, event events.Event) error {
	if !event.Scope.IsIdentity() {
		return nil
	}
	n.logger.Info("YourTurn", zap.String("scope", string(event.Scope)), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleServed(ctx context.Context, event events.Event) error {
	if !event.Scope.IsIdentity() {
		return nil
	}
	n.logger.Info("Served", zap.String("scope", string(event.Scope)), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

// Reviews go to both the requester and the department; only the requester is notified.
func (n *NotificationService) handleEmergencyReviewed(ctx context.Context, event events.Event) error {
	if !event.Scope.IsIdentity() {
		return nil
	}
	n.logger.Info("EmergencyReviewed", zap.String("scope", string(event.Scope)), zap.String("event_type", string(event.Type)))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("scope", string(event.Scope)),
		zap.String("event_type", string(event.Type)))
}
