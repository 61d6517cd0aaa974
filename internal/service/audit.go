package service

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	pubsubRouter "github.com/shahin-grc/serialcode/internal/pubsub/router"
	"github.com/shahin-grc/serialcode/internal/types"
)

// AuditService consumes lifecycle events into the audit trail
type AuditService interface {
	RegisterHandler(router *pubsubRouter.Router, subscriber message.Subscriber, cfg *config.Configuration)

	// Record persists one event. Redelivery of the same event is a no-op.
	Record(ctx context.Context, event *serialcode.LifecycleEvent) error
}

type auditService struct {
	ServiceParams
}

func NewAuditService(params ServiceParams) AuditService {
	return &auditService{
		ServiceParams: params,
	}
}

// RegisterHandler registers the audit consumer with the router
func (s *auditService) RegisterHandler(
	router *pubsubRouter.Router,
	subscriber message.Subscriber,
	cfg *config.Configuration,
) {
	router.AddNoPublishHandler(
		"serial_code_audit_handler",
		cfg.Event.Topic,
		subscriber,
		s.processMessage,
	)

	s.Logger.Infow("registered serial code audit handler",
		"topic", cfg.Event.Topic,
		"destination", cfg.Event.PublishDestination,
	)
}

func (s *auditService) processMessage(msg *message.Message) error {
	ctx := msg.Context()

	var event serialcode.LifecycleEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		s.Logger.Errorw("failed to unmarshal lifecycle event",
			"message_uuid", msg.UUID,
			"error", err)
		// malformed payloads never succeed, send them to the poison queue
		return ierr.WithError(err).
			WithHint("Malformed lifecycle event").
			Mark(ierr.ErrValidation)
	}

	span, ctx := s.Sentry.StartEventSpan(ctx, string(event.Action), event.Timestamp, map[string]interface{}{
		"event_id": event.ID,
		"code":     event.Code,
	})
	if span != nil {
		defer span.Finish()
	}

	if event.RequestID == "" {
		event.RequestID = middleware.MessageCorrelationID(msg)
	}
	if event.RequestID != "" {
		ctx = types.SetRequestID(ctx, event.RequestID)
	}

	return s.Record(ctx, &event)
}

func (s *auditService) Record(ctx context.Context, event *serialcode.LifecycleEvent) error {
	if event.ID == "" || event.Action == "" || event.Code == "" {
		return ierr.NewError("incomplete lifecycle event").
			WithHint("Lifecycle event must carry an id, an action and a code").
			WithReportableDetails(map[string]any{
				"event_id": event.ID,
				"action":   event.Action,
				"code":     event.Code,
			}).
			Mark(ierr.ErrValidation)
	}

	entry := event.ToAuditEntry()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.Clock.Now()
	}
	if entry.Actor == "" {
		entry.Actor = types.SystemActor
	}

	if err := s.AuditRepo.Create(ctx, entry); err != nil {
		s.Logger.Errorw("failed to record audit entry",
			"event_id", event.ID,
			"action", event.Action,
			"code", event.Code,
			"error", err)
		return err
	}

	s.Logger.Debugw("recorded audit entry",
		"event_id", event.ID,
		"action", event.Action,
		"code", event.Code)
	return nil
}
