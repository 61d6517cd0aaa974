package publisher

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/kafka"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/pubsub"
	"github.com/shahin-grc/serialcode/internal/types"
)

// EventPublisher emits serial code lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, event *serialcode.LifecycleEvent) error
}

type eventPublisher struct {
	pubSub pubsub.Publisher
	logger *logger.Logger
	config *config.EventConfig
}

// NewEventPublisher creates a publisher on top of the configured pubsub. When
// events are disabled a no-op publisher is returned.
func NewEventPublisher(cfg *config.Configuration, logger *logger.Logger, pubSub pubsub.PubSub) EventPublisher {
	if !cfg.Event.Enabled || pubSub == nil {
		return NewNoopPublisher()
	}
	return &eventPublisher{
		pubSub: pubSub,
		logger: logger,
		config: &cfg.Event,
	}
}

func (p *eventPublisher) Publish(ctx context.Context, event *serialcode.LifecycleEvent) error {
	if event.ID == "" {
		event.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal lifecycle event").
			Mark(ierr.ErrSystem)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("action", string(event.Action))
	msg.Metadata.Set("code", event.Code)
	msg.Metadata.Set("tenant_code", event.TenantCode)
	msg.Metadata.Set(kafka.MetadataPartitionKey, event.Code)
	if requestID := types.GetRequestID(ctx); requestID != "" {
		middleware.SetCorrelationID(requestID, msg)
	}

	p.logger.Debugw("publishing lifecycle event",
		"event_id", event.ID,
		"action", event.Action,
		"code", event.Code,
		"destination", p.config.PublishDestination,
	)

	if err := p.pubSub.Publish(ctx, p.config.Topic, msg); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to publish lifecycle event").
			WithReportableDetails(map[string]any{
				"event_id": event.ID,
				"action":   event.Action,
			}).
			Mark(ierr.ErrSystem)
	}
	return nil
}

type noopPublisher struct{}

// NewNoopPublisher returns a publisher that drops every event
func NewNoopPublisher() EventPublisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, *serialcode.LifecycleEvent) error {
	return nil
}
