package service

import (
	"context"
	"time"

	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	"github.com/shahin-grc/serialcode/internal/types"
)

// publishLifecycleEvent emits one lifecycle transition. The transition is
// already committed when this runs, so a publish failure is logged and
// reported but never returned to the caller.
func (p ServiceParams) publishLifecycleEvent(
	ctx context.Context,
	action types.SerialCodeAction,
	code string,
	tenantCode string,
	reservationID *string,
	actor string,
	at time.Time,
	details types.Metadata,
) {
	if p.EventPublisher == nil {
		return
	}

	event := &serialcode.LifecycleEvent{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT),
		Action:        action,
		Code:          code,
		ReservationID: reservationID,
		TenantCode:    tenantCode,
		Actor:         types.GetActor(ctx, actor),
		RequestID:     types.GetRequestID(ctx),
		Details:       details,
		Timestamp:     at,
	}

	if err := p.EventPublisher.Publish(ctx, event); err != nil {
		p.Logger.Errorw("failed to publish lifecycle event",
			"event_id", event.ID,
			"action", action,
			"code", code,
			"error", err)
		p.Sentry.CaptureException(err)
	}
}
