package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/pubsub/memory"
	"github.com/shahin-grc/serialcode/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversLifecycleEvent(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Event.Enabled = true
	log := logger.NewNoopLogger()

	ps := memory.NewPubSub(log)
	defer ps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := ps.Subscribe(ctx, cfg.Event.Topic)
	require.NoError(t, err)

	pub := NewEventPublisher(cfg, log, ps)
	event := &serialcode.LifecycleEvent{
		Action:     types.SerialCodeActionGenerated,
		Code:       "INC-ACME-0-2025-000001",
		TenantCode: "ACME",
		Actor:      "user_1",
		Timestamp:  time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(types.SetRequestID(ctx, "req-1"), event))
	require.NotEmpty(t, event.ID)

	select {
	case msg := <-messages:
		defer msg.Ack()

		assert.Equal(t, event.ID, msg.UUID)
		assert.Equal(t, "generated", msg.Metadata.Get("action"))
		assert.Equal(t, event.Code, msg.Metadata.Get("code"))
		assert.Equal(t, "ACME", msg.Metadata.Get("tenant_code"))
		assert.Equal(t, "req-1", middleware.MessageCorrelationID(msg))

		var decoded serialcode.LifecycleEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
		assert.Equal(t, event.Code, decoded.Code)
		assert.Equal(t, event.Actor, decoded.Actor)
		assert.True(t, event.Timestamp.Equal(decoded.Timestamp))
	case <-ctx.Done():
		t.Fatal("lifecycle event was not delivered")
	}
}

func TestDisabledEventsUseNoopPublisher(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Event.Enabled = false

	pub := NewEventPublisher(cfg, logger.NewNoopLogger(), memory.NewPubSub(logger.NewNoopLogger()))
	_, ok := pub.(noopPublisher)
	assert.True(t, ok)
	assert.NoError(t, pub.Publish(context.Background(), &serialcode.LifecycleEvent{}))
}
