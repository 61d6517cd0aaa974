package sentry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestDisabledServiceIsNoop(t *testing.T) {
	ctx := context.Background()

	for name, svc := range map[string]*Service{
		"nil":      nil,
		"disabled": NewSentryService(&config.Configuration{}, nil),
	} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, svc.Enabled())

			span, got := svc.StartDBSpan(ctx, "postgres.transaction", nil)
			assert.Nil(t, span)
			assert.Equal(t, ctx, got)

			span, got = svc.StartEventSpan(ctx, "generated", time.Now(), nil)
			assert.Nil(t, span)
			assert.Equal(t, ctx, got)

			span, got = svc.StartTransaction(ctx, "reservation.sweep")
			assert.Nil(t, span)
			assert.Equal(t, ctx, got)

			assert.NotPanics(t, func() {
				svc.CaptureException(errors.New("boom"))
				svc.AddBreadcrumb("reservation", "expired", nil)
			})
		})
	}
}

func TestLagSeverity(t *testing.T) {
	assert.Equal(t, "normal", lagSeverity(10*time.Second))
	assert.Equal(t, "warning", lagSeverity(time.Minute))
	assert.Equal(t, "warning", lagSeverity(4*time.Minute))
	assert.Equal(t, "critical", lagSeverity(5*time.Minute))
}
