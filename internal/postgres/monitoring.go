package postgres

import (
	"context"

	"github.com/getsentry/sentry-go"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/logger"
	sentryService "github.com/shahin-grc/serialcode/internal/sentry"
)

// SentryClient traces every transaction as a postgres span and reports
// storage outages. Domain failures such as a lost supersession race are
// returned untouched and not reported.
type SentryClient struct {
	client IClient
	sentry *sentryService.Service
	logger *logger.Logger
}

func NewSentryClient(client IClient, sentry *sentryService.Service, logger *logger.Logger) IClient {
	return &SentryClient{
		client: client,
		sentry: sentry,
		logger: logger,
	}
}

func (c *SentryClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	span, spanCtx := c.sentry.StartDBSpan(ctx, "postgres.transaction", map[string]interface{}{
		"nested": isNested(ctx),
	})

	err := c.client.WithTx(spanCtx, fn)

	if span != nil {
		span.Status = sentry.SpanStatusOK
		if err != nil {
			span.Status = sentry.SpanStatusInternalError
		}
		span.Finish()
	}

	if ierr.IsRetryable(err) {
		c.logger.Errorw("transaction failed on storage", "error", err)
		c.sentry.CaptureException(err)
	}
	return err
}

func isNested(ctx context.Context) bool {
	_, ok := GetTx(ctx)
	return ok
}
