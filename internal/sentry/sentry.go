package sentry

import (
	"context"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/logger"
	"go.uber.org/fx"
)

// Event lag thresholds tagged on audit consumer transactions
const (
	lagWarning  = time.Minute
	lagCritical = 5 * time.Minute
)

// unsampled transactions are frequent and carry no signal
var unsampled = map[string]bool{
	"GET /health":                 true,
	"HEAD /v1/serial-codes/:code": true,
}

// Service reports errors and spans. Every method is a no-op on a nil
// service or when reporting is disabled, so tests pass nil.
type Service struct {
	cfg    *config.Configuration
	logger *logger.Logger
}

func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewSentryService),
		fx.Invoke(RegisterHooks),
	)
}

func NewSentryService(cfg *config.Configuration, logger *logger.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger,
	}
}

// RegisterHooks initializes the client on start and flushes it on stop
func RegisterHooks(lc fx.Lifecycle, svc *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !svc.Enabled() {
				svc.logger.Info("sentry disabled")
				return nil
			}

			if err := sentry.Init(svc.clientOptions()); err != nil {
				svc.logger.Errorw("failed to initialize sentry", "error", err)
				return err
			}
			svc.logger.Infow("sentry initialized",
				"environment", svc.cfg.Sentry.Environment,
				"sample_rate", svc.cfg.Sentry.SampleRate,
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if svc.Enabled() {
				sentry.Flush(2 * time.Second)
			}
			return nil
		},
	})
}

func (s *Service) clientOptions() sentry.ClientOptions {
	rate := s.cfg.Sentry.SampleRate
	return sentry.ClientOptions{
		Dsn:              s.cfg.Sentry.DSN,
		Environment:      s.cfg.Sentry.Environment,
		EnableTracing:    true,
		TracesSampleRate: rate,
		TracesSampler: sentry.TracesSampler(func(ctx sentry.SamplingContext) float64 {
			if ctx.Span != nil && unsampled[ctx.Span.Name] {
				return 0.0
			}
			return rate
		}),
	}
}

// Enabled reports whether events leave the process
func (s *Service) Enabled() bool {
	return s != nil && s.cfg != nil && s.cfg.Sentry.Enabled
}

func (s *Service) CaptureException(err error) {
	if !s.Enabled() || err == nil {
		return
	}
	sentry.CaptureException(err)
}

func (s *Service) AddBreadcrumb(category, message string, data map[string]interface{}) {
	if !s.Enabled() {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: category,
		Message:  message,
		Level:    sentry.LevelInfo,
		Data:     data,
	})
}

// StartDBSpan opens a postgres span under the transaction in ctx
func (s *Service) StartDBSpan(ctx context.Context, operation string, params map[string]interface{}) (*sentry.Span, context.Context) {
	if !s.Enabled() {
		return nil, ctx
	}

	span := sentry.StartSpan(ctx, operation)
	span.Description = operation
	span.Op = "db.postgres"
	for k, v := range params {
		span.SetData(k, v)
	}
	return span, span.Context()
}

// StartEventSpan tracks consumption of one lifecycle event. The delay since
// the event was published is tagged on the enclosing transaction.
func (s *Service) StartEventSpan(ctx context.Context, action string, publishedAt time.Time, data map[string]interface{}) (*sentry.Span, context.Context) {
	if !s.Enabled() {
		return nil, ctx
	}

	span := sentry.StartSpan(ctx, "serial_code.event.consume")
	span.Op = "event.consume"
	span.Description = action
	span.SetData("action", action)
	for k, v := range data {
		span.SetData(k, v)
	}

	if !publishedAt.IsZero() {
		lag := time.Since(publishedAt)
		span.SetData("lag_ms", lag.Milliseconds())

		if tx := sentry.TransactionFromContext(ctx); tx != nil {
			tx.SetTag("event.lag.ms", strconv.FormatInt(lag.Milliseconds(), 10))
			tx.SetTag("event.lag.severity", lagSeverity(lag))
		}
	}

	return span, span.Context()
}

func lagSeverity(lag time.Duration) string {
	switch {
	case lag >= lagCritical:
		return "critical"
	case lag >= lagWarning:
		return "warning"
	default:
		return "normal"
	}
}

// StartTransaction opens a transaction for work that does not start from an
// HTTP request, such as a sweep cycle.
func (s *Service) StartTransaction(ctx context.Context, name string, options ...sentry.SpanOption) (*sentry.Span, context.Context) {
	if !s.Enabled() {
		return nil, ctx
	}

	if sentry.GetHubFromContext(ctx) == nil {
		ctx = sentry.SetHubOnContext(ctx, sentry.CurrentHub().Clone())
	}

	opts := append([]sentry.SpanOption{
		sentry.WithOpName(name),
		sentry.WithTransactionSource(sentry.SourceCustom),
	}, options...)

	tx := sentry.StartTransaction(ctx, name, opts...)
	return tx, tx.Context()
}
