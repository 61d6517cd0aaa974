package postgres

import (
	"context"

	"github.com/shahin-grc/serialcode/internal/logger"
	sentryService "github.com/shahin-grc/serialcode/internal/sentry"
	"go.uber.org/fx"
)

// IClient defines the interface for postgres client operations
type IClient interface {
	// WithTx wraps the given function in a transaction
	WithTx(ctx context.Context, fn func(context.Context) error) error
}

// Module provides the pool, a sentry instrumented IClient and the shutdown hook
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewDB,
			func(db *DB, sentry *sentryService.Service, logger *logger.Logger) IClient {
				return NewSentryClient(NewClient(db), sentry, logger)
			},
		),
		fx.Invoke(RegisterHooks),
	)
}

// NewClient exposes the DB transaction manager as an IClient
func NewClient(db *DB) IClient {
	return db
}

// RegisterHooks closes the pool when the application stops
func RegisterHooks(lc fx.Lifecycle, db *DB, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing postgres connection pool")
			db.Close()
			return nil
		},
	})
}
