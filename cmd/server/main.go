package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shahin-grc/serialcode/internal/api"
	"github.com/shahin-grc/serialcode/internal/api/cron"
	v1 "github.com/shahin-grc/serialcode/internal/api/v1"
	"github.com/shahin-grc/serialcode/internal/cache"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/migrate"
	"github.com/shahin-grc/serialcode/internal/postgres"
	"github.com/shahin-grc/serialcode/internal/publisher"
	"github.com/shahin-grc/serialcode/internal/pubsub"
	kafkaPubSub "github.com/shahin-grc/serialcode/internal/pubsub/kafka"
	memoryPubSub "github.com/shahin-grc/serialcode/internal/pubsub/memory"
	pubsubRouter "github.com/shahin-grc/serialcode/internal/pubsub/router"
	"github.com/shahin-grc/serialcode/internal/repository"
	"github.com/shahin-grc/serialcode/internal/sentry"
	"github.com/shahin-grc/serialcode/internal/service"
	"github.com/shahin-grc/serialcode/internal/types"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Monitoring and storage
	opts = append(opts,
		sentry.Module(),
		postgres.Module(),
	)

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Cache
			cache.Initialize,

			// Clock
			types.NewSystemClock,

			// Repositories
			repository.NewCounterRepository,
			repository.NewSerialCodeRepository,
			repository.NewVersionRepository,
			repository.NewAuditRepository,
			repository.NewReservationRepository,

			// Events
			providePubSub,
			publisher.NewEventPublisher,
			pubsubRouter.NewRouter,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewSerialCodeService,
			service.NewReservationService,
			service.NewVersioningService,
			service.NewTraceabilityService,
			service.NewAuditService,
			service.NewReservationSweeper,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			runMigrations,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

// providePubSub picks the event transport. The same instance backs the
// publisher and the audit subscriber so the memory transport works in process.
func providePubSub(lc fx.Lifecycle, cfg *config.Configuration, logger *logger.Logger) (pubsub.PubSub, error) {
	var (
		ps  pubsub.PubSub
		err error
	)

	switch cfg.Event.PublishDestination {
	case types.PublishToKafka:
		ps, err = kafkaPubSub.NewPubSub(cfg, logger)
		if err != nil {
			return nil, err
		}
	default:
		ps = memoryPubSub.NewPubSub(logger)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return ps.Close()
		},
	})
	return ps, nil
}

func provideHandlers(
	cfg *config.Configuration,
	logger *logger.Logger,
	db *postgres.DB,
	clock types.Clock,
	serialCodeService service.SerialCodeService,
	reservationService service.ReservationService,
	versioningService service.VersioningService,
	traceabilityService service.TraceabilityService,
) api.Handlers {
	return api.Handlers{
		Health:          v1.NewHealthHandler(db, logger),
		SerialCode:      v1.NewSerialCodeHandler(serialCodeService, versioningService, traceabilityService, logger),
		Reservation:     v1.NewReservationHandler(reservationService, logger),
		CronReservation: cron.NewReservationCronHandler(logger, cfg, reservationService, clock),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, cfg, logger)
}

func runMigrations(cfg *config.Configuration, db *postgres.DB, log *logger.Logger) error {
	if !cfg.Postgres.AutoMigrate {
		return nil
	}

	log.Info("running database migrations")
	if err := migrate.RunMigrations(db.DB.DB); err != nil {
		log.Errorw("failed to apply migrations", "error", err)
		return err
	}
	return nil
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	router *pubsubRouter.Router,
	subscriber pubsub.PubSub,
	auditService service.AuditService,
	sweeper *service.ReservationSweeper,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		startMessageRouter(lc, router, subscriber, auditService, cfg, log)
		startSweeper(lc, sweeper, cfg, log)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
		startMessageRouter(lc, router, subscriber, auditService, cfg, log)
	case types.ModeSweeper:
		startMessageRouter(lc, router, subscriber, auditService, cfg, log)
		startSweeper(lc, sweeper, cfg, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	log.Info("Registering API server start hook")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting API server...")
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return nil
		},
	})
}

func startMessageRouter(
	lc fx.Lifecycle,
	router *pubsubRouter.Router,
	subscriber pubsub.PubSub,
	auditService service.AuditService,
	cfg *config.Configuration,
	logger *logger.Logger,
) {
	if !cfg.Event.Enabled {
		logger.Info("event delivery disabled, audit consumer not started")
		return
	}

	// Register handlers before starting the router
	auditService.RegisterHandler(router, subscriber, cfg)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting message router")
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Errorw("message router failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping message router")
			return router.Close()
		},
	})
}

func startSweeper(
	lc fx.Lifecycle,
	sweeper *service.ReservationSweeper,
	cfg *config.Configuration,
	logger *logger.Logger,
) {
	if !cfg.SerialCode.SweepEnabled {
		logger.Info("reservation sweeper disabled, expiry relies on the cron endpoint and lazy checks")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// the start context ends with the start phase, the loop must outlive it
			return sweeper.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			return sweeper.Stop(ctx)
		},
	})
}
